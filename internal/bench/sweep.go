// Package bench drives a stage through velocity/acceleration parameter
// sweeps and measures travel time.
package bench

import (
	"fmt"
	"strconv"
	"strings"
)

// SweepConfig describes one benchmark sweep: the parameter grid, the lap
// geometry, and the loop count per combination.
type SweepConfig struct {
	// Velocities to test, in mm/s.
	Velocities []float64
	// Accelerations to test, in mm/s/s.
	Accelerations []float64
	// Loops is the number of back-and-forth laps per combination.
	Loops int
	// DistanceMM is the far end of each lap; laps run 0 -> distance -> 0.
	DistanceMM float64
	// Torque is the raw SQ limit applied for the sweep.
	Torque int64
	// Stage names the profile under test, recorded with each run.
	Stage string
}

// DefaultSweepConfig mirrors the original bench settings for the LCS25-025:
// 1000 laps of 2 mm at 1000 mm/s, 30000 mm/s/s, torque 10000.
func DefaultSweepConfig() SweepConfig {
	return SweepConfig{
		Velocities:    []float64{1000},
		Accelerations: []float64{30000},
		Loops:         1000,
		DistanceMM:    2,
		Torque:        10000,
		Stage:         "LCS25-025",
	}
}

// Validate checks the sweep parameters.
func (c SweepConfig) Validate() error {
	if len(c.Velocities) == 0 {
		return fmt.Errorf("at least one velocity is required")
	}
	if len(c.Accelerations) == 0 {
		return fmt.Errorf("at least one acceleration is required")
	}
	for _, v := range c.Velocities {
		if v <= 0 {
			return fmt.Errorf("invalid velocity %f: must be positive", v)
		}
	}
	for _, a := range c.Accelerations {
		if a <= 0 {
			return fmt.Errorf("invalid acceleration %f: must be positive", a)
		}
	}
	if c.Loops <= 0 {
		return fmt.Errorf("invalid loop count %d: must be positive", c.Loops)
	}
	if c.DistanceMM <= 0 {
		return fmt.Errorf("invalid lap distance %f: must be positive", c.DistanceMM)
	}
	if c.Torque <= 0 {
		return fmt.Errorf("invalid torque %d: must be positive", c.Torque)
	}
	return nil
}

// Combination is one (velocity, acceleration) cell of the sweep grid.
type Combination struct {
	VelocityMMS      float64
	AccelerationMMSS float64
}

// Combinations expands the grid in velocity-major order.
func (c SweepConfig) Combinations() []Combination {
	out := make([]Combination, 0, len(c.Velocities)*len(c.Accelerations))
	for _, v := range c.Velocities {
		for _, a := range c.Accelerations {
			out = append(out, Combination{VelocityMMS: v, AccelerationMMSS: a})
		}
	}
	return out
}

// ParseCSVFloats parses a comma-separated list of floats.
func ParseCSVFloats(s string) ([]float64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid float '%s': %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
