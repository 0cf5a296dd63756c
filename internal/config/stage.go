// Package config holds the stage profile and daemon environment
// configuration for the LAC-1 tooling.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/smac-tools/stagebench/internal/units"
)

// DefaultProfilePath is the path to the canonical stage profile file. The
// shipped defaults describe the LCS25-025-xx-x stage the homing routine was
// tuned for.
const DefaultProfilePath = "config/stage.defaults.json"

// StageProfile describes one mechanical stage and the servo parameters the
// controller is programmed with on connect. Fields omitted from the JSON
// file retain their defaults, so partial profiles are safe.
type StageProfile struct {
	Name *string `json:"name,omitempty"`

	// Geometry and encoder scaling
	TravelMM       *float64 `json:"travel_mm,omitempty"`
	EncCountsPerMM *float64 `json:"enc_counts_per_mm,omitempty"`
	ServoLoopFreq  *float64 `json:"servo_loop_freq,omitempty"`

	// Servo/PID parameters sent on initialisation. See the SMAC Actuators
	// Users Manual for the meaning of each register.
	ServoGain        *int `json:"servo_gain,omitempty"`         // SG
	IntegralGain     *int `json:"integral_gain,omitempty"`      // SI
	DerivativeGain   *int `json:"derivative_gain,omitempty"`    // SD
	IntegrationLimit *int `json:"integration_limit,omitempty"`  // IL
	ServoErrorLimit  *int `json:"servo_error_limit,omitempty"`  // SE
	DerivativeRate   *int `json:"derivative_rate,omitempty"`    // RI
	FrictionComp     *int `json:"friction_comp,omitempty"`      // FR

	// Conservative limits applied on connect before a caller raises them.
	SafeVelocityMMS  *float64 `json:"safe_velocity_mms,omitempty"`
	SafeAccelMMSS    *float64 `json:"safe_accel_mmss,omitempty"`

	// RangeChecking rejects absolute moves outside [0, TravelMM].
	RangeChecking *bool `json:"range_checking,omitempty"`

	// AllowHomeMacro acknowledges that the homing macros are hand-tuned for
	// this specific stage. Programming them on unverified hardware can drive
	// the axis into a hard stop at force, so it is off by default.
	AllowHomeMacro *bool `json:"allow_home_macro,omitempty"`
}

// EmptyStageProfile returns a StageProfile with all fields unset. The Get*
// methods fall back to the LCS25-025 defaults.
func EmptyStageProfile() *StageProfile {
	return &StageProfile{}
}

// LoadStageProfile loads a StageProfile from a JSON file. The file must have
// a .json extension and be under the max file size.
func LoadStageProfile(path string) (*StageProfile, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("stage profile must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat stage profile: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("stage profile too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read stage profile: %w", err)
	}

	profile := EmptyStageProfile()
	if err := json.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("failed to parse stage profile JSON: %w", err)
	}

	if err := profile.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stage profile: %w", err)
	}

	return profile, nil
}

// Validate checks that any set values are usable.
func (p *StageProfile) Validate() error {
	if p.TravelMM != nil && *p.TravelMM <= 0 {
		return fmt.Errorf("travel_mm must be positive, got %f", *p.TravelMM)
	}
	if p.EncCountsPerMM != nil && *p.EncCountsPerMM <= 0 {
		return fmt.Errorf("enc_counts_per_mm must be positive, got %f", *p.EncCountsPerMM)
	}
	if p.ServoLoopFreq != nil && *p.ServoLoopFreq <= 0 {
		return fmt.Errorf("servo_loop_freq must be positive, got %f", *p.ServoLoopFreq)
	}
	if p.SafeVelocityMMS != nil && *p.SafeVelocityMMS <= 0 {
		return fmt.Errorf("safe_velocity_mms must be positive, got %f", *p.SafeVelocityMMS)
	}
	if p.SafeAccelMMSS != nil && *p.SafeAccelMMSS <= 0 {
		return fmt.Errorf("safe_accel_mmss must be positive, got %f", *p.SafeAccelMMSS)
	}
	for name, v := range map[string]*int{
		"servo_gain":        p.ServoGain,
		"integral_gain":     p.IntegralGain,
		"derivative_gain":   p.DerivativeGain,
		"integration_limit": p.IntegrationLimit,
		"servo_error_limit": p.ServoErrorLimit,
		"derivative_rate":   p.DerivativeRate,
		"friction_comp":     p.FrictionComp,
	} {
		if v != nil && *v < 0 {
			return fmt.Errorf("%s must be non-negative, got %d", name, *v)
		}
	}
	return nil
}

// GetName returns the profile name or the default.
func (p *StageProfile) GetName() string {
	if p.Name == nil {
		return "LCS25-025"
	}
	return *p.Name
}

// GetTravelMM returns the usable stage travel in millimetres.
func (p *StageProfile) GetTravelMM() float64 {
	if p.TravelMM == nil {
		return 25
	}
	return *p.TravelMM
}

// GetScale returns the unit scale for this stage.
func (p *StageProfile) GetScale() units.Scale {
	scale := units.DefaultScale()
	if p.EncCountsPerMM != nil {
		scale.EncCountsPerMM = *p.EncCountsPerMM
	}
	if p.ServoLoopFreq != nil {
		scale.ServoLoopFreq = *p.ServoLoopFreq
	}
	return scale
}

// GetServoGain returns the SG register value.
func (p *StageProfile) GetServoGain() int {
	if p.ServoGain == nil {
		return 50
	}
	return *p.ServoGain
}

// GetIntegralGain returns the SI register value.
func (p *StageProfile) GetIntegralGain() int {
	if p.IntegralGain == nil {
		return 80
	}
	return *p.IntegralGain
}

// GetDerivativeGain returns the SD register value.
func (p *StageProfile) GetDerivativeGain() int {
	if p.DerivativeGain == nil {
		return 600
	}
	return *p.DerivativeGain
}

// GetIntegrationLimit returns the IL register value.
func (p *StageProfile) GetIntegrationLimit() int {
	if p.IntegrationLimit == nil {
		return 5000
	}
	return *p.IntegrationLimit
}

// GetServoErrorLimit returns the SE register value.
func (p *StageProfile) GetServoErrorLimit() int {
	if p.ServoErrorLimit == nil {
		return 16383
	}
	return *p.ServoErrorLimit
}

// GetDerivativeRate returns the RI register value.
func (p *StageProfile) GetDerivativeRate() int {
	if p.DerivativeRate == nil {
		return 1
	}
	return *p.DerivativeRate
}

// GetFrictionComp returns the FR register value.
func (p *StageProfile) GetFrictionComp() int {
	if p.FrictionComp == nil {
		return 1
	}
	return *p.FrictionComp
}

// GetSafeVelocityMMS returns the velocity limit applied on connect.
func (p *StageProfile) GetSafeVelocityMMS() float64 {
	if p.SafeVelocityMMS == nil {
		return 1
	}
	return *p.SafeVelocityMMS
}

// GetSafeAccelMMSS returns the acceleration limit applied on connect.
func (p *StageProfile) GetSafeAccelMMSS() float64 {
	if p.SafeAccelMMSS == nil {
		return 1
	}
	return *p.SafeAccelMMSS
}

// GetRangeChecking reports whether absolute moves are validated against
// stage travel.
func (p *StageProfile) GetRangeChecking() bool {
	if p.RangeChecking == nil {
		return true
	}
	return *p.RangeChecking
}

// GetAllowHomeMacro reports whether the stage-specific homing macros may be
// programmed onto the controller.
func (p *StageProfile) GetAllowHomeMacro() bool {
	if p.AllowHomeMacro == nil {
		return false
	}
	return *p.AllowHomeMacro
}
