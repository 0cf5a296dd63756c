package bench

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/smac-tools/stagebench/internal/db"
	"github.com/smac-tools/stagebench/internal/monitoring"
	"github.com/smac-tools/stagebench/internal/timeutil"
)

// Mover is the subset of controller operations the benchmark needs.
// *lac1.Controller satisfies it.
type Mover interface {
	Home(ctx context.Context) error
	SetMaxVelocity(ctx context.Context, mmPerSecond float64) error
	SetMaxAcceleration(ctx context.Context, mmPerSecondSquared float64) error
	SetMaxTorque(ctx context.Context, torque int64) error
	MoveAbsoluteMM(ctx context.Context, posMM float64, wait bool) error
	PositionMM(ctx context.Context) (float64, error)
}

// RunStore persists benchmark results. *db.DB satisfies it.
type RunStore interface {
	RecordRun(run db.BenchRun) error
	RecordLaps(runID string, lapSeconds []float64) error
}

// Engine runs a sweep against a mover and records the results.
type Engine struct {
	mover Mover
	store RunStore // may be nil for dry runs
	cfg   SweepConfig
	clock timeutil.Clock
}

// NewEngine creates an engine for the given mover, store, and sweep. A nil
// store skips persistence.
func NewEngine(mover Mover, store RunStore, cfg SweepConfig) *Engine {
	return &Engine{
		mover: mover,
		store: store,
		cfg:   cfg,
		clock: timeutil.RealClock{},
	}
}

// Run executes every combination in the sweep grid and returns the per-run
// results. The stage is homed once per combination so every run starts from
// the same reference. A lap error aborts that combination but keeps the
// completed laps; errors from the store or from homing abort the sweep.
func (e *Engine) Run(ctx context.Context) ([]db.BenchRun, error) {
	if err := e.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sweep config: %w", err)
	}

	combos := e.cfg.Combinations()
	results := make([]db.BenchRun, 0, len(combos))

	for _, combo := range combos {
		run, lapSeconds, err := e.runCombination(ctx, combo)
		if err != nil {
			return results, err
		}

		if e.store != nil {
			if err := e.store.RecordRun(run); err != nil {
				return results, err
			}
			if err := e.store.RecordLaps(run.RunID, lapSeconds); err != nil {
				return results, err
			}
		}
		results = append(results, run)
	}
	return results, nil
}

// runCombination times cfg.Loops laps at one velocity/acceleration setting.
func (e *Engine) runCombination(ctx context.Context, combo Combination) (db.BenchRun, []float64, error) {
	run := db.BenchRun{
		RunID:            uuid.NewString(),
		Stage:            e.cfg.Stage,
		VelocityMMS:      combo.VelocityMMS,
		AccelerationMMSS: combo.AccelerationMMSS,
		Torque:           e.cfg.Torque,
		Loops:            int64(e.cfg.Loops),
		DistanceMM:       e.cfg.DistanceMM,
	}

	monitoring.Logf("bench: run %s v=%.1f mm/s a=%.1f mm/s/s loops=%d dist=%.2f mm",
		run.RunID, combo.VelocityMMS, combo.AccelerationMMSS, e.cfg.Loops, e.cfg.DistanceMM)

	if err := e.mover.Home(ctx); err != nil {
		return run, nil, fmt.Errorf("failed to home stage: %w", err)
	}
	if err := e.mover.SetMaxTorque(ctx, e.cfg.Torque); err != nil {
		return run, nil, err
	}
	if err := e.mover.SetMaxVelocity(ctx, combo.VelocityMMS); err != nil {
		return run, nil, err
	}
	if err := e.mover.SetMaxAcceleration(ctx, combo.AccelerationMMSS); err != nil {
		return run, nil, err
	}

	// settle at the origin before the clock starts
	if err := e.mover.MoveAbsoluteMM(ctx, 0, true); err != nil {
		return run, nil, fmt.Errorf("failed to reach start position: %w", err)
	}

	run.StartedAt = e.clock.Now()
	start := run.StartedAt
	lapSeconds := make([]float64, 0, e.cfg.Loops)

	for lap := 0; lap < e.cfg.Loops; lap++ {
		lapStart := e.clock.Now()
		if err := e.lap(ctx); err != nil {
			// keep the laps completed so far, matching the original
			// harness which reported partial results on error
			run.Aborted = true
			run.AbortReason = fmt.Sprintf("lap %d: %v", lap, err)
			monitoring.Logf("bench: aborting run %s: %s", run.RunID, run.AbortReason)
			break
		}
		lapSeconds = append(lapSeconds, e.clock.Since(lapStart).Seconds())

		if lap > 0 && lap%100 == 0 {
			monitoring.Logf("bench: run %s completed %d/%d laps", run.RunID, lap, e.cfg.Loops)
		}
	}

	run.TotalSeconds = e.clock.Since(start).Seconds()
	run.LapsCompleted = int64(len(lapSeconds))
	// each lap covers the distance twice
	travelled := float64(len(lapSeconds)) * e.cfg.DistanceMM * 2
	if run.TotalSeconds > 0 {
		run.AvgSpeedMMS = travelled / run.TotalSeconds
	}

	if len(lapSeconds) > 0 {
		run.MeanLapSeconds = stat.Mean(lapSeconds, nil)
		if len(lapSeconds) > 1 {
			run.StddevLapSeconds = stat.StdDev(lapSeconds, nil)
		}
		run.MinLapSeconds = lapSeconds[0]
		run.MaxLapSeconds = lapSeconds[0]
		for _, s := range lapSeconds {
			if s < run.MinLapSeconds {
				run.MinLapSeconds = s
			}
			if s > run.MaxLapSeconds {
				run.MaxLapSeconds = s
			}
		}
	}

	return run, lapSeconds, nil
}

// lap commands one 0 -> distance -> 0 pass, polling position rather than
// using the controller-side wait so lap timing reflects actual travel.
func (e *Engine) lap(ctx context.Context) error {
	if err := e.mover.MoveAbsoluteMM(ctx, e.cfg.DistanceMM, false); err != nil {
		return err
	}
	if err := e.pollUntil(ctx, func(p float64) bool { return p >= e.cfg.DistanceMM }); err != nil {
		return err
	}

	if err := e.mover.MoveAbsoluteMM(ctx, 0, false); err != nil {
		return err
	}
	return e.pollUntil(ctx, func(p float64) bool { return p <= 0 })
}

func (e *Engine) pollUntil(ctx context.Context, reached func(float64) bool) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		p, err := e.mover.PositionMM(ctx)
		if err != nil {
			return err
		}
		if reached(p) {
			return nil
		}
	}
}

// TimedMove measures a single move from fromMM to toMM with the current
// limits, returning the elapsed seconds.
func (e *Engine) TimedMove(ctx context.Context, fromMM, toMM float64) (float64, error) {
	if err := e.mover.MoveAbsoluteMM(ctx, fromMM, true); err != nil {
		return 0, fmt.Errorf("failed to reach start position: %w", err)
	}
	start := e.clock.Now()
	if err := e.mover.MoveAbsoluteMM(ctx, toMM, true); err != nil {
		return 0, err
	}
	return e.clock.Since(start).Seconds(), nil
}
