package bench

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smac-tools/stagebench/internal/db"
	"github.com/smac-tools/stagebench/internal/timeutil"
)

// fakeMover completes every move instantly and records the limits applied.
type fakeMover struct {
	pos           float64
	homes         int
	velocities    []float64
	accelerations []float64
	torques       []int64

	moveCalls  int
	failOnMove int // fail the Nth MoveAbsoluteMM call (1-based); 0 disables
	homeErr    error
}

func (m *fakeMover) Home(ctx context.Context) error {
	m.homes++
	m.pos = 0
	return m.homeErr
}

func (m *fakeMover) SetMaxVelocity(ctx context.Context, v float64) error {
	m.velocities = append(m.velocities, v)
	return nil
}

func (m *fakeMover) SetMaxAcceleration(ctx context.Context, a float64) error {
	m.accelerations = append(m.accelerations, a)
	return nil
}

func (m *fakeMover) SetMaxTorque(ctx context.Context, torque int64) error {
	m.torques = append(m.torques, torque)
	return nil
}

func (m *fakeMover) MoveAbsoluteMM(ctx context.Context, posMM float64, wait bool) error {
	m.moveCalls++
	if m.failOnMove > 0 && m.moveCalls == m.failOnMove {
		return errors.New("servo fault")
	}
	m.pos = posMM
	return nil
}

func (m *fakeMover) PositionMM(ctx context.Context) (float64, error) {
	return m.pos, nil
}

// fakeStore records persistence calls.
type fakeStore struct {
	runs    []db.BenchRun
	laps    map[string][]float64
	runErr  error
	lapsErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{laps: map[string][]float64{}}
}

func (s *fakeStore) RecordRun(run db.BenchRun) error {
	if s.runErr != nil {
		return s.runErr
	}
	s.runs = append(s.runs, run)
	return nil
}

func (s *fakeStore) RecordLaps(runID string, lapSeconds []float64) error {
	if s.lapsErr != nil {
		return s.lapsErr
	}
	s.laps[runID] = lapSeconds
	return nil
}

func testConfig(loops int) SweepConfig {
	cfg := DefaultSweepConfig()
	cfg.Loops = loops
	return cfg
}

func newTestEngine(mover Mover, store RunStore, cfg SweepConfig) *Engine {
	e := NewEngine(mover, store, cfg)
	e.clock = timeutil.NewStepClock(time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC), 10*time.Millisecond)
	return e
}

func TestEngineRunSingleCombination(t *testing.T) {
	mover := &fakeMover{}
	store := newFakeStore()
	e := newTestEngine(mover, store, testConfig(3))

	results, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	run := results[0]
	assert.Equal(t, "LCS25-025", run.Stage)
	assert.Equal(t, 1000.0, run.VelocityMMS)
	assert.Equal(t, 30000.0, run.AccelerationMMSS)
	assert.Equal(t, int64(10000), run.Torque)
	assert.Equal(t, int64(3), run.Loops)
	assert.Equal(t, int64(3), run.LapsCompleted)
	assert.False(t, run.Aborted)

	// each clock reading advances 10 ms: one per lap boundary
	assert.InDelta(t, 0.01, run.MeanLapSeconds, 1e-9)
	assert.InDelta(t, 0.01, run.MinLapSeconds, 1e-9)
	assert.InDelta(t, 0.01, run.MaxLapSeconds, 1e-9)
	assert.InDelta(t, 0, run.StddevLapSeconds, 1e-9)

	// a lap covers the distance twice
	travelled := 3 * 2 * run.DistanceMM
	assert.InDelta(t, travelled/run.TotalSeconds, run.AvgSpeedMMS, 1e-9)

	assert.Equal(t, 1, mover.homes)
	assert.Equal(t, []int64{10000}, mover.torques)
	assert.Equal(t, []float64{1000}, mover.velocities)
	assert.Equal(t, []float64{30000}, mover.accelerations)

	require.Len(t, store.runs, 1)
	assert.Equal(t, run.RunID, store.runs[0].RunID)
	assert.Len(t, store.laps[run.RunID], 3)
}

func TestEngineRunGrid(t *testing.T) {
	mover := &fakeMover{}
	store := newFakeStore()
	cfg := testConfig(2)
	cfg.Velocities = []float64{500, 1000}
	cfg.Accelerations = []float64{10000, 30000}
	e := newTestEngine(mover, store, cfg)

	results, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 4)

	// one home per combination, velocity-major order
	assert.Equal(t, 4, mover.homes)
	assert.Equal(t, []float64{500, 500, 1000, 1000}, mover.velocities)
	assert.Equal(t, []float64{10000, 30000, 10000, 30000}, mover.accelerations)

	// every run gets a distinct id
	seen := map[string]bool{}
	for _, run := range results {
		assert.False(t, seen[run.RunID])
		seen[run.RunID] = true
	}
}

func TestEngineLapErrorKeepsPartialResults(t *testing.T) {
	// call 1 is the settle move; calls 2-3 are lap 0; call 4 fails lap 1
	mover := &fakeMover{failOnMove: 4}
	store := newFakeStore()
	e := newTestEngine(mover, store, testConfig(5))

	results, err := e.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, results, 1)

	run := results[0]
	assert.True(t, run.Aborted)
	assert.Contains(t, run.AbortReason, "lap 1")
	assert.Contains(t, run.AbortReason, "servo fault")
	assert.Equal(t, int64(1), run.LapsCompleted)

	// the aborted run is still persisted with its completed laps
	require.Len(t, store.runs, 1)
	assert.Len(t, store.laps[run.RunID], 1)
}

func TestEngineHomeErrorAbortsSweep(t *testing.T) {
	mover := &fakeMover{homeErr: errors.New("no home macro")}
	e := newTestEngine(mover, newFakeStore(), testConfig(2))

	results, err := e.Run(context.Background())
	require.Error(t, err)
	assert.Empty(t, results)
}

func TestEngineStoreErrorAbortsSweep(t *testing.T) {
	store := newFakeStore()
	store.runErr = errors.New("disk full")
	e := newTestEngine(&fakeMover{}, store, testConfig(1))

	_, err := e.Run(context.Background())
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")
}

func TestEngineNilStore(t *testing.T) {
	e := newTestEngine(&fakeMover{}, nil, testConfig(2))

	results, err := e.Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestEngineInvalidConfig(t *testing.T) {
	cfg := testConfig(0)
	e := newTestEngine(&fakeMover{}, nil, cfg)

	_, err := e.Run(context.Background())
	assert.Error(t, err)
}

func TestEngineContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := newTestEngine(&fakeMover{}, nil, testConfig(3))

	// position polling notices the cancelled context and the run aborts with
	// its partial results intact
	results, err := e.Run(ctx)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Aborted)
	assert.Contains(t, results[0].AbortReason, context.Canceled.Error())
	assert.Equal(t, int64(0), results[0].LapsCompleted)
}

func TestEngineTimedMove(t *testing.T) {
	e := newTestEngine(&fakeMover{}, nil, testConfig(1))

	seconds, err := e.TimedMove(context.Background(), 0, 10)
	require.NoError(t, err)
	assert.InDelta(t, 0.01, seconds, 1e-9)
}
