// Package timeutil provides a swappable clock so timing measurements are
// deterministic in tests.
package timeutil

import (
	"sync"
	"time"
)

// Clock supplies the time readings used for lap and move timing.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration
}

// RealClock implements Clock using the time package.
type RealClock struct{}

func (RealClock) Now() time.Time                  { return time.Now() }
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// StepClock is a test clock that advances by a fixed step on every reading,
// so consecutive measurements see deterministic elapsed time.
type StepClock struct {
	mu   sync.Mutex
	t    time.Time
	step time.Duration
}

// NewStepClock returns a StepClock starting at start. The first Now call
// returns start+step.
func NewStepClock(start time.Time, step time.Duration) *StepClock {
	return &StepClock{t: start, step: step}
}

func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(c.step)
	return c.t
}

func (c *StepClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}
