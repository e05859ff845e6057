package testutil

import (
	"sync"
	"time"
)

// Epoch is the default start of a ManualClock.
var Epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// ManualClock is a wall clock that only moves when told to.
//
// Pass clock.Now wherever a component accepts a func() time.Time, then
// Advance it to cross grace periods without sleeping.
//
// Thread-safety: All methods are safe for concurrent use.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock reading start. A zero start means Epoch.
func NewManualClock(start time.Time) *ManualClock {
	if start.IsZero() {
		start = Epoch
	}
	return &ManualClock{now: start}
}

// Now returns the current reading.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new reading.
// Negative durations are ignored so the clock never runs backwards.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return c.now
}

// Set jumps to t if t is not before the current reading.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t.After(c.now) {
		c.now = t
	}
}

// FixedIDGenerator returns the same waiter id every time, so logs from a
// scenario run are byte-identical across runs.
//
// If id is empty, Generate returns "test-waiter".
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a FixedIDGenerator.
func NewFixedIDGenerator(id string) FixedIDGenerator {
	if id == "" {
		id = "test-waiter"
	}
	return FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
func (g FixedIDGenerator) Generate() string {
	return g.id
}
