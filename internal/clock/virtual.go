package clock

import (
	"sync"
	"time"
)

// VirtualClock is a controllable clock for time-travel testing. Windows can
// be skipped instantly instead of waiting for wall-clock time.
//
// Thread-safe for concurrent use.
type VirtualClock struct {
	mu        sync.RWMutex
	current   time.Time
	listeners []func(d time.Duration)
}

// NewVirtualClock creates a VirtualClock starting at the given time.
func NewVirtualClock(start time.Time) *VirtualClock {
	return &VirtualClock{current: start}
}

// Now returns the current virtual time.
func (c *VirtualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current
}

// OnAdvance registers fn to be called with the elapsed duration every time
// the clock moves forward. External stores with their own notion of time
// (for example an embedded Redis) use it to stay in step.
func (c *VirtualClock) OnAdvance(fn func(d time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Advance moves the virtual clock forward by d.
// Panics if d is negative.
func (c *VirtualClock) Advance(d time.Duration) {
	if d < 0 {
		panic("clock: cannot advance by negative duration")
	}

	c.mu.Lock()
	c.current = c.current.Add(d)
	listeners := append(([]func(time.Duration))(nil), c.listeners...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(d)
	}
}

// Set moves the virtual clock to t.
// Panics if t is before the current time.
func (c *VirtualClock) Set(t time.Time) {
	c.mu.RLock()
	current := c.current
	c.mu.RUnlock()

	if t.Before(current) {
		panic("clock: cannot set time to the past")
	}
	c.Advance(t.Sub(current))
}
