package clock

import "time"

// Clock abstracts time so limiters and stores can run against real or
// virtual time. Window arithmetic in quota always goes through a Clock.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
}

// RealClock delegates to the standard time package.
type RealClock struct{}

func NewRealClock() *RealClock {
	return &RealClock{}
}

func (c *RealClock) Now() time.Time {
	return time.Now()
}

// Millis returns t as Unix milliseconds, the resolution used for every
// timestamp persisted by the stores.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
