package limiter

import (
	"fmt"
	"time"
)

// ConsumeOption adjusts a single Consume or Check call.
type ConsumeOption func(*consumeOptions)

type consumeOptions struct {
	amount         int64
	points         int64
	bucketInterval time.Duration
	justCheck      bool
}

// WithAmount sets how many points the call consumes. Zero means 1.
func WithAmount(n int64) ConsumeOption {
	return func(o *consumeOptions) { o.amount = n }
}

// WithPoints overrides the configured limit for this call only.
// Zero keeps the configured limit.
func WithPoints(n int64) ConsumeOption {
	return func(o *consumeOptions) { o.points = n }
}

// WithBucketInterval overrides the sliding-window-counter bucket width for
// this call only. Zero keeps the configured width.
func WithBucketInterval(d time.Duration) ConsumeOption {
	return func(o *consumeOptions) { o.bucketInterval = d }
}

// JustCheck evaluates admission without recording consumption.
func JustCheck() ConsumeOption {
	return func(o *consumeOptions) { o.justCheck = true }
}

func resolveOptions(cfg Config, opts []ConsumeOption) (consumeOptions, error) {
	var o consumeOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	switch {
	case o.amount < 0:
		return o, fmt.Errorf("%w: got %d", ErrInvalidAmount, o.amount)
	case o.amount == 0:
		o.amount = 1
	}

	switch {
	case o.points < 0:
		return o, fmt.Errorf("%w: got %d", ErrInvalidPoints, o.points)
	case o.points == 0:
		o.points = cfg.Points
	}

	if o.bucketInterval < 0 {
		return o, fmt.Errorf("bucket interval must not be negative, got %s", o.bucketInterval)
	}
	if o.bucketInterval == 0 {
		o.bucketInterval = cfg.BucketInterval
	}
	if o.bucketInterval == 0 {
		o.bucketInterval = DefaultBucketInterval(cfg.Duration)
	}

	return o, nil
}
