package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/SmitUplenchwar2687/quota/internal/clock"
	"github.com/SmitUplenchwar2687/quota/internal/storage"
)

// SlidingWindowCounter implements the sliding window counter algorithm.
//
// The window is split into buckets of BucketInterval width. Each Quota Key
// holds one serialized log of {timestamp, count} buckets. The window count
// is the sum of the buckets that still overlap (now-Duration, now]. A bucket
// is timestamped when it opens and absorbs calls for one interval, so the
// count never understates the true count and overstates it by at most the
// weight of the bucket straddling the window start. Narrower buckets tighten
// that bound at the cost of more buckets.
type SlidingWindowCounter struct {
	base
}

// NewSlidingWindowCounter creates a sliding window counter limiter.
func NewSlidingWindowCounter(cfg Config) (*SlidingWindowCounter, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	cfg.Algorithm = AlgorithmSlidingWindowCounter
	return &SlidingWindowCounter{base{cfg: cfg}}, nil
}

// DefaultBucketInterval derives the bucket width for a window: d/30 for
// windows under a day, d/60 otherwise, truncated to whole seconds and never
// below one second.
func DefaultBucketInterval(d time.Duration) time.Duration {
	interval := d / 30
	if d >= 24*time.Hour {
		interval = d / 60
	}
	interval = interval.Truncate(time.Second)
	if interval < time.Second {
		interval = time.Second
	}
	return interval
}

func (sc *SlidingWindowCounter) Algorithm() Algorithm { return AlgorithmSlidingWindowCounter }

func (sc *SlidingWindowCounter) Check(ctx context.Context, id string, opts ...ConsumeOption) (Result, error) {
	return sc.Consume(ctx, id, append(opts, JustCheck())...)
}

func (sc *SlidingWindowCounter) Consume(ctx context.Context, id string, opts ...ConsumeOption) (Result, error) {
	key, o, err := sc.prepare(ctx, id, opts)
	if err != nil {
		return Result{}, err
	}

	now := sc.cfg.Clock.Now()

	if o.justCheck {
		raw, err := sc.cfg.Store.Record(ctx, key)
		if err != nil {
			return Result{}, fmt.Errorf("sliding window counter check %q: %w", key, err)
		}
		if raw == nil {
			return admitted(o.points, 0, false)
		}
		buckets, err := storage.DecodeBuckets(raw)
		if err != nil {
			return Result{}, fmt.Errorf("sliding window counter check %q: %w", key, err)
		}
		count := storage.SumBuckets(buckets, clock.Millis(now.Add(-sc.cfg.Duration)), o.bucketInterval.Milliseconds())
		if count >= o.points {
			return rejected(o.points, count)
		}
		return admitted(o.points, count, false)
	}

	count, ok, err := sc.cfg.Store.AddBucketBelow(ctx, key, now, o.amount, o.points, sc.cfg.Duration, o.bucketInterval)
	if err != nil {
		return Result{}, fmt.Errorf("sliding window counter consume %q: %w", key, err)
	}
	if !ok {
		return rejected(o.points, count)
	}
	return admitted(o.points, count+o.amount, true)
}
