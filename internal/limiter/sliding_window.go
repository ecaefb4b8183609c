package limiter

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/SmitUplenchwar2687/quota/internal/clock"
)

// SlidingWindow implements the sliding window log algorithm.
//
// Every consumed point is one log member scored with its timestamp. Members
// at or before now-Duration fall out of the window and are purged on the
// next write. Accounting is exact at the cost of one member per point.
type SlidingWindow struct {
	base
}

// NewSlidingWindow creates a sliding window log limiter.
func NewSlidingWindow(cfg Config) (*SlidingWindow, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	cfg.Algorithm = AlgorithmSlidingWindow
	return &SlidingWindow{base{cfg: cfg}}, nil
}

func (sw *SlidingWindow) Algorithm() Algorithm { return AlgorithmSlidingWindow }

func (sw *SlidingWindow) Check(ctx context.Context, id string, opts ...ConsumeOption) (Result, error) {
	return sw.Consume(ctx, id, append(opts, JustCheck())...)
}

func (sw *SlidingWindow) Consume(ctx context.Context, id string, opts ...ConsumeOption) (Result, error) {
	key, o, err := sw.prepare(ctx, id, opts)
	if err != nil {
		return Result{}, err
	}

	now := sw.cfg.Clock.Now()
	windowStart := now.Add(-sw.cfg.Duration)

	if o.justCheck {
		count, err := sw.cfg.Store.CountSince(ctx, key, windowStart)
		if err != nil {
			return Result{}, fmt.Errorf("sliding window check %q: %w", key, err)
		}
		if count >= o.points {
			return rejected(o.points, count)
		}
		return admitted(o.points, count, false)
	}

	count, ok, err := sw.cfg.Store.AppendBelow(ctx, key, windowStart, now, logMembers(clock.Millis(now), o.amount), o.points, sw.cfg.Duration)
	if err != nil {
		return Result{}, fmt.Errorf("sliding window consume %q: %w", key, err)
	}
	if !ok {
		return rejected(o.points, count)
	}
	return admitted(o.points, count+o.amount, true)
}

// logMembers returns amount distinct members for one call. Members of
// concurrent calls in the same millisecond never collide.
func logMembers(nowMS, amount int64) []string {
	callID := uuid.NewString()
	members := make([]string, amount)
	for i := range members {
		members[i] = fmt.Sprintf("%d:%d:%s", nowMS, i+1, callID)
	}
	return members
}
