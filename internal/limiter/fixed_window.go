package limiter

import (
	"context"
	"fmt"
)

// FixedWindow implements the fixed window counter algorithm.
//
// Each Quota Key holds one integer counter whose expiry is the window
// length. The first admitted call starts the window. Every admitted call
// increments the counter and refreshes its expiry, and once the counter
// expires a new window begins at zero.
//
// Simple and memory-efficient, but can allow up to 2x the rate at window
// boundaries.
type FixedWindow struct {
	base
}

// NewFixedWindow creates a fixed window limiter.
func NewFixedWindow(cfg Config) (*FixedWindow, error) {
	cfg, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	cfg.Algorithm = AlgorithmFixedWindow
	return &FixedWindow{base{cfg: cfg}}, nil
}

func (fw *FixedWindow) Algorithm() Algorithm { return AlgorithmFixedWindow }

func (fw *FixedWindow) Check(ctx context.Context, id string, opts ...ConsumeOption) (Result, error) {
	return fw.Consume(ctx, id, append(opts, JustCheck())...)
}

func (fw *FixedWindow) Consume(ctx context.Context, id string, opts ...ConsumeOption) (Result, error) {
	key, o, err := fw.prepare(ctx, id, opts)
	if err != nil {
		return Result{}, err
	}

	if o.justCheck {
		count, err := fw.cfg.Store.Counter(ctx, key)
		if err != nil {
			return Result{}, fmt.Errorf("fixed window check %q: %w", key, err)
		}
		if count >= o.points {
			return rejected(o.points, count)
		}
		return admitted(o.points, count, false)
	}

	before, ok, err := fw.cfg.Store.IncrementBelow(ctx, key, o.amount, o.points, fw.cfg.Duration)
	if err != nil {
		return Result{}, fmt.Errorf("fixed window consume %q: %w", key, err)
	}
	if !ok {
		return rejected(o.points, before)
	}
	return admitted(o.points, before+o.amount, true)
}
