package limiter

import (
	"context"
	"fmt"
	"time"

	"github.com/SmitUplenchwar2687/quota/internal/clock"
	"github.com/SmitUplenchwar2687/quota/internal/storage"
)

// Algorithm identifies a rate limiting algorithm.
type Algorithm string

const (
	AlgorithmFixedWindow          Algorithm = "fixed-window"
	AlgorithmSlidingWindow        Algorithm = "sliding-window"
	AlgorithmSlidingWindowCounter Algorithm = "sliding-window-counter"
)

// DefaultKeyPrefix namespaces store keys when Config.KeyPrefix is empty.
const DefaultKeyPrefix = "RL"

// Algorithms lists the supported algorithms.
func Algorithms() []Algorithm {
	return []Algorithm{AlgorithmFixedWindow, AlgorithmSlidingWindow, AlgorithmSlidingWindowCounter}
}

// Valid reports whether a names a supported algorithm.
func (a Algorithm) Valid() bool {
	switch a {
	case AlgorithmFixedWindow, AlgorithmSlidingWindow, AlgorithmSlidingWindowCounter:
		return true
	}
	return false
}

// ParseAlgorithm maps a name to an Algorithm. Unknown and empty names map
// to AlgorithmSlidingWindowCounter.
func ParseAlgorithm(name string) Algorithm {
	a := Algorithm(name)
	if a.Valid() {
		return a
	}
	return AlgorithmSlidingWindowCounter
}

// Limiter is the core rate limiting interface.
//
// Consume admits or rejects amount points for id. An admitted call returns
// its Result and a nil error. A rejected call returns the Result together
// with ErrQuotaExceeded. Any other error is an infrastructure failure and
// the Result is zero.
type Limiter interface {
	Consume(ctx context.Context, id string, opts ...ConsumeOption) (Result, error)

	// Check is Consume with JustCheck applied. It never mutates state.
	Check(ctx context.Context, id string, opts ...ConsumeOption) (Result, error)

	Algorithm() Algorithm
}

// Config holds the parameters for creating a limiter. It is copied at
// construction and never mutated afterwards.
type Config struct {
	Algorithm Algorithm
	Duration  time.Duration // window length
	Points    int64         // default quota ceiling per window
	KeyPrefix string

	// BucketInterval sets the sliding-window-counter bucket width.
	// Zero derives it from Duration.
	BucketInterval time.Duration

	Store storage.Store
	Clock clock.Clock
}

func (c Config) validate() (Config, error) {
	if c.Store == nil {
		return c, fmt.Errorf("store is required")
	}
	if c.Duration <= 0 {
		return c, fmt.Errorf("duration must be positive, got %s", c.Duration)
	}
	if c.Points <= 0 {
		return c, fmt.Errorf("points must be positive, got %d", c.Points)
	}
	if c.BucketInterval < 0 {
		return c, fmt.Errorf("bucket interval must not be negative, got %s", c.BucketInterval)
	}
	if c.KeyPrefix == "" {
		c.KeyPrefix = DefaultKeyPrefix
	}
	if c.Clock == nil {
		c.Clock = clock.NewRealClock()
	}
	return c, nil
}

// New creates the limiter selected by cfg.Algorithm. Unknown or empty
// algorithms select the sliding window counter.
func New(cfg Config) (Limiter, error) {
	switch ParseAlgorithm(string(cfg.Algorithm)) {
	case AlgorithmFixedWindow:
		return NewFixedWindow(cfg)
	case AlgorithmSlidingWindow:
		return NewSlidingWindow(cfg)
	default:
		return NewSlidingWindowCounter(cfg)
	}
}

// base carries the state shared by every algorithm.
type base struct {
	cfg Config
}

func (b *base) key(id string) string {
	return b.cfg.KeyPrefix + ":" + id
}

// prepare validates a call and resolves its Quota Key and options.
func (b *base) prepare(ctx context.Context, id string, opts []ConsumeOption) (string, consumeOptions, error) {
	o, err := resolveOptions(b.cfg, opts)
	if err != nil {
		return "", o, err
	}
	if id == "" {
		return "", o, ErrEmptyIdentifier
	}
	if err := ctx.Err(); err != nil {
		return "", o, err
	}
	return b.key(id), o, nil
}
