// Package limiter exposes the rate limiting algorithms for embedding in
// other programs.
package limiter

import (
	"time"

	internallimiter "github.com/SmitUplenchwar2687/quota/internal/limiter"
)

// Algorithm identifies a rate limiting algorithm.
type Algorithm = internallimiter.Algorithm

const (
	AlgorithmFixedWindow          = internallimiter.AlgorithmFixedWindow
	AlgorithmSlidingWindow        = internallimiter.AlgorithmSlidingWindow
	AlgorithmSlidingWindowCounter = internallimiter.AlgorithmSlidingWindowCounter
)

// Limiter is the core rate limiting interface.
type Limiter = internallimiter.Limiter

// Result is the outcome of a Consume or Check call.
type Result = internallimiter.Result

// Config holds parameters for creating a limiter.
type Config = internallimiter.Config

// ConsumeOption adjusts a single Consume or Check call.
type ConsumeOption = internallimiter.ConsumeOption

// FixedWindow implements the fixed window counter algorithm.
type FixedWindow = internallimiter.FixedWindow

// SlidingWindow implements the sliding window log algorithm.
type SlidingWindow = internallimiter.SlidingWindow

// SlidingWindowCounter implements the sliding window counter algorithm.
type SlidingWindowCounter = internallimiter.SlidingWindowCounter

var (
	ErrQuotaExceeded   = internallimiter.ErrQuotaExceeded
	ErrEmptyIdentifier = internallimiter.ErrEmptyIdentifier
	ErrInvalidAmount   = internallimiter.ErrInvalidAmount
	ErrInvalidPoints   = internallimiter.ErrInvalidPoints
	ErrCorruptRecord   = internallimiter.ErrCorruptRecord
)

// New creates the limiter selected by cfg.Algorithm.
func New(cfg Config) (Limiter, error) { return internallimiter.New(cfg) }

// ParseAlgorithm maps a name to an Algorithm, defaulting to the sliding window counter.
func ParseAlgorithm(name string) Algorithm { return internallimiter.ParseAlgorithm(name) }

func WithAmount(n int64) ConsumeOption                 { return internallimiter.WithAmount(n) }
func WithPoints(n int64) ConsumeOption                 { return internallimiter.WithPoints(n) }
func WithBucketInterval(d time.Duration) ConsumeOption { return internallimiter.WithBucketInterval(d) }
func JustCheck() ConsumeOption                         { return internallimiter.JustCheck() }
