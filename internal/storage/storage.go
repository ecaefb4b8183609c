package storage

import (
	"context"
	"time"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Store is the atomic counter store the limiters run against.
//
// Every mutating method is a single atomic transaction per key: the read,
// the comparison against limit and the write cannot be interleaved with
// another caller touching the same key, from this process or any other.
// Read-only methods never mutate state.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Counter returns the integer stored at key, or 0 if it does not exist.
	Counter(ctx context.Context, key string) (int64, error)

	// IncrementBelow increments the counter at key by amount and sets its
	// expiry to ttl, but only if the current value is below limit.
	// It returns the value observed before the increment and whether the
	// increment happened.
	IncrementBelow(ctx context.Context, key string, amount, limit int64, ttl time.Duration) (int64, bool, error)

	// CountSince returns the number of log members at key scored strictly
	// after since.
	CountSince(ctx context.Context, key string, since time.Time) (int64, error)

	// AppendBelow drops log members scored at or before since, then, if the
	// remaining count is below limit, adds members scored at and sets the
	// log expiry to ttl. It returns the count observed after the purge and
	// whether the members were added.
	AppendBelow(ctx context.Context, key string, since, at time.Time, members []string, limit int64, ttl time.Duration) (int64, bool, error)

	// Record returns the serialized bucket log at key, or nil if it does not exist.
	Record(ctx context.Context, key string) ([]byte, error)

	// AddBucketBelow sums the buckets of the log at key that overlap
	// (at-window, at]. If the sum is below limit it adds amount to the newest
	// bucket, or opens a bucket at at when the newest one is interval or more
	// old, drops buckets that no longer overlap and sets the log expiry to
	// window. It returns the sum observed before the add and whether the add
	// happened. A log that does not decode yields ErrCorruptRecord and is
	// left untouched.
	AddBucketBelow(ctx context.Context, key string, at time.Time, amount, limit int64, window, interval time.Duration) (int64, bool, error)

	// Close releases resources held by the store.
	Close() error
}
