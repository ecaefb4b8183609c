package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SmitUplenchwar2687/quota/internal/clock"
)

const defaultCleanupInterval = time.Minute

// MemoryConfig configures the in-memory backend.
type MemoryConfig struct {
	CleanupInterval time.Duration `json:"cleanup_interval" yaml:"cleanup_interval"`
	Clock           clock.Clock   `json:"-" yaml:"-"`
}

// MemoryStorage is an in-memory Store. A single mutex serializes every
// operation, which makes each one atomic per key. Expiry is evaluated
// against a Clock so windows can be skipped with a VirtualClock.
type MemoryStorage struct {
	mu    sync.Mutex
	clock clock.Clock

	counters map[string]counterItem
	logs     map[string]logItem
	records  map[string]recordItem

	cleanupInterval time.Duration
	stopCh          chan struct{}
	doneCh          chan struct{}
	closeOnce       sync.Once
}

type counterItem struct {
	value     int64
	expiresAt time.Time
}

type logEntry struct {
	score  int64
	member string
}

type logItem struct {
	entries   []logEntry // sorted by score, then member
	expiresAt time.Time
}

type recordItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryStorage constructs a memory-backed Store and starts its cleanup loop.
func NewMemoryStorage(cfg *MemoryConfig) (*MemoryStorage, error) {
	settings := MemoryConfig{
		CleanupInterval: defaultCleanupInterval,
		Clock:           clock.NewRealClock(),
	}
	if cfg != nil {
		if cfg.CleanupInterval < 0 {
			return nil, fmt.Errorf("cleanup_interval must not be negative, got %s", cfg.CleanupInterval)
		}
		if cfg.CleanupInterval > 0 {
			settings.CleanupInterval = cfg.CleanupInterval
		}
		if cfg.Clock != nil {
			settings.Clock = cfg.Clock
		}
	}

	s := &MemoryStorage{
		clock:           settings.Clock,
		counters:        make(map[string]counterItem),
		logs:            make(map[string]logItem),
		records:         make(map[string]recordItem),
		cleanupInterval: settings.CleanupInterval,
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
	go s.cleanupLoop()

	return s, nil
}

func expired(expiresAt, now time.Time) bool {
	return !expiresAt.IsZero() && !now.Before(expiresAt)
}

func (s *MemoryStorage) Counter(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.counters[key]
	if !ok || expired(item.expiresAt, s.clock.Now()) {
		return 0, nil
	}
	return item.value, nil
}

func (s *MemoryStorage) IncrementBelow(ctx context.Context, key string, amount, limit int64, ttl time.Duration) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	item, ok := s.counters[key]
	if !ok || expired(item.expiresAt, now) {
		item = counterItem{}
	}

	before := item.value
	if before >= limit {
		return before, false, nil
	}

	item.value += amount
	item.expiresAt = now.Add(ttl)
	s.counters[key] = item
	return before, true, nil
}

func (s *MemoryStorage) CountSince(ctx context.Context, key string, since time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.logs[key]
	if !ok || expired(item.expiresAt, s.clock.Now()) {
		return 0, nil
	}

	sinceMS := clock.Millis(since)
	var n int64
	for _, e := range item.entries {
		if e.score > sinceMS {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStorage) AppendBelow(ctx context.Context, key string, since, at time.Time, members []string, limit int64, ttl time.Duration) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	item, ok := s.logs[key]
	if !ok || expired(item.expiresAt, now) {
		item = logItem{}
	}

	// Purge entries at or before the window start.
	sinceMS := clock.Millis(since)
	kept := item.entries[:0]
	for _, e := range item.entries {
		if e.score > sinceMS {
			kept = append(kept, e)
		}
	}
	item.entries = kept

	count := int64(len(item.entries))
	if count >= limit {
		if len(item.entries) == 0 {
			delete(s.logs, key)
		} else {
			s.logs[key] = item
		}
		return count, false, nil
	}

	score := clock.Millis(at)
	for _, m := range members {
		item.entries = append(item.entries, logEntry{score: score, member: m})
	}
	sort.SliceStable(item.entries, func(i, j int) bool {
		if item.entries[i].score != item.entries[j].score {
			return item.entries[i].score < item.entries[j].score
		}
		return item.entries[i].member < item.entries[j].member
	})
	item.expiresAt = now.Add(ttl)
	s.logs[key] = item

	return count, true, nil
}

func (s *MemoryStorage) Record(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.records[key]
	if !ok || expired(item.expiresAt, s.clock.Now()) {
		return nil, nil
	}
	// Return a copy to prevent mutation.
	val := make([]byte, len(item.value))
	copy(val, item.value)
	return val, nil
}

func (s *MemoryStorage) AddBucketBelow(ctx context.Context, key string, at time.Time, amount, limit int64, window, interval time.Duration) (int64, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	if window <= 0 || interval <= 0 {
		return 0, false, fmt.Errorf("window and interval must be positive, got %s and %s", window, interval)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	var buckets []Bucket
	if item, ok := s.records[key]; ok && !expired(item.expiresAt, now) {
		var err error
		if buckets, err = DecodeBuckets(item.value); err != nil {
			return 0, false, fmt.Errorf("bucket log %q: %w", key, err)
		}
	}

	kept, count := addBucket(buckets, clock.Millis(at), amount, limit, window.Milliseconds(), interval.Milliseconds())
	if kept == nil {
		return count, false, nil
	}
	value, err := json.Marshal(kept)
	if err != nil {
		return 0, false, fmt.Errorf("encoding bucket log: %w", err)
	}
	s.records[key] = recordItem{value: value, expiresAt: now.Add(window)}
	return count, true, nil
}

// Cleanup removes all expired items.
func (s *MemoryStorage) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for key, item := range s.counters {
		if expired(item.expiresAt, now) {
			delete(s.counters, key)
		}
	}
	for key, item := range s.logs {
		if expired(item.expiresAt, now) {
			delete(s.logs, key)
		}
	}
	for key, item := range s.records {
		if expired(item.expiresAt, now) {
			delete(s.records, key)
		}
	}
}

// Len returns the number of stored keys, including expired ones not yet
// cleaned up.
func (s *MemoryStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.counters) + len(s.logs) + len(s.records)
}

// Close stops the cleanup loop. It is idempotent.
func (s *MemoryStorage) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCh)
		<-s.doneCh
	})
	return nil
}

func (s *MemoryStorage) cleanupLoop() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Cleanup()
		}
	}
}
