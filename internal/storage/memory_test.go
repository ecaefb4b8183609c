package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/quota/internal/clock"
)

var (
	ctx   = context.Background()
	epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
)

func newMemoryForTest(t *testing.T) (*MemoryStorage, *clock.VirtualClock) {
	t.Helper()
	vc := clock.NewVirtualClock(epoch)
	s, err := NewMemoryStorage(&MemoryConfig{Clock: vc, CleanupInterval: time.Hour})
	if err != nil {
		t.Fatalf("NewMemoryStorage() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, vc
}

func TestNewMemoryStorage_Defaults(t *testing.T) {
	s, err := NewMemoryStorage(nil)
	if err != nil {
		t.Fatalf("NewMemoryStorage(nil) error = %v", err)
	}
	defer s.Close()

	if s.cleanupInterval != defaultCleanupInterval {
		t.Errorf("cleanupInterval = %s, want %s", s.cleanupInterval, defaultCleanupInterval)
	}
}

func TestNewMemoryStorage_NegativeCleanupInterval(t *testing.T) {
	if _, err := NewMemoryStorage(&MemoryConfig{CleanupInterval: -time.Second}); err == nil {
		t.Fatal("expected error for negative cleanup interval")
	}
}

func TestMemoryStorage_CounterMissingIsZero(t *testing.T) {
	s, _ := newMemoryForTest(t)

	n, err := s.Counter(ctx, "missing")
	if err != nil {
		t.Fatalf("Counter() error = %v", err)
	}
	if n != 0 {
		t.Errorf("Counter() = %d, want 0", n)
	}
}

func TestMemoryStorage_IncrementBelow(t *testing.T) {
	s, _ := newMemoryForTest(t)

	before, ok, err := s.IncrementBelow(ctx, "k", 2, 3, time.Minute)
	if err != nil {
		t.Fatalf("IncrementBelow() error = %v", err)
	}
	if !ok || before != 0 {
		t.Fatalf("IncrementBelow() = (%d, %v), want (0, true)", before, ok)
	}

	// 2 < 3, so an increment that overshoots the limit is still applied.
	before, ok, _ = s.IncrementBelow(ctx, "k", 2, 3, time.Minute)
	if !ok || before != 2 {
		t.Fatalf("IncrementBelow() = (%d, %v), want (2, true)", before, ok)
	}

	before, ok, _ = s.IncrementBelow(ctx, "k", 1, 3, time.Minute)
	if ok || before != 4 {
		t.Fatalf("IncrementBelow() = (%d, %v), want (4, false)", before, ok)
	}

	n, _ := s.Counter(ctx, "k")
	if n != 4 {
		t.Errorf("Counter() = %d, want 4", n)
	}
}

func TestMemoryStorage_CounterExpires(t *testing.T) {
	s, vc := newMemoryForTest(t)

	s.IncrementBelow(ctx, "k", 1, 10, time.Minute)
	vc.Advance(59 * time.Second)
	if n, _ := s.Counter(ctx, "k"); n != 1 {
		t.Fatalf("Counter() before expiry = %d, want 1", n)
	}

	vc.Advance(time.Second)
	if n, _ := s.Counter(ctx, "k"); n != 0 {
		t.Fatalf("Counter() after expiry = %d, want 0", n)
	}

	before, ok, _ := s.IncrementBelow(ctx, "k", 1, 10, time.Minute)
	if !ok || before != 0 {
		t.Fatalf("IncrementBelow() after expiry = (%d, %v), want (0, true)", before, ok)
	}
}

func TestMemoryStorage_AppendBelowAndCountSince(t *testing.T) {
	s, vc := newMemoryForTest(t)

	now := vc.Now()
	count, ok, err := s.AppendBelow(ctx, "log", now.Add(-time.Minute), now, []string{"a", "b"}, 3, time.Minute)
	if err != nil {
		t.Fatalf("AppendBelow() error = %v", err)
	}
	if !ok || count != 0 {
		t.Fatalf("AppendBelow() = (%d, %v), want (0, true)", count, ok)
	}

	vc.Advance(10 * time.Second)
	now = vc.Now()
	count, ok, _ = s.AppendBelow(ctx, "log", now.Add(-time.Minute), now, []string{"c"}, 3, time.Minute)
	if !ok || count != 2 {
		t.Fatalf("AppendBelow() = (%d, %v), want (2, true)", count, ok)
	}

	count, ok, _ = s.AppendBelow(ctx, "log", now.Add(-time.Minute), now, []string{"d"}, 3, time.Minute)
	if ok || count != 3 {
		t.Fatalf("AppendBelow() at limit = (%d, %v), want (3, false)", count, ok)
	}

	// Only "c" is scored after epoch+5s.
	n, err := s.CountSince(ctx, "log", epoch.Add(5*time.Second))
	if err != nil {
		t.Fatalf("CountSince() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CountSince() = %d, want 1", n)
	}
}

func TestMemoryStorage_AppendBelowPurgesWindowStart(t *testing.T) {
	s, vc := newMemoryForTest(t)

	now := vc.Now()
	s.AppendBelow(ctx, "log", now.Add(-time.Minute), now, []string{"a"}, 1, 2*time.Minute)

	// An entry scored exactly at the window start is outside the window.
	vc.Advance(time.Minute)
	now = vc.Now()
	count, ok, _ := s.AppendBelow(ctx, "log", now.Add(-time.Minute), now, []string{"b"}, 1, 2*time.Minute)
	if !ok || count != 0 {
		t.Fatalf("AppendBelow() = (%d, %v), want (0, true)", count, ok)
	}
}

func TestMemoryStorage_CountSinceIsReadOnly(t *testing.T) {
	s, vc := newMemoryForTest(t)

	now := vc.Now()
	s.AppendBelow(ctx, "log", now.Add(-time.Minute), now, []string{"a", "b"}, 10, 5*time.Minute)
	s.CountSince(ctx, "log", now.Add(time.Hour))

	n, _ := s.CountSince(ctx, "log", now.Add(-time.Minute))
	if n != 2 {
		t.Errorf("CountSince() = %d, want 2", n)
	}
}

func TestMemoryStorage_AddBucketBelowExpires(t *testing.T) {
	s, vc := newMemoryForTest(t)

	if _, ok, err := s.AddBucketBelow(ctx, "rec", epoch, 1, 5, time.Minute, time.Second); err != nil || !ok {
		t.Fatalf("AddBucketBelow() = (%v, %v), want admitted", ok, err)
	}
	got, err := s.Record(ctx, "rec")
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if string(got) != `[{"timestamp":1704067200000,"count":1}]` {
		t.Fatalf("Record() = %s", got)
	}

	vc.Advance(time.Minute)
	got, _ = s.Record(ctx, "rec")
	if got != nil {
		t.Fatalf("Record() after expiry = %q, want nil", got)
	}
}

func TestMemoryStorage_AddBucketBelowValidation(t *testing.T) {
	s, _ := newMemoryForTest(t)

	if _, _, err := s.AddBucketBelow(ctx, "k", epoch, 1, 1, 0, time.Second); err == nil {
		t.Fatal("expected window validation error")
	}
	if _, _, err := s.AddBucketBelow(ctx, "k", epoch, 1, 1, time.Minute, 0); err == nil {
		t.Fatal("expected interval validation error")
	}
}

func TestMemoryStorage_CancelledContext(t *testing.T) {
	s, _ := newMemoryForTest(t)
	cctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := s.IncrementBelow(cctx, "k", 1, 1, time.Minute); !errors.Is(err, context.Canceled) {
		t.Errorf("IncrementBelow() error = %v, want context.Canceled", err)
	}
	if _, err := s.Record(cctx, "k"); !errors.Is(err, context.Canceled) {
		t.Errorf("Record() error = %v, want context.Canceled", err)
	}
}

func TestMemoryStorage_CleanupAndLen(t *testing.T) {
	s, vc := newMemoryForTest(t)

	s.IncrementBelow(ctx, "a", 1, 10, time.Second)
	s.AppendBelow(ctx, "b", epoch.Add(-time.Minute), epoch, []string{"x"}, 10, time.Second)
	s.AddBucketBelow(ctx, "c", epoch, 1, 10, time.Hour, time.Second)

	if s.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", s.Len())
	}

	vc.Advance(2 * time.Second)
	s.Cleanup()

	if s.Len() != 1 {
		t.Errorf("Len() after Cleanup = %d, want 1", s.Len())
	}
}

func TestMemoryStorage_ConcurrentIncrementBelow(t *testing.T) {
	s, _ := newMemoryForTest(t)

	const limit = 25
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := s.IncrementBelow(ctx, "k", 1, limit, time.Minute)
			if err != nil {
				t.Errorf("IncrementBelow() error = %v", err)
				return
			}
			if ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != limit {
		t.Errorf("allowed = %d, want %d", allowed, limit)
	}
}

func TestMemoryStorage_CloseIdempotent(t *testing.T) {
	s, err := NewMemoryStorage(nil)
	if err != nil {
		t.Fatalf("NewMemoryStorage() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
