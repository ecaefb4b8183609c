package limiter

import (
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/SmitUplenchwar2687/quota/internal/clock"
	"github.com/SmitUplenchwar2687/quota/internal/storage"
)

func newCounterForTest(t *testing.T, points int64, d, interval time.Duration) (*SlidingWindowCounter, storage.Store, *clock.VirtualClock) {
	t.Helper()
	vc := clock.NewVirtualClock(epoch)
	store := newMemoryStore(t, vc)
	lim, err := NewSlidingWindowCounter(Config{
		Duration:       d,
		Points:         points,
		BucketInterval: interval,
		Store:          store,
		Clock:          vc,
	})
	if err != nil {
		t.Fatalf("NewSlidingWindowCounter() error = %v", err)
	}
	return lim, store, vc
}

func readBuckets(t *testing.T, store storage.Store, key string) []storage.Bucket {
	t.Helper()
	raw, err := store.Record(ctx, key)
	if err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if raw == nil {
		return nil
	}
	buckets, err := storage.DecodeBuckets(raw)
	if err != nil {
		t.Fatalf("stored record %q is not a bucket log: %v", raw, err)
	}
	return buckets
}

// newCounterOnMiniRedis returns a counter whose raw records the test can
// overwrite through mr.
func newCounterOnMiniRedis(t *testing.T, points int64) (*SlidingWindowCounter, storage.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store, err := storage.NewRedisStorageFromClient(client)
	if err != nil {
		t.Fatalf("NewRedisStorageFromClient() error = %v", err)
	}
	lim, err := NewSlidingWindowCounter(Config{
		Duration: time.Minute,
		Points:   points,
		Store:    store,
		Clock:    clock.NewVirtualClock(epoch),
	})
	if err != nil {
		t.Fatalf("NewSlidingWindowCounter() error = %v", err)
	}
	return lim, store, mr
}

func TestDefaultBucketInterval(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want time.Duration
	}{
		{10 * time.Second, time.Second},
		{45 * time.Second, time.Second},
		{time.Minute, 2 * time.Second},
		{time.Hour, 2 * time.Minute},
		{100 * time.Second, 3 * time.Second},
		{24 * time.Hour, 24 * time.Minute},
		{7 * 24 * time.Hour, 2*time.Hour + 48*time.Minute},
	}
	for _, tt := range tests {
		if got := DefaultBucketInterval(tt.d); got != tt.want {
			t.Errorf("DefaultBucketInterval(%s) = %s, want %s", tt.d, got, tt.want)
		}
	}
}

func TestSlidingWindowCounter_AccumulatesIntoBucket(t *testing.T) {
	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			vc := clock.NewVirtualClock(epoch)
			store := newStore(t, vc)
			lim, err := NewSlidingWindowCounter(Config{Duration: time.Minute, Points: 3, BucketInterval: time.Second, Store: store, Clock: vc})
			if err != nil {
				t.Fatalf("NewSlidingWindowCounter() error = %v", err)
			}

			for i := int64(1); i <= 3; i++ {
				mustAdmit(t, lim, "user1", i)
				vc.Advance(100 * time.Millisecond)
			}
			mustReject(t, lim, "user1", 3)

			buckets := readBuckets(t, store, "RL:user1")
			if len(buckets) != 1 || buckets[0].Count != 3 || buckets[0].Timestamp != epoch.UnixMilli() {
				t.Fatalf("buckets = %+v, want one bucket of 3 at epoch", buckets)
			}
		})
	}
}

func TestSlidingWindowCounter_NewBucketAfterInterval(t *testing.T) {
	lim, store, vc := newCounterForTest(t, 10, time.Minute, time.Second)

	mustAdmit(t, lim, "user1", 1)
	vc.Advance(time.Second)
	mustAdmit(t, lim, "user1", 3, WithAmount(2))

	buckets := readBuckets(t, store, "RL:user1")
	if len(buckets) != 2 {
		t.Fatalf("buckets = %+v, want 2", buckets)
	}
	if buckets[1].Count != 2 || buckets[1].Timestamp != epoch.Add(time.Second).UnixMilli() {
		t.Errorf("second bucket = %+v", buckets[1])
	}
}

func TestSlidingWindowCounter_BucketIntervalOverride(t *testing.T) {
	lim, store, vc := newCounterForTest(t, 10, time.Minute, time.Second)

	mustAdmit(t, lim, "user1", 1, WithBucketInterval(10*time.Second))
	vc.Advance(5 * time.Second)
	mustAdmit(t, lim, "user1", 2, WithBucketInterval(10*time.Second))

	if buckets := readBuckets(t, store, "RL:user1"); len(buckets) != 1 {
		t.Fatalf("buckets = %+v, want 1 with a 10s interval", buckets)
	}

	// The configured 1s interval is untouched.
	vc.Advance(5 * time.Second)
	mustAdmit(t, lim, "user1", 3)
	if buckets := readBuckets(t, store, "RL:user1"); len(buckets) != 2 {
		t.Fatalf("buckets = %+v, want 2 with the configured interval", buckets)
	}
}

func TestSlidingWindowCounter_PrunesStaleBuckets(t *testing.T) {
	lim, store, vc := newCounterForTest(t, 3, time.Minute, time.Second)

	mustAdmit(t, lim, "user1", 3, WithAmount(3))
	vc.Advance(30 * time.Second)
	mustReject(t, lim, "user1", 3)

	vc.Advance(31 * time.Second)
	mustAdmit(t, lim, "user1", 1)

	buckets := readBuckets(t, store, "RL:user1")
	if len(buckets) != 1 || buckets[0].Count != 1 {
		t.Fatalf("buckets = %+v, want only the new bucket", buckets)
	}
}

func TestSlidingWindowCounter_NeverUndercounts(t *testing.T) {
	lim, _, vc := newCounterForTest(t, 100, time.Minute, 10*time.Second)

	// Five points open a bucket at epoch, three more join it at epoch+9s.
	mustAdmit(t, lim, "user1", 5, WithAmount(5))
	vc.Advance(9 * time.Second)
	mustAdmit(t, lim, "user1", 8, WithAmount(3))

	// At epoch+65s only the three late points are in the window, but the
	// straddling bucket is reported whole.
	vc.Advance(56 * time.Second)
	r, err := lim.Check(ctx, "user1")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if r.Consumed != 8 {
		t.Fatalf("Check() consumed = %d, want 8", r.Consumed)
	}

	// Once the whole bucket interval has left the window it stops counting.
	vc.Advance(5 * time.Second)
	r, err = lim.Check(ctx, "user1")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if r.Consumed != 0 {
		t.Fatalf("Check() consumed = %d, want 0", r.Consumed)
	}
}

func TestSlidingWindowCounter_CheckAbsentCreatesNothing(t *testing.T) {
	lim, store, _ := newCounterForTest(t, 3, time.Minute, 0)

	r, err := lim.Check(ctx, "user1")
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !r.Allowed || r.Consumed != 0 || r.WasConsumed {
		t.Fatalf("Check() = %+v", r)
	}
	if raw, _ := store.Record(ctx, "RL:user1"); raw != nil {
		t.Fatalf("Check() created record %q", raw)
	}
}

func TestSlidingWindowCounter_RecordExpires(t *testing.T) {
	lim, store, vc := newCounterForTest(t, 3, time.Minute, 0)

	mustAdmit(t, lim, "user1", 1)
	vc.Advance(time.Minute)
	if raw, _ := store.Record(ctx, "RL:user1"); raw != nil {
		t.Fatalf("record %q should have expired", raw)
	}
}

func TestSlidingWindowCounter_CorruptRecord(t *testing.T) {
	records := []string{
		`not-json`,
		`{"timestamp":1}`,
		`[{"timestamp":2,"count":1},{"timestamp":1,"count":1}]`,
		`[{"timestamp":1,"count":-4}]`,
	}

	for _, rec := range records {
		lim, store, mr := newCounterOnMiniRedis(t, 3)
		if err := mr.Set("RL:user1", rec); err != nil {
			t.Fatalf("seeding record: %v", err)
		}

		if _, err := lim.Consume(ctx, "user1"); !errors.Is(err, ErrCorruptRecord) {
			t.Errorf("Consume() with record %s error = %v, want ErrCorruptRecord", rec, err)
		}
		if _, err := lim.Check(ctx, "user1"); !errors.Is(err, ErrCorruptRecord) {
			t.Errorf("Check() with record %s error = %v, want ErrCorruptRecord", rec, err)
		}

		raw, _ := store.Record(ctx, "RL:user1")
		if string(raw) != rec {
			t.Errorf("corrupt record was rewritten to %q", raw)
		}
	}
}

func TestSlidingWindowCounter_EmptyLogStartsBucket(t *testing.T) {
	lim, store, mr := newCounterOnMiniRedis(t, 3)
	_ = mr.Set("RL:user1", "[]")

	mustAdmit(t, lim, "user1", 1)
	if buckets := readBuckets(t, store, "RL:user1"); len(buckets) != 1 {
		t.Fatalf("buckets = %+v, want 1", buckets)
	}
}
