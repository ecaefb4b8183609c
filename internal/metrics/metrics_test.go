package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/SmitUplenchwar2687/quota/internal/clock"
	"github.com/SmitUplenchwar2687/quota/internal/limiter"
	"github.com/SmitUplenchwar2687/quota/internal/storage"
)

var ctx = context.Background()

func newInstrumentedForTest(t *testing.T, points int64) (limiter.Limiter, *Metrics) {
	t.Helper()
	vc := clock.NewVirtualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	store, err := storage.NewMemoryStorage(&storage.MemoryConfig{Clock: vc})
	if err != nil {
		t.Fatalf("NewMemoryStorage() error = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	lim, err := limiter.New(limiter.Config{
		Algorithm: limiter.AlgorithmFixedWindow,
		Duration:  time.Minute,
		Points:    points,
		Store:     store,
		Clock:     vc,
	})
	if err != nil {
		t.Fatalf("limiter.New() error = %v", err)
	}

	m := New()
	return Instrument(lim, m), m
}

func TestInstrument_CountsOutcomes(t *testing.T) {
	lim, m := newInstrumentedForTest(t, 2)

	lim.Consume(ctx, "u")
	lim.Consume(ctx, "u")
	lim.Consume(ctx, "u")
	lim.Check(ctx, "u")
	lim.Consume(ctx, "")

	alg := string(limiter.AlgorithmFixedWindow)
	tests := []struct {
		op, outcome string
		want        float64
	}{
		{OperationConsume, OutcomeAllowed, 2},
		{OperationConsume, OutcomeRejected, 1},
		{OperationConsume, OutcomeError, 1},
		{OperationCheck, OutcomeRejected, 1},
		{OperationCheck, OutcomeAllowed, 0},
	}
	for _, tt := range tests {
		got := testutil.ToFloat64(m.decisions.WithLabelValues(alg, tt.op, tt.outcome))
		if got != tt.want {
			t.Errorf("decisions{%s,%s} = %v, want %v", tt.op, tt.outcome, got, tt.want)
		}
	}

	if n := testutil.CollectAndCount(m.latency); n != 2 {
		t.Errorf("latency series = %d, want 2", n)
	}
}

func TestInstrument_PassesThrough(t *testing.T) {
	lim, _ := newInstrumentedForTest(t, 1)

	if lim.Algorithm() != limiter.AlgorithmFixedWindow {
		t.Fatalf("Algorithm() = %q", lim.Algorithm())
	}
	r, err := lim.Consume(ctx, "u", limiter.WithAmount(3))
	if err != nil {
		t.Fatalf("Consume() error = %v", err)
	}
	if r.Consumed != 3 || r.Exceeded != 2 {
		t.Fatalf("Consume() = %+v", r)
	}
	if _, err := lim.Consume(ctx, "u"); !errors.Is(err, limiter.ErrQuotaExceeded) {
		t.Fatalf("Consume() error = %v, want ErrQuotaExceeded", err)
	}
}

func TestOutcome(t *testing.T) {
	if Outcome(nil) != OutcomeAllowed {
		t.Error("nil should be allowed")
	}
	if Outcome(limiter.ErrQuotaExceeded) != OutcomeRejected {
		t.Error("ErrQuotaExceeded should be rejected")
	}
	if Outcome(errors.New("redis down")) != OutcomeError {
		t.Error("other errors should be error")
	}
}

func TestHandler(t *testing.T) {
	lim, m := newInstrumentedForTest(t, 5)
	lim.Consume(ctx, "u")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "quota_decisions_total") {
		t.Fatalf("metrics output missing quota_decisions_total:\n%s", body)
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Fatal("metrics output missing go collector")
	}
}
