package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/quota/pkg/clock"
	"github.com/SmitUplenchwar2687/quota/pkg/limiter"
	"github.com/SmitUplenchwar2687/quota/pkg/storage"
)

func TestPublicMiddleware(t *testing.T) {
	vc := clock.NewVirtualClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	store, err := storage.NewMemoryStorage(&storage.MemoryConfig{Clock: vc})
	if err != nil {
		t.Fatalf("NewMemoryStorage() error = %v", err)
	}
	defer store.Close()

	lim, err := limiter.New(limiter.Config{
		Algorithm: limiter.AlgorithmSlidingWindow,
		Duration:  time.Minute,
		Points:    1,
		Store:     store,
		Clock:     vc,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	h := New(lim, WithKeyFunc(func(r *http.Request) string { return r.Header.Get("X-User") }))(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }),
	)

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-User", "alice")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	if codes[0] != http.StatusNoContent || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v, want [204 429]", codes)
	}
}
