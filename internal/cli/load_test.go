package cli

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/quota/internal/limiter"
)

func TestRunLoad_NeverOverAdmits(t *testing.T) {
	for _, alg := range []limiter.Algorithm{limiter.AlgorithmFixedWindow, limiter.AlgorithmSlidingWindow} {
		t.Run(string(alg), func(t *testing.T) {
			lim, _, closeFn, err := newVirtualLimiter(testConfig(alg, 10, time.Minute), epoch)
			if err != nil {
				t.Fatal(err)
			}
			defer closeFn()

			report, err := runLoad(context.Background(), lim, loadOptions{
				key:         "hot",
				requests:    100,
				concurrency: 25,
				amount:      1,
			}, nil)
			if err != nil {
				t.Fatal(err)
			}
			if report.Admitted != 10 || report.Rejected != 90 || report.Failed != 0 {
				t.Errorf("report = %+v, want 10 admitted, 90 rejected", report)
			}
			if report.Algorithm != string(alg) {
				t.Errorf("Algorithm = %q", report.Algorithm)
			}
		})
	}
}

func TestRunLoad_Paced(t *testing.T) {
	lim, _, closeFn, err := newVirtualLimiter(testConfig(limiter.AlgorithmFixedWindow, 100, time.Minute), epoch)
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()

	start := time.Now()
	report, err := runLoad(context.Background(), lim, loadOptions{
		key:         "paced",
		requests:    5,
		concurrency: 5,
		rps:         50,
		amount:      1,
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if report.Admitted != 5 {
		t.Errorf("Admitted = %d, want 5", report.Admitted)
	}
	// Four gaps of 20ms at 50 rps.
	if elapsed := time.Since(start); elapsed < 60*time.Millisecond {
		t.Errorf("elapsed = %s, pacing not applied", elapsed)
	}
}

func TestRunLoad_Cancelled(t *testing.T) {
	lim, _, closeFn, err := newVirtualLimiter(testConfig(limiter.AlgorithmFixedWindow, 100, time.Minute), epoch)
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := runLoad(ctx, lim, loadOptions{key: "k", requests: 10, concurrency: 2, rps: 1}, nil); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestRunLoad_InvalidRequests(t *testing.T) {
	lim, _, closeFn, err := newVirtualLimiter(testConfig(limiter.AlgorithmFixedWindow, 1, time.Minute), epoch)
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()

	if _, err := runLoad(context.Background(), lim, loadOptions{key: "k"}, nil); err == nil {
		t.Fatal("expected error for zero requests")
	}
}

func TestLoadCmd_Redis(t *testing.T) {
	args := append([]string{"load", "burst", "--requests", "50", "--concurrency", "10",
		"--algorithm", "sliding-window", "--points", "7", "--json"}, redisFlags(t)...)
	out, err := execute(t, args...)
	if err != nil {
		t.Fatalf("load command failed: %v", err)
	}
	var report LoadReport
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if report.Admitted != 7 || report.Rejected != 43 {
		t.Errorf("report = %+v, want 7 admitted, 43 rejected", report)
	}
	if report.Limit != 7 {
		t.Errorf("Limit = %d, want 7", report.Limit)
	}
}
