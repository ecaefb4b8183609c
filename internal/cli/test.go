package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/quota/internal/clock"
	"github.com/SmitUplenchwar2687/quota/internal/config"
	"github.com/SmitUplenchwar2687/quota/internal/limiter"
)

func newTestCmd(root *rootOptions) *cobra.Command {
	var (
		requests    int
		keys        []string
		fastForward time.Duration
		all         bool
		outputJSON  bool
		lf          limiterFlags
	)

	cmd := &cobra.Command{
		Use:   "test",
		Short: "Run quota scenarios with time travel",
		Long: `Runs limiter calls against a virtual clock and a private memory store,
so windows can be fast-forwarded without waiting. This verifies limiter
behavior over hours or days in milliseconds.

The test sends a batch of requests, optionally fast-forwards time,
then sends another batch to show how the window resets. With --all the
scenario runs once per algorithm.`,
		Example: `  quota test --requests 20 --points 10 --duration 1m
  quota test --algorithm sliding-window --points 5 --duration 30s --fast-forward 1m
  quota test --all --fast-forward 30s
  quota test --keys user1,user2 --requests 15 --points 10 --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(keys) == 0 {
				keys = []string{"test-user"}
			}
			if requests <= 0 {
				return fmt.Errorf("--requests must be positive, got %d", requests)
			}
			cfg, err := loadConfig(cmd, root, &lf, nil)
			if err != nil {
				return err
			}

			algorithms := []limiter.Algorithm{limiter.ParseAlgorithm(string(cfg.Limiter.Algorithm))}
			if all {
				algorithms = limiter.Algorithms()
			}

			start := time.Now().Truncate(time.Second)
			var results []TestResult
			for _, alg := range algorithms {
				run := cfg
				run.Limiter.Algorithm = alg
				result, err := runScenario(cmd.Context(), run, start, keys, requests, fastForward)
				if err != nil {
					return err
				}
				results = append(results, result)
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if len(results) == 1 {
					return enc.Encode(results[0])
				}
				return enc.Encode(results)
			}
			for i := range results {
				printTestResult(out, &results[i])
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&requests, "requests", 15, "number of requests to send per batch")
	cmd.Flags().StringSliceVar(&keys, "keys", nil, "comma-separated identifiers to test")
	cmd.Flags().DurationVar(&fastForward, "fast-forward", 0, "time to fast-forward between batches")
	cmd.Flags().BoolVar(&all, "all", false, "run the scenario once per algorithm")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")
	lf.addFlags(cmd)

	return cmd
}

// TestResult captures the full output of a test run.
type TestResult struct {
	Algorithm   limiter.Algorithm  `json:"algorithm"`
	Points      int64              `json:"points"`
	Duration    string             `json:"duration"`
	Amount      int64              `json:"amount"`
	FastForward string             `json:"fast_forward,omitempty"`
	Batches     []BatchResult      `json:"batches"`
	Summary     map[string]Summary `json:"summary"`
}

// BatchResult captures results for one batch of requests.
type BatchResult struct {
	Label     string           `json:"label"`
	Time      string           `json:"time"`
	Decisions []DecisionRecord `json:"decisions"`
}

// DecisionRecord is a single limiter call result.
type DecisionRecord struct {
	Key    string         `json:"key"`
	Result limiter.Result `json:"result"`
}

// Summary aggregates stats per key.
type Summary struct {
	TotalRequests int `json:"total_requests"`
	Allowed       int `json:"allowed"`
	Rejected      int `json:"rejected"`
}

// runScenario builds the configured limiter on a fresh virtual clock and runs
// the batches against it.
func runScenario(ctx context.Context, cfg config.Config, start time.Time, keys []string, requests int, fastForward time.Duration) (TestResult, error) {
	lim, vc, closeFn, err := newVirtualLimiter(cfg, start)
	if err != nil {
		return TestResult{}, err
	}
	defer closeFn()

	result, err := runTest(ctx, vc, lim, keys, requests, cfg.Limiter.Amount, fastForward)
	if err != nil {
		return TestResult{}, err
	}
	result.Points = cfg.Limiter.Points
	result.Duration = cfg.Limiter.Duration.String()
	return result, nil
}

func runTest(ctx context.Context, vc *clock.VirtualClock, lim limiter.Limiter, keys []string, requests int, amount int64, fastForward time.Duration) (TestResult, error) {
	result := TestResult{
		Algorithm: lim.Algorithm(),
		Amount:    amount,
		Summary:   make(map[string]Summary),
	}

	batch := func(label string) error {
		b := BatchResult{Label: label, Time: vc.Now().Format(time.RFC3339)}
		for i := 0; i < requests; i++ {
			for _, key := range keys {
				res, err := lim.Consume(ctx, key, limiter.WithAmount(amount))
				if err != nil && !errors.Is(err, limiter.ErrQuotaExceeded) {
					return err
				}
				b.Decisions = append(b.Decisions, DecisionRecord{Key: key, Result: res})
				s := result.Summary[key]
				s.TotalRequests++
				if res.Allowed {
					s.Allowed++
				} else {
					s.Rejected++
				}
				result.Summary[key] = s
			}
		}
		result.Batches = append(result.Batches, b)
		return nil
	}

	if err := batch("Initial requests"); err != nil {
		return TestResult{}, err
	}

	if fastForward > 0 {
		vc.Advance(fastForward)
		result.FastForward = fastForward.String()
		if err := batch(fmt.Sprintf("After fast-forward %s", fastForward)); err != nil {
			return TestResult{}, err
		}
	}

	return result, nil
}

func printTestResult(w io.Writer, r *TestResult) {
	fmt.Fprintf(w, "=== Quota Test: %s (%d points / %s) ===\n\n", r.Algorithm, r.Points, r.Duration)

	for _, batch := range r.Batches {
		fmt.Fprintf(w, "--- %s (at %s) ---\n", batch.Label, batch.Time)
		for i, dr := range batch.Decisions {
			fmt.Fprintf(w, "  #%03d [%s] key=%s consumed=%d/%d remaining=%d\n",
				i+1, statusLabel(dr.Result), dr.Key, dr.Result.Consumed, dr.Result.Limit, dr.Result.Remaining)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "--- Summary ---")
	keys := make([]string, 0, len(r.Summary))
	for key := range r.Summary {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		s := r.Summary[key]
		fmt.Fprintf(w, "  %s: %d total, %d allowed, %d rejected\n", key, s.TotalRequests, s.Allowed, s.Rejected)
	}

	if r.FastForward != "" {
		fmt.Fprintf(w, "\nTime travel: fast-forwarded %s\n", r.FastForward)
	}

	if hasRecovery(r) {
		fmt.Fprintln(w)
		fmt.Fprintln(w, strings.Repeat("=", 50))
		fmt.Fprintln(w, "Time travel worked! Requests were rejected, then")
		fmt.Fprintln(w, "allowed again after fast-forwarding the clock.")
		fmt.Fprintln(w, strings.Repeat("=", 50))
	}
	fmt.Fprintln(w)
}

// hasRecovery reports whether the first batch saw a rejection and the
// second batch an admission.
func hasRecovery(r *TestResult) bool {
	if len(r.Batches) < 2 {
		return false
	}
	rejected := false
	for _, dr := range r.Batches[0].Decisions {
		if !dr.Result.Allowed {
			rejected = true
			break
		}
	}
	if !rejected {
		return false
	}
	for _, dr := range r.Batches[1].Decisions {
		if dr.Result.Allowed {
			return true
		}
	}
	return false
}
