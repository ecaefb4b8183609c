package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/SmitUplenchwar2687/quota/internal/clock"
	"github.com/SmitUplenchwar2687/quota/internal/limiter"
)

// loadOptions describes one load run against a single identifier.
type loadOptions struct {
	key         string
	requests    int
	concurrency int
	rps         float64 // 0 = unpaced
	amount      int64
}

// LoadReport summarizes a load run.
type LoadReport struct {
	Key         string        `json:"key"`
	Algorithm   string        `json:"algorithm"`
	Limit       int64         `json:"limit"`
	Requests    int           `json:"requests"`
	Concurrency int           `json:"concurrency"`
	Admitted    int64         `json:"admitted"`
	Rejected    int64         `json:"rejected"`
	Failed      int64         `json:"failed"`
	Elapsed     time.Duration `json:"elapsed"`
}

func newLoadCmd(root *rootOptions) *cobra.Command {
	var (
		opts       loadOptions
		outputJSON bool
		lf         limiterFlags
		so         storageOptions
	)

	cmd := &cobra.Command{
		Use:   "load <key>",
		Short: "Fire concurrent consumes at one identifier and report admissions",
		Long: `Sends --requests consumes for <key> from --concurrency workers, optionally
paced to --rps. Against a fresh key within one window the number of
admissions never exceeds the limit, whatever the concurrency.`,
		Example: `  quota load user1 --requests 200 --concurrency 50
  quota load user1 --requests 1000 --rps 100 --storage redis --algorithm sliding-window`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.key = args[0]
			cfg, err := loadConfig(cmd, root, &lf, &so)
			if err != nil {
				return err
			}
			opts.amount = cfg.Limiter.Amount

			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			clk := clock.NewRealClock()
			store, err := openStore(cfg.Storage, clk, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			lim, err := buildLimiter(cfg, store, clk)
			if err != nil {
				return err
			}

			report, err := runLoad(cmd.Context(), lim, opts, logger)
			if err != nil {
				return err
			}
			report.Limit = cfg.Limiter.Points

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			fmt.Fprintf(out, "--- Load Summary (%s) ---\n", report.Algorithm)
			fmt.Fprintf(out, "  Key:          %s\n", report.Key)
			fmt.Fprintf(out, "  Requests:     %d (%d workers)\n", report.Requests, report.Concurrency)
			fmt.Fprintf(out, "  Admitted:     %d (limit %d)\n", report.Admitted, report.Limit)
			fmt.Fprintf(out, "  Rejected:     %d\n", report.Rejected)
			fmt.Fprintf(out, "  Failed:       %d\n", report.Failed)
			fmt.Fprintf(out, "  Elapsed:      %s\n", report.Elapsed.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().IntVar(&opts.requests, "requests", 100, "total number of consumes")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 10, "number of concurrent workers")
	cmd.Flags().Float64Var(&opts.rps, "rps", 0, "requests per second across all workers (0 = as fast as possible)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output the report as JSON")
	lf.addFlags(cmd)
	so.addFlags(cmd)

	return cmd
}

// runLoad issues opts.requests consumes from opts.concurrency goroutines.
// Rejections and store failures are counted; only cancellation aborts.
func runLoad(ctx context.Context, lim limiter.Limiter, opts loadOptions, logger *zap.Logger) (LoadReport, error) {
	if opts.requests <= 0 {
		return LoadReport{}, fmt.Errorf("requests must be positive, got %d", opts.requests)
	}
	if opts.concurrency <= 0 {
		opts.concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var pacer *rate.Limiter
	if opts.rps > 0 {
		pacer = rate.NewLimiter(rate.Limit(opts.rps), 1)
	}

	var admitted, rejected, failed atomic.Int64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.concurrency)
	for i := 0; i < opts.requests; i++ {
		if pacer != nil {
			if err := pacer.Wait(gctx); err != nil {
				break
			}
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			_, err := lim.Consume(gctx, opts.key, limiter.WithAmount(opts.amount))
			switch {
			case err == nil:
				admitted.Add(1)
			case errors.Is(err, limiter.ErrQuotaExceeded):
				rejected.Add(1)
			case gctx.Err() != nil:
				return gctx.Err()
			default:
				failed.Add(1)
				logger.Warn("load consume failed", zap.Error(err))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return LoadReport{}, err
	}
	if err := ctx.Err(); err != nil {
		return LoadReport{}, err
	}

	return LoadReport{
		Key:         opts.key,
		Algorithm:   string(lim.Algorithm()),
		Requests:    opts.requests,
		Concurrency: opts.concurrency,
		Admitted:    admitted.Load(),
		Rejected:    rejected.Load(),
		Failed:      failed.Load(),
		Elapsed:     time.Since(start),
	}, nil
}
