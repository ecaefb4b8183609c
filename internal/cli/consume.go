package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/quota/internal/clock"
	"github.com/SmitUplenchwar2687/quota/internal/limiter"
)

func newConsumeCmd(root *rootOptions) *cobra.Command {
	var (
		check      bool
		override   int64
		outputJSON bool
		lf         limiterFlags
		so         storageOptions
	)

	cmd := &cobra.Command{
		Use:   "consume <key>",
		Short: "Consume points for one identifier against the configured store",
		Long: `Consumes --amount points for <key> and prints the decision. With --check
the key's state is reported without consuming anything.

A rejection is a normal outcome and exits 0; only store failures exit non-zero.`,
		Example: `  quota consume user1
  quota consume user1 --amount 5 --limit 20
  quota consume user1 --check --json --storage redis`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root, &lf, &so)
			if err != nil {
				return err
			}
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

			opts := []limiter.ConsumeOption{limiter.WithAmount(cfg.Limiter.Amount)}
			if override > 0 {
				opts = append(opts, limiter.WithPoints(override))
			}

			call := lim.Consume
			if check {
				call = lim.Check
			}
			res, err := call(cmd.Context(), args[0], opts...)
			if err != nil && !errors.Is(err, limiter.ErrQuotaExceeded) {
				return err
			}

			out := cmd.OutOrStdout()
			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(res)
			}
			fmt.Fprintf(out, "[%s] key=%s consumed=%d/%d remaining=%d exceeded=%d\n",
				statusLabel(res), args[0], res.Consumed, res.Limit, res.Remaining, res.Exceeded)
			return nil
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "report state without consuming")
	cmd.Flags().Int64Var(&override, "limit", 0, "per-call limit override (0 = configured points)")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output the result as JSON")
	lf.addFlags(cmd)
	so.addFlags(cmd)

	return cmd
}

func statusLabel(res limiter.Result) string {
	if res.Allowed {
		return "ALLOW "
	}
	return "REJECT"
}
