package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/quota/internal/replay"
)

func newReplayCmd(root *rootOptions) *cobra.Command {
	var (
		file       string
		speed      float64
		keys       string
		endpoints  string
		after      string
		before     string
		outputJSON bool
		lf         limiterFlags
	)

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay recorded traffic through a limiter",
		Long: `Replays previously recorded traffic through a limiter with speed control.

Records are replayed in timestamp order on a private memory store. The
virtual clock advances to match the gaps between records, so windows
behave exactly as they would in production, at any speed you choose.
Both JSON arrays (server --record) and newline-delimited JSON are accepted.

Speed: 0 = instant, 1 = real-time, 10 = 10x, 100 = 100x`,
		Example: `  quota replay --file traffic.json
  quota replay --file traffic.json --speed 100 --algorithm sliding-window
  quota replay --file traffic.json --keys user1,user2 --endpoints /api
  quota replay --file traffic.json --after 2024-01-01T00:00:00Z --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file is required")
			}
			filter, err := replay.ParseFilter(keys, endpoints, after, before)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(cmd, root, &lf, nil)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("opening file: %w", err)
			}
			defer f.Close()

			// The replayer moves the clock to the first record.
			lim, vc, closeFn, err := newVirtualLimiter(cfg, time.Unix(0, 0).UTC())
			if err != nil {
				return err
			}
			defer closeFn()

			r := replay.New(lim, vc, speed, filter, logger)
			if err := r.Load(f); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !outputJSON {
				fmt.Fprintf(out, "Replaying %s through %s at %.0fx speed...\n\n", file, lim.Algorithm(), speed)
			}

			var steps []replay.Step
			summary, err := r.Run(cmd.Context(), func(s replay.Step) {
				if outputJSON {
					steps = append(steps, s)
					return
				}
				status := statusLabel(s.Result)
				if s.Err != nil {
					status = "ERROR "
				}
				fmt.Fprintf(out, "  [%s] %s key=%s consumed=%d/%d remaining=%d\n",
					status,
					s.Record.Timestamp.Format("15:04:05"),
					s.Record.Key,
					s.Result.Consumed,
					s.Result.Limit,
					s.Result.Remaining)
			})
			if err != nil {
				return err
			}

			if outputJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{
					"steps":   steps,
					"summary": summary,
				})
			}

			fmt.Fprintln(out)
			fmt.Fprintln(out, "--- Replay Summary ---")
			fmt.Fprintf(out, "  Total records:  %d\n", summary.TotalRecords)
			fmt.Fprintf(out, "  Filtered:       %d\n", summary.Filtered)
			fmt.Fprintf(out, "  Replayed:       %d\n", summary.Replayed)
			fmt.Fprintf(out, "  Allowed:        %d\n", summary.Allowed)
			fmt.Fprintf(out, "  Rejected:       %d\n", summary.Rejected)
			if summary.Failed > 0 {
				fmt.Fprintf(out, "  Failed:         %d\n", summary.Failed)
			}
			fmt.Fprintf(out, "  Virtual time:   %s\n", summary.Duration)
			fmt.Fprintf(out, "  Wall time:      %s\n", summary.WallDuration.Round(time.Millisecond))

			if len(summary.PerKey) > 1 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "  Per key:")
				names := make([]string, 0, len(summary.PerKey))
				for key := range summary.PerKey {
					names = append(names, key)
				}
				sort.Strings(names)
				for _, key := range names {
					ks := summary.PerKey[key]
					fmt.Fprintf(out, "    %s: %d allowed, %d rejected\n", key, ks.Allowed, ks.Rejected)
				}
			}

			if summary.Rejected > 0 && summary.Allowed > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, strings.Repeat("=", 50))
				rejectRate := float64(summary.Rejected) / float64(summary.Replayed) * 100
				fmt.Fprintf(out, "Reject rate: %.1f%% (%d/%d requests rejected)\n", rejectRate, summary.Rejected, summary.Replayed)
				fmt.Fprintln(out, strings.Repeat("=", 50))
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&file, "file", "", "path to recorded traffic file (required)")
	cmd.Flags().Float64Var(&speed, "speed", 0, "replay speed (0=instant, 1=real-time, 10=10x)")
	cmd.Flags().StringVar(&keys, "keys", "", "filter by keys (comma-separated)")
	cmd.Flags().StringVar(&endpoints, "endpoints", "", "filter by endpoints (comma-separated)")
	cmd.Flags().StringVar(&after, "after", "", "only replay records after this RFC 3339 time")
	cmd.Flags().StringVar(&before, "before", "", "only replay records before this RFC 3339 time")
	cmd.Flags().BoolVar(&outputJSON, "json", false, "output results as JSON")
	lf.addFlags(cmd)

	return cmd
}
