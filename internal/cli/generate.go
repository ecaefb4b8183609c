package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/SmitUplenchwar2687/quota/internal/generate"
	"github.com/SmitUplenchwar2687/quota/internal/recorder"
)

func newGenerateCmd() *cobra.Command {
	var (
		output  string
		pattern string
		start   string
		ndjson  bool
		opts    = generate.DefaultOptions()
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a synthetic traffic file for replay",
		Long: `Creates a traffic file that "quota replay" accepts.

Patterns:
  steady    Evenly distributed requests
  burst     Concentrated bursts with quiet periods
  ramp      Gradually increasing request rate

Use --output - to write to stdout.`,
		Example: `  quota generate --output traffic.json --count 100 --keys 5
  quota generate --output burst.json --count 200 --pattern burst --duration 10m --max-amount 3
  quota generate --output - --ndjson --seed 42 | quota replay --file /dev/stdin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := generate.ParsePattern(pattern)
			if err != nil {
				return err
			}
			opts.Pattern = p
			if start != "" {
				ts, err := time.Parse(time.RFC3339, start)
				if err != nil {
					return fmt.Errorf("invalid --start: %w", err)
				}
				opts.Start = ts
			}

			records, err := generate.Traffic(opts)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating file: %w", err)
				}
				defer f.Close()
				w = f
			}
			if err := writeRecords(w, records, ndjson); err != nil {
				return fmt.Errorf("writing records: %w", err)
			}

			if output != "-" {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Generated %d traffic records to %s\n", len(records), output)
				fmt.Fprintf(out, "  Keys:     %d\n", opts.Keys)
				fmt.Fprintf(out, "  Duration: %s\n", opts.Duration)
				fmt.Fprintf(out, "  Pattern:  %s\n", opts.Pattern)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&output, "output", "traffic.json", "output file path, - for stdout")
	f.IntVar(&opts.Count, "count", opts.Count, "number of records to generate")
	f.IntVar(&opts.Keys, "keys", opts.Keys, "number of distinct user keys")
	f.DurationVar(&opts.Duration, "duration", opts.Duration, "time span for generated traffic")
	f.StringVar(&pattern, "pattern", string(opts.Pattern), "traffic pattern (steady, burst, ramp)")
	f.IntVar(&opts.Bursts, "bursts", opts.Bursts, "number of bursts for the burst pattern")
	f.Int64Var(&opts.MaxAmount, "max-amount", 0, "draw each record's amount from 1..N (0 = omit)")
	f.Uint64Var(&opts.Seed, "seed", 0, "random seed (0 = time based)")
	f.StringVar(&start, "start", "", "RFC 3339 timestamp of the first record (default now)")
	f.BoolVar(&ndjson, "ndjson", false, "write newline-delimited JSON instead of an array")

	return cmd
}

// writeRecords goes through a Recorder so generated files match what the
// server writes with --record.
func writeRecords(w io.Writer, records []recorder.TrafficRecord, ndjson bool) error {
	var stream io.Writer
	if ndjson {
		stream = w
	}
	rec := recorder.New(stream)
	for _, r := range records {
		if err := rec.Record(r); err != nil {
			return err
		}
	}
	if ndjson {
		return nil
	}
	return rec.ExportJSON(w)
}
