package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root quota command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "quota",
		Short: "Quota-based rate limiting over memory or Redis stores",
		Long: `quota enforces per-identifier quotas with fixed window, sliding window
and sliding window counter algorithms. Serve it over HTTP, consume from the
command line, replay recorded traffic, or fast-forward a virtual clock to
watch windows reset.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to JSON or YAML config file")
	root.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", nil, ".env files to load (default .env when present)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "log format (json, console)")

	root.AddCommand(
		newServerCmd(opts),
		newConsumeCmd(opts),
		newTestCmd(opts),
		newLoadCmd(opts),
		newReplayCmd(opts),
		newGenerateCmd(),
		newConfigCmd(),
	)

	return root
}
