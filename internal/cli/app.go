package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/quota/internal/clock"
	"github.com/SmitUplenchwar2687/quota/internal/config"
	"github.com/SmitUplenchwar2687/quota/internal/limiter"
	"github.com/SmitUplenchwar2687/quota/internal/logging"
	"github.com/SmitUplenchwar2687/quota/internal/storage"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	envFiles   []string
	logLevel   string
	logFormat  string
}

// limiterFlags are the limiter settings a command can override.
type limiterFlags struct {
	algorithm      string
	duration       time.Duration
	points         int64
	prefix         string
	bucketInterval time.Duration
	amount         int64
}

func (f *limiterFlags) addFlags(cmd *cobra.Command) {
	def := config.Default().Limiter
	cmd.Flags().StringVar(&f.algorithm, "algorithm", string(def.Algorithm), "algorithm (fixed-window, sliding-window, sliding-window-counter)")
	cmd.Flags().DurationVar(&f.duration, "duration", def.Duration, "window duration")
	cmd.Flags().Int64Var(&f.points, "points", def.Points, "points allowed per window")
	cmd.Flags().StringVar(&f.prefix, "prefix", def.Prefix, "storage key prefix")
	cmd.Flags().DurationVar(&f.bucketInterval, "bucket-interval", 0, "bucket interval for sliding-window-counter (0 = derived from duration)")
	cmd.Flags().Int64Var(&f.amount, "amount", def.Amount, "points consumed per request")
}

func (f *limiterFlags) applyIfChanged(cmd *cobra.Command, cfg *config.LimiterConfig) {
	if cmd.Flags().Changed("algorithm") {
		cfg.Algorithm = limiter.Algorithm(f.algorithm)
	}
	if cmd.Flags().Changed("duration") {
		cfg.Duration = f.duration
	}
	if cmd.Flags().Changed("points") {
		cfg.Points = f.points
	}
	if cmd.Flags().Changed("prefix") {
		cfg.Prefix = f.prefix
	}
	if cmd.Flags().Changed("bucket-interval") {
		cfg.BucketInterval = f.bucketInterval
	}
	if cmd.Flags().Changed("amount") {
		cfg.Amount = f.amount
	}
}

// loadConfig layers defaults, the config file, the environment and finally
// explicitly set flags, then validates the result.
func loadConfig(cmd *cobra.Command, root *rootOptions, lf *limiterFlags, so *storageOptions) (config.Config, error) {
	cfg := config.Default()
	if root.configPath != "" {
		loaded, err := config.LoadFile(root.configPath)
		if err != nil {
			return config.Config{}, fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if err := config.LoadEnv(&cfg, root.envFiles...); err != nil {
		return config.Config{}, err
	}

	if lf != nil {
		lf.applyIfChanged(cmd, &cfg.Limiter)
	}
	if so != nil {
		so.applyConfigIfUnset(cmd, &cfg.Storage)
		if err := so.normalize(); err != nil {
			return config.Config{}, err
		}
		cfg.Storage = so.toConfig()
	}
	if root.logLevel != "" {
		cfg.Log.Level = root.logLevel
	}
	if root.logFormat != "" {
		cfg.Log.Format = root.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newLogger(cfg config.Config) (*zap.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	return logger, nil
}

// buildLimiter creates the configured limiter on store, reading time from clk.
func buildLimiter(cfg config.Config, store storage.Store, clk clock.Clock) (limiter.Limiter, error) {
	lc := cfg.BuildLimiterConfig(store)
	lc.Clock = clk
	return limiter.New(lc)
}

// newVirtualLimiter builds the configured algorithm on a private memory store
// driven by a virtual clock starting at start.
func newVirtualLimiter(cfg config.Config, start time.Time) (limiter.Limiter, *clock.VirtualClock, func(), error) {
	vc := clock.NewVirtualClock(start)
	store, err := storage.NewMemoryStorage(&storage.MemoryConfig{
		Clock:           vc,
		CleanupInterval: cfg.Storage.Memory.CleanupInterval,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	lim, err := buildLimiter(cfg, store, vc)
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, err
	}
	return lim, vc, func() { _ = store.Close() }, nil
}
