package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SmitUplenchwar2687/quota/internal/clock"
	"github.com/SmitUplenchwar2687/quota/internal/metrics"
	"github.com/SmitUplenchwar2687/quota/internal/recorder"
	"github.com/SmitUplenchwar2687/quota/internal/server"
)

func newServerCmd(root *rootOptions) *cobra.Command {
	var (
		addr       string
		recordFile string
		lf         limiterFlags
		so         storageOptions
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the quota HTTP server",
		Long: `Starts an HTTP server that exposes the limiter.

Endpoints:
  GET  /                         Server info and current time
  GET  /health                   Health check
  POST /api/consume/{key}        Consume ?amount= points, optional ?points= limit
  GET  /api/check/{key}          Report the key's state without consuming
  ANY  /mw/{userId}              Route guarded by the limiter middleware
  GET  /metrics                  Prometheus metrics
  GET  /dashboard/               Live visual dashboard
  WS   /ws                       WebSocket stream of decisions`,
		Example: `  quota server
  quota server --addr :9090 --algorithm sliding-window --points 100 --duration 1m
  quota server --storage redis --redis-host localhost:6379
  quota server --record traffic.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, root, &lf, &so)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
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

			opts := server.Options{
				Hub:     server.NewHub(logger),
				Metrics: metrics.New(),
				Logger:  logger,
				Amount:  cfg.Limiter.Amount,
			}
			if recordFile != "" {
				opts.Recorder = recorder.New(nil)
			}

			srv := server.New(cfg.Server.Addr, lim, clk, opts)
			logger.Info("quota server configured",
				zap.String("addr", cfg.Server.Addr),
				zap.String("algorithm", string(lim.Algorithm())),
				zap.Int64("points", cfg.Limiter.Points),
				zap.Duration("duration", cfg.Limiter.Duration),
				zap.String("storage", cfg.Storage.Backend),
			)

			// Graceful shutdown on SIGINT/SIGTERM.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				errCh <- srv.Start()
			}()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			logger.Info("shutting down")
			if opts.Recorder != nil {
				logger.Info("exporting records", zap.Int("count", opts.Recorder.Len()), zap.String("file", recordFile))
				if err := opts.Recorder.ExportFile(recordFile); err != nil {
					logger.Error("export records", zap.Error(err))
				}
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("shutdown: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "address to listen on")
	cmd.Flags().StringVar(&recordFile, "record", "", "record traffic to JSON file (exported on shutdown)")
	lf.addFlags(cmd)
	so.addFlags(cmd)

	return cmd
}
