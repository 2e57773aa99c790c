package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/p8fs/p8fs/internal/logger"
	"github.com/p8fs/p8fs/pkg/router"
)

var routerCmd = &cobra.Command{
	Use:   "router",
	Short: "Run the tiered storage router",
	Long: `Pull storage events from the ingress stream and fan them out to the
size-tier subjects (small, medium, large).

The router ensures the stream topology exists on startup, so it can be the
first component brought up against a fresh broker.

Examples:
  # Run with default config
  p8fs router

  # Run with custom config
  p8fs router --config /etc/p8fs/config.yaml

  # Override the broker via environment
  P8FS_BROKER_URL=nats://broker:4222 p8fs router`,
	RunE: runRouter,
}

func runRouter(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signalContext(context.Background())
	defer stop()

	telemetryShutdown, err := initTelemetry(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := telemetryShutdown(shutdownCtx); err != nil {
			logger.Error("Telemetry shutdown error", "error", err)
		}
	}()

	client, err := connectBroker(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Error("Broker close error", "error", err)
		}
	}()

	collector := startMetrics(ctx, cfg)

	rcfg := router.Config{
		BatchSize:    cfg.Router.BatchSize,
		FetchTimeout: cfg.Router.FetchTimeout,
	}
	if collector != nil {
		rcfg.Metrics = collector
	}
	r := router.New(client, rcfg)

	logger.Info("Router started",
		"broker", cfg.Broker.URL,
		"batch_size", cfg.Router.BatchSize)

	if err := r.Run(ctx); err != nil {
		return err
	}

	logger.Info("Router stopped")
	return nil
}
