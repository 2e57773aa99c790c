package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/p8fs/p8fs/internal/logger"
	"github.com/p8fs/p8fs/pkg/events"
	"github.com/p8fs/p8fs/pkg/processor"
	"github.com/p8fs/p8fs/pkg/worker"
)

var workerTier string

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Run a storage worker for one size tier",
	Long: `Pull storage events from one tier's stream and process them: download
the blob, chunk its content and persist file and chunk rows with embedding
vectors and key-value index entries.

Each tier has its own durable consumer, so multiple workers on the same tier
share the load.

Examples:
  # Process small files (< 100 MiB)
  p8fs worker --tier small

  # Process large files (>= 1 GiB) with a custom config
  p8fs worker --tier large --config /etc/p8fs/config.yaml`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().StringVar(&workerTier, "tier", "", "Size tier to process: small, medium or large")
	_ = workerCmd.MarkFlagRequired("tier")
}

func runWorker(cmd *cobra.Command, args []string) error {
	if _, ok := events.ParseTier(workerTier); !ok {
		return fmt.Errorf("invalid tier %q (expected small, medium or large)", workerTier)
	}

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

	repo, err := newRepository(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.Error("Repository close error", "error", err)
		}
	}()

	collector := startMetrics(ctx, cfg)

	blobs, err := newBlobClient(ctx, cfg, collector)
	if err != nil {
		return err
	}

	wcfg, err := worker.ForTier(workerTier)
	if err != nil {
		return err
	}
	wcfg.FetchTimeout = cfg.Worker.FetchTimeout
	wcfg.ChunkSize = cfg.Worker.ChunkSize
	if collector != nil {
		wcfg.Metrics = collector
	}

	w := worker.New(wcfg, client, blobs, processor.NewRegistry(), repo)

	logger.Info("Worker started",
		"tier", workerTier,
		"broker", cfg.Broker.URL,
		"database", cfg.Database.Provider)

	if err := w.Run(ctx); err != nil {
		return err
	}

	logger.Info("Worker stopped", "tier", workerTier)
	return nil
}
