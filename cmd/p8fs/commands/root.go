// Package commands implements the p8fs CLI: daemons for the router and the
// tier workers plus operational commands for ingest, inspection and
// migrations.
package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/p8fs/p8fs/internal/logger"
	"github.com/p8fs/p8fs/internal/telemetry"
	"github.com/p8fs/p8fs/pkg/blob"
	"github.com/p8fs/p8fs/pkg/broker"
	"github.com/p8fs/p8fs/pkg/config"
	"github.com/p8fs/p8fs/pkg/embeddings"
	"github.com/p8fs/p8fs/pkg/kv"
	"github.com/p8fs/p8fs/pkg/metrics"
	"github.com/p8fs/p8fs/pkg/repository"
	"github.com/p8fs/p8fs/pkg/repository/provider"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"

	// Global flags.
	cfgFile string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "p8fs",
	Short: "P8FS - Tiered storage event pipeline",
	Long: `P8FS routes blob storage events through size-tiered worker pools that
download, chunk and index uploaded files into SQL rows, embedding vectors
and a key-value reverse index.

Use "p8fs [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/p8fs/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(routerCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(searchCmd)

	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig reads the config file from the global flag and initializes the
// structured logger from it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, nil
}

// initTelemetry starts the tracer when enabled. The returned shutdown
// function is always safe to call.
func initTelemetry(ctx context.Context, cfg *config.Config) (func(context.Context) error, error) {
	return telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// newStorageProvider builds the configured SQL provider.
func newStorageProvider(ctx context.Context, cfg *config.Config) (provider.StorageProvider, error) {
	switch cfg.Database.Provider {
	case "postgres":
		return provider.NewPostgres(ctx, provider.PostgresConfig{
			DSN:      cfg.Database.DSN,
			MaxConns: cfg.Database.MaxConns,
		})
	case "sqlite":
		return provider.NewSQLite(ctx, provider.SQLiteConfig{Path: cfg.Database.Path})
	default:
		return nil, fmt.Errorf("unknown database provider %q", cfg.Database.Provider)
	}
}

// newRepository assembles the repository from the configured provider, the
// embedding registry and the badger index store.
func newRepository(ctx context.Context, cfg *config.Config) (*repository.Repository, error) {
	prov, err := newStorageProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var registry *embeddings.Registry
	if cfg.Embeddings.Enabled {
		ep, err := embeddings.NewOpenAIProvider(embeddings.OpenAIConfig{
			BaseURL:   cfg.Embeddings.BaseURL,
			APIKey:    cfg.Embeddings.APIKey,
			Model:     cfg.Embeddings.Model,
			Dimension: cfg.Embeddings.Dimension,
			Timeout:   cfg.Embeddings.Timeout,
		})
		if err != nil {
			_ = prov.Close()
			return nil, fmt.Errorf("failed to create embedding provider: %w", err)
		}
		registry = embeddings.NewRegistry(ep)
	}

	store, err := kv.NewBadgerStore(kv.BadgerConfig{Dir: cfg.KV.Dir})
	if err != nil {
		_ = prov.Close()
		return nil, fmt.Errorf("failed to open index store: %w", err)
	}

	return repository.New(repository.Config{
		Provider:   prov,
		Embeddings: registry,
		KV:         store,
	}), nil
}

// newBlobClient builds the blob store client, optionally instrumented.
func newBlobClient(ctx context.Context, cfg *config.Config, collector *metrics.Collector) (*blob.Client, error) {
	bc := blob.Config{
		Endpoint:           cfg.Blob.Endpoint,
		Region:             cfg.Blob.Region,
		AccessKeyID:        cfg.Blob.AccessKeyID,
		SecretAccessKey:    cfg.Blob.SecretAccessKey,
		ForcePathStyle:     cfg.Blob.ForcePathStyle,
		BucketPrefix:       cfg.Blob.BucketPrefix,
		MultipartThreshold: cfg.Blob.MultipartThreshold,
		PartSize:           cfg.Blob.PartSize,
		MaxConcurrentParts: cfg.Blob.MaxConcurrentParts,
		DisableContentMD5:  cfg.Blob.DisableContentMD5,
	}
	if collector != nil {
		bc.Metrics = collector
	}
	return blob.New(ctx, bc)
}

// connectBroker dials the broker and ensures the stream topology exists.
func connectBroker(ctx context.Context, cfg *config.Config) (*broker.Client, error) {
	client, err := broker.Connect(broker.Config{
		URL:           cfg.Broker.URL,
		Name:          "p8fs",
		ReconnectWait: cfg.Broker.ReconnectWait,
		MaxReconnects: cfg.Broker.MaxReconnects,
	})
	if err != nil {
		return nil, err
	}
	if err := client.EnsureTopology(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// startMetrics serves the Prometheus endpoint when enabled and returns the
// collector (nil when disabled).
func startMetrics(ctx context.Context, cfg *config.Config) *metrics.Collector {
	if !cfg.Metrics.Enabled {
		return nil
	}
	collector := metrics.NewCollector()
	go func() {
		if err := collector.Serve(ctx, cfg.Metrics.Listen); err != nil {
			logger.Error("Metrics endpoint failed", "error", err)
		}
	}()
	return collector
}

// Exit prints an error and exits with code 1.
func Exit(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
