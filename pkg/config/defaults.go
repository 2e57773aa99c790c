package config

import (
	"time"

	"github.com/p8fs/p8fs/internal/bytesize"
)

// Default returns the full default configuration: SQLite storage, in-memory
// KV index, local broker, embeddings off.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{
			Level:  "INFO",
			Format: "text",
			Output: "stderr",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "p8fs",
			Endpoint:    "localhost:4317",
			Insecure:    true,
			SampleRate:  1.0,
		},
		Broker: BrokerConfig{
			URL:           "nats://localhost:4222",
			ReconnectWait: 2 * time.Second,
			MaxReconnects: 10,
		},
		Blob: BlobConfig{
			Region:             "us-east-1",
			ForcePathStyle:     true,
			MultipartThreshold: 8 * bytesize.MiB,
			PartSize:           8 * bytesize.MiB,
			MaxConcurrentParts: 10,
		},
		Database: DatabaseConfig{
			Provider: "sqlite",
			Path:     "p8fs.db",
			MaxConns: 10,
		},
		Embeddings: EmbeddingsConfig{
			Enabled:   false,
			Model:     "text-embedding-3-small",
			Dimension: 1536,
			Timeout:   30 * time.Second,
		},
		Router: RouterConfig{
			BatchSize:    10,
			FetchTimeout: 30 * time.Second,
		},
		Worker: WorkerConfig{
			FetchTimeout: 30 * time.Second,
			ChunkSize:    512,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9100",
		},
		ShutdownTimeout: 30 * time.Second,
	}
}

// ApplyDefaults fills zero values left after unmarshalling a partial file.
func ApplyDefaults(cfg *Config) {
	def := Default()

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = def.Logging.Output
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = def.Telemetry.ServiceName
	}
	if cfg.Telemetry.Endpoint == "" {
		cfg.Telemetry.Endpoint = def.Telemetry.Endpoint
	}
	if cfg.Telemetry.SampleRate == 0 {
		cfg.Telemetry.SampleRate = def.Telemetry.SampleRate
	}
	if cfg.Broker.URL == "" {
		cfg.Broker.URL = def.Broker.URL
	}
	if cfg.Broker.ReconnectWait == 0 {
		cfg.Broker.ReconnectWait = def.Broker.ReconnectWait
	}
	if cfg.Broker.MaxReconnects == 0 {
		cfg.Broker.MaxReconnects = def.Broker.MaxReconnects
	}
	if cfg.Blob.Region == "" {
		cfg.Blob.Region = def.Blob.Region
	}
	if cfg.Blob.MultipartThreshold == 0 {
		cfg.Blob.MultipartThreshold = def.Blob.MultipartThreshold
	}
	if cfg.Blob.PartSize == 0 {
		cfg.Blob.PartSize = def.Blob.PartSize
	}
	if cfg.Blob.MaxConcurrentParts == 0 {
		cfg.Blob.MaxConcurrentParts = def.Blob.MaxConcurrentParts
	}
	if cfg.Database.Provider == "" {
		cfg.Database.Provider = def.Database.Provider
	}
	if cfg.Database.Provider == "sqlite" && cfg.Database.Path == "" {
		cfg.Database.Path = def.Database.Path
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = def.Database.MaxConns
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = def.Embeddings.Model
	}
	if cfg.Embeddings.Dimension == 0 {
		cfg.Embeddings.Dimension = def.Embeddings.Dimension
	}
	if cfg.Embeddings.Timeout == 0 {
		cfg.Embeddings.Timeout = def.Embeddings.Timeout
	}
	if cfg.Router.BatchSize == 0 {
		cfg.Router.BatchSize = def.Router.BatchSize
	}
	if cfg.Router.FetchTimeout == 0 {
		cfg.Router.FetchTimeout = def.Router.FetchTimeout
	}
	if cfg.Worker.FetchTimeout == 0 {
		cfg.Worker.FetchTimeout = def.Worker.FetchTimeout
	}
	if cfg.Worker.ChunkSize == 0 {
		cfg.Worker.ChunkSize = def.Worker.ChunkSize
	}
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = def.Metrics.Listen
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}
}
