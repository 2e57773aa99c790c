// Package config loads the pipeline configuration from file, environment
// and defaults.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (P8FS_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/p8fs/p8fs/internal/bytesize"
)

// Config is the root configuration for every pipeline daemon.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Telemetry controls OpenTelemetry distributed tracing.
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`

	// Broker configures the message broker connection.
	Broker BrokerConfig `mapstructure:"broker" yaml:"broker"`

	// Blob configures the S3-compatible blob store client.
	Blob BlobConfig `mapstructure:"blob" yaml:"blob"`

	// Database configures the SQL storage provider.
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`

	// KV configures the key-value index store.
	KV KVConfig `mapstructure:"kv" yaml:"kv"`

	// Embeddings configures the embedding provider.
	Embeddings EmbeddingsConfig `mapstructure:"embeddings" yaml:"embeddings"`

	// Router configures the tiered router daemon.
	Router RouterConfig `mapstructure:"router" yaml:"router"`

	// Worker configures the storage worker daemons.
	Worker WorkerConfig `mapstructure:"worker" yaml:"worker"`

	// Metrics configures the Prometheus metrics endpoint.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR.
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format is text or json.
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" yaml:"output"`
}

// TelemetryConfig controls distributed tracing.
type TelemetryConfig struct {
	Enabled     bool    `mapstructure:"enabled" yaml:"enabled"`
	ServiceName string  `mapstructure:"service_name" yaml:"service_name"`
	Endpoint    string  `mapstructure:"endpoint" yaml:"endpoint"`
	Insecure    bool    `mapstructure:"insecure" yaml:"insecure"`
	SampleRate  float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1" yaml:"sample_rate"`
}

// BrokerConfig configures the broker connection.
type BrokerConfig struct {
	// URL is the broker server URL.
	URL string `mapstructure:"url" validate:"required" yaml:"url"`

	// ReconnectWait is the gap between reconnect attempts.
	ReconnectWait time.Duration `mapstructure:"reconnect_wait" yaml:"reconnect_wait"`

	// MaxReconnects bounds reconnect attempts.
	MaxReconnects int `mapstructure:"max_reconnects" yaml:"max_reconnects"`
}

// BlobConfig configures the blob store client.
type BlobConfig struct {
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint"`
	Region          string `mapstructure:"region" yaml:"region"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style"`
	BucketPrefix    string `mapstructure:"bucket_prefix" yaml:"bucket_prefix"`

	// MultipartThreshold accepts human-readable sizes ("8Mi", "100MB").
	MultipartThreshold bytesize.ByteSize `mapstructure:"multipart_threshold" yaml:"multipart_threshold"`
	PartSize           bytesize.ByteSize `mapstructure:"part_size" yaml:"part_size"`
	MaxConcurrentParts int               `mapstructure:"max_concurrent_parts" yaml:"max_concurrent_parts"`

	// DisableContentMD5 skips the Content-MD5 header for servers that
	// reject it.
	DisableContentMD5 bool `mapstructure:"disable_content_md5" yaml:"disable_content_md5"`
}

// DatabaseConfig selects and configures the SQL provider.
type DatabaseConfig struct {
	// Provider is postgres or sqlite.
	Provider string `mapstructure:"provider" validate:"required,oneof=postgres sqlite" yaml:"provider"`

	// DSN is the Postgres connection string.
	DSN string `mapstructure:"dsn" yaml:"dsn"`

	// Path is the SQLite database file (":memory:" for in-process).
	Path string `mapstructure:"path" yaml:"path"`

	// MaxConns caps the Postgres pool size.
	MaxConns int32 `mapstructure:"max_conns" yaml:"max_conns"`
}

// KVConfig configures the key-value index store.
type KVConfig struct {
	// Dir is the badger database directory. Empty keeps the index in memory.
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// EmbeddingsConfig configures the default embedding provider.
type EmbeddingsConfig struct {
	// Enabled turns the embedding stage on.
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`

	// BaseURL is the OpenAI-compatible API root.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`

	APIKey    string `mapstructure:"api_key" yaml:"api_key"`
	Model     string `mapstructure:"model" yaml:"model"`
	Dimension int    `mapstructure:"dimension" yaml:"dimension"`

	// Timeout bounds each embedding HTTP call.
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// RouterConfig configures the tiered router.
type RouterConfig struct {
	// BatchSize is the ingress pull batch size.
	BatchSize int `mapstructure:"batch_size" validate:"gte=0" yaml:"batch_size"`

	// FetchTimeout is the ingress pull wait.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`
}

// WorkerConfig configures the storage workers.
type WorkerConfig struct {
	// FetchTimeout is the tier pull wait.
	FetchTimeout time.Duration `mapstructure:"fetch_timeout" yaml:"fetch_timeout"`

	// ChunkSize is the processor chunk budget in characters.
	ChunkSize int `mapstructure:"chunk_size" validate:"gte=0" yaml:"chunk_size"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
}

// Load loads configuration from file, environment and defaults. An empty
// configPath searches the default location; a missing file is not an error.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(decodeHooks())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}
	applyEnvOverrides(v, cfg)
	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Save writes the configuration as YAML with owner-only permissions, since
// it may carry credentials.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration against its struct tags.
func Validate(cfg *Config) error {
	return validator.New().Struct(cfg)
}

func setupViper(v *viper.Viper, configPath string) {
	// P8FS_BROKER_URL overrides broker.url, and so on.
	v.SetEnvPrefix("P8FS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.AddConfigPath(defaultConfigDir())
	v.SetConfigName("config")
	v.SetConfigType("yaml")
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// applyEnvOverrides picks up environment variables even when no config file
// bound their keys. AutomaticEnv only resolves keys viper has seen.
func applyEnvOverrides(v *viper.Viper, cfg *Config) {
	set := func(key string, apply func(string)) {
		if val := v.GetString(key); val != "" {
			apply(val)
		}
	}
	set("logging.level", func(s string) { cfg.Logging.Level = s })
	set("logging.format", func(s string) { cfg.Logging.Format = s })
	set("broker.url", func(s string) { cfg.Broker.URL = s })
	set("blob.endpoint", func(s string) { cfg.Blob.Endpoint = s })
	set("blob.access_key_id", func(s string) { cfg.Blob.AccessKeyID = s })
	set("blob.secret_access_key", func(s string) { cfg.Blob.SecretAccessKey = s })
	set("database.provider", func(s string) { cfg.Database.Provider = s })
	set("database.dsn", func(s string) { cfg.Database.DSN = s })
	set("database.path", func(s string) { cfg.Database.Path = s })
	set("kv.dir", func(s string) { cfg.KV.Dir = s })
	set("embeddings.base_url", func(s string) { cfg.Embeddings.BaseURL = s })
	set("embeddings.api_key", func(s string) { cfg.Embeddings.APIKey = s })
	set("embeddings.model", func(s string) { cfg.Embeddings.Model = s })
}

// DefaultConfigDir returns the directory searched for config.yaml when no
// explicit path is given.
func DefaultConfigDir() string {
	return defaultConfigDir()
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "p8fs")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "p8fs")
}

// decodeHooks converts human-readable sizes and durations from config files.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}
