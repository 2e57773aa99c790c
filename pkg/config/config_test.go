package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p8fs/p8fs/internal/bytesize"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, "sqlite", cfg.Database.Provider)
	assert.Equal(t, 2*time.Second, cfg.Broker.ReconnectWait)
	assert.Equal(t, 10, cfg.Broker.MaxReconnects)
	assert.Equal(t, 8*bytesize.MiB, cfg.Blob.MultipartThreshold)
	assert.False(t, cfg.Embeddings.Enabled)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "INFO", cfg.Logging.Level)
	assert.Equal(t, "nats://localhost:4222", cfg.Broker.URL)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logging:
  level: DEBUG
  format: json
broker:
  url: nats://broker:4222
blob:
  endpoint: http://minio:9000
  multipart_threshold: 16Mi
  part_size: 8Mi
database:
  provider: postgres
  dsn: postgres://p8fs@db/p8fs
router:
  fetch_timeout: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "nats://broker:4222", cfg.Broker.URL)
	assert.Equal(t, "http://minio:9000", cfg.Blob.Endpoint)
	assert.Equal(t, 16*bytesize.MiB, cfg.Blob.MultipartThreshold)
	assert.Equal(t, "postgres", cfg.Database.Provider)
	assert.Equal(t, 10*time.Second, cfg.Router.FetchTimeout)

	// Unset keys pick up defaults.
	assert.Equal(t, 512, cfg.Worker.ChunkSize)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database:\n  provider: oracle\n"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("P8FS_BROKER_URL", "nats://env-broker:4222")
	t.Setenv("P8FS_DATABASE_PROVIDER", "sqlite")
	t.Setenv("P8FS_LOGGING_LEVEL", "WARN")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "nats://env-broker:4222", cfg.Broker.URL)
	assert.Equal(t, "WARN", cfg.Logging.Level)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.yaml")
	cfg := Default()
	cfg.Broker.URL = "nats://saved:4222"
	require.NoError(t, Save(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://saved:4222", loaded.Broker.URL)
}
