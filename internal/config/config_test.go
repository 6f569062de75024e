package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 100, cfg.Search.RatePerMinute)
	assert.Equal(t, 15, cfg.Search.TimeoutSecs)
	assert.Equal(t, 5, cfg.Batch.Concurrency)
	assert.Equal(t, 1000, cfg.Batch.CompletionDelayMs)
	assert.Equal(t, 10, cfg.Batch.ChunkSize)
	assert.Equal(t, 5000, cfg.Batch.ChunkDelayMs)
	assert.Equal(t, 20, cfg.Batch.MaxResults)
	assert.True(t, cfg.Batch.IncludeRetailers)
	assert.False(t, cfg.Batch.DeepParse)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 1000, cfg.Retry.InitialBackoffMs)
	assert.Equal(t, 30000, cfg.Retry.MaxBackoffMs)
	assert.InDelta(t, 2.0, cfg.Retry.Multiplier, 0.001)
	assert.Equal(t, 5, cfg.Circuit.FailureThreshold)
	assert.Equal(t, 60, cfg.Circuit.TimeoutSecs)
	assert.Equal(t, 30, cfg.Circuit.ResetTimeoutSecs)
	assert.Equal(t, "store", cfg.FailCache.Backend)
	assert.Equal(t, 4, cfg.FailCache.TTLHours)
	assert.Equal(t, "medium", cfg.Brands.MinimumConfidence)
	assert.True(t, cfg.Brands.ExpandAbbreviations)
	assert.True(t, cfg.Brands.NormalizeCase)
	assert.InDelta(t, 0.92, cfg.Dedup.Threshold, 0.001)
	assert.Equal(t, 10, cfg.Dedup.CandidateLimit)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: spirits.db
log:
  level: debug
  format: console
server:
  port: 9090
batch:
  concurrency: 8
  deep_parse: true
dedup:
  threshold: 0.85
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "spirits.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 8, cfg.Batch.Concurrency)
	assert.True(t, cfg.Batch.DeepParse)
	assert.InDelta(t, 0.85, cfg.Dedup.Threshold, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, 10, cfg.Batch.ChunkSize)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("SPIRITS_STORE_DRIVER", "postgres")
	t.Setenv("SPIRITS_LOG_LEVEL", "warn")
	t.Setenv("SPIRITS_SEARCH_KEY", "gkey")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "gkey", cfg.Search.Key)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("SPIRITS_SERVER_PORT", "3000")
	t.Setenv("SPIRITS_BATCH_CONCURRENCY", "12")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 12, cfg.Batch.Concurrency)
}

func TestLoadBadFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Batch.Concurrency = 5
	cfg.Dedup.Threshold = 0.92
	cfg.FailCache.Backend = "store"
	cfg.Brands.MinimumConfidence = "medium"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidateBatch_AllPresent(t *testing.T) {
	cfg := validDefaults()
	cfg.Search.Key = "key"
	cfg.Search.EngineID = "cx"

	assert.NoError(t, cfg.Validate("batch"))
}

func TestValidateBatch_MissingFields(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("batch")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "search.key is required")
	assert.Contains(t, err.Error(), "search.engine_id is required")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidateStore_Drivers(t *testing.T) {
	cfg := validDefaults()
	for _, d := range []string{"sqlite", "memory"} {
		cfg.Store.Driver = d
		assert.NoError(t, cfg.Validate("store"), d)
	}

	cfg.Store.Driver = "mysql"
	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")

	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/spirits"
	assert.NoError(t, cfg.Validate("store"))

	cfg.FailCache.Backend = "redis"
	err = cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failcache.backend")
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateNormalize_NoStore(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	assert.NoError(t, cfg.Validate("normalize"))
}

func TestValidateUnknownMode(t *testing.T) {
	cfg := validDefaults()
	err := cfg.Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidateBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Batch.Concurrency = 0
	err := cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.concurrency must be between 1 and 50")

	cfg.Batch.Concurrency = 50
	assert.NoError(t, cfg.Validate("store"))

	cfg.Dedup.Threshold = 1.5
	err = cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dedup.threshold")

	cfg.Dedup.Threshold = 0.9
	cfg.Brands.MinimumConfidence = "certain"
	err = cfg.Validate("store")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "brands.minimum_confidence")
}
