package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	FailCache FailCacheConfig `yaml:"failcache" mapstructure:"failcache"`
	Brands    BrandsConfig    `yaml:"brands" mapstructure:"brands"`
	Dedup     DedupConfig     `yaml:"dedup" mapstructure:"dedup"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SearchConfig holds Google Custom Search credentials and limits.
type SearchConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	EngineID      string `yaml:"engine_id" mapstructure:"engine_id"`
	BaseURL       string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs   int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerMinute int    `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	Concurrency       int  `yaml:"concurrency" mapstructure:"concurrency"`
	CompletionDelayMs int  `yaml:"completion_delay_ms" mapstructure:"completion_delay_ms"`
	ChunkSize         int  `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkDelayMs      int  `yaml:"chunk_delay_ms" mapstructure:"chunk_delay_ms"`
	MaxResults        int  `yaml:"max_results" mapstructure:"max_results"`
	IncludeRetailers  bool `yaml:"include_retailers" mapstructure:"include_retailers"`
	DeepParse         bool `yaml:"deep_parse" mapstructure:"deep_parse"`
}

// RetryConfig configures exponential backoff for outbound calls.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter" mapstructure:"jitter"`
}

// CircuitConfig configures the per-dependency circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	TimeoutSecs      int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// FailCacheConfig configures the failed-attempt ledger.
type FailCacheConfig struct {
	Backend  string `yaml:"backend" mapstructure:"backend"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// BrandsConfig configures brand normalization.
type BrandsConfig struct {
	ExtraTable          string `yaml:"extra_table" mapstructure:"extra_table"`
	MinimumConfidence   string `yaml:"minimum_confidence" mapstructure:"minimum_confidence"`
	StrictMatching      bool   `yaml:"strict_matching" mapstructure:"strict_matching"`
	ExpandAbbreviations bool   `yaml:"expand_abbreviations" mapstructure:"expand_abbreviations"`
	NormalizeCase       bool   `yaml:"normalize_case" mapstructure:"normalize_case"`
}

// DedupConfig configures the duplicate checker.
type DedupConfig struct {
	Threshold      float64 `yaml:"threshold" mapstructure:"threshold"`
	CandidateLimit int     `yaml:"candidate_limit" mapstructure:"candidate_limit"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SPIRITS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("search.key", "")
	v.SetDefault("search.engine_id", "")
	v.SetDefault("search.base_url", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("search.timeout_secs", 15)
	v.SetDefault("search.rate_per_minute", 100)
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("batch.completion_delay_ms", 1000)
	v.SetDefault("batch.chunk_size", 10)
	v.SetDefault("batch.chunk_delay_ms", 5000)
	v.SetDefault("batch.max_results", 20)
	v.SetDefault("batch.include_retailers", true)
	v.SetDefault("batch.deep_parse", false)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 1000)
	v.SetDefault("retry.max_backoff_ms", 30000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter", 0.0)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.timeout_secs", 60)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("failcache.backend", "store")
	v.SetDefault("failcache.ttl_hours", 4)
	v.SetDefault("brands.extra_table", "")
	v.SetDefault("brands.minimum_confidence", "medium")
	v.SetDefault("brands.strict_matching", false)
	v.SetDefault("brands.expand_abbreviations", true)
	v.SetDefault("brands.normalize_case", true)
	v.SetDefault("dedup.threshold", 0.92)
	v.SetDefault("dedup.candidate_limit", 10)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the keys a command mode depends on. Modes: "batch",
// "serve", "store" (migrate, stats, check-duplicate, failcache) and
// "normalize".
func (c *Config) Validate(mode string) error {
	var errs []string

	needStore := false
	switch mode {
	case "batch":
		needStore = true
		if c.Search.Key == "" {
			errs = append(errs, "search.key is required")
		}
		if c.Search.EngineID == "" {
			errs = append(errs, "search.engine_id is required")
		}
	case "serve":
		needStore = true
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "store":
		needStore = true
	case "normalize":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if needStore {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				errs = append(errs, "store.database_url is required for the postgres driver")
			}
		case "sqlite", "memory":
		default:
			errs = append(errs, fmt.Sprintf("store.driver %q must be postgres, sqlite or memory", c.Store.Driver))
		}
		switch c.FailCache.Backend {
		case "", "store", "memory":
		default:
			errs = append(errs, fmt.Sprintf("failcache.backend %q must be store or memory", c.FailCache.Backend))
		}
	}

	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 50 {
		errs = append(errs, fmt.Sprintf("batch.concurrency must be between 1 and 50 (got %d)", c.Batch.Concurrency))
	}
	if c.Batch.ChunkSize < 0 {
		errs = append(errs, "batch.chunk_size must be >= 0")
	}
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		errs = append(errs, fmt.Sprintf("dedup.threshold must be in (0, 1] (got %.2f)", c.Dedup.Threshold))
	}
	switch strings.ToLower(strings.TrimSpace(c.Brands.MinimumConfidence)) {
	case "", "low", "medium", "high":
	default:
		errs = append(errs, fmt.Sprintf("brands.minimum_confidence %q must be low, medium or high", c.Brands.MinimumConfidence))
	}

	if len(errs) > 0 {
		return eris.New("config: " + strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
