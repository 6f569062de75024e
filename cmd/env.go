package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spirits-cli/internal/batch"
	"github.com/sells-group/spirits-cli/internal/brand"
	"github.com/sells-group/spirits-cli/internal/config"
	"github.com/sells-group/spirits-cli/internal/dedup"
	"github.com/sells-group/spirits-cli/internal/extract"
	"github.com/sells-group/spirits-cli/internal/failcache"
	"github.com/sells-group/spirits-cli/internal/resilience"
	"github.com/sells-group/spirits-cli/internal/store"
	"github.com/sells-group/spirits-cli/pkg/search"
)

// spiritsEnv holds the initialized store, normalizer, checker and processor
// used by the batch/serve/check-duplicate commands.
type spiritsEnv struct {
	Store     store.Store
	Brands    *brand.Normalizer
	Checker   *dedup.Checker
	Breakers  *resilience.ServiceBreakers
	FailCache *failcache.Cache
	Processor *batch.Processor // nil unless search is configured
}

// Close releases resources held by the environment.
func (e *spiritsEnv) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	dsn := cfg.Store.DatabaseURL
	if cfg.Store.Driver == store.DriverSQLite && dsn == "" {
		dsn = "spirits.db"
	}
	st, err := store.Open(ctx, cfg.Store.Driver, dsn, &store.PoolConfig{
		MaxConns: cfg.Store.MaxConns,
		MinConns: cfg.Store.MinConns,
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	return st, nil
}

func initBrands() (*brand.Normalizer, error) {
	var extra []brand.Entry
	if cfg.Brands.ExtraTable != "" {
		entries, err := brand.LoadTableFile(cfg.Brands.ExtraTable)
		if err != nil {
			return nil, eris.Wrap(err, "load extra brand table")
		}
		extra = entries
	}
	return brand.NewDefault(extra...)
}

// brandConfig converts the brands config section.
func brandConfig(c config.BrandsConfig) (brand.Config, error) {
	out := brand.Config{
		StrictMatching:      c.StrictMatching,
		ExpandAbbreviations: c.ExpandAbbreviations,
		NormalizeCase:       c.NormalizeCase,
		MinimumConfidence:   brand.ConfidenceMedium,
	}
	if c.MinimumConfidence != "" {
		conf, err := brand.ParseConfidence(c.MinimumConfidence)
		if err != nil {
			return brand.Config{}, err
		}
		out.MinimumConfidence = conf
	}
	return out, nil
}

// batchOptions converts the batch config section.
func batchOptions(c config.BatchConfig, bc brand.Config) batch.Options {
	opts := batch.DefaultOptions()
	opts.Concurrency = c.Concurrency
	opts.CompletionDelay = time.Duration(c.CompletionDelayMs) * time.Millisecond
	opts.Extract = extract.Options{
		MaxResults:       c.MaxResults,
		IncludeRetailers: c.IncludeRetailers,
		DeepParse:        c.DeepParse,
	}
	opts.Brand = bc
	return opts
}

func circuitConfig() resilience.CircuitBreakerConfig {
	cc := resilience.FromCircuitConfig(cfg.Circuit.FailureThreshold, cfg.Circuit.TimeoutSecs, cfg.Circuit.ResetTimeoutSecs)
	cc.ShouldTrip = batch.ShouldTrip
	return cc
}

func retryConfig() resilience.RetryConfig {
	return resilience.FromRetryConfig(cfg.Retry.MaxAttempts, cfg.Retry.InitialBackoffMs,
		cfg.Retry.MaxBackoffMs, cfg.Retry.Multiplier, cfg.Retry.JitterFraction)
}

func newSearchClient() search.Client {
	opts := []search.Option{search.WithRateLimit(cfg.Search.RatePerMinute)}
	if cfg.Search.BaseURL != "" {
		opts = append(opts, search.WithBaseURL(cfg.Search.BaseURL))
	}
	if cfg.Search.TimeoutSecs > 0 {
		opts = append(opts, search.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.Search.TimeoutSecs) * time.Second}))
	}
	return search.NewClient(cfg.Search.Key, cfg.Search.EngineID, opts...)
}

// initEnv validates config for mode, opens and migrates the store, and wires
// the pipeline. Callers should defer env.Close().
func initEnv(ctx context.Context, mode string) (*spiritsEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &spiritsEnv{Store: st}

	if err := st.Migrate(ctx); err != nil {
		env.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	env.Brands, err = initBrands()
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Checker = dedup.NewChecker(st, env.Brands,
		dedup.WithThreshold(cfg.Dedup.Threshold),
		dedup.WithCandidateLimit(cfg.Dedup.CandidateLimit),
	)

	var backend failcache.Backend = st
	if cfg.FailCache.Backend == "memory" {
		backend = failcache.NewMemoryBackend()
	}
	env.FailCache = failcache.New(backend, time.Duration(cfg.FailCache.TTLHours)*time.Hour)
	env.Breakers = resilience.NewServiceBreakers(circuitConfig())

	if cfg.Search.Key != "" && cfg.Search.EngineID != "" {
		env.Processor = batch.New(
			extract.NewSearchExtractor(newSearchClient()),
			st, env.Checker, env.Brands,
			batch.WithFailCache(env.FailCache),
			batch.WithBreakers(env.Breakers),
			batch.WithRetry(retryConfig()),
		)
	} else {
		zap.L().Info("search not configured; batch processing disabled")
	}
	return env, nil
}
