// Package batch drives extraction, validation, deduplication, brand
// normalization and persistence over a list of work items with bounded
// concurrency.
package batch

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/spirits-cli/internal/brand"
	"github.com/sells-group/spirits-cli/internal/extract"
	"github.com/sells-group/spirits-cli/internal/failcache"
	"github.com/sells-group/spirits-cli/internal/model"
	"github.com/sells-group/spirits-cli/internal/resilience"
	"github.com/sells-group/spirits-cli/internal/store"
	"github.com/sells-group/spirits-cli/internal/validate"
)

// Breaker names used in the ServiceBreakers registry. Store reads and writes
// trip separately so a healthy read path cannot mask a failing write path.
const (
	ServiceSearch    = "search"
	ServiceStore     = "store"
	ServiceStoreRead = "store-read"
)

// DefaultConcurrency is the pool size when Options.Concurrency is zero.
const DefaultConcurrency = 5

// progressLogEvery controls how often progress is logged.
const progressLogEvery = 10

var (
	// ErrLooksLikeQuery rejects an extracted name that reads like a search
	// query rather than a product.
	ErrLooksLikeQuery = eris.New("batch: extracted name looks like a search query")
	// ErrPreviouslyFailed marks items skipped because of a recent failure.
	ErrPreviouslyFailed = eris.New("batch: item failed recently")
	// ErrCancelled marks items never started because the batch was cancelled.
	ErrCancelled = eris.New("batch cancelled")
)

// Store is the persistence surface the processor writes through.
type Store interface {
	Insert(ctx context.Context, sp model.Spirit) (string, error)
	Update(ctx context.Context, id string, sp model.Spirit) error
	Get(ctx context.Context, id string) (*model.StoredSpirit, error)
	ListNeedingEnrichment(ctx context.Context, limit int) ([]model.StoredSpirit, error)
}

// DuplicateChecker decides whether a record already exists.
type DuplicateChecker interface {
	Check(ctx context.Context, candidate model.Spirit) (model.DuplicateDecision, error)
}

// BrandNormalizer canonicalizes a raw brand.
type BrandNormalizer interface {
	Normalize(raw string, cfg brand.Config) brand.Result
}

// Options tunes one batch run.
type Options struct {
	// Concurrency bounds the number of in-flight item pipelines.
	Concurrency int
	// CompletionDelay is slept by a worker slot after each item finishes.
	CompletionDelay time.Duration
	Extract         extract.Options
	Brand           brand.Config
	// OnProgress is called after every completed item, never concurrently.
	OnProgress func(model.BatchProgress)
}

// DefaultOptions returns the pool size, pacing and stage settings used by the
// CLI when no configuration overrides them.
func DefaultOptions() Options {
	return Options{
		Concurrency:     DefaultConcurrency,
		CompletionDelay: time.Second,
		Extract:         extract.DefaultOptions(),
		Brand:           brand.DefaultConfig(),
	}
}

// Option configures a Processor.
type Option func(*Processor)

// WithFailCache sets the failed-attempt cache.
func WithFailCache(c *failcache.Cache) Option {
	return func(p *Processor) {
		if c != nil {
			p.failures = c
		}
	}
}

// WithBreakers shares a breaker registry across processors.
func WithBreakers(sb *resilience.ServiceBreakers) Option {
	return func(p *Processor) {
		if sb != nil {
			p.breakers = sb
		}
	}
}

// WithRetry sets the retry policy applied to search and store calls.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(p *Processor) { p.retry = cfg }
}

// WithQueryDetector replaces the search-query heuristic.
func WithQueryDetector(d validate.QueryDetector) Option {
	return func(p *Processor) {
		if d != nil {
			p.queries = d
		}
	}
}

// WithValidator replaces the record validator.
func WithValidator(v *validate.Validator) Option {
	return func(p *Processor) {
		if v != nil {
			p.validator = v
		}
	}
}

// Processor runs batches. Runs on one Processor are serialized so that
// Progress always describes a single batch.
type Processor struct {
	extractor extract.Extractor
	store     Store
	dedup     DuplicateChecker
	brands    BrandNormalizer
	validator *validate.Validator
	queries   validate.QueryDetector
	failures  *failcache.Cache
	breakers  *resilience.ServiceBreakers
	retry     resilience.RetryConfig

	runMu    sync.Mutex
	mu       sync.RWMutex
	progress model.BatchProgress

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// New creates a Processor. Without WithFailCache the processor keeps an
// in-memory failure cache; without WithBreakers it owns a default registry.
func New(ex extract.Extractor, st Store, checker DuplicateChecker, brands BrandNormalizer, opts ...Option) *Processor {
	p := &Processor{
		extractor: ex,
		store:     st,
		dedup:     checker,
		brands:    brands,
		validator: validate.New(),
		queries:   validate.NewPatternDetector(),
		failures:  failcache.New(failcache.NewMemoryBackend(), failcache.DefaultTTL),
		breakers:  resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig()),
		retry:     resilience.DefaultRetryConfig(),
		nowFunc:   time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Breakers exposes the breaker registry for status reporting.
func (p *Processor) Breakers() *resilience.ServiceBreakers {
	return p.breakers
}

// Progress returns a snapshot of the current (or last) run's counters. A
// chunked run reports counters across all of its chunks.
func (p *Processor) Progress() model.BatchProgress {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.progress
}

// ShouldTrip reports whether err says anything about a dependency's health.
// Duplicates, missing records and empty search results do not.
func ShouldTrip(err error) bool {
	if err == nil {
		return false
	}
	return !errors.Is(err, store.ErrDuplicate) &&
		!errors.Is(err, store.ErrNotFound) &&
		!errors.Is(err, extract.ErrNoResults)
}

func (p *Processor) guard(service string) resilience.Guard {
	cb := p.breakers.GetWith(service, func(cfg *resilience.CircuitBreakerConfig) {
		if cfg.ShouldTrip == nil {
			cfg.ShouldTrip = ShouldTrip
		}
		if cfg.OnStateChange == nil {
			cfg.OnStateChange = func(from, to resilience.CircuitState) {
				zap.L().Warn("circuit breaker state change",
					zap.String("service", service),
					zap.Stringer("from", from),
					zap.Stringer("to", to),
				)
			}
		}
	})
	retry := p.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(service, "batch")
	}
	return resilience.Guard{Breaker: cb, Retry: retry}
}

// outcome is the terminal result of one item, sent to the collector.
type outcome struct {
	item      model.WorkItem
	kind      model.Outcome
	stored    *model.StoredSpirit
	matchedID string
	err       error
}

// ProcessBatch runs every item through the pipeline and returns a full
// accounting. Item failures never abort the batch; the only error returned is
// for invalid options. Cancelling ctx stops scheduling; in-flight items finish
// and unscheduled items are recorded as failed.
func (p *Processor) ProcessBatch(ctx context.Context, items []model.WorkItem, opts Options) (*model.BatchResult, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	p.runMu.Lock()
	defer p.runMu.Unlock()

	start := p.begin(len(items))
	result := newResult()
	p.runItems(ctx, items, opts, start, result)
	result.Duration = p.nowFunc().Sub(start)
	p.logComplete(result)
	return result, nil
}

func (o Options) normalize() (Options, error) {
	if o.Concurrency < 0 {
		return o, eris.Errorf("batch: concurrency must be >= 0 (got %d)", o.Concurrency)
	}
	if o.CompletionDelay < 0 {
		return o, eris.Errorf("batch: completion delay must be >= 0 (got %s)", o.CompletionDelay)
	}
	if o.Concurrency == 0 {
		o.Concurrency = DefaultConcurrency
	}
	return o, nil
}

func newResult() *model.BatchResult {
	return &model.BatchResult{
		Successful: []model.StoredSpirit{},
		Failed:     []model.FailedItem{},
		Duplicates: []model.DuplicateItem{},
	}
}

// begin resets progress for a run of total items and returns its start time.
func (p *Processor) begin(total int) time.Time {
	p.mu.Lock()
	p.progress = model.BatchProgress{Total: total}
	p.mu.Unlock()
	return p.nowFunc()
}

// runItems processes items concurrently, recording every outcome into result
// and the run-wide progress. Callers hold runMu.
func (p *Processor) runItems(ctx context.Context, items []model.WorkItem, opts Options, start time.Time, result *model.BatchResult) {
	zap.L().Info("processing batch",
		zap.Int("items", len(items)),
		zap.Int("concurrency", opts.Concurrency),
	)

	outcomes := make(chan outcome, opts.Concurrency)
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for o := range outcomes {
			p.record(result, o, start, opts.OnProgress)
		}
	}()

	var g errgroup.Group
	g.SetLimit(opts.Concurrency)
	for _, item := range items {
		if ctx.Err() != nil {
			outcomes <- outcome{item: item, kind: model.OutcomeFailed, err: ErrCancelled}
			continue
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				outcomes <- outcome{item: item, kind: model.OutcomeFailed, err: ErrCancelled}
				return nil
			}
			outcomes <- p.processItem(ctx, item, opts)
			sleepCtx(ctx, opts.CompletionDelay)
			return nil // don't abort batch on individual failure
		})
	}
	_ = g.Wait()
	close(outcomes)
	<-collected
}

func (p *Processor) logComplete(result *model.BatchResult) {
	final := p.Progress()
	zap.L().Info("batch complete",
		zap.Int("total", result.TotalProcessed),
		zap.Int("successful", final.Successful),
		zap.Int("failed", final.Failed),
		zap.Int("duplicates", final.Duplicates),
		zap.Float64("success_rate", final.SuccessRate()),
		zap.Duration("duration", result.Duration),
	)
}

// record is the single writer of progress and result.
func (p *Processor) record(result *model.BatchResult, o outcome, start time.Time, onProgress func(model.BatchProgress)) {
	label := o.item.Label()
	switch o.kind {
	case model.OutcomeSuccess:
		result.Successful = append(result.Successful, *o.stored)
	case model.OutcomeDuplicate:
		result.Duplicates = append(result.Duplicates, model.DuplicateItem{
			Query:     label,
			Name:      o.item.Name,
			Brand:     o.item.Brand,
			MatchedID: o.matchedID,
		})
	default:
		msg := "unknown error"
		if o.err != nil {
			msg = o.err.Error()
		}
		result.Failed = append(result.Failed, model.FailedItem{
			Query: label,
			Name:  o.item.Name,
			Brand: o.item.Brand,
			Error: msg,
		})
	}
	result.TotalProcessed++

	p.mu.Lock()
	switch o.kind {
	case model.OutcomeSuccess:
		p.progress.Successful++
	case model.OutcomeDuplicate:
		p.progress.Duplicates++
	default:
		p.progress.Failed++
	}
	p.progress.Completed++
	p.progress.CurrentItem = label
	if remaining := p.progress.Total - p.progress.Completed; remaining > 0 {
		perItem := p.nowFunc().Sub(start) / time.Duration(p.progress.Completed)
		p.progress.EstimatedTimeRemaining = perItem * time.Duration(remaining)
	} else {
		p.progress.EstimatedTimeRemaining = 0
	}
	snap := p.progress
	p.mu.Unlock()

	if snap.Completed%progressLogEvery == 0 {
		zap.L().Info("batch progress",
			zap.Int("completed", snap.Completed),
			zap.Int("total", snap.Total),
			zap.Int("failed", snap.Failed),
			zap.Duration("eta", snap.EstimatedTimeRemaining),
		)
	}
	if onProgress != nil {
		onProgress(snap)
	}
}

// processItem runs the pipeline for one item and never panics out an error.
func (p *Processor) processItem(ctx context.Context, item model.WorkItem, opts Options) outcome {
	log := zap.L().With(zap.String("item", item.Label()))
	key := failcache.ItemKey(item)

	if rec := p.failures.Lookup(ctx, key); rec != nil {
		log.Debug("skipping previously failed item", zap.String("reason", rec.Reason))
		return outcome{item: item, kind: model.OutcomeFailed, err: eris.Wrap(ErrPreviouslyFailed, rec.Reason)}
	}

	o := p.runPipeline(ctx, item, opts)
	if o.kind == model.OutcomeFailed {
		log.Warn("item failed",
			zap.String("class", resilience.ClassifyError(o.err)),
			zap.Error(o.err),
		)
		if !isCancellation(o.err) {
			p.failures.MarkFailedAttempt(ctx, key, o.err.Error())
		}
	}
	return o
}

func (p *Processor) runPipeline(ctx context.Context, item model.WorkItem, opts Options) outcome {
	fail := func(err error) outcome {
		return outcome{item: item, kind: model.OutcomeFailed, err: err}
	}

	extracted, err := resilience.CallVal(ctx, p.guard(ServiceSearch), func(ctx context.Context) (*model.Spirit, error) {
		return p.extractor.Extract(ctx, item.Name, item.Brand, opts.Extract)
	})
	if err != nil {
		return fail(eris.Wrap(err, "extract"))
	}
	if extracted == nil {
		return fail(eris.Wrap(extract.ErrNoResults, "extract: empty record"))
	}

	sp, err := p.validator.Validate(*extracted)
	if err != nil {
		return fail(err)
	}
	if p.queries.LooksLikeQuery(sp.Name) {
		return fail(eris.Wrapf(ErrLooksLikeQuery, "%q", sp.Name))
	}
	item.Metadata.Apply(&sp)

	recordID := item.RecordID()
	if recordID == "" {
		decision, err := resilience.CallVal(ctx, p.guard(ServiceStoreRead), func(ctx context.Context) (model.DuplicateDecision, error) {
			return p.dedup.Check(ctx, sp)
		})
		if err != nil {
			return fail(eris.Wrap(err, "duplicate check"))
		}
		if decision.IsDuplicate {
			return outcome{item: item, kind: model.OutcomeDuplicate, matchedID: decision.MatchedID}
		}
	}

	if sp.Brand != "" {
		if res := p.brands.Normalize(sp.Brand, opts.Brand); res.Canonical != "" {
			sp.Brand = res.Canonical
		}
	}

	if recordID != "" {
		stored, err := p.enrich(ctx, recordID, sp)
		if err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return outcome{item: item, kind: model.OutcomeDuplicate}
			}
			return fail(err)
		}
		return outcome{item: item, kind: model.OutcomeSuccess, stored: stored}
	}

	id, err := resilience.CallVal(ctx, p.guard(ServiceStore), func(ctx context.Context) (string, error) {
		return p.store.Insert(ctx, sp)
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return outcome{item: item, kind: model.OutcomeDuplicate}
		}
		return fail(eris.Wrap(err, "store insert"))
	}
	now := p.nowFunc().UTC()
	return outcome{
		item:   item,
		kind:   model.OutcomeSuccess,
		stored: &model.StoredSpirit{Spirit: sp, ID: id, CreatedAt: now, UpdatedAt: now},
	}
}

// enrich fills the stored record's gaps from sp and writes it back.
func (p *Processor) enrich(ctx context.Context, id string, sp model.Spirit) (*model.StoredSpirit, error) {
	existing, err := resilience.CallVal(ctx, p.guard(ServiceStoreRead), func(ctx context.Context) (*model.StoredSpirit, error) {
		return p.store.Get(ctx, id)
	})
	if err != nil {
		return nil, eris.Wrap(err, "store get")
	}

	merged := existing.Spirit
	merged.FillMissing(sp)
	err = resilience.Call(ctx, p.guard(ServiceStore), func(ctx context.Context) error {
		return p.store.Update(ctx, id, merged)
	})
	if err != nil {
		return nil, eris.Wrap(err, "store update")
	}
	existing.Spirit = merged
	existing.UpdatedAt = p.nowFunc().UTC()
	return existing, nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// sleepCtx waits d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
