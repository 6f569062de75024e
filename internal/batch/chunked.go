package batch

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/spirits-cli/internal/model"
)

// ProcessChunked runs items as consecutive batches of chunkSize, sleeping
// chunkDelay between them, and returns one merged result. Progress and
// OnProgress cover the whole run, not the current chunk. Cancellation between
// chunks records the remaining items as cancelled.
func (p *Processor) ProcessChunked(ctx context.Context, items []model.WorkItem, chunkSize int, chunkDelay time.Duration, opts Options) (*model.BatchResult, error) {
	if chunkSize <= 0 {
		return nil, eris.Errorf("batch: chunk size must be > 0 (got %d)", chunkSize)
	}
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	p.runMu.Lock()
	defer p.runMu.Unlock()

	start := p.begin(len(items))
	result := newResult()
	for from := 0; from < len(items); from += chunkSize {
		to := min(from+chunkSize, len(items))
		if from > 0 {
			sleepCtx(ctx, chunkDelay)
		}

		zap.L().Info("processing chunk",
			zap.Int("from", from+1),
			zap.Int("to", to),
			zap.Int("total", len(items)),
		)
		p.runItems(ctx, items[from:to], opts, start, result)
	}
	result.Duration = p.nowFunc().Sub(start)
	p.logComplete(result)
	return result, nil
}

// ProcessEnrichment loads up to limit stored spirits with missing fields and
// re-extracts them. Found fields fill the gaps of the existing record; nothing
// already stored is overwritten.
func (p *Processor) ProcessEnrichment(ctx context.Context, limit int, opts Options) (*model.BatchResult, error) {
	stale, err := p.store.ListNeedingEnrichment(ctx, limit)
	if err != nil {
		return nil, eris.Wrap(err, "batch: list spirits needing enrichment")
	}

	items := make([]model.WorkItem, 0, len(stale))
	for _, sp := range stale {
		items = append(items, model.WorkItem{
			Name:     sp.Name,
			Brand:    sp.Brand,
			Metadata: model.Metadata{model.MetaRecordID: sp.ID},
		})
	}
	zap.L().Info("enriching stored spirits", zap.Int("items", len(items)))
	return p.ProcessBatch(ctx, items, opts)
}
