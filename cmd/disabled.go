package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spirits-cli/internal/batch"
	"github.com/sells-group/spirits-cli/internal/model"
)

// disabledBatches rejects batch requests when search is not configured.
type disabledBatches struct{}

func (disabledBatches) ProcessBatch(context.Context, []model.WorkItem, batch.Options) (*model.BatchResult, error) {
	return nil, eris.New("batch processing is disabled: search.key and search.engine_id are not set")
}
