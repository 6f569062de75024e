package batch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/spirits-cli/internal/extract"
	"github.com/sells-group/spirits-cli/internal/model"
	"github.com/sells-group/spirits-cli/internal/store"
)

func TestProcessChunked(t *testing.T) {
	t.Parallel()

	ex := &fakeExtractor{}
	p := newTestProcessor(t, ex, store.NewMemory())

	items := []model.WorkItem{
		{Name: "Eagle Rare 10 Year", Brand: "Buffalo Trace"},
		{Name: "Knob Creek 9", Brand: "Knob Creek"},
		{Name: "Lagavulin 16", Brand: "Lagavulin"},
		{Name: "Redbreast 12", Brand: "Redbreast"},
		{Name: "Hibiki Harmony", Brand: "Suntory"},
	}
	res, err := p.ProcessChunked(context.Background(), items, 2, time.Millisecond, testOptions())
	require.NoError(t, err)
	assert.Equal(t, 5, res.TotalProcessed)
	assert.Len(t, res.Successful, 5)
	assert.EqualValues(t, 5, ex.calls.Load())

	final := p.Progress()
	assert.Equal(t, 5, final.Total)
	assert.Equal(t, 5, final.Completed)
	assert.Equal(t, 5, final.Successful)
}

func TestProcessChunked_ProgressSpansChunks(t *testing.T) {
	t.Parallel()

	ex := &fakeExtractor{fn: func(_ context.Context, name, brand string) (*model.Spirit, error) {
		if name == "Unknown Bottle" {
			return nil, extract.ErrNoResults
		}
		return fullSpirit(name, brand), nil
	}}
	p := newTestProcessor(t, ex, store.NewMemory())

	var snaps []model.BatchProgress
	opts := testOptions()
	opts.Concurrency = 1
	opts.OnProgress = func(bp model.BatchProgress) { snaps = append(snaps, bp) }

	items := []model.WorkItem{
		{Name: "Eagle Rare 10 Year", Brand: "Buffalo Trace"},
		{Name: "Unknown Bottle"},
		{Name: "Lagavulin 16", Brand: "Lagavulin"},
		{Name: "Redbreast 12", Brand: "Redbreast"},
		{Name: "Hibiki Harmony", Brand: "Suntory"},
	}
	_, err := p.ProcessChunked(context.Background(), items, 2, 0, opts)
	require.NoError(t, err)

	require.Len(t, snaps, 5)
	for i, bp := range snaps {
		assert.Equal(t, 5, bp.Total, "snapshot %d", i)
		assert.Equal(t, i+1, bp.Completed, "snapshot %d", i)
	}
	last := snaps[4]
	assert.Equal(t, 4, last.Successful)
	assert.Equal(t, 1, last.Failed)
	assert.Zero(t, last.EstimatedTimeRemaining)
	assert.Equal(t, last, p.Progress())
}

func TestProcessChunked_InvalidChunkSize(t *testing.T) {
	t.Parallel()

	p := newTestProcessor(t, &fakeExtractor{}, store.NewMemory())
	_, err := p.ProcessChunked(context.Background(), nil, 0, 0, testOptions())
	assert.Error(t, err)
}

func TestProcessChunked_CancelledBetweenChunks(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ex := &fakeExtractor{}
	p := newTestProcessor(t, ex, store.NewMemory())
	opts := testOptions()
	opts.OnProgress = func(bp model.BatchProgress) {
		if bp.Completed == 2 {
			cancel()
		}
	}

	items := []model.WorkItem{
		{Name: "Eagle Rare 10 Year", Brand: "Buffalo Trace"},
		{Name: "Knob Creek 9", Brand: "Knob Creek"},
		{Name: "Lagavulin 16", Brand: "Lagavulin"},
	}
	res, err := p.ProcessChunked(ctx, items, 2, time.Hour, opts)
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalProcessed)
	assert.Len(t, res.Successful, 2)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "batch cancelled", res.Failed[0].Error)
}

func TestProcessEnrichment(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	ctx := context.Background()
	sparseID, err := st.Insert(ctx, model.Spirit{Name: "Stagg Jr", Brand: "Buffalo Trace", Type: "Bourbon"})
	require.NoError(t, err)
	_, err = st.Insert(ctx, *fullSpirit("Weller 12", "Weller"))
	require.NoError(t, err)

	ex := &fakeExtractor{fn: func(_ context.Context, name, brand string) (*model.Spirit, error) {
		sp := fullSpirit(name+" Barrel Proof", brand)
		sp.Type = "Rye Whiskey"
		return sp, nil
	}}
	p := newTestProcessor(t, ex, st)

	res, err := p.ProcessEnrichment(ctx, 10, testOptions())
	require.NoError(t, err)
	require.Equal(t, 1, res.TotalProcessed)
	require.Len(t, res.Successful, 1, "an exact match must not be reported as a duplicate")
	assert.Equal(t, sparseID, res.Successful[0].ID)

	got, err := st.Get(ctx, sparseID)
	require.NoError(t, err)
	assert.Equal(t, "Stagg Jr", got.Name, "identity is never overwritten")
	assert.Equal(t, "Bourbon", got.Type, "stored fields are never overwritten")
	require.NotNil(t, got.ABV)
	assert.InDelta(t, 45, *got.ABV, 0.001)
	assert.Equal(t, "A test bottle.", got.Description)
	assert.False(t, got.NeedsEnrichment())
}

func TestProcessEnrichment_MissingRecord(t *testing.T) {
	t.Parallel()

	st := store.NewMemory()
	p := newTestProcessor(t, &fakeExtractor{}, st)

	items := []model.WorkItem{{Name: "Vanished", Metadata: model.Metadata{model.MetaRecordID: "does-not-exist"}}}
	res, err := p.ProcessBatch(context.Background(), items, testOptions())
	require.NoError(t, err)
	require.Len(t, res.Failed, 1)
	assert.Contains(t, res.Failed[0].Error, "not found")
}
