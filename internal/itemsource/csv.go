package itemsource

import (
	"context"
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spirits-cli/internal/model"
)

// StreamCSV reads CSV rows and sends them to a channel, skipping blank lines
// and lines starting with '#'. Both channels are closed when processing
// completes.
func StreamCSV(ctx context.Context, r io.Reader) (<-chan []string, <-chan error) {
	rowCh := make(chan []string, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(rowCh)
		defer close(errCh)

		reader := csv.NewReader(r)
		reader.Comment = '#'
		reader.LazyQuotes = true
		reader.FieldsPerRecord = -1

		for {
			if ctx.Err() != nil {
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}

			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				errCh <- eris.Wrap(err, "csv: read row")
				return
			}
			for i, field := range record {
				record[i] = strings.TrimSpace(field)
			}

			select {
			case rowCh <- record:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "csv: context cancelled")
				return
			}
		}
	}()

	return rowCh, errCh
}

// ReadCSV parses work items from CSV with a header row naming at least a
// name column.
func ReadCSV(ctx context.Context, r io.Reader) ([]model.WorkItem, error) {
	rowCh, errCh := StreamCSV(ctx, r)

	var (
		mapper *rowMapper
		items  []model.WorkItem
	)
	for row := range rowCh {
		if mapper == nil {
			m, err := newRowMapper(row)
			if err != nil {
				drain(rowCh)
				return nil, err
			}
			mapper = m
			continue
		}
		if it, ok := mapper.item(row); ok {
			items = append(items, it)
		}
	}
	if err := <-errCh; err != nil {
		return nil, eris.Wrap(err, "itemsource: csv")
	}
	if mapper == nil {
		return nil, eris.New("itemsource: csv is empty")
	}
	return items, nil
}

func drain(ch <-chan []string) {
	for range ch { //nolint:revive
	}
}
