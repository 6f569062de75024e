// Package itemsource reads batch work items from CSV, XLSX, JSON and YAML
// files.
package itemsource

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/spirits-cli/internal/model"
)

// Read loads work items from path, dispatching on the file extension.
// Rows or entries with a blank name are skipped.
func Read(ctx context.Context, path string) ([]model.WorkItem, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "itemsource: open csv")
		}
		defer f.Close() //nolint:errcheck
		return ReadCSV(ctx, f)
	case ".xlsx":
		return ReadXLSX(path, 0)
	case ".json":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrap(err, "itemsource: read json")
		}
		return ParseJSON(data)
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, eris.Wrap(err, "itemsource: read yaml")
		}
		return ParseYAML(data)
	default:
		return nil, eris.Errorf("itemsource: unsupported file type %q", ext)
	}
}

// nameColumns and brandColumns are the accepted header spellings.
var (
	nameColumns  = map[string]bool{"name": true, "product": true, "spirit": true, "product_name": true}
	brandColumns = map[string]bool{"brand": true, "brand_name": true, "producer": true}
)

func headerKey(h string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(h)), " ", "_")
}

// rowMapper turns tabular rows into work items using a header row.
type rowMapper struct {
	nameIdx  int
	brandIdx int
	meta     map[int]model.MetadataKey
}

func newRowMapper(header []string) (*rowMapper, error) {
	m := &rowMapper{nameIdx: -1, brandIdx: -1, meta: make(map[int]model.MetadataKey)}
	for i, h := range header {
		key := headerKey(h)
		switch {
		case key == "":
			continue
		case nameColumns[key] && m.nameIdx < 0:
			m.nameIdx = i
		case brandColumns[key] && m.brandIdx < 0:
			m.brandIdx = i
		default:
			m.meta[i] = model.MetadataKey(key)
		}
	}
	if m.nameIdx < 0 {
		return nil, eris.Errorf("itemsource: header has no name column (got %v)", header)
	}
	return m, nil
}

func (m *rowMapper) item(row []string) (model.WorkItem, bool) {
	cell := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	item := model.WorkItem{Name: cell(m.nameIdx), Brand: cell(m.brandIdx)}
	if item.Name == "" {
		return item, false
	}
	for i, key := range m.meta {
		if v := cell(i); v != "" {
			if item.Metadata == nil {
				item.Metadata = make(model.Metadata)
			}
			item.Metadata[key] = v
		}
	}
	return item, true
}

func cleanItems(items []model.WorkItem) []model.WorkItem {
	out := items[:0]
	for _, it := range items {
		it.Name = strings.TrimSpace(it.Name)
		it.Brand = strings.TrimSpace(it.Brand)
		if it.Name == "" {
			continue
		}
		out = append(out, it)
	}
	return out
}
