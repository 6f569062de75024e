package itemsource

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/spirits-cli/internal/model"
)

// ReadXLSX parses work items from the sheet at sheetIndex. The first
// non-empty row is the header.
func ReadXLSX(path string, sheetIndex int) ([]model.WorkItem, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	if sheetIndex < 0 || sheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", sheetIndex, len(f.Sheets))
	}
	sheet := f.Sheets[sheetIndex]

	var (
		mapper *rowMapper
		items  []model.WorkItem
	)
	for _, row := range sheet.Rows {
		cells := rowToStrings(row)
		if isBlank(cells) {
			continue
		}
		if mapper == nil {
			if mapper, err = newRowMapper(cells); err != nil {
				return nil, err
			}
			continue
		}
		if it, ok := mapper.item(cells); ok {
			items = append(items, it)
		}
	}
	if mapper == nil {
		return nil, eris.New("itemsource: xlsx sheet is empty")
	}
	return items, nil
}

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if c != "" {
			return false
		}
	}
	return true
}
