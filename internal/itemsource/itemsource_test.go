package itemsource

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/spirits-cli/internal/model"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// createTestXLSX builds a single-sheet workbook from rows.
func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Items")
	require.NoError(t, err)
	for _, r := range rows {
		row := sheet.AddRow()
		for _, v := range r {
			row.AddCell().SetString(v)
		}
	}
	path := filepath.Join(t.TempDir(), "items.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestReadCSV(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		"Name,Brand,Category,record_id,Notes",
		"# comment line",
		"Eagle Rare 10,Buffalo Trace,Bourbon,,from shelf",
		"  ,Nobody,,,",
		"Old Scout,\"Smooth Ambler\",,abc-123,",
	}, "\n")

	items, err := ReadCSV(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, items, 2)

	assert.Equal(t, "Eagle Rare 10", items[0].Name)
	assert.Equal(t, "Buffalo Trace", items[0].Brand)
	assert.Equal(t, "Bourbon", items[0].Metadata.Get(model.MetaCategory))
	assert.Equal(t, "from shelf", items[0].Metadata.Get("notes"))
	assert.Empty(t, items[0].RecordID())

	assert.Equal(t, "Smooth Ambler", items[1].Brand)
	assert.Equal(t, "abc-123", items[1].RecordID())
}

func TestReadCSV_MissingNameColumn(t *testing.T) {
	t.Parallel()

	_, err := ReadCSV(context.Background(), strings.NewReader("brand,category\nX,Y\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no name column")
}

func TestReadCSV_Empty(t *testing.T) {
	t.Parallel()

	_, err := ReadCSV(context.Background(), strings.NewReader(""))
	assert.Error(t, err)
}

func TestReadCSV_ContextCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadCSV(ctx, strings.NewReader("name\nA\nB\n"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReadXLSX(t *testing.T) {
	t.Parallel()

	path := createTestXLSX(t, [][]string{
		{"Product", "Brand Name", "Type"},
		{"Blanton's Original", "Buffalo Trace", "bourbon"},
		{"", "", ""},
		{"Lagavulin 16", "Lagavulin", "scotch"},
	})

	items, err := Read(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Blanton's Original", items[0].Name)
	assert.Equal(t, "Buffalo Trace", items[0].Brand)
	assert.Equal(t, "scotch", items[1].Metadata.Get(model.MetaType))
}

func TestReadXLSX_BadSheetIndex(t *testing.T) {
	t.Parallel()

	path := createTestXLSX(t, [][]string{{"name"}, {"A"}})
	_, err := ReadXLSX(path, 3)
	assert.Error(t, err)
}

func TestRead_JSON(t *testing.T) {
	t.Parallel()

	arr := writeFile(t, "items.json", `[
		{"name": "Weller 12", "brand": "Weller"},
		{"name": "  ", "brand": "skip"},
		{"name": "Stagg Jr", "metadata": {"record_id": "r1"}}
	]`)
	items, err := Read(context.Background(), arr)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Weller", items[0].Brand)
	assert.Equal(t, "r1", items[1].RecordID())

	obj := writeFile(t, "doc.json", `{"items": [{"name": "Ardbeg 10", "brand": "Ardbeg"}]}`)
	items, err = Read(context.Background(), obj)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Ardbeg 10", items[0].Name)
}

func TestRead_YAML(t *testing.T) {
	t.Parallel()

	seq := writeFile(t, "items.yaml", `
- name: Four Roses Single Barrel
  brand: Four Roses
  metadata:
    category: Bourbon
- name: Redbreast 12
`)
	items, err := Read(context.Background(), seq)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Bourbon", items[0].Metadata.Get(model.MetaCategory))
	assert.Empty(t, items[1].Brand)

	doc := writeFile(t, "items.yml", "items:\n  - name: Hibiki Harmony\n    brand: Suntory\n")
	items, err = Read(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "Suntory", items[0].Brand)
}

func TestRead_Errors(t *testing.T) {
	t.Parallel()

	_, err := Read(context.Background(), writeFile(t, "items.txt", "x"))
	assert.Error(t, err)

	_, err = Read(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)

	_, err = Read(context.Background(), writeFile(t, "bad.json", "{not json"))
	assert.Error(t, err)
}
