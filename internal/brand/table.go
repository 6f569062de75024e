package brand

import (
	"bytes"
	_ "embed"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed brands.yaml
var defaultTable []byte

// Entry maps one canonical brand name to its known spellings.
type Entry struct {
	Canonical  string   `yaml:"canonical" json:"canonical"`
	Variations []string `yaml:"variations" json:"variations"`
}

// DefaultEntries returns the built-in known-brand table.
func DefaultEntries() ([]Entry, error) {
	return LoadTable(bytes.NewReader(defaultTable))
}

// LoadTable decodes a YAML brand table with a top-level "brands" list.
func LoadTable(r io.Reader) ([]Entry, error) {
	var wrapper struct {
		Brands []Entry `yaml:"brands"`
	}
	if err := yaml.NewDecoder(r).Decode(&wrapper); err != nil {
		if eris.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "brand: parse table")
	}
	for i, e := range wrapper.Brands {
		if e.Canonical == "" {
			return nil, eris.Errorf("brand: table entry %d has no canonical name", i)
		}
	}
	return wrapper.Brands, nil
}

// LoadTableFile reads a YAML brand table from path.
func LoadTableFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "brand: open table %s", path)
	}
	defer f.Close() //nolint:errcheck

	return LoadTable(f)
}
