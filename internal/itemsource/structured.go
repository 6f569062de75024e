package itemsource

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/spirits-cli/internal/model"
)

// document is the object form of a JSON/YAML item file.
type document struct {
	Items []model.WorkItem `json:"items" yaml:"items"`
}

// ParseJSON accepts either a top-level array of items or {"items": [...]}.
func ParseJSON(data []byte) ([]model.WorkItem, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	var items []model.WorkItem
	if trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, eris.Wrap(err, "itemsource: parse json")
		}
	} else {
		var doc document
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, eris.Wrap(err, "itemsource: parse json")
		}
		items = doc.Items
	}
	return cleanItems(items), nil
}

// ParseYAML accepts either a top-level sequence of items or a mapping with an
// items key.
func ParseYAML(data []byte) ([]model.WorkItem, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, eris.Wrap(err, "itemsource: parse yaml")
	}
	if len(node.Content) == 0 {
		return nil, nil
	}

	var items []model.WorkItem
	root := node.Content[0]
	if root.Kind == yaml.SequenceNode {
		if err := root.Decode(&items); err != nil {
			return nil, eris.Wrap(err, "itemsource: decode yaml items")
		}
	} else {
		var doc document
		if err := root.Decode(&doc); err != nil {
			return nil, eris.Wrap(err, "itemsource: decode yaml document")
		}
		items = doc.Items
	}
	return cleanItems(items), nil
}
