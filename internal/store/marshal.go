package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/ir"
)

// marshalProperties converts node properties to canonical JSON TEXT.
// Canonical form keeps rewrites of an unchanged node byte-identical.
func marshalProperties(props map[graph.Name]ir.Value) (string, error) {
	obj := make(ir.Object, len(props))
	for k, v := range props {
		obj[string(k)] = v
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal properties: %w", err)
	}
	return string(data), nil
}

// unmarshalProperties parses properties TEXT. ir.Object decodes numbers
// via json.Number, so int64 values survive unchanged.
func unmarshalProperties(data string) (map[graph.Name]ir.Value, error) {
	props := map[graph.Name]ir.Value{}
	if data == "" || data == "{}" {
		return props, nil
	}
	var obj ir.Object
	if err := obj.UnmarshalJSON([]byte(data)); err != nil {
		return nil, fmt.Errorf("unmarshal properties: %w", err)
	}
	for k, v := range obj {
		props[graph.Name(k)] = v
	}
	return props, nil
}

func marshalMixins(mixins []graph.Name) (string, error) {
	if len(mixins) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(mixins)
	if err != nil {
		return "", fmt.Errorf("marshal mixins: %w", err)
	}
	return string(data), nil
}

func unmarshalMixins(data string) ([]graph.Name, error) {
	if data == "" || data == "[]" {
		return nil, nil
	}
	var mixins []graph.Name
	if err := json.Unmarshal([]byte(data), &mixins); err != nil {
		return nil, fmt.Errorf("unmarshal mixins: %w", err)
	}
	return mixins, nil
}

func formatKey(k graph.NodeKey) string {
	if k.IsZero() {
		return ""
	}
	return k.String()
}

func parseKey(s string) (graph.NodeKey, error) {
	if s == "" {
		return graph.NodeKey{}, nil
	}
	return graph.ParseNodeKey(s)
}
