package feed

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/ir"
)

// Record operations.
const (
	OpUpdate = "update"
	OpRemove = "remove"
)

// Record is one index change published by a cluster member. Update records
// carry the node's full indexed state; remove records only its identity.
type Record struct {
	Op          string    `json:"op"`
	Workspace   string    `json:"workspace"`
	Key         string    `json:"key"`
	Path        string    `json:"path,omitempty"`
	PrimaryType string    `json:"primaryType,omitempty"`
	Mixins      []string  `json:"mixins,omitempty"`
	Properties  ir.Object `json:"properties,omitempty"`
}

// DecodeRecord parses and checks a JSON record.
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	if err := r.validate(); err != nil {
		return Record{}, err
	}
	if _, _, _, _, err := r.node(); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}

// Encode renders the record as JSON.
func (r Record) Encode() ([]byte, error) {
	if err := r.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(r)
}

func (r Record) validate() error {
	switch r.Op {
	case OpUpdate:
		if r.Path == "" || r.PrimaryType == "" {
			return errors.New("update record needs path and primaryType")
		}
	case OpRemove:
	default:
		return fmt.Errorf("unknown record op %q", r.Op)
	}
	if r.Workspace == "" || r.Key == "" {
		return errors.New("record needs workspace and key")
	}
	return nil
}

// node converts the record to the arguments of an index update.
func (r Record) node() (graph.NodeKey, graph.Path, []graph.Name, map[graph.Name]ir.Value, error) {
	key, err := graph.ParseNodeKey(r.Key)
	if err != nil {
		return graph.NodeKey{}, nil, nil, nil, err
	}
	if r.Op == OpRemove {
		return key, nil, nil, nil, nil
	}
	path, err := graph.ParsePath(r.Path)
	if err != nil {
		return graph.NodeKey{}, nil, nil, nil, err
	}
	mixins := make([]graph.Name, len(r.Mixins))
	for i, m := range r.Mixins {
		mixins[i] = graph.Name(m)
	}
	props := make(map[graph.Name]ir.Value, len(r.Properties))
	for k, v := range r.Properties {
		props[graph.Name(k)] = v
	}
	return key, path, mixins, props, nil
}
