package store

import (
	"context"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/ir"
)

// Fixture is a YAML description of workspace content:
//
//	workspaces:
//	  default:
//	    - name: posts
//	      type: nt:folder
//	      children:
//	        - name: alpha
//	          type: blog:post
//	          mixins: [mix:title]
//	          properties: {title: Alpha, rank: 3}
//
// Workspaces are created in name order; children keep document order.
type Fixture struct {
	Workspaces map[string][]FixtureNode `yaml:"workspaces"`
}

// FixtureNode is one node of a Fixture.
type FixtureNode struct {
	Name       string         `yaml:"name"`
	Type       string         `yaml:"type"`
	Mixins     []string       `yaml:"mixins"`
	Properties map[string]any `yaml:"properties"`
	Children   []FixtureNode  `yaml:"children"`
}

// ParseFixture decodes a YAML fixture. Unknown fields are rejected.
func ParseFixture(r io.Reader) (*Fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var f Fixture
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return &f, nil
}

// Load adds the fixture's content to the store and returns the number of
// nodes created. Existing workspaces are extended, not replaced.
func (s *Store) Load(ctx context.Context, f *Fixture) (int, error) {
	names := make([]string, 0, len(f.Workspaces))
	for name := range f.Workspaces {
		names = append(names, name)
	}
	sort.Strings(names)

	created := 0
	for _, name := range names {
		root, err := s.CreateWorkspace(ctx, name)
		if err != nil {
			return created, err
		}
		n, err := s.loadChildren(ctx, root, f.Workspaces[name])
		created += n
		if err != nil {
			return created, fmt.Errorf("workspace %q: %w", name, err)
		}
	}
	return created, nil
}

func (s *Store) loadChildren(ctx context.Context, parent graph.NodeKey, nodes []FixtureNode) (int, error) {
	created := 0
	for _, fn := range nodes {
		if fn.Name == "" {
			return created, fmt.Errorf("fixture node under %s has no name", parent)
		}
		primaryType := fn.Type
		if primaryType == "" {
			primaryType = "nt:unstructured"
		}
		props, err := fixtureProperties(fn.Properties)
		if err != nil {
			return created, fmt.Errorf("node %q: %w", fn.Name, err)
		}
		mixins := make([]graph.Name, len(fn.Mixins))
		for i, m := range fn.Mixins {
			mixins[i] = graph.Name(m)
		}

		key, err := s.AddNode(ctx, parent, graph.Name(fn.Name), graph.Name(primaryType), props, mixins...)
		if err != nil {
			return created, err
		}
		created++

		n, err := s.loadChildren(ctx, key, fn.Children)
		created += n
		if err != nil {
			return created, err
		}
	}
	return created, nil
}

func fixtureProperties(raw map[string]any) (map[graph.Name]ir.Value, error) {
	props := make(map[graph.Name]ir.Value, len(raw))
	for k, v := range raw {
		val, err := ir.FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("property %q: %w", k, err)
		}
		props[graph.Name(k)] = val
	}
	return props, nil
}
