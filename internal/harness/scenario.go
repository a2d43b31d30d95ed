package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/arbor/internal/graph"
)

// Scenario defines a reindex/query scenario.
type Scenario struct {
	// Name uniquely identifies this scenario.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Fixture is the YAML content loaded into the graph before any step.
	Fixture string `yaml:"fixture"`

	// Documents lists CUE files with node types and named queries.
	Documents []string `yaml:"documents,omitempty"`

	// Steps run in order against one repository manager.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and index state.
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scenario action; exactly one field is set.
type Step struct {
	Reindex *ReindexStep `yaml:"reindex,omitempty"`
	Query   *QueryStep   `yaml:"query,omitempty"`
	Remove  *NodeRef     `yaml:"remove,omitempty"`
}

// ReindexStep selects a crawl. With no workspace it is a full reindex.
type ReindexStep struct {
	Workspace     string `yaml:"workspace,omitempty"`
	Path          string `yaml:"path,omitempty"`
	Depth         int    `yaml:"depth,omitempty"`
	System        bool   `yaml:"system,omitempty"`
	IncludeSystem bool   `yaml:"includeSystem,omitempty"`
}

// QueryStep runs a named query.
type QueryStep struct {
	Name      string         `yaml:"name"`
	Variables map[string]any `yaml:"variables,omitempty"`
	Expect    *QueryExpect   `yaml:"expect,omitempty"`
}

// QueryExpect checks one query result. Unset fields are not checked.
type QueryExpect struct {
	Rows    *int       `yaml:"rows,omitempty"`
	Columns []string   `yaml:"columns,omitempty"`
	Values  [][]string `yaml:"values,omitempty"`
}

// NodeRef names a node by workspace and path.
type NodeRef struct {
	Workspace string `yaml:"workspace"`
	Path      string `yaml:"path"`
}

// Assertion validates the trace or the final index.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Workspace scopes indexed / not_indexed.
	Workspace string `yaml:"workspace,omitempty"`

	// Paths are checked by indexed / not_indexed, and ordered by
	// trace_order as "workspace:path".
	Paths []string `yaml:"paths,omitempty"`

	// Query names the query for query_rows.
	Query string `yaml:"query,omitempty"`

	// Count is the expected number for index_count and query_rows.
	Count int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertIndexed    = "indexed"
	AssertNotIndexed = "not_indexed"
	AssertIndexCount = "index_count"
	AssertTraceOrder = "trace_order"
	AssertQueryRows  = "query_rows"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// Fixture and document paths are resolved against the file's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	scenario.Fixture = resolve(base, scenario.Fixture)
	for i, doc := range scenario.Documents {
		scenario.Documents[i] = resolve(base, doc)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Fixture == "" {
		return fmt.Errorf("fixture is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for _, p := range append([]string{s.Fixture}, s.Documents...) {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			return fmt.Errorf("file not found: %s", p)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}
	for i, a := range s.Assertions {
		if err := validateAssertion(i, a); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(i int, step Step) error {
	set := 0
	for _, ok := range []bool{step.Reindex != nil, step.Query != nil, step.Remove != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of reindex, query, remove is required", i)
	}

	switch {
	case step.Reindex != nil:
		r := step.Reindex
		if r.Path != "" && r.Workspace == "" {
			return fmt.Errorf("steps[%d].reindex: path requires workspace", i)
		}
		if r.Path != "" {
			if _, err := graph.ParsePath(r.Path); err != nil {
				return fmt.Errorf("steps[%d].reindex: %w", i, err)
			}
		}
		if r.Depth < 0 {
			return fmt.Errorf("steps[%d].reindex: depth must be non-negative", i)
		}
	case step.Query != nil:
		if step.Query.Name == "" {
			return fmt.Errorf("steps[%d].query: name is required", i)
		}
	case step.Remove != nil:
		if step.Remove.Workspace == "" || step.Remove.Path == "" {
			return fmt.Errorf("steps[%d].remove: workspace and path are required", i)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertIndexed, AssertNotIndexed:
		if a.Workspace == "" || len(a.Paths) == 0 {
			return fmt.Errorf("assertions[%d]: workspace and paths are required for %s", index, a.Type)
		}
	case AssertTraceOrder:
		if len(a.Paths) == 0 {
			return fmt.Errorf("assertions[%d]: paths list is required for trace_order", index)
		}
	case AssertIndexCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for index_count", index)
		}
	case AssertQueryRows:
		if a.Query == "" {
			return fmt.Errorf("assertions[%d]: query is required for query_rows", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
