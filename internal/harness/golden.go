package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/arbor/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toIR converts a TraceSnapshot to an ir.Object, since ir.MarshalCanonical
// only handles IR values. Empty fields are omitted.
func (s *TraceSnapshot) toIR() ir.Object {
	trace := make(ir.List, len(s.Trace))
	for i, event := range s.Trace {
		obj := ir.Object{
			"type": ir.String(event.Type),
			"step": ir.Int(int64(event.Step)),
		}
		if event.Workspace != "" {
			obj["workspace"] = ir.String(event.Workspace)
		}
		if event.Path != "" {
			obj["path"] = ir.String(event.Path)
		}
		if event.Query != "" {
			obj["query"] = ir.String(event.Query)
			obj["columns"] = stringList(event.Columns)
			rows := make(ir.List, len(event.Rows))
			for j, row := range event.Rows {
				rows[j] = stringList(row)
			}
			obj["rows"] = rows
		}
		trace[i] = obj
	}

	return ir.Object{
		"scenario_name": ir.String(s.ScenarioName),
		"trace":         trace,
	}
}

func stringList(ss []string) ir.List {
	l := make(ir.List, len(ss))
	for i, s := range ss {
		l[i] = ir.String(s)
	}
	return l
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// SnapshotJSON renders the trace of result as canonical JSON, the golden
// file format.
func SnapshotJSON(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		Trace:        result.Trace,
	}
	return ir.MarshalCanonical(snapshot.toIR())
}

// AssertGolden compares the given result's trace against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := SnapshotJSON(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)

	return nil
}
