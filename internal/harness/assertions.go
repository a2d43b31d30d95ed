package harness

import (
	"context"
	"fmt"
	"strings"

	"github.com/roach88/arbor/internal/index"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for i, event := range e.Trace {
		switch event.Type {
		case EventIndex, EventRemove:
			fmt.Fprintf(&buf, "  [%d] %s %s:%s\n", i+1, event.Type, event.Workspace, event.Path)
		case EventQuery:
			fmt.Fprintf(&buf, "  [%d] query %s (%d rows)\n", i+1, event.Query, len(event.Rows))
		}
	}

	return buf.String()
}

// AssertionContext gives assertions access to the final index.
type AssertionContext struct {
	Index index.Indexing
	Ctx   context.Context
}

// indexedPaths returns the set of paths submitted for workspace.
func indexedPaths(trace []TraceEvent, workspace string) map[string]bool {
	seen := make(map[string]bool)
	for _, e := range trace {
		if e.Type == EventIndex && e.Workspace == workspace {
			seen[e.Path] = true
		}
	}
	return seen
}

// assertIndexed checks that every path was submitted to the index.
func assertIndexed(trace []TraceEvent, a Assertion) error {
	seen := indexedPaths(trace, a.Workspace)
	var missing []string
	for _, p := range a.Paths {
		if !seen[p] {
			missing = append(missing, p)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertIndexed,
		Expected: fmt.Sprintf("%s indexed in %s", strings.Join(a.Paths, ", "), a.Workspace),
		Actual:   fmt.Sprintf("not indexed: %s", strings.Join(missing, ", ")),
		Trace:    trace,
	}
}

// assertNotIndexed checks that no path was submitted to the index.
func assertNotIndexed(trace []TraceEvent, a Assertion) error {
	seen := indexedPaths(trace, a.Workspace)
	var found []string
	for _, p := range a.Paths {
		if seen[p] {
			found = append(found, p)
		}
	}
	if len(found) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     AssertNotIndexed,
		Expected: fmt.Sprintf("%s never indexed in %s", strings.Join(a.Paths, ", "), a.Workspace),
		Actual:   fmt.Sprintf("indexed: %s", strings.Join(found, ", ")),
		Trace:    trace,
	}
}

// assertTraceOrder checks that "workspace:path" entries were indexed in
// the given order. Other submissions may come between them.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, e := range trace {
		if next == len(a.Paths) {
			break
		}
		if e.Type == EventIndex && e.Workspace+":"+e.Path == a.Paths[next] {
			next++
		}
	}
	if next == len(a.Paths) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("indexed in order: %s", strings.Join(a.Paths, " -> ")),
		Actual:   fmt.Sprintf("%s not found after %d matching entries", a.Paths[next], next),
		Trace:    trace,
	}
}

// assertIndexCount checks the number of documents in the final index.
func assertIndexCount(ctx context.Context, idx index.Indexing, a Assertion) error {
	n, err := idx.Count(ctx)
	if err != nil {
		return fmt.Errorf("index_count: %w", err)
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertIndexCount,
		Expected: fmt.Sprintf("%d documents", a.Count),
		Actual:   fmt.Sprintf("%d documents", n),
	}
}

// assertQueryRows checks the row count of the last run of a query.
func assertQueryRows(result *Result, a Assertion) error {
	e, ok := result.lastQuery(a.Query)
	if !ok {
		return &AssertionError{
			Type:     AssertQueryRows,
			Expected: fmt.Sprintf("query %s to have run", a.Query),
			Actual:   "not found in trace",
			Trace:    result.Trace,
		}
	}
	if len(e.Rows) == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertQueryRows,
		Expected: fmt.Sprintf("query %s returns %d rows", a.Query, a.Count),
		Actual:   fmt.Sprintf("%d rows", len(e.Rows)),
		Trace:    result.Trace,
	}
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// The actx parameter provides index access for index_count assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertIndexed:
			err = assertIndexed(result.Trace, assertion)
		case AssertNotIndexed:
			err = assertNotIndexed(result.Trace, assertion)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertQueryRows:
			err = assertQueryRows(result, assertion)
		case AssertIndexCount:
			if actx == nil || actx.Index == nil {
				err = fmt.Errorf("assertion[%d]: index_count requires index context", i)
			} else {
				err = assertIndexCount(actx.Ctx, actx.Index, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
