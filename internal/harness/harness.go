package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/roach88/arbor/internal/compiler"
	"github.com/roach88/arbor/internal/config"
	"github.com/roach88/arbor/internal/engine"
	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/index"
	"github.com/roach88/arbor/internal/ir"
	"github.com/roach88/arbor/internal/queryir"
	"github.com/roach88/arbor/internal/reindex"
	"github.com/roach88/arbor/internal/repository"
	"github.com/roach88/arbor/internal/store"
	"github.com/roach88/arbor/internal/testutil"
)

// Harness holds the per-run state of one scenario.
type Harness struct {
	store      *store.Store
	manager    *repository.Manager
	index      *testutil.RecordingIndex
	schemata   *queryir.Schemata
	queries    map[string]*compiler.Query
	workspaces []string
	logger     *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database with its own recording
// index, so runs are isolated and reproducible.
//
// Execution flow:
// 1. Create fresh in-memory database and load the fixture
// 2. Compile CUE documents into schemata and named queries
// 3. Execute steps, recording index submissions and query results
// 4. Evaluate assertions and return result with pass/fail, trace, and errors
//
// An error is returned when the scenario cannot be set up or a step fails
// outright; failed expectations and assertions are reported in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h, err := setup(ctx, st, scenario)
	if err != nil {
		return nil, err
	}
	defer h.manager.Shutdown(ctx)

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.execute(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	actx := &AssertionContext{Index: h.index, Ctx: ctx}
	for _, errMsg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(errMsg)
	}
	return result, nil
}

func setup(ctx context.Context, st *store.Store, scenario *Scenario) (*Harness, error) {
	f, err := os.Open(scenario.Fixture)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	fixture, err := store.ParseFixture(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	if _, err := st.Load(ctx, fixture); err != nil {
		return nil, fmt.Errorf("failed to load fixture: %w", err)
	}

	h := &Harness{
		store:    st,
		index:    testutil.NewRecordingIndex(),
		schemata: queryir.DefaultSchemata(),
		queries:  make(map[string]*compiler.Query),
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	for _, path := range scenario.Documents {
		doc, err := compiler.CompileFile(path)
		if err != nil {
			return nil, err
		}
		if verrs := doc.Validate(h.schemata); len(verrs) > 0 {
			return nil, fmt.Errorf("%s: %w", path, verrs[0])
		}
		h.schemata = doc.Schemata(h.schemata)
		for _, q := range doc.Queries {
			if _, dup := h.queries[q.Name]; dup {
				return nil, fmt.Errorf("%s: query %q defined twice", path, q.Name)
			}
			h.queries[q.Name] = q
		}
	}

	names, err := st.WorkspaceNames(ctx)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if name != st.SystemWorkspaceName() {
			h.workspaces = append(h.workspaces, name)
		}
	}

	cfg := config.Default()
	cfg.Name = scenario.Name
	cfg.Workspaces = h.workspaces
	h.manager, err = repository.NewManager(st, cfg,
		repository.WithLogger(h.logger),
		repository.WithSchemata(h.schemata),
		repository.WithIndexOpener(func(config.Indexing, *slog.Logger) (index.Indexing, error) {
			return h.index, nil
		}))
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (h *Harness) execute(ctx context.Context, i int, step Step, result *Result) error {
	switch {
	case step.Reindex != nil:
		return h.reindex(ctx, i, step.Reindex, result)
	case step.Query != nil:
		return h.query(ctx, i, step.Query, result)
	case step.Remove != nil:
		return h.remove(ctx, i, step.Remove, result)
	}
	return fmt.Errorf("empty step")
}

func (h *Harness) reindex(ctx context.Context, i int, r *ReindexStep, result *Result) error {
	h.index.Reset()

	var err error
	switch {
	case r.System:
		_, err = h.manager.ReindexSystemContent(ctx, false)
	case r.Path != "":
		path, perr := graph.ParsePath(r.Path)
		if perr != nil {
			return perr
		}
		depth := r.Depth
		if depth == 0 {
			depth = reindex.Unbounded
		}
		err = h.manager.ReindexPath(ctx, r.Workspace, path, depth)
	case r.Workspace != "":
		err = h.manager.ReindexWorkspace(ctx, r.Workspace)
	default:
		_, err = h.manager.ReindexContent(ctx, r.IncludeSystem, false, false)
	}
	if err != nil {
		return fmt.Errorf("reindex: %w", err)
	}

	for _, u := range h.index.Updates() {
		result.Trace = append(result.Trace, TraceEvent{
			Type:      EventIndex,
			Step:      i,
			Workspace: u.Workspace,
			Path:      u.Path,
		})
	}
	return nil
}

func (h *Harness) query(ctx context.Context, i int, q *QueryStep, result *Result) error {
	named, ok := h.queries[q.Name]
	if !ok {
		return fmt.Errorf("unknown query %q", q.Name)
	}

	vars := make(map[string]ir.Value, len(named.Variables)+len(q.Variables))
	for k, v := range named.Variables {
		vars[k] = v
	}
	for k, raw := range q.Variables {
		v, err := ir.FromAny(raw)
		if err != nil {
			return fmt.Errorf("variable %q: %w", k, err)
		}
		vars[k] = v
	}

	workspaces := named.Workspaces
	if len(workspaces) == 0 {
		workspaces = h.workspaces
	}

	cq, err := h.manager.Query(ctx, engine.Request{
		Repository: h.store,
		Workspaces: workspaces,
		Command:    named.Command,
		Schemata:   h.schemata,
		Variables:  vars,
	})
	if err != nil {
		return fmt.Errorf("query %q: %w", q.Name, err)
	}
	res, err := cq.Execute(ctx)
	if err != nil {
		return fmt.Errorf("query %q: %w", q.Name, err)
	}

	event := TraceEvent{
		Type:    EventQuery,
		Step:    i,
		Query:   q.Name,
		Columns: res.ColumnNames(),
		Rows:    formatRows(res),
	}
	result.Trace = append(result.Trace, event)

	if q.Expect != nil {
		for _, msg := range checkExpect(q.Name, q.Expect, event) {
			result.AddError(msg)
		}
	}
	return nil
}

func (h *Harness) remove(ctx context.Context, i int, ref *NodeRef, result *Result) error {
	path, err := graph.ParsePath(ref.Path)
	if err != nil {
		return err
	}
	cache, err := h.store.WorkspaceCache(ctx, ref.Workspace)
	if err != nil {
		return err
	}
	node, err := graph.Resolve(ctx, cache, path)
	if err != nil {
		return err
	}
	if node == nil {
		return fmt.Errorf("remove: no node at %s in workspace %q", ref.Path, ref.Workspace)
	}
	if err := h.store.Remove(ctx, node.Key); err != nil {
		return fmt.Errorf("remove %s: %w", ref.Path, err)
	}

	result.Trace = append(result.Trace, TraceEvent{
		Type:      EventRemove,
		Step:      i,
		Workspace: ref.Workspace,
		Path:      path.String(),
	})
	return nil
}

// formatRows renders every value with ir.Format.
func formatRows(res *engine.Results) [][]string {
	rows := make([][]string, len(res.Rows))
	for i, row := range res.Rows {
		cells := make([]string, len(row.Values))
		for j, v := range row.Values {
			cells[j] = ir.Format(v)
		}
		rows[i] = cells
	}
	return rows
}

func checkExpect(name string, want *QueryExpect, got TraceEvent) []string {
	var errs []string
	if want.Rows != nil && *want.Rows != len(got.Rows) {
		errs = append(errs, fmt.Sprintf("query %s: expected %d rows, got %d", name, *want.Rows, len(got.Rows)))
	}
	if want.Columns != nil && !slices.Equal(want.Columns, got.Columns) {
		errs = append(errs, fmt.Sprintf("query %s: expected columns %v, got %v", name, want.Columns, got.Columns))
	}
	if want.Values != nil && !slices.EqualFunc(want.Values, got.Rows, slices.Equal[[]string]) {
		errs = append(errs, fmt.Sprintf("query %s: expected values %v, got %v", name, want.Values, got.Rows))
	}
	return errs
}
