package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/index"
	"github.com/roach88/arbor/internal/ir"
	"github.com/roach88/arbor/internal/plan"
	"github.com/roach88/arbor/internal/queryir"
)

// CancellableQuery is a compiled query. Execute may be called more than
// once; each call reads the index afresh. Cancel aborts running and future
// executions.
type CancellableQuery struct {
	id          string
	fingerprint string
	req         Request
	qc          *plan.Context
	arena       *plan.Arena
	root        plan.NodeID
	explain     string
	indexes     index.Indexing
	logger      *slog.Logger

	done   context.Context
	cancel context.CancelFunc
}

func newCancellableQuery(id string, req Request, qc *plan.Context, arena *plan.Arena, root plan.NodeID,
	explain string, indexes index.Indexing, logger *slog.Logger) *CancellableQuery {

	done, cancel := context.WithCancel(context.Background())
	return &CancellableQuery{
		id:      id,
		req:     req,
		qc:      qc,
		arena:   arena,
		root:    root,
		explain: explain,
		indexes: indexes,
		logger:  logger,
		done:    done,
		cancel:  cancel,
	}
}

// ID returns the query identifier used in logs and spans.
func (q *CancellableQuery) ID() string {
	return q.id
}

// Fingerprint identifies the optimized plan together with its variable
// bindings. Compiling the same command with the same variables yields the
// same fingerprint; IDs differ per compilation.
func (q *CancellableQuery) Fingerprint() string {
	return q.fingerprint
}

// Explain returns the optimized plan, one node per line.
func (q *CancellableQuery) Explain() string {
	return q.explain
}

// Hints returns the hints the planner settled on.
func (q *CancellableQuery) Hints() plan.Hints {
	return q.qc.Hints
}

// Cancel stops the query. Safe to call more than once and from any goroutine.
func (q *CancellableQuery) Cancel() {
	q.cancel()
}

// Execute evaluates the plan and returns the result rows. It fails with
// context.Canceled when Cancel was called or ctx ended.
func (q *CancellableQuery) Execute(ctx context.Context) (*Results, error) {
	// AfterFunc fires on its own goroutine, so a prior Cancel must be
	// checked before any work starts.
	if err := q.done.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.id, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.id, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(q.done, cancel)
	defer stop()

	ctx, span := tracer.Start(ctx, "engine.Execute")
	defer span.End()

	start := time.Now()
	x := newExecutor(q.req, q.qc, q.arena, q.indexes)
	results, err := x.run(ctx, q.root)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("query %s: %w", q.id, err)
	}

	q.logger.Debug("query executed",
		"query", q.id,
		"rows", len(results.Rows),
		"duration", time.Since(start))
	return results, nil
}

// Results holds the rows of one execution.
type Results struct {
	Columns []queryir.Column
	Rows    []Row
}

// Row is one result tuple. Values line up with Results.Columns; a
// property the node does not have is ir.Null{}. Keys holds the node behind
// each selector, absent for the null side of an outer join.
type Row struct {
	Values []ir.Value
	Keys   map[queryir.SelectorName]graph.NodeKey
}

// Len returns the number of rows.
func (r *Results) Len() int {
	return len(r.Rows)
}

// ColumnNames returns the output name of each column.
func (r *Results) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name()
	}
	return names
}
