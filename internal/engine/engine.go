package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/index"
	"github.com/roach88/arbor/internal/ir"
	"github.com/roach88/arbor/internal/optimizer"
	"github.com/roach88/arbor/internal/plan"
	"github.com/roach88/arbor/internal/queryir"
)

var tracer = otel.Tracer("arbor.engine")

// QueryEngine compiles query commands into optimized plans and runs them
// against the index backend.
//
// A QueryEngine is the (planner, optimizer, index backend) triple the
// repository constructs once and tears down once. It is safe for
// concurrent use; each query gets its own plan context.
//
// The engine owns the index backend: Close closes it.
type QueryEngine struct {
	planner   plan.Planner
	optimizer optimizer.Optimizer
	indexes   index.Indexing
	ids       IDGenerator
	logger    *slog.Logger

	mu     sync.RWMutex
	closed bool
}

// Option configures a QueryEngine.
type Option func(*QueryEngine)

// WithPlanner replaces the canonical planner.
func WithPlanner(p plan.Planner) Option {
	return func(e *QueryEngine) {
		e.planner = p
	}
}

// WithOptimizer replaces the rule-based optimizer.
//
// Use WithOptimizer(optimizer.New(optimizer.WithMetrics(m))) to export
// rule metrics.
func WithOptimizer(o optimizer.Optimizer) Option {
	return func(e *QueryEngine) {
		e.optimizer = o
	}
}

// WithIDGenerator sets the query ID generator.
//
// Default: UUIDv7Generator. Tests use NewFixedGenerator for stable IDs.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *QueryEngine) {
		e.ids = g
	}
}

// WithLogger sets the engine logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *QueryEngine) {
		e.logger = logger
	}
}

// New creates a QueryEngine over indexes.
func New(indexes index.Indexing, opts ...Option) *QueryEngine {
	e := &QueryEngine{
		planner:   plan.NewCanonicalPlanner(),
		optimizer: optimizer.New(),
		indexes:   indexes,
		ids:       UUIDv7Generator{},
		logger:    slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Indexes returns the index backend the engine reads and the crawler writes.
func (e *QueryEngine) Indexes() index.Indexing {
	return e.indexes
}

// Request is one query submission.
type Request struct {
	// Repository resolves the nodes behind index documents. Rows whose node
	// no longer exists are dropped. Nil skips the check.
	Repository graph.RepositoryCache

	// Workspaces scopes the search. The system workspace is always added
	// when Repository is set, since /jcr:system is visible from every
	// workspace.
	Workspaces []string

	// Overrides replaces the repository's cache for individual
	// workspaces, typically with a session's transient view.
	Overrides map[string]graph.WorkspaceCache

	Command   queryir.QueryCommand
	Schemata  *queryir.Schemata
	Hints     plan.Hints
	Variables map[string]ir.Value
}

// Query compiles the command in req and returns a handle that executes it.
//
// Compilation validates the command, builds the canonical plan and runs
// the optimizer. A command that cannot be compiled fails with a QueryError
// whose code is ErrCodeInvalidQuery. Optimizer failures are returned
// wrapped.
func (e *QueryEngine) Query(ctx context.Context, req Request) (*CancellableQuery, error) {
	e.mu.RLock()
	closed := e.closed
	e.mu.RUnlock()
	if closed {
		return nil, errEngineClosed
	}

	id := e.ids.Generate()
	ctx, span := tracer.Start(ctx, "engine.Query", trace.WithAttributes(
		attribute.String("query.id", id),
		attribute.Int("query.workspaces", len(req.Workspaces)),
	))
	defer span.End()

	qc := plan.NewContext(req.Schemata, req.Hints, req.Variables)
	arena, root, err := e.compile(qc, req.Command)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("plan.nodes", arena.Len()))
	span.SetStatus(codes.Ok, "")

	explain := plan.Explain(arena, root)
	fingerprint, err := ir.QueryFingerprint(explain, ir.Object(req.Variables))
	if err != nil {
		e.logger.Debug("query fingerprint unavailable", "query", id, "error", err)
	}
	span.SetAttributes(attribute.String("query.fingerprint", fingerprint))
	if qc.Hints.ShowPlan {
		e.logger.Info("query plan", "query", id, "fingerprint", fingerprint, "plan", explain)
	} else {
		e.logger.Debug("query compiled", "query", id, "fingerprint", fingerprint, "nodes", arena.Len())
	}

	q := newCancellableQuery(id, req, qc, arena, root, explain, e.indexes, e.logger)
	q.fingerprint = fingerprint
	return q, nil
}

// compile runs planner and optimizer, mapping validation failures to
// QueryError.
func (e *QueryEngine) compile(qc *plan.Context, cmd queryir.QueryCommand) (*plan.Arena, plan.NodeID, error) {
	arena, root, err := e.planner.CreatePlan(qc, cmd)
	if err != nil {
		if errors.Is(err, plan.ErrInvalidCommand) {
			return nil, plan.NoNode, NewInvalidQueryError(qc.Problems)
		}
		return nil, plan.NoNode, fmt.Errorf("plan query: %w", err)
	}
	if qc.HasProblems() {
		return nil, plan.NoNode, NewInvalidQueryError(qc.Problems)
	}

	root, err = e.optimizer.Optimize(qc, arena, root)
	if err != nil {
		return nil, plan.NoNode, fmt.Errorf("optimize query: %w", err)
	}
	if qc.HasProblems() {
		return nil, plan.NoNode, NewInvalidQueryError(qc.Problems)
	}
	return arena, root, nil
}

// Close tears the engine down and closes the index backend. Closing twice
// is a no-op.
func (e *QueryEngine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true
	e.logger.Info("query engine stopping")
	if e.indexes == nil {
		return nil
	}
	if err := e.indexes.Close(); err != nil {
		return fmt.Errorf("close index backend: %w", err)
	}
	return nil
}
