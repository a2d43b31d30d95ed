package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/arbor/internal/config"
	"github.com/roach88/arbor/internal/engine"
	"github.com/roach88/arbor/internal/feed"
	"github.com/roach88/arbor/internal/graph"
	"github.com/roach88/arbor/internal/index"
	"github.com/roach88/arbor/internal/optimizer"
	"github.com/roach88/arbor/internal/queryir"
	"github.com/roach88/arbor/internal/reindex"
)

// ErrInvalidArgument is returned for an empty workspace name, a nil path or
// a depth below 1.
var ErrInvalidArgument = errors.New("invalid argument")

// IndexOpener opens the index backend named by the configuration.
type IndexOpener func(cfg config.Indexing, logger *slog.Logger) (index.Indexing, error)

// PollerFactory creates the consumer behind the remote indexing feed.
type PollerFactory func(cfg config.Feed) (feed.Poller, error)

// running is what the lazy cell publishes: the engine and, for a
// kafka-master backend, the feed bound to its index.
type running struct {
	engine *engine.QueryEngine
	feed   *feed.Listener
}

// Manager owns the query engine of one repository and the reindexing that
// keeps its index in step with the content graph.
//
// The engine is built on first use. Engine reads an atomic pointer and only
// takes the mutex when the cell is empty, so concurrent first calls build
// exactly once. Shutdown empties the cell; the next use builds a fresh
// engine.
//
// The same mutex serializes construction, teardown and StopReindexing.
type Manager struct {
	repo      graph.RepositoryCache
	cfg       *config.Config
	schemata  *queryir.Schemata
	logger    *slog.Logger
	openIndex IndexOpener
	newPoller PollerFactory
	grace     time.Duration

	reindexMetrics   *reindex.Metrics
	optimizerMetrics *optimizer.Metrics
	feedMetrics      *feed.Metrics

	pool        *reindex.Pool
	coordinator *reindex.Coordinator

	cell atomic.Pointer[running]
	mu   sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger for the manager and everything it builds.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// WithSchemata sets the node-type schemata used for indexing and queries.
func WithSchemata(s *queryir.Schemata) Option {
	return func(m *Manager) {
		m.schemata = s
	}
}

// WithRegisterer registers reindex, optimizer and feed metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(m *Manager) {
		m.reindexMetrics = reindex.NewMetrics(reg)
		m.optimizerMetrics = optimizer.NewMetrics(reg)
		m.feedMetrics = feed.NewMetrics(reg)
	}
}

// WithIndexOpener replaces OpenIndex.
func WithIndexOpener(open IndexOpener) Option {
	return func(m *Manager) {
		m.openIndex = open
	}
}

// WithPollerFactory replaces the Kafka consumer used by a kafka-master
// backend.
func WithPollerFactory(f PollerFactory) Option {
	return func(m *Manager) {
		m.newPoller = f
	}
}

// WithStopGrace overrides how long StopReindexing waits before cancelling.
func WithStopGrace(d time.Duration) Option {
	return func(m *Manager) {
		m.grace = d
	}
}

// NewManager creates a manager for repo. A nil cfg means config.Default().
// Nothing is opened until first use.
func NewManager(repo graph.RepositoryCache, cfg *config.Config, opts ...Option) (*Manager, error) {
	if repo == nil {
		return nil, fmt.Errorf("%w: nil repository", ErrInvalidArgument)
	}
	if cfg == nil {
		cfg = config.Default()
	}
	grace, err := cfg.Reindex.Grace()
	if err != nil {
		return nil, err
	}

	m := &Manager{
		repo:      repo,
		cfg:       cfg,
		schemata:  queryir.DefaultSchemata(),
		logger:    slog.Default(),
		openIndex: OpenIndex,
		newPoller: func(cfg config.Feed) (feed.Poller, error) { return feed.NewConsumer(cfg) },
		grace:     grace,
	}

	// Apply options
	for _, opt := range opts {
		opt(m)
	}

	m.pool = reindex.NewPool(cfg.Reindex.PoolSize,
		reindex.WithPoolLogger(m.logger),
		reindex.WithPoolMetrics(m.reindexMetrics))
	m.coordinator = reindex.NewCoordinator(m.pool, m.logger)
	return m, nil
}

// OpenIndex is the default IndexOpener. memory is a MemoryIndex; badger is
// a BadgerIndex at the "path" property (or in memory with inMemory=true);
// kafka-master is a BadgerIndex when a path is set, else a MemoryIndex.
func OpenIndex(cfg config.Indexing, logger *slog.Logger) (index.Indexing, error) {
	b := cfg.Backend
	switch b.Type {
	case "", config.BackendMemory:
		return index.NewMemoryIndex(logger), nil
	case config.BackendBadger, config.BackendKafkaMaster:
		switch {
		case b.InMemory():
			bc := index.InMemoryBadgerConfig()
			bc.Logger = logger
			return index.OpenBadger(bc)
		case b.Path() != "":
			bc := index.DefaultBadgerConfig(b.Path())
			bc.Logger = logger
			return index.OpenBadger(bc)
		case b.Type == config.BackendKafkaMaster:
			return index.NewMemoryIndex(logger), nil
		}
		return nil, fmt.Errorf("index backend %s: no path property", b.Type)
	}
	return nil, fmt.Errorf("unknown index backend %q", b.Type)
}

// Engine returns the query engine, building it on first use. A failed
// build leaves the cell empty so the next call tries again.
func (m *Manager) Engine() (*engine.QueryEngine, error) {
	if r := m.cell.Load(); r != nil {
		return r.engine, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if r := m.cell.Load(); r != nil {
		return r.engine, nil
	}
	r, err := m.build()
	if err != nil {
		return nil, err
	}
	m.cell.Store(r)
	return r.engine, nil
}

// build assembles planner, optimizer and index backend. Called with mu held.
func (m *Manager) build() (*running, error) {
	idx, err := m.openIndex(m.cfg.Indexing, m.logger)
	if err != nil {
		return nil, fmt.Errorf("open index backend: %w", err)
	}

	opt := optimizer.New(
		optimizer.WithMaxIterations(m.cfg.Query.MaxIterations),
		optimizer.WithLogger(m.logger),
		optimizer.WithMetrics(m.optimizerMetrics),
	)
	r := &running{
		engine: engine.New(idx, engine.WithOptimizer(opt), engine.WithLogger(m.logger)),
	}

	if m.cfg.Indexing.Backend.Type == config.BackendKafkaMaster {
		if m.cfg.Feed == nil {
			_ = r.engine.Close()
			return nil, errors.New("kafka-master index backend without feed settings")
		}
		poller, err := m.newPoller(*m.cfg.Feed)
		if err != nil {
			_ = r.engine.Close()
			return nil, fmt.Errorf("start index feed: %w", err)
		}
		r.feed = feed.NewListener(poller, idx,
			feed.WithSchemata(m.schemata),
			feed.WithLogger(m.logger),
			feed.WithMetrics(m.feedMetrics))
		r.feed.Start(context.Background())
	}

	m.logger.Info("query engine started", "repository", m.cfg.Name, "index_backend", m.cfg.Indexing.Backend.Type)
	return r, nil
}

// Indexes returns the index backend of the engine, building it if needed.
func (m *Manager) Indexes() (index.Indexing, error) {
	e, err := m.Engine()
	if err != nil {
		return nil, err
	}
	return e.Indexes(), nil
}

// Query compiles a query against this repository. Unset request fields
// default to the manager's repository, schemata and configured hints.
func (m *Manager) Query(ctx context.Context, req engine.Request) (*engine.CancellableQuery, error) {
	e, err := m.Engine()
	if err != nil {
		return nil, err
	}
	if req.Repository == nil {
		req.Repository = m.repo
	}
	if req.Schemata == nil {
		req.Schemata = m.schemata
	}
	req.Hints.QualifyExpandedColumnNames = req.Hints.QualifyExpandedColumnNames || m.cfg.Query.QualifyExpandedColumnNames
	req.Hints.ShowPlan = req.Hints.ShowPlan || m.cfg.Query.ShowPlan
	return e.Query(ctx, req)
}

// Shutdown stops the reindex pool and waits for its jobs until ctx ends.
// Jobs still running then are cancelled and given the stop grace period
// to exit. Only then are the feed stopped and the engine closed. Safe to
// call more than once.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.pool.Shutdown()
	if err := m.pool.AwaitTermination(ctx); err != nil {
		n := m.pool.CancelAll()
		m.logger.Debug("cancelling reindex jobs still running at shutdown", "jobs", n, "error", err)

		wait, cancel := context.WithTimeout(context.Background(), m.grace)
		err = m.pool.AwaitTermination(wait)
		cancel()
		if err != nil {
			m.logger.Warn("reindex jobs did not exit after cancellation", "error", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.cell.Load()
	if r == nil {
		return nil
	}
	m.cell.Store(nil)

	var errs []error
	if r.feed != nil {
		if err := r.feed.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop index feed: %w", err))
		}
	}
	if err := r.engine.Close(); err != nil {
		errs = append(errs, err)
	}
	m.logger.Info("query engine stopped", "repository", m.cfg.Name)
	return errors.Join(errs...)
}

// StopReindexing waits up to the stop grace period for a tracked full
// reindex, then cancels it. It does nothing when no job is tracked.
func (m *Manager) StopReindexing() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.coordinator.Stop(m.grace)
}

// ReindexState reports the state of the tracked full reindex.
func (m *Manager) ReindexState() reindex.State {
	return m.coordinator.State()
}
