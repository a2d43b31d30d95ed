package reindex

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

// DefaultPoolSize is the number of reindex jobs that may run at once.
const DefaultPoolSize = 2

// ErrPoolClosed is returned by Submit after Shutdown.
var ErrPoolClosed = errors.New("reindex pool is shut down")

// Pool runs asynchronous reindex jobs with bounded concurrency.
//
// Submitted jobs start immediately in their own goroutine and wait for one
// of size worker slots. A job cancelled while waiting never runs.
type Pool struct {
	sem     *semaphore.Weighted
	logger  *slog.Logger
	metrics *Metrics

	mu      sync.Mutex
	closed  bool
	jobs    map[*Job]struct{}
	running sync.WaitGroup
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithPoolLogger sets the pool logger. Default: slog.Default().
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}

// WithPoolMetrics enables job metrics.
func WithPoolMetrics(m *Metrics) PoolOption {
	return func(p *Pool) {
		p.metrics = m
	}
}

// NewPool creates a pool with size worker slots. A size below 1 means
// DefaultPoolSize.
func NewPool(size int, opts ...PoolOption) *Pool {
	if size < 1 {
		size = DefaultPoolSize
	}
	p := &Pool{
		sem:    semaphore.NewWeighted(int64(size)),
		logger: slog.Default(),
		jobs:   make(map[*Job]struct{}),
	}

	// Apply options
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Submit schedules fn and returns its job handle without waiting. fn
// receives a context that ends when the job is cancelled.
func (p *Pool) Submit(name string, fn func(ctx context.Context) error) (*Job, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	ctx, cancel := context.WithCancel(context.Background())
	job := newJob(name, cancel)
	p.jobs[job] = struct{}{}
	p.running.Add(1)
	go p.run(ctx, job, fn)

	p.logger.Debug("reindex job submitted", "job", job.ID(), "name", name)
	return job, nil
}

func (p *Pool) run(ctx context.Context, job *Job, fn func(context.Context) error) {
	defer p.running.Done()

	if err := p.sem.Acquire(ctx, 1); err != nil {
		p.done(job, err)
		return
	}
	defer p.sem.Release(1)

	if p.metrics != nil {
		p.metrics.JobsRunning.Inc()
		defer p.metrics.JobsRunning.Dec()
	}
	p.done(job, fn(ctx))
}

func (p *Pool) done(job *Job, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, context.Canceled):
		outcome = "cancelled"
		p.logger.Info("reindex job cancelled", "job", job.ID(), "name", job.Name())
	case err != nil:
		outcome = "failed"
		p.logger.Error("reindex job failed", "job", job.ID(), "name", job.Name(), "error", err)
	default:
		p.logger.Debug("reindex job complete", "job", job.ID(), "name", job.Name())
	}
	if p.metrics != nil {
		p.metrics.JobsFinished.WithLabelValues(outcome).Inc()
	}

	p.mu.Lock()
	delete(p.jobs, job)
	p.mu.Unlock()
	job.finish(err)
}

// Shutdown rejects further submissions. Jobs already submitted keep
// running; use AwaitTermination to wait for them. Calling Shutdown twice
// is a no-op.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
}

// AwaitTermination waits for every submitted job to finish or ctx to end.
func (p *Pool) AwaitTermination(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// CancelAll cancels every job that has not finished and returns how many
// it cancelled. It does not wait for them; use AwaitTermination.
func (p *Pool) CancelAll() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for job := range p.jobs {
		job.Cancel()
	}
	return len(p.jobs)
}

// IsShutdown reports whether Shutdown was called.
func (p *Pool) IsShutdown() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
