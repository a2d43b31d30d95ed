package reindex

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultStopGrace is how long Stop waits for a tracked job before
// cancelling it.
const DefaultStopGrace = time.Minute

// ErrReindexInProgress is returned by Start while a full reindex is tracked.
var ErrReindexInProgress = errors.New("a full reindex is already running")

// State is the coordinator's view of the tracked full reindex.
type State int

const (
	// Idle: no job is tracked.
	Idle State = iota
	// Running: a job is tracked and may still be running.
	Running
	// CancelRequested: Stop is waiting on, or has cancelled, the tracked job.
	CancelRequested
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case CancelRequested:
		return "cancel_requested"
	}
	return "unknown"
}

// Coordinator tracks at most one asynchronous full-repository reindex.
//
// States and transitions:
//
//	Idle --Start--> Running --job finishes--> Idle
//	Running --Stop--> CancelRequested --job exits--> Idle
//
// Start outside Idle fails with ErrReindexInProgress and leaves the
// tracked job alone. The mutex guards only the state word; it is never
// held while waiting on a job.
type Coordinator struct {
	pool   *Pool
	logger *slog.Logger

	mu    sync.Mutex
	state State
	job   *Job
}

// NewCoordinator creates a coordinator that submits to pool.
func NewCoordinator(pool *Pool, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{pool: pool, logger: logger}
}

// Start submits fn as the tracked full reindex.
func (c *Coordinator) Start(name string, fn func(ctx context.Context) error) (*Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Idle {
		return nil, ErrReindexInProgress
	}
	job, err := c.pool.Submit(name, fn)
	if err != nil {
		return nil, err
	}
	c.state = Running
	c.job = job
	go c.release(job)
	return job, nil
}

// release returns the coordinator to Idle when job finishes, unless
// another job is tracked by then.
func (c *Coordinator) release(job *Job) {
	<-job.Done()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.job == job {
		c.state = Idle
		c.job = nil
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Current returns the tracked job, or nil.
func (c *Coordinator) Current() *Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.job
}

// Stop waits up to grace for the tracked job to finish, then cancels it
// and waits up to grace again for the job to exit. Errors while waiting
// are logged and swallowed. With no tracked job Stop returns at once.
//
// The coordinator is Idle only once the job has exited. A job still
// running after the second wait leaves the coordinator in
// CancelRequested until it does, so a following Start cannot overlap it.
func (c *Coordinator) Stop(grace time.Duration) {
	c.mu.Lock()
	job := c.job
	if job == nil || c.state == CancelRequested {
		c.mu.Unlock()
		return
	}
	c.state = CancelRequested
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	err := job.Wait(ctx)
	switch {
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() != nil:
		c.logger.Debug("reindex job did not finish within grace period, cancelling",
			"job", job.ID(),
			"grace", grace)
		job.Cancel()
		c.awaitExit(job, grace)
	case err != nil:
		c.logger.Debug("reindex job ended with error while stopping",
			"job", job.ID(),
			"error", err)
	}

	select {
	case <-job.Done():
		c.mu.Lock()
		if c.job == job {
			c.job = nil
			c.state = Idle
		}
		c.mu.Unlock()
	default:
	}
}

// awaitExit waits up to grace for a cancelled job to exit.
func (c *Coordinator) awaitExit(job *Job, grace time.Duration) {
	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-job.Done():
	case <-timer.C:
		c.logger.Warn("reindex job still running after cancellation",
			"job", job.ID(),
			"grace", grace)
	}
}
