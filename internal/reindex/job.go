package reindex

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Job is the handle of an asynchronous reindex submitted to a Pool.
//
// A Job is cancelled cooperatively: Cancel cancels the context its crawl
// runs under, and the crawl stops at its next queue pop.
type Job struct {
	id     string
	name   string
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	err error
}

func newJob(name string, cancel context.CancelFunc) *Job {
	return &Job{
		id:     uuid.Must(uuid.NewV7()).String(),
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID returns the job's UUIDv7 identifier.
func (j *Job) ID() string {
	return j.id
}

// Name returns the description given at submission.
func (j *Job) Name() string {
	return j.name
}

// Done is closed when the job finishes, successfully or not.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Err returns the job's result once Done is closed, nil before.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Cancel requests cancellation. Safe to call more than once.
func (j *Job) Cancel() {
	j.cancel()
}

// Wait blocks until the job finishes or ctx ends. It returns the job's
// error, or ctx.Err() if ctx ended first; the job keeps running then.
func (j *Job) Wait(ctx context.Context) error {
	select {
	case <-j.done:
		return j.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (j *Job) finish(err error) {
	j.mu.Lock()
	j.err = err
	j.mu.Unlock()
	j.cancel()
	close(j.done)
}
