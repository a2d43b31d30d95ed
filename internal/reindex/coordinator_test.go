package reindex

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/arbor/internal/testutil"
)

func TestCoordinator_RejectsSecondJob(t *testing.T) {
	c := NewCoordinator(newPool(2), testutil.QuietLogger())
	release := make(chan struct{})

	first, err := c.Start("full", func(context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, Running, c.State())

	second, err := c.Start("full", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrReindexInProgress)
	assert.Nil(t, second)
	assert.Same(t, first, c.Current())

	close(release)
	require.NoError(t, wait(t, first))
	assert.Eventually(t, func() bool { return c.State() == Idle }, 2*time.Second, 5*time.Millisecond)
	assert.Nil(t, c.Current())

	third, err := c.Start("full", func(context.Context) error { return nil })
	require.NoError(t, err)
	assert.NoError(t, wait(t, third))
}

func TestCoordinator_StopWithoutJobIsANoOp(t *testing.T) {
	c := NewCoordinator(newPool(1), nil)

	done := make(chan struct{})
	go func() {
		c.Stop(time.Hour)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked without a tracked job")
	}
	assert.Equal(t, Idle, c.State())
}

func TestCoordinator_StopWaitsForJob(t *testing.T) {
	c := NewCoordinator(newPool(1), testutil.QuietLogger())
	release := make(chan struct{})
	job, err := c.Start("full", func(context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	time.AfterFunc(20*time.Millisecond, func() { close(release) })
	c.Stop(5 * time.Second)

	assert.NoError(t, job.Err())
	assert.Equal(t, Idle, c.State())
	assert.Nil(t, c.Current())
}

func TestCoordinator_StopCancelsAfterGrace(t *testing.T) {
	c := NewCoordinator(newPool(1), testutil.QuietLogger())
	job, err := c.Start("full", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	require.NoError(t, err)

	c.Stop(10 * time.Millisecond)

	assert.ErrorIs(t, wait(t, job), context.Canceled)
	assert.Equal(t, Idle, c.State())
	assert.Nil(t, c.Current())
}

func TestCoordinator_StaysBusyUntilCancelledJobExits(t *testing.T) {
	c := NewCoordinator(newPool(2), testutil.QuietLogger())
	exit := make(chan struct{})
	job, err := c.Start("full", func(ctx context.Context) error {
		<-ctx.Done()
		<-exit
		return ctx.Err()
	})
	require.NoError(t, err)

	c.Stop(10 * time.Millisecond)
	assert.Equal(t, CancelRequested, c.State())
	assert.Same(t, job, c.Current())

	_, err = c.Start("full", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrReindexInProgress, "a cancelled job that has not exited still holds the slot")

	close(exit)
	assert.ErrorIs(t, wait(t, job), context.Canceled)
	assert.Eventually(t, func() bool { return c.State() == Idle }, 2*time.Second, 5*time.Millisecond)
	assert.Nil(t, c.Current())
}

func TestCoordinator_StopSwallowsJobError(t *testing.T) {
	c := NewCoordinator(newPool(1), testutil.QuietLogger())
	started := make(chan struct{})
	release := make(chan struct{})
	_, err := c.Start("full", func(context.Context) error {
		close(started)
		<-release
		return assert.AnError
	})
	require.NoError(t, err)
	<-started

	time.AfterFunc(10*time.Millisecond, func() { close(release) })
	c.Stop(5 * time.Second)
	assert.Equal(t, Idle, c.State())
}

func TestCoordinator_StartAfterPoolShutdown(t *testing.T) {
	p := newPool(1)
	c := NewCoordinator(p, testutil.QuietLogger())
	p.Shutdown()

	_, err := c.Start("full", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrPoolClosed)
	assert.Equal(t, Idle, c.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "running", Running.String())
	assert.Equal(t, "cancel_requested", CancelRequested.String())
	assert.Equal(t, "unknown", State(9).String())
}
