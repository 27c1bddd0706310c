package router

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/rjalexa/taskbroker/internal/config"
	"github.com/rjalexa/taskbroker/internal/domain"
	"github.com/rjalexa/taskbroker/internal/store"
	"github.com/rjalexa/taskbroker/internal/taskstore"
)

func newTestRouter(t *testing.T, maxRetries int, maxTaskAge time.Duration) (*Router, *taskstore.TaskStore, string) {
	t.Helper()
	mr := miniredis.RunT(t)

	cli, err := store.New(context.Background(), store.DefaultConfig(mr.Addr()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })

	ts := taskstore.New(cli)
	ctx := context.Background()
	taskID := "t1"
	require.NoError(t, ts.Create(ctx, taskID, "echo", "{}", maxRetries))
	require.NoError(t, ts.Transition(ctx, taskID, taskstore.TransitionOptions{
		From: domain.StatePending, To: domain.StateActive, RemoveFrom: store.PrimaryQueueKey,
	}))

	jitterFunc = func() float64 { return 0 }
	t.Cleanup(func() { jitterFunc = defaultJitter })

	return New(ts, config.DefaultRetrySchedules(), maxTaskAge), ts, taskID
}

var defaultJitter = jitterFunc

func TestHandleFailureSchedulesRetryWithinBudget(t *testing.T) {
	r, ts, taskID := newTestRouter(t, 3, 2*time.Hour)
	ctx := context.Background()

	out, err := r.HandleFailure(ctx, taskID, domain.ClassTransientUnavailable, "boom")
	require.NoError(t, err)
	require.False(t, out.ToDLQ)

	task, err := ts.Get(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, domain.StateScheduled, task.State)
	require.Equal(t, 1, task.RetryCount)
}

func TestHandleFailureAppendsFailedToStateHistory(t *testing.T) {
	r, ts, taskID := newTestRouter(t, 3, 2*time.Hour)
	ctx := context.Background()

	_, err := r.HandleFailure(ctx, taskID, domain.ClassTransientUnavailable, "boom")
	require.NoError(t, err)

	task, err := ts.Get(ctx, taskID)
	require.NoError(t, err)

	states := make([]domain.State, len(task.StateHistory))
	for i, e := range task.StateHistory {
		states[i] = e.State
	}
	require.Equal(t, []domain.State{domain.StatePending, domain.StateActive, domain.StateFailed, domain.StateScheduled}, states)
}

func TestHandleFailureDLQsOnPermanent(t *testing.T) {
	r, ts, taskID := newTestRouter(t, 3, 2*time.Hour)
	ctx := context.Background()

	out, err := r.HandleFailure(ctx, taskID, domain.ClassPermanent, "bad payload")
	require.NoError(t, err)
	require.True(t, out.ToDLQ)

	task, err := ts.Get(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, domain.StateDLQ, task.State)

	dlqCopy, err := ts.GetDLQCopy(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, domain.StateDLQ, dlqCopy.State)
}

func TestHandleFailureDLQsWhenRetriesExhausted(t *testing.T) {
	r, ts, taskID := newTestRouter(t, 0, 2*time.Hour)
	ctx := context.Background()

	out, err := r.HandleFailure(ctx, taskID, domain.ClassTransientNetwork, "timeout")
	require.NoError(t, err)
	require.True(t, out.ToDLQ)
	_ = ts
}

func TestHandleFailureCircuitOpenDoesNotIncrementRetryCount(t *testing.T) {
	r, ts, taskID := newTestRouter(t, 3, 2*time.Hour)
	ctx := context.Background()

	out, err := r.HandleFailure(ctx, taskID, domain.ClassTransientCircuitOpen, "breaker open")
	require.NoError(t, err)
	require.False(t, out.ToDLQ)

	task, err := ts.Get(ctx, taskID)
	require.NoError(t, err)
	require.Equal(t, 0, task.RetryCount)
}
