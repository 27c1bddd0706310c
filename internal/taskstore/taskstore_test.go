package taskstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/rjalexa/taskbroker/internal/domain"
	"github.com/rjalexa/taskbroker/internal/store"
)

func newTestStore(t *testing.T) *TaskStore {
	t.Helper()
	mr := miniredis.RunT(t)
	cli, err := store.New(context.Background(), store.DefaultConfig(mr.Addr()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	return New(cli)
}

func TestCreateAndGet(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, ts.Create(ctx, "t1", "echo", "hello", 3))

	task, err := ts.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "t1", task.ID)
	require.Equal(t, "echo", task.Type)
	require.Equal(t, domain.StatePending, task.State)
	require.Equal(t, 3, task.MaxRetries)
	require.Len(t, task.StateHistory, 1)
}

func TestCreateRejectsDuplicateID(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, ts.Create(ctx, "t1", "echo", "hello", 3))
	err := ts.Create(ctx, "t1", "echo", "hello", 3)
	require.True(t, errors.Is(err, ErrAlreadyExists))
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	ts := newTestStore(t)
	_, err := ts.Get(context.Background(), "missing")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestTransitionCASConflict(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, ts.Create(ctx, "t1", "echo", "hello", 3))

	err := ts.Transition(ctx, "t1", TransitionOptions{From: domain.StateActive, To: domain.StateCompleted})
	require.True(t, errors.Is(err, ErrConflict))
}

func TestTransitionSucceedsAndAppendsHistory(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, ts.Create(ctx, "t1", "echo", "hello", 3))

	require.NoError(t, ts.Transition(ctx, "t1", TransitionOptions{
		From: domain.StatePending, To: domain.StateActive,
	}))

	task, err := ts.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, domain.StateActive, task.State)
	require.Len(t, task.StateHistory, 2)

	counts, err := ts.StateCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), counts[domain.StatePending])
	require.Equal(t, int64(1), counts[domain.StateActive])
}

func TestDeleteRemovesTaskAndIndex(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, ts.Create(ctx, "t1", "echo", "hello", 3))

	require.NoError(t, ts.Delete(ctx, "t1"))
	_, err := ts.Get(ctx, "t1")
	require.True(t, errors.Is(err, ErrNotFound))

	_, total, err := ts.List(ctx, ListFilter{})
	require.NoError(t, err)
	require.Equal(t, 0, total)
}

func TestDeleteMissingReturnsNotFound(t *testing.T) {
	ts := newTestStore(t)
	err := ts.Delete(context.Background(), "missing")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestRecordErrorAppendsHistory(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, ts.Create(ctx, "t1", "echo", "hello", 3))

	require.NoError(t, ts.RecordError(ctx, "t1", domain.ClassTransientNetwork, "dial failed"))

	task, err := ts.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "dial failed", task.LastError)
	require.Len(t, task.ErrorHistory, 1)
}

func TestMoveToDLQCreatesCopy(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, ts.Create(ctx, "t1", "echo", "hello", 0))
	require.NoError(t, ts.Transition(ctx, "t1", TransitionOptions{From: domain.StatePending, To: domain.StateActive}))

	require.NoError(t, ts.MoveToDLQ(ctx, "t1", domain.StateActive, map[string]string{"retry_count": "1"}))

	task, err := ts.Get(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, domain.StateDLQ, task.State)

	dlqCopy, err := ts.GetDLQCopy(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "t1", dlqCopy.ID)
}

func TestDueScheduledOrdersByScoreThenID(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, ts.Create(ctx, "b", "echo", "1", 3))
	require.NoError(t, ts.Create(ctx, "a", "echo", "1", 3))
	require.NoError(t, ts.Transition(ctx, "b", TransitionOptions{
		From: domain.StatePending, To: domain.StateScheduled,
		Push: QueueTarget{Key: store.ScheduledSetKey, IsZSet: true, ZScore: float64(now.Unix())},
	}))
	require.NoError(t, ts.Transition(ctx, "a", TransitionOptions{
		From: domain.StatePending, To: domain.StateScheduled,
		Push: QueueTarget{Key: store.ScheduledSetKey, IsZSet: true, ZScore: float64(now.Unix())},
	}))

	due, err := ts.DueScheduled(ctx, now.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, due)
}

func TestListFiltersByTypeAndPaginates(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, ts.Create(ctx, "e1", "echo", "1", 3))
	require.NoError(t, ts.Create(ctx, "e2", "echo", "2", 3))
	require.NoError(t, ts.Create(ctx, "o1", "other", "3", 3))

	tasks, total, err := ts.List(ctx, ListFilter{TaskType: "echo"})
	require.NoError(t, err)
	require.Equal(t, 2, total)
	require.Len(t, tasks, 2)

	tasks, total, err = ts.List(ctx, ListFilter{Page: 1, PageSize: 1})
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, tasks, 1)
}

func TestRequeueOrphanedPushesMissingPendingTasks(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, ts.Create(ctx, "t1", "echo", "1", 3))

	// Simulate an orphan: remove it from the primary queue without
	// transitioning its recorded state away from PENDING.
	require.NoError(t, ts.store.ListRemove(ctx, store.PrimaryQueueKey, "t1"))

	n, err := ts.RequeueOrphaned(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	depth, err := ts.store.ListLen(ctx, store.RetryQueueKey)
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)
}

func TestRequeueOrphanedSkipsQueuedTasks(t *testing.T) {
	ts := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, ts.Create(ctx, "t1", "echo", "1", 3))

	n, err := ts.RequeueOrphaned(ctx)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}
