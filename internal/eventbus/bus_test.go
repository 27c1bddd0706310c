package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/rjalexa/taskbroker/internal/store"
	"github.com/rjalexa/taskbroker/internal/taskstore"
)

func newTestBus(t *testing.T) (*Bus, *taskstore.TaskStore) {
	t.Helper()
	mr := miniredis.RunT(t)

	cli, err := store.New(context.Background(), store.DefaultConfig(mr.Addr()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })

	ts := taskstore.New(cli)
	return New(cli, ts, nil), ts
}

func TestSubscribeReceivesPublishedEvents(t *testing.T) {
	bus, ts := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, stop, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, ts.Create(ctx, "t1", "echo", "{}", 3))

	select {
	case ev := <-events:
		require.Equal(t, "task_created", ev.Type)
		require.Equal(t, "t1", ev.TaskID)
		require.Equal(t, "PENDING", ev.NewState)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for task_created event")
	}
}

func TestSubscribeDropsMalformedPayload(t *testing.T) {
	bus, _ := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, stop, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	defer stop()

	require.NoError(t, bus.store.Publish(ctx, store.EventChannel, "not json"))
	require.NoError(t, bus.Publish(ctx, Event{Type: "heartbeat", Timestamp: "now"}))

	select {
	case ev := <-events:
		require.Equal(t, "heartbeat", ev.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for heartbeat event past the malformed one")
	}
}

func TestHeartbeatPublishesFullSnapshot(t *testing.T) {
	bus, ts := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, ts.Create(ctx, "t1", "echo", "{}", 3))

	events, stop, err := bus.Subscribe(ctx)
	require.NoError(t, err)
	defer stop()

	// drain the task_created event first
	<-events

	go bus.RunHeartbeat(ctx, 10*time.Millisecond)

	select {
	case ev := <-events:
		require.Equal(t, "heartbeat", ev.Type)
		require.Equal(t, int64(1), ev.QueueDepths.Primary)
		require.Equal(t, int64(1), ev.StateCounts.Pending)
		require.InDelta(t, 0.30, ev.RetryRatio, 0.001)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for heartbeat")
	}
}

func TestAdaptiveRetryRatioThresholds(t *testing.T) {
	require.Equal(t, 0.30, AdaptiveRetryRatio(999, DefaultRetryWarn, DefaultRetryCrit))
	require.Equal(t, 0.20, AdaptiveRetryRatio(1000, DefaultRetryWarn, DefaultRetryCrit))
	require.Equal(t, 0.10, AdaptiveRetryRatio(5000, DefaultRetryWarn, DefaultRetryCrit))
}
