package dispatcher

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/rjalexa/taskbroker/internal/breaker"
	"github.com/rjalexa/taskbroker/internal/config"
	"github.com/rjalexa/taskbroker/internal/domain"
	"github.com/rjalexa/taskbroker/internal/eventbus"
	"github.com/rjalexa/taskbroker/internal/handler"
	"github.com/rjalexa/taskbroker/internal/provider"
	"github.com/rjalexa/taskbroker/internal/ratelimit"
	"github.com/rjalexa/taskbroker/internal/router"
	"github.com/rjalexa/taskbroker/internal/store"
	"github.com/rjalexa/taskbroker/internal/taskstore"
)

type testHarness struct {
	tasks *taskstore.TaskStore
	disp  *Dispatcher
}

func newHarness(t *testing.T, reg *handler.Registry) *testHarness {
	t.Helper()
	mr := miniredis.RunT(t)
	cli, err := store.New(context.Background(), store.DefaultConfig(mr.Addr()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })

	ts := taskstore.New(cli)
	lim := ratelimit.New(cli)
	require.NoError(t, lim.EnsureBucket(context.Background(), 100, 100))
	brk := breaker.New("w1", breaker.Config{VolumeThreshold: 100, FailureRatio: 0.9, OpenDuration: time.Second, HalfOpenProbes: 1}, cli)
	prov := provider.New(cli, provider.Config{Fresh: time.Minute, CircuitThreshold: 100}, nil)
	rt := router.New(ts, config.DefaultRetrySchedules(), time.Hour)

	disp := New(Config{
		Tasks:      ts,
		Store:      cli,
		Breaker:    brk,
		Limiter:    lim,
		Provider:   prov,
		Registry:   reg,
		Router:     rt,
		PopTimeout: 100 * time.Millisecond,
		TokenWait:  time.Second,
		SoftLimit:  time.Second,
		HardLimit:  2 * time.Second,
	})
	return &testHarness{tasks: ts, disp: disp}
}

func waitForState(t *testing.T, ts *taskstore.TaskStore, taskID string, want domain.State, timeout time.Duration) *domain.Task {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		task, err := ts.Get(context.Background(), taskID)
		require.NoError(t, err)
		if task.State == want {
			return task
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("task %s did not reach state %s in time", taskID, want)
	return nil
}

func TestDispatcherCompletesEchoTask(t *testing.T) {
	reg := handler.NewRegistry()
	reg.Register("echo", handler.Echo)
	h := newHarness(t, reg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, h.tasks.Create(ctx, "t1", "echo", "hello", 3))
	h.disp.Start(ctx)
	defer h.disp.Stop(time.Second)

	task := waitForState(t, h.tasks, "t1", domain.StateCompleted, 2*time.Second)
	require.Equal(t, "hello", task.Result)
}

func TestDispatcherRoutesTransientFailureToScheduled(t *testing.T) {
	reg := handler.NewRegistry()
	reg.Register("flaky", func(taskID, payload string, cc *handler.CallContext) (string, *handler.HandlerError) {
		return "", &handler.HandlerError{Classification: "service_unavailable", Message: "upstream down", StatusCode: 503}
	})
	h := newHarness(t, reg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, h.tasks.Create(ctx, "t2", "flaky", "{}", 3))
	h.disp.Start(ctx)
	defer h.disp.Stop(time.Second)

	task := waitForState(t, h.tasks, "t2", domain.StateScheduled, 2*time.Second)
	require.Equal(t, 1, task.RetryCount)
}

func TestDispatcherAppliesCircuitResetBroadcast(t *testing.T) {
	mr := miniredis.RunT(t)
	cli, err := store.New(context.Background(), store.DefaultConfig(mr.Addr()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })

	ts := taskstore.New(cli)
	brk := breaker.New("w1", breaker.Config{VolumeThreshold: 100, FailureRatio: 0.9, OpenDuration: time.Hour, HalfOpenProbes: 1}, cli)
	bus := eventbus.New(cli, ts, nil)

	disp := New(Config{
		Tasks:   ts,
		Store:   cli,
		Breaker: brk,
		Router:  router.New(ts, config.DefaultRetrySchedules(), time.Hour),
		Bus:     bus,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	disp.Start(ctx)
	defer disp.Stop(time.Second)

	brk.ForceOpen(ctx)
	require.Equal(t, breaker.Open, brk.State())

	require.NoError(t, bus.Publish(ctx, eventbus.Event{Type: eventbus.TypeCircuitResetAll}))

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && brk.State() != breaker.Closed {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, breaker.Closed, brk.State())
}

func TestDispatcherInFlightTracksRunningTasks(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	reg := handler.NewRegistry()
	reg.Register("slow", func(taskID, payload string, cc *handler.CallContext) (string, *handler.HandlerError) {
		started <- struct{}{}
		<-release
		return "done", nil
	})
	h := newHarness(t, reg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, h.tasks.Create(ctx, "t4", "slow", "{}", 3))
	h.disp.Start(ctx)
	defer h.disp.Stop(time.Second)

	<-started
	require.Equal(t, 1, h.disp.InFlight())

	close(release)
	waitForState(t, h.tasks, "t4", domain.StateCompleted, 2*time.Second)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && h.disp.InFlight() != 0 {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 0, h.disp.InFlight())
}

// TestDispatcherRecoversFromOpenBreakerThroughHalfOpenProbe exercises S5
// (§4.4 OPEN→HALF_OPEN→CLOSED) through the dispatcher's own gate: an OPEN
// breaker whose cool-down has elapsed must let a task through as a probe,
// not requeue it as CircuitOpen forever.
func TestDispatcherRecoversFromOpenBreakerThroughHalfOpenProbe(t *testing.T) {
	reg := handler.NewRegistry()
	reg.Register("probe", func(taskID, payload string, cc *handler.CallContext) (string, *handler.HandlerError) {
		if err := cc.CallProvider(time.Second, func(ctx context.Context) error { return nil }); err != nil {
			return "", &handler.HandlerError{Classification: "circuit_open", Message: err.Error(), Retryable: true}
		}
		return "ok", nil
	})

	mr := miniredis.RunT(t)
	cli, err := store.New(context.Background(), store.DefaultConfig(mr.Addr()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })

	ts := taskstore.New(cli)
	brk := breaker.New("w1", breaker.Config{VolumeThreshold: 100, FailureRatio: 0.9, OpenDuration: 30 * time.Millisecond, HalfOpenProbes: 1}, cli)
	rt := router.New(ts, config.DefaultRetrySchedules(), time.Hour)

	disp := New(Config{
		Tasks:      ts,
		Store:      cli,
		Breaker:    brk,
		Registry:   reg,
		Router:     rt,
		PopTimeout: 100 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	brk.ForceOpen(ctx)
	require.Equal(t, breaker.Open, brk.State())
	time.Sleep(50 * time.Millisecond) // let open_duration elapse before any task is popped

	require.NoError(t, ts.Create(ctx, "t5", "probe", "{}", 3))
	disp.Start(ctx)
	defer disp.Stop(time.Second)

	waitForState(t, ts, "t5", domain.StateCompleted, 2*time.Second)
	require.Equal(t, breaker.Closed, brk.State())
}

func TestDispatcherDependencyMissingGoesToDLQ(t *testing.T) {
	reg := handler.NewRegistry()
	h := newHarness(t, reg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, h.tasks.Create(ctx, "t3", "unregistered_type", "{}", 3))
	h.disp.Start(ctx)
	defer h.disp.Stop(time.Second)

	waitForState(t, h.tasks, "t3", domain.StateDLQ, 2*time.Second)
}
