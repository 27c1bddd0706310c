package dispatcher

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rjalexa/taskbroker/internal/breaker"
	"github.com/rjalexa/taskbroker/internal/brokererr"
	"github.com/rjalexa/taskbroker/internal/domain"
	"github.com/rjalexa/taskbroker/internal/eventbus"
	"github.com/rjalexa/taskbroker/internal/handler"
	"github.com/rjalexa/taskbroker/internal/provider"
	"github.com/rjalexa/taskbroker/internal/ratelimit"
	"github.com/rjalexa/taskbroker/internal/router"
	"github.com/rjalexa/taskbroker/internal/store"
	"github.com/rjalexa/taskbroker/internal/taskstore"
)

// nowFunc is overridable in tests; production code always uses time.Now.
var nowFunc = time.Now

const (
	defaultConcurrency = 5
	defaultPopTimeout  = 2 * time.Second
	defaultTokenWait   = 30 * time.Second
	defaultSoftLimit   = 600 * time.Second
	defaultHardLimit   = 900 * time.Second
)

// Config wires a Dispatcher to one worker process's collaborators.
type Config struct {
	Tasks    *taskstore.TaskStore
	Store    *store.Client
	Breaker  *breaker.Breaker
	Limiter  *ratelimit.Limiter
	Provider *provider.Cache
	Registry *handler.Registry
	Router   *router.Router
	Bus      *eventbus.Bus // optional; wires reset_all_circuits/open_all_circuits broadcasts

	Concurrency    int
	PopTimeout     time.Duration
	TokenWait      time.Duration
	SoftLimit      time.Duration
	HardLimit      time.Duration
	RetryRatioWarn int64
	RetryRatioCrit int64

	Logger *slog.Logger
}

// Dispatcher runs W concurrent consumer loops against the primary/retry
// queues (§4.7).
type Dispatcher struct {
	cfg    Config
	logger *slog.Logger

	stopOnce  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
	cancelRun context.CancelFunc
	inFlight  atomic.Int64
}

// InFlight reports how many tasks this dispatcher is currently executing.
// Suitable as a liveness.Reporter InFlight callback.
func (d *Dispatcher) InFlight() int {
	return int(d.inFlight.Load())
}

// New creates a Dispatcher, applying §4.7/§6.4 defaults for zero fields.
func New(cfg Config) *Dispatcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.PopTimeout <= 0 {
		cfg.PopTimeout = defaultPopTimeout
	}
	if cfg.TokenWait <= 0 {
		cfg.TokenWait = defaultTokenWait
	}
	if cfg.SoftLimit <= 0 {
		cfg.SoftLimit = defaultSoftLimit
	}
	if cfg.HardLimit <= 0 {
		cfg.HardLimit = defaultHardLimit
	}
	if cfg.RetryRatioWarn <= 0 {
		cfg.RetryRatioWarn = eventbus.DefaultRetryWarn
	}
	if cfg.RetryRatioCrit <= 0 {
		cfg.RetryRatioCrit = eventbus.DefaultRetryCrit
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{cfg: cfg, logger: logger, stopCh: make(chan struct{})}
}

// Start launches Concurrency worker loops. It returns immediately; call
// Stop to drain and shut them down.
func (d *Dispatcher) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	d.cancelRun = cancel

	for i := 0; i < d.cfg.Concurrency; i++ {
		d.wg.Add(1)
		go func(n int) {
			defer d.wg.Done()
			d.loop(runCtx, n)
		}(i)
	}

	if d.cfg.Bus != nil && d.cfg.Breaker != nil {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.watchControl(runCtx)
		}()
	}
}

// watchControl subscribes to the shared event channel and applies
// reset_all_circuits()/open_all_circuits() broadcasts to this process's own
// breaker — ingress has no direct handle to a remote worker's in-memory
// Breaker, so control travels as an ordinary event alongside task lifecycle
// events rather than through a bespoke RPC.
func (d *Dispatcher) watchControl(ctx context.Context) {
	events, cancel, err := d.cfg.Bus.Subscribe(ctx)
	if err != nil {
		d.logger.Warn("dispatcher: control subscribe failed", "error", err)
		return
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Type {
			case eventbus.TypeCircuitResetAll:
				d.cfg.Breaker.Reset(ctx)
			case eventbus.TypeCircuitOpenAll:
				d.cfg.Breaker.ForceOpen(ctx)
			}
		}
	}
}

// Stop signals every loop to stop accepting new pops, waits up to grace
// for in-flight tasks to finish, then forcibly cancels anything left
// (§5 "Shutdown"). Any CAS transition lost this way is recovered by
// requeue_orphaned() on the next start.
func (d *Dispatcher) Stop(grace time.Duration) {
	d.stopOnce.Do(func() { close(d.stopCh) })

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(grace):
		if d.cancelRun != nil {
			d.cancelRun()
		}
		<-done
	}
}

func (d *Dispatcher) loop(ctx context.Context, workerNum int) {
	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		taskID, ok := d.popNext(ctx)
		if !ok {
			continue
		}
		d.process(ctx, taskID)
	}
}

// popNext implements §4.7's adaptive selection: compute retry_ratio from
// the current retry-queue depth, draw u, and prefer whichever queue that
// draw favors, falling back to the other on a miss. BRPOP's multi-key form
// gives the combined blocking pop the spec permits, using key order as the
// preference signal.
func (d *Dispatcher) popNext(ctx context.Context) (string, bool) {
	retryDepth, err := d.cfg.Store.ListLen(ctx, store.RetryQueueKey)
	if err != nil {
		retryDepth = 0
	}
	ratio := eventbus.AdaptiveRetryRatio(retryDepth, d.cfg.RetryRatioWarn, d.cfg.RetryRatioCrit)

	keys := []string{store.PrimaryQueueKey, store.RetryQueueKey}
	if rand.Float64() <= ratio {
		keys = []string{store.RetryQueueKey, store.PrimaryQueueKey}
	}

	_, value, err := d.cfg.Store.PopBlockingRight(ctx, d.cfg.PopTimeout, keys...)
	if err != nil || value == "" {
		return "", false
	}
	return value, true
}

type handlerOutcome struct {
	result string
	herr   *handler.HandlerError
}

// process implements the per-task Execution and Result routing steps of
// §4.7.
func (d *Dispatcher) process(ctx context.Context, taskID string) {
	d.inFlight.Add(1)
	defer d.inFlight.Add(-1)

	if err := d.cfg.Tasks.Transition(ctx, taskID, taskstore.TransitionOptions{
		From: domain.StatePending,
		To:   domain.StateActive,
	}); err != nil {
		if errors.Is(err, brokererr.ErrConflict) {
			d.logger.Warn("dispatcher: CAS conflict on pop, dropping", "task_id", taskID)
			return
		}
		d.logger.Error("dispatcher: transition to active failed", "task_id", taskID, "error", err)
		return
	}

	task, err := d.cfg.Tasks.Get(ctx, taskID)
	if err != nil {
		d.logger.Error("dispatcher: failed to load active task", "task_id", taskID, "error", err)
		return
	}

	if d.cfg.Breaker != nil && d.cfg.Breaker.GateState() == breaker.Open {
		d.fail(ctx, taskID, router.Signal{CircuitOpen: true}, "circuit breaker open")
		return
	}

	if d.cfg.Limiter != nil {
		if err := d.cfg.Limiter.Acquire(ctx, 1, d.cfg.TokenWait); err != nil {
			d.fail(ctx, taskID, router.Signal{}, "rate limit token acquire timed out")
			return
		}
	}

	h, ok := d.cfg.Registry.Get(task.Type)
	if !ok {
		d.fail(ctx, taskID, router.Signal{DependencyMissing: true}, "no handler registered for task_type "+task.Type)
		return
	}

	outcome, timedOut := d.invoke(ctx, h, taskID, task.Payload)
	if timedOut {
		d.fail(ctx, taskID, router.Signal{Timeout: true}, "hard deadline exceeded")
		return
	}

	if outcome.herr != nil {
		d.fail(ctx, taskID, router.Signal{HandlerErr: outcome.herr}, outcome.herr.Message)
		return
	}

	d.succeed(ctx, taskID, outcome.result)
}

// invoke runs the handler with a soft deadline that cooperatively cancels
// its context, and a hard deadline that abandons waiting for it entirely
// (§4.7 step 6, §5 "Cancellation & timeouts").
func (d *Dispatcher) invoke(ctx context.Context, h handler.Handler, taskID, payload string) (handlerOutcome, bool) {
	taskCtx, cancelTask := context.WithCancel(ctx)
	defer cancelTask()

	softTimer := time.AfterFunc(d.cfg.SoftLimit, cancelTask)
	defer softTimer.Stop()

	cc := handler.NewCallContext(taskCtx, d.logger, d.cfg.Breaker, d.cfg.Limiter, 1)

	resultCh := make(chan handlerOutcome, 1)
	go func() {
		result, herr := h(taskID, payload, cc)
		resultCh <- handlerOutcome{result: result, herr: herr}
	}()

	select {
	case out := <-resultCh:
		return out, false
	case <-time.After(d.cfg.HardLimit):
		cancelTask()
		return handlerOutcome{}, true
	}
}

func (d *Dispatcher) succeed(ctx context.Context, taskID, result string) {
	now := nowFunc().UTC()
	if err := d.cfg.Tasks.Transition(ctx, taskID, taskstore.TransitionOptions{
		From: domain.StateActive,
		To:   domain.StateCompleted,
		Patch: map[string]string{
			"result":       result,
			"completed_at": now.Format(time.RFC3339Nano),
		},
	}); err != nil {
		d.logger.Error("dispatcher: transition to completed failed", "task_id", taskID, "error", err)
		return
	}
	if d.cfg.Provider != nil {
		if err := d.cfg.Provider.ReportSuccess(ctx); err != nil {
			d.logger.Warn("dispatcher: provider report_success failed", "task_id", taskID, "error", err)
		}
	}
	if d.cfg.Breaker != nil {
		d.cfg.Breaker.RecordSuccess(ctx)
	}
}

// fail classifies sig per §4.9's table, routes the task via the Router,
// and feeds the circuit breaker / provider-state cache as §4.7's result
// routing requires. CircuitOpen failures never reached the provider, so
// they don't count against the breaker a second time.
func (d *Dispatcher) fail(ctx context.Context, taskID string, sig router.Signal, message string) {
	class := router.Classify(sig)

	if d.cfg.Breaker != nil && !sig.CircuitOpen {
		d.cfg.Breaker.RecordFailure(ctx)
	}
	if d.cfg.Provider != nil {
		if kind, ok := providerKindFor(class); ok {
			status := 0
			if sig.HandlerErr != nil {
				status = sig.HandlerErr.StatusCode
			}
			if err := d.cfg.Provider.ReportFailure(ctx, kind, message, status); err != nil {
				d.logger.Warn("dispatcher: provider report_failure failed", "task_id", taskID, "error", err)
			}
		}
	}

	if _, err := d.cfg.Router.HandleFailure(ctx, taskID, class, message); err != nil {
		d.logger.Error("dispatcher: router.HandleFailure failed", "task_id", taskID, "error", err)
	}
}

func providerKindFor(class domain.ErrorClass) (provider.Kind, bool) {
	switch class {
	case domain.ClassTransientRateLimit:
		return provider.KindRateLimited, true
	case domain.ClassTransientUnavailable:
		return provider.KindServiceUnavailable, true
	case domain.ClassTransientCredits:
		return provider.KindCreditsExhausted, true
	case domain.ClassTransientNetwork:
		return provider.KindNetworkError, true
	case domain.ClassTransientTimeout:
		return provider.KindTimeout, true
	default:
		return "", false
	}
}
