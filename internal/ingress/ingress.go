package ingress

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/rjalexa/taskbroker/internal/brokererr"
	"github.com/rjalexa/taskbroker/internal/domain"
	"github.com/rjalexa/taskbroker/internal/eventbus"
	"github.com/rjalexa/taskbroker/internal/handler"
	"github.com/rjalexa/taskbroker/internal/store"
	"github.com/rjalexa/taskbroker/internal/taskstore"
)

// nowFunc is overridable in tests; production code always uses time.Now.
var nowFunc = time.Now

// Config wires an Ingress instance to its collaborators.
type Config struct {
	Tasks      *taskstore.TaskStore
	Bus        *eventbus.Bus      // optional; nil disables reset/open_all_circuits broadcasts
	Registry   *handler.Registry  // optional; nil skips the task_type-has-a-handler check
	MaxRetries int                // default applied to Submit when the caller omits one
	Logger     *slog.Logger
}

// Ingress implements every collaborator-facing operation: submit, get,
// list, retry, delete, requeue_orphaned, queue_status, dlq_list, and the
// two circuit-breaker broadcasts.
type Ingress struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Ingress.
func New(cfg Config) *Ingress {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Ingress{cfg: cfg, logger: logger}
}

// Submit creates a new task and pushes it onto the primary queue. If
// taskID is empty, one is generated. maxRetries of nil uses the
// configured default.
func (ig *Ingress) Submit(ctx context.Context, taskID, taskType, payload string, maxRetries *int) (string, error) {
	if taskType == "" {
		return "", brokererr.New(brokererr.ValidationError, "task_type is required")
	}
	if ig.cfg.Registry != nil {
		if _, ok := ig.cfg.Registry.Get(taskType); !ok {
			return "", brokererr.New(brokererr.DependencyMissing, "no handler registered for task_type "+taskType)
		}
	}
	if taskID == "" {
		taskID = uuid.NewString()
	}
	retries := ig.cfg.MaxRetries
	if maxRetries != nil {
		retries = *maxRetries
	}
	if retries < 0 {
		return "", brokererr.New(brokererr.ValidationError, "max_retries must be >= 0")
	}

	if err := ig.cfg.Tasks.Create(ctx, taskID, taskType, payload, retries); err != nil {
		return "", err
	}
	return taskID, nil
}

// Get returns a task by id.
func (ig *Ingress) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	return ig.cfg.Tasks.Get(ctx, taskID)
}

// ListResult is the paginated response of List.
type ListResult struct {
	Tasks    []*domain.Task
	Total    int
	Page     int
	PageSize int
}

// ListFilter parameterizes List; zero-value Page/PageSize fall back to the
// taskstore's own defaults (page 1, 50 per page).
type ListFilter struct {
	State    *domain.State
	TaskType string
	Page     int
	PageSize int
	SortDesc bool
}

// List returns a filtered, paginated view of every known task.
func (ig *Ingress) List(ctx context.Context, filter ListFilter) (ListResult, error) {
	tasks, total, err := ig.cfg.Tasks.List(ctx, taskstore.ListFilter{
		State:    filter.State,
		TaskType: filter.TaskType,
		Page:     filter.Page,
		PageSize: filter.PageSize,
		SortDesc: filter.SortDesc,
	})
	if err != nil {
		return ListResult{}, err
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	return ListResult{Tasks: tasks, Total: total, Page: page, PageSize: pageSize}, nil
}

// Retry resets a FAILED or DLQ task back to PENDING with retry_count
// cleared, pushing it onto the retry queue. Any other state is a
// validation error — a live or already-succeeded task has nothing to
// retry.
func (ig *Ingress) Retry(ctx context.Context, taskID string) error {
	task, err := ig.cfg.Tasks.Get(ctx, taskID)
	if err != nil {
		return err
	}

	var removeFrom string
	var removeIsZSet bool
	switch task.State {
	case domain.StateFailed:
		// FAILED is transient, not queue-resident.
	case domain.StateDLQ:
		removeFrom = store.DLQListKey
	default:
		return brokererr.New(brokererr.ValidationError, "only FAILED or DLQ tasks can be retried, task is "+string(task.State))
	}

	return ig.cfg.Tasks.Transition(ctx, taskID, taskstore.TransitionOptions{
		From:             task.State,
		To:               domain.StatePending,
		RemoveFrom:       removeFrom,
		RemoveFromIsZSet: removeIsZSet,
		Push:             taskstore.QueueTarget{Key: store.RetryQueueKey},
		Patch:            map[string]string{"retry_count": "0"},
	})
}

// Delete removes a task record and any queue membership.
func (ig *Ingress) Delete(ctx context.Context, taskID string) error {
	return ig.cfg.Tasks.Delete(ctx, taskID)
}

// RequeueOrphaned pushes any PENDING task missing from both queues (lost to
// a crash) back onto the retry queue, returning the count requeued.
func (ig *Ingress) RequeueOrphaned(ctx context.Context) (int, error) {
	return ig.cfg.Tasks.RequeueOrphaned(ctx)
}

// QueueStatusView is the response shape of QueueStatus.
type QueueStatusView struct {
	Depths             eventbus.QueueDepths
	StateCounts        eventbus.StateCounts
	AdaptiveRetryRatio float64
}

// QueueStatus reports current queue depths, per-state task counts, and the
// adaptive retry ratio a dispatcher would currently apply.
func (ig *Ingress) QueueStatus(ctx context.Context) (QueueStatusView, error) {
	primary, retry, scheduled, dlq, err := ig.cfg.Tasks.QueueDepths(ctx)
	if err != nil {
		return QueueStatusView{}, err
	}
	counts, err := ig.cfg.Tasks.StateCounts(ctx)
	if err != nil {
		return QueueStatusView{}, err
	}
	return QueueStatusView{
		Depths: eventbus.QueueDepths{Primary: primary, Retry: retry, Scheduled: scheduled, DLQ: dlq},
		StateCounts: eventbus.StateCounts{
			Pending:   counts[domain.StatePending],
			Active:    counts[domain.StateActive],
			Completed: counts[domain.StateCompleted],
			Failed:    counts[domain.StateFailed],
			Scheduled: counts[domain.StateScheduled],
			DLQ:       counts[domain.StateDLQ],
		},
		AdaptiveRetryRatio: eventbus.AdaptiveRetryRatio(retry, eventbus.DefaultRetryWarn, eventbus.DefaultRetryCrit),
	}, nil
}

// DLQList returns up to limit tasks currently in the dead-letter queue,
// most-recently-added first.
func (ig *Ingress) DLQList(ctx context.Context, limit int64) ([]*domain.Task, error) {
	return ig.cfg.Tasks.DLQList(ctx, limit)
}

// ResetAllCircuits broadcasts a control event that every worker process
// applies to its own in-process breaker, forcing it CLOSED.
func (ig *Ingress) ResetAllCircuits(ctx context.Context) error {
	return ig.broadcast(ctx, eventbus.TypeCircuitResetAll)
}

// OpenAllCircuits broadcasts a control event that every worker process
// applies to its own in-process breaker, forcing it OPEN.
func (ig *Ingress) OpenAllCircuits(ctx context.Context) error {
	return ig.broadcast(ctx, eventbus.TypeCircuitOpenAll)
}

func (ig *Ingress) broadcast(ctx context.Context, evType string) error {
	if ig.cfg.Bus == nil {
		return brokererr.New(brokererr.Internal, "event bus not configured, cannot broadcast control event")
	}
	return ig.cfg.Bus.Publish(ctx, eventbus.Event{
		Type:      evType,
		Timestamp: nowFunc().UTC().Format(time.RFC3339Nano),
	})
}
