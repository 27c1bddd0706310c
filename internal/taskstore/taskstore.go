package taskstore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rjalexa/taskbroker/internal/brokererr"
	"github.com/rjalexa/taskbroker/internal/domain"
	"github.com/rjalexa/taskbroker/internal/store"
)

// nowFunc is overridable in tests; production code always uses time.Now.
var nowFunc = time.Now

// TaskStore implements C2 over a store.Client.
type TaskStore struct {
	store *store.Client
}

// New creates a TaskStore backed by the given store client.
func New(s *store.Client) *TaskStore {
	return &TaskStore{store: s}
}

// Create implements C2.create (§4.2). Fails with AlreadyExists if task_id
// is already present.
func (s *TaskStore) Create(ctx context.Context, taskID, taskType, payload string, maxRetries int) error {
	now := nowFunc().UTC()
	histEntry, err := encodeStateEvent(domain.StatePending, now)
	if err != nil {
		return fmt.Errorf("encode state history: %w", err)
	}

	keys := []string{
		store.TaskKey(taskID), store.PrimaryQueueKey, store.StateCounterKey(domain.StatePending.Lower()),
		store.EventChannel,
		store.PrimaryQueueKey, store.RetryQueueKey, store.ScheduledSetKey, store.DLQListKey,
		store.StateCounterKey(domain.StatePending.Lower()),
		store.StateCounterKey(domain.StateActive.Lower()),
		store.StateCounterKey(domain.StateCompleted.Lower()),
		store.StateCounterKey(domain.StateFailed.Lower()),
		store.StateCounterKey(domain.StateScheduled.Lower()),
		store.StateCounterKey(domain.StateDLQ.Lower()),
	}
	result, err := s.store.RunScript(ctx, createScript, keys,
		taskID, taskType, payload, maxRetries, now.Format(timeLayout), histEntry,
	)
	if err != nil {
		return fmt.Errorf("create script: %w", err)
	}
	if result == "ALREADY_EXISTS" {
		return brokererr.ErrAlreadyExists
	}
	return s.store.SetAdd(ctx, store.AllTasksSetKey, taskID)
}

// QueueTarget describes where a transition pushes the task_id, if anywhere.
type QueueTarget struct {
	Key      string  // '' means no push
	IsZSet   bool    // true for tasks:scheduled
	ZScore   float64 // meaningful only when IsZSet
}

// TransitionOptions parameterizes a single C2.transition call.
type TransitionOptions struct {
	From, To           domain.State
	RemoveFrom         string // queue/zset key to remove task_id from; '' means none
	RemoveFromIsZSet   bool   // true when RemoveFrom is tasks:scheduled (ZREM, not LREM)
	Push               QueueTarget
	Patch              map[string]string // extra hash fields to set alongside state/updated_at
}

// Transition implements C2.transition (§4.2): CAS on state, atomically
// applying patch, queue membership change, counter delta, state_history
// append, and event publish. Returns brokererr.ErrConflict if the observed
// state differs from opts.From.
func (s *TaskStore) Transition(ctx context.Context, taskID string, opts TransitionOptions) error {
	now := nowFunc().UTC()
	histEntry, err := encodeStateEvent(opts.To, now)
	if err != nil {
		return fmt.Errorf("encode state history: %w", err)
	}

	removeFrom := opts.RemoveFrom
	if removeFrom == "" {
		removeFrom = "none"
	}
	pushKey := opts.Push.Key
	if pushKey == "" {
		pushKey = "none"
	}

	keys := []string{
		store.TaskKey(taskID),
		store.StateCounterKey(opts.From.Lower()),
		store.StateCounterKey(opts.To.Lower()),
		removeFrom,
		pushKey,
		store.EventChannel,
		store.PrimaryQueueKey,
		store.RetryQueueKey,
		store.ScheduledSetKey,
		store.DLQListKey,
		store.StateCounterKey(domain.StatePending.Lower()),
		store.StateCounterKey(domain.StateActive.Lower()),
		store.StateCounterKey(domain.StateCompleted.Lower()),
		store.StateCounterKey(domain.StateFailed.Lower()),
		store.StateCounterKey(domain.StateScheduled.Lower()),
		store.StateCounterKey(domain.StateDLQ.Lower()),
	}

	removeValue := ""
	if opts.RemoveFrom != "" {
		removeValue = taskID
	}
	pushValue := ""
	if opts.Push.Key != "" {
		pushValue = taskID
	}
	pushIsZSet := "0"
	if opts.Push.IsZSet {
		pushIsZSet = "1"
	}

	removeIsZSet := "0"
	if opts.RemoveFromIsZSet {
		removeIsZSet = "1"
	}

	args := []any{
		taskID, string(opts.From), string(opts.To), now.Format(timeLayout),
		removeValue, pushValue, pushIsZSet, opts.Push.ZScore,
		histEntry,
		len(opts.Patch),
		removeIsZSet,
	}
	for field, value := range opts.Patch {
		args = append(args, field, value)
	}

	result, err := s.store.RunScript(ctx, transitionScript, keys, args...)
	if err != nil {
		return fmt.Errorf("transition script: %w", err)
	}
	if result == "CONFLICT" {
		return brokererr.ErrConflict
	}
	return nil
}

// RecordError implements C2.record_error (§4.2): append to error_history
// and set last_error/error_type, without touching state.
func (s *TaskStore) RecordError(ctx context.Context, taskID string, class domain.ErrorClass, message string) error {
	now := nowFunc().UTC()
	entry, err := encodeErrorEvent(class, message, now)
	if err != nil {
		return fmt.Errorf("encode error history: %w", err)
	}

	result, err := s.store.RunScript(ctx, recordErrorScript, []string{store.TaskKey(taskID)}, string(class), entry)
	if err != nil {
		return fmt.Errorf("record_error script: %w", err)
	}
	if result == "NOT_FOUND" {
		return brokererr.ErrNotFound
	}

	// last_error is a plain field, not part of the append-only history;
	// set separately so concurrent record_error calls never corrupt it.
	return s.store.HashSet(ctx, store.TaskKey(taskID), map[string]any{"last_error": message})
}

// Delete implements C2.delete (§4.2): removes the record and all queue
// membership atomically, decrementing the relevant counter.
func (s *TaskStore) Delete(ctx context.Context, taskID string) error {
	keys := []string{
		store.TaskKey(taskID),
		store.PrimaryQueueKey,
		store.RetryQueueKey,
		store.ScheduledSetKey,
		store.DLQListKey,
		store.EventChannel,
		store.StateCounterKey(domain.StatePending.Lower()),
		store.StateCounterKey(domain.StateActive.Lower()),
		store.StateCounterKey(domain.StateCompleted.Lower()),
		store.StateCounterKey(domain.StateFailed.Lower()),
		store.StateCounterKey(domain.StateScheduled.Lower()),
		store.StateCounterKey(domain.StateDLQ.Lower()),
	}

	now := nowFunc().UTC()
	result, err := s.store.RunScript(ctx, deleteScript, keys, taskID, now.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("delete script: %w", err)
	}
	if result == "NOT_FOUND" {
		return brokererr.ErrNotFound
	}
	return s.store.SetRemove(ctx, store.AllTasksSetKey, taskID)
}

// Get returns the full task record.
func (s *TaskStore) Get(ctx context.Context, taskID string) (*domain.Task, error) {
	fields, err := s.store.HashGetAll(ctx, store.TaskKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return decodeTask(fields)
}

// GetDLQCopy returns the DLQ copy of a task record written by MoveToDLQ
// (I4), independent of whatever the live task:{id} record currently holds.
func (s *TaskStore) GetDLQCopy(ctx context.Context, taskID string) (*domain.Task, error) {
	fields, err := s.store.HashGetAll(ctx, store.DLQTaskKey(taskID))
	if err != nil {
		return nil, fmt.Errorf("get dlq copy: %w", err)
	}
	return decodeTask(fields)
}

// StateCounts returns the current value of all six state counters.
func (s *TaskStore) StateCounts(ctx context.Context) (map[domain.State]int64, error) {
	states := []domain.State{
		domain.StatePending, domain.StateActive, domain.StateCompleted,
		domain.StateFailed, domain.StateScheduled, domain.StateDLQ,
	}
	counts := make(map[domain.State]int64, len(states))
	for _, st := range states {
		n, err := s.readCounter(ctx, store.StateCounterKey(st.Lower()))
		if err != nil {
			return nil, err
		}
		counts[st] = n
	}
	return counts, nil
}

func (s *TaskStore) readCounter(ctx context.Context, key string) (int64, error) {
	n, err := s.store.Incr(ctx, key, 0)
	if err != nil {
		return 0, fmt.Errorf("read counter %s: %w", key, err)
	}
	return n, nil
}

// MoveToDLQ implements the DLQ half of C9's decision procedure (§4.9):
// CAS from->DLQ, push to the dlq list, then copy the record to
// dlq:task:{id} so I4 holds. The copy is a best-effort follow-up read
// after the CAS succeeds, mirroring RecordError's last_error field —
// the transition itself (the part every invariant cares about) is atomic.
func (s *TaskStore) MoveToDLQ(ctx context.Context, taskID string, from domain.State, patch map[string]string) error {
	if err := s.Transition(ctx, taskID, TransitionOptions{
		From:  from,
		To:    domain.StateDLQ,
		Push:  QueueTarget{Key: store.DLQListKey},
		Patch: patch,
	}); err != nil {
		return err
	}

	fields, err := s.store.HashGetAll(ctx, store.TaskKey(taskID))
	if err != nil {
		return fmt.Errorf("read task for dlq copy: %w", err)
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	if err := s.store.HashSet(ctx, store.DLQTaskKey(taskID), copyFields); err != nil {
		return fmt.Errorf("write dlq copy: %w", err)
	}
	return nil
}

// DLQList returns up to limit tasks currently in the dead-letter queue,
// most-recently-added first (dlq:tasks is pushed to the left, so a prefix
// of the list is already in that order).
func (s *TaskStore) DLQList(ctx context.Context, limit int64) ([]*domain.Task, error) {
	ids, err := s.store.ListRange(ctx, store.DLQListKey)
	if err != nil {
		return nil, fmt.Errorf("read dlq list: %w", err)
	}
	if limit > 0 && int64(len(ids)) > limit {
		ids = ids[:limit]
	}
	tasks := make([]*domain.Task, 0, len(ids))
	for _, id := range ids {
		task, err := s.Get(ctx, id)
		if err != nil {
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// RemoveFromScheduled drops a stale task_id from the scheduled set without
// touching the record or counters — used by the scheduler (C6) when it
// observes a task_id whose state has already moved on from SCHEDULED.
func (s *TaskStore) RemoveFromScheduled(ctx context.Context, taskID string) error {
	return s.store.ZRemove(ctx, store.ScheduledSetKey, taskID)
}

// DueScheduled returns up to count task_ids from the scheduled set with a
// due-time score <= now, ascending by score then lexicographically by
// task_id for ties (P7).
func (s *TaskStore) DueScheduled(ctx context.Context, now time.Time, count int64) ([]string, error) {
	return s.store.ZRangeByScoreMax(ctx, store.ScheduledSetKey, float64(now.Unix()), count)
}

// ListFilter parameterizes List (§4.12 list()).
type ListFilter struct {
	State    *domain.State
	TaskType string
	Page     int // 1-indexed
	PageSize int
	SortDesc bool // by created_at; false = ascending (oldest first)
}

// List implements C12's list(): filter by state/task_type, sort by
// created_at, and paginate. Filtering happens in-process over the full
// tasks:all index rather than via a secondary Redis index — acceptable at
// the scale this broker targets (thousands, not millions, of live tasks);
// a dedicated per-state/per-type index would trade this simplicity for
// scale the spec doesn't call for.
func (s *TaskStore) List(ctx context.Context, filter ListFilter) ([]*domain.Task, int, error) {
	ids, err := s.store.SetMembers(ctx, store.AllTasksSetKey)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks:all: %w", err)
	}

	matched := make([]*domain.Task, 0, len(ids))
	for _, id := range ids {
		task, err := s.Get(ctx, id)
		if err != nil {
			continue // best-effort: a concurrently deleted task just drops out
		}
		if filter.State != nil && task.State != *filter.State {
			continue
		}
		if filter.TaskType != "" && task.Type != filter.TaskType {
			continue
		}
		matched = append(matched, task)
	}

	sort.Slice(matched, func(i, j int) bool {
		if filter.SortDesc {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	total := len(matched)
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 50
	}
	start := (page - 1) * pageSize
	if start >= total {
		return []*domain.Task{}, total, nil
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

// RequeueOrphaned implements C12's requeue_orphaned(): any task recorded as
// PENDING whose id is in neither the primary nor the retry queue (lost to
// a crash between Create/Transition and the queue push, or to an
// ungraceful shutdown) is pushed back onto the retry queue. Returns the
// number of tasks requeued.
func (s *TaskStore) RequeueOrphaned(ctx context.Context) (int, error) {
	ids, err := s.store.SetMembers(ctx, store.AllTasksSetKey)
	if err != nil {
		return 0, fmt.Errorf("list tasks:all: %w", err)
	}

	primary, err := s.store.ListRange(ctx, store.PrimaryQueueKey)
	if err != nil {
		return 0, fmt.Errorf("read primary queue: %w", err)
	}
	retry, err := s.store.ListRange(ctx, store.RetryQueueKey)
	if err != nil {
		return 0, fmt.Errorf("read retry queue: %w", err)
	}
	queued := make(map[string]struct{}, len(primary)+len(retry))
	for _, id := range primary {
		queued[id] = struct{}{}
	}
	for _, id := range retry {
		queued[id] = struct{}{}
	}

	requeued := 0
	for _, id := range ids {
		task, err := s.Get(ctx, id)
		if err != nil || task.State != domain.StatePending {
			continue
		}
		if _, ok := queued[id]; ok {
			continue
		}
		if err := s.Transition(ctx, id, TransitionOptions{
			From: domain.StatePending,
			To:   domain.StatePending,
			Push: QueueTarget{Key: store.RetryQueueKey},
		}); err != nil {
			continue
		}
		requeued++
	}
	return requeued, nil
}

// QueueDepths returns the current depth of all four queues.
func (s *TaskStore) QueueDepths(ctx context.Context) (primary, retry, scheduled, dlq int64, err error) {
	if primary, err = s.store.ListLen(ctx, store.PrimaryQueueKey); err != nil {
		return
	}
	if retry, err = s.store.ListLen(ctx, store.RetryQueueKey); err != nil {
		return
	}
	if dlq, err = s.store.ListLen(ctx, store.DLQListKey); err != nil {
		return
	}
	scheduled, err = s.store.ZCard(ctx, store.ScheduledSetKey)
	return
}
