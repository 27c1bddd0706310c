package router

import (
	"context"
	"fmt"
	"time"

	"github.com/rjalexa/taskbroker/internal/config"
	"github.com/rjalexa/taskbroker/internal/domain"
	"github.com/rjalexa/taskbroker/internal/store"
	"github.com/rjalexa/taskbroker/internal/taskstore"
)

// nowFunc is overridable in tests; production code always uses time.Now.
var nowFunc = time.Now

// Router implements C9: one HandleFailure call per failed dispatch (§4.9).
type Router struct {
	tasks      *taskstore.TaskStore
	schedules  map[string]config.RetrySchedule
	maxTaskAge time.Duration
}

// New creates a Router.
func New(tasks *taskstore.TaskStore, schedules map[string]config.RetrySchedule, maxTaskAge time.Duration) *Router {
	return &Router{tasks: tasks, schedules: schedules, maxTaskAge: maxTaskAge}
}

// Outcome reports what HandleFailure decided, for logging/metrics.
type Outcome struct {
	Class      domain.ErrorClass
	ToDLQ      bool
	RetryAfter time.Time
}

// HandleFailure implements the decision procedure of §4.9:
//  1. Record the error (C2.record_error).
//  2. Transition ACTIVE→FAILED, so state_history carries the literal FAILED
//     entry every failed attempt leaves behind (§8.4 S2), before deciding
//     where the task goes next.
//  3. DLQ if the class is Permanent, retries are exhausted, or the task is
//     older than max_task_age.
//  4. Otherwise, bump retry_count (unless the class says not to), compute
//     backoff with jitter, and move the task FAILED→SCHEDULED.
func (r *Router) HandleFailure(ctx context.Context, taskID string, class domain.ErrorClass, message string) (Outcome, error) {
	if err := r.tasks.RecordError(ctx, taskID, class, message); err != nil {
		return Outcome{}, fmt.Errorf("record_error: %w", err)
	}

	task, err := r.tasks.Get(ctx, taskID)
	if err != nil {
		return Outcome{}, fmt.Errorf("get task: %w", err)
	}

	if err := r.tasks.Transition(ctx, taskID, taskstore.TransitionOptions{
		From: domain.StateActive,
		To:   domain.StateFailed,
	}); err != nil {
		return Outcome{}, fmt.Errorf("transition to failed: %w", err)
	}

	now := nowFunc().UTC()
	age := now.Sub(task.CreatedAt)

	if !class.IsTransient() || task.RetryCount >= task.MaxRetries || age >= r.maxTaskAge {
		if err := r.tasks.MoveToDLQ(ctx, taskID, domain.StateFailed, nil); err != nil {
			return Outcome{}, fmt.Errorf("move to dlq: %w", err)
		}
		return Outcome{Class: class, ToDLQ: true}, nil
	}

	newRetryCount := task.RetryCount
	attempt := task.RetryCount
	if class.CountsAsRetry() {
		newRetryCount++
	}

	delay := Backoff(r.schedules, class, attempt)
	retryAfter := now.Add(delay)

	patch := map[string]string{
		"retry_count": fmt.Sprintf("%d", newRetryCount),
		"retry_after": retryAfter.Format(time.RFC3339Nano),
	}

	if err := r.tasks.Transition(ctx, taskID, taskstore.TransitionOptions{
		From:  domain.StateFailed,
		To:    domain.StateScheduled,
		Push:  taskstore.QueueTarget{Key: store.ScheduledSetKey, IsZSet: true, ZScore: float64(retryAfter.Unix())},
		Patch: patch,
	}); err != nil {
		return Outcome{}, fmt.Errorf("transition to scheduled: %w", err)
	}

	return Outcome{Class: class, ToDLQ: false, RetryAfter: retryAfter}, nil
}
