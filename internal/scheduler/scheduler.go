package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rjalexa/taskbroker/internal/brokererr"
	"github.com/rjalexa/taskbroker/internal/domain"
	"github.com/rjalexa/taskbroker/internal/store"
	"github.com/rjalexa/taskbroker/internal/taskstore"
)

// Scheduler implements C6: every tick, promotes due items from
// tasks:scheduled to the retry queue (§4.6).
type Scheduler struct {
	tasks     *taskstore.TaskStore
	logger    *slog.Logger
	batchSize int
}

// Config configures a Scheduler.
type Config struct {
	Tasks     *taskstore.TaskStore
	Logger    *slog.Logger
	BatchSize int // items read from tasks:scheduled per tick, default 100
}

// New creates a Scheduler.
func New(cfg Config) *Scheduler {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{tasks: cfg.Tasks, logger: logger, batchSize: batchSize}
}

// Tick runs one scheduler pass (§4.6):
//  1. Read the earliest N items from tasks:scheduled with score <= now.
//  2. For each task_id: if still SCHEDULED, CAS to PENDING, remove from the
//     scheduled set, push to the retry queue; if the state already moved on
//     (manual delete/retry raced us), just drop it from the scheduled set.
//
// Promotion order is nondecreasing due-time, ties by task_id (P7) — this
// falls directly out of ZRANGEBYSCORE's default ordering.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := time.Now().UTC()

	due, err := s.tasks.DueScheduled(ctx, now, int64(s.batchSize))
	if err != nil {
		return fmt.Errorf("list due scheduled: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	s.logger.Debug("scheduler tick: found due items", "count", len(due))

	var promoted, stale int
	for _, taskID := range due {
		switch err := s.promote(ctx, taskID); {
		case err == nil:
			promoted++
		case errors.Is(err, brokererr.ErrConflict):
			if rerr := s.tasks.RemoveFromScheduled(ctx, taskID); rerr != nil {
				s.logger.Error("scheduler: failed to drop stale scheduled entry", "task_id", taskID, "error", rerr)
				continue
			}
			stale++
		default:
			s.logger.Error("scheduler: failed to promote task", "task_id", taskID, "error", err)
		}
	}

	s.logger.Info("scheduler tick completed", "due", len(due), "promoted", promoted, "stale", stale)
	return nil
}

func (s *Scheduler) promote(ctx context.Context, taskID string) error {
	return s.tasks.Transition(ctx, taskID, taskstore.TransitionOptions{
		From:             domain.StateScheduled,
		To:               domain.StatePending,
		RemoveFrom:       store.ScheduledSetKey,
		RemoveFromIsZSet: true,
		Push:             taskstore.QueueTarget{Key: store.RetryQueueKey},
	})
}
