package eventbus

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rjalexa/taskbroker/internal/store"
	"github.com/rjalexa/taskbroker/internal/taskstore"
)

// nowFunc is overridable in tests; production code always uses time.Now.
var nowFunc = time.Now

// Bus wraps the store's pub/sub on queue-updates and drives the periodic
// heartbeat snapshot (§4.10).
type Bus struct {
	store  *store.Client
	tasks  *taskstore.TaskStore
	logger *slog.Logger
}

// New creates a Bus.
func New(s *store.Client, tasks *taskstore.TaskStore, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{store: s, tasks: tasks, logger: logger}
}

// Subscribe returns a channel of decoded events and a cancel function.
// Malformed payloads are logged and dropped rather than surfaced as
// errors — delivery is best-effort (§4.10), a single bad message must
// never take the stream down.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	raw, cancel, err := b.store.Subscribe(ctx, store.EventChannel)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan Event, 64)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case payload, ok := <-raw:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(payload), &ev); err != nil {
					b.logger.Warn("eventbus: dropping malformed message", "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

// Publish sends a pre-built event as-is (used for the periodic heartbeat
// and for control broadcasts like reset_all_circuits()).
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.store.Publish(ctx, store.EventChannel, string(raw))
}

// RunHeartbeat publishes a full-snapshot heartbeat every interval until ctx
// is cancelled, so reconnecting subscribers converge without replaying
// history (§4.10).
func (b *Bus) RunHeartbeat(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.publishSnapshot(ctx); err != nil {
				b.logger.Warn("eventbus: heartbeat publish failed", "error", err)
			}
		}
	}
}

func (b *Bus) publishSnapshot(ctx context.Context) error {
	primary, retry, scheduled, dlq, err := b.tasks.QueueDepths(ctx)
	if err != nil {
		return err
	}
	counts, err := b.tasks.StateCounts(ctx)
	if err != nil {
		return err
	}

	ev := Event{
		Type:        "heartbeat",
		QueueDepths: QueueDepths{Primary: primary, Retry: retry, Scheduled: scheduled, DLQ: dlq},
		StateCounts: stateCountsFromMap(counts),
		RetryRatio:  AdaptiveRetryRatio(retry, DefaultRetryWarn, DefaultRetryCrit),
		Timestamp:   nowFunc().UTC().Format(time.RFC3339Nano),
	}
	return b.Publish(ctx, ev)
}

// Default retry-depth thresholds for the adaptive ratio (§4.7); the
// dispatcher uses the same constants when selecting which queue to pop.
const (
	DefaultRetryWarn = 1000
	DefaultRetryCrit = 5000
)

// AdaptiveRetryRatio implements the retry_ratio step function from §4.7.
func AdaptiveRetryRatio(retryDepth int64, warn, crit int64) float64 {
	switch {
	case retryDepth < warn:
		return 0.30
	case retryDepth < crit:
		return 0.20
	default:
		return 0.10
	}
}
