package liveness

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rjalexa/taskbroker/internal/store"
)

// nowFunc is overridable in tests; production code always uses time.Now.
var nowFunc = time.Now

// Status classifies a worker's freshness relative to its reporting period
// (§4.11).
type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusStale       Status = "stale"
	StatusNoHeartbeat Status = "no_heartbeat"
)

// Record is a single worker's heartbeat snapshot.
type Record struct {
	WorkerID     string
	PID          int
	InFlight     int
	BreakerState string
	LastSeen     time.Time
	Status       Status
}

// Reporter periodically writes this process's heartbeat. InFlight and
// BreakerState are read live via the supplied callbacks so the reporter
// never goes stale relative to the dispatcher it rides alongside.
type Reporter struct {
	store        *store.Client
	workerID     string
	period       time.Duration
	inFlight     func() int
	breakerState func() string
}

// Config configures a Reporter.
type Config struct {
	Store        *store.Client
	WorkerID     string
	Period       time.Duration // default 10s per §4.11
	InFlight     func() int
	BreakerState func() string
}

// NewReporter creates a Reporter. InFlight/BreakerState default to
// always-zero/"" callbacks when nil, so a minimal caller can still report.
func NewReporter(cfg Config) *Reporter {
	period := cfg.Period
	if period <= 0 {
		period = 10 * time.Second
	}
	inFlight := cfg.InFlight
	if inFlight == nil {
		inFlight = func() int { return 0 }
	}
	breakerState := cfg.BreakerState
	if breakerState == nil {
		breakerState = func() string { return "" }
	}
	return &Reporter{
		store:        cfg.Store,
		workerID:     cfg.WorkerID,
		period:       period,
		inFlight:     inFlight,
		breakerState: breakerState,
	}
}

// Period returns the configured reporting period, used by the aggregator's
// caller to size the TTL/staleness thresholds consistently.
func (r *Reporter) Period() time.Duration { return r.period }

// Beat writes a single heartbeat with TTL 3x the period (§4.11).
func (r *Reporter) Beat(ctx context.Context) error {
	now := nowFunc().UTC()
	fields := map[string]any{
		"worker_id":     r.workerID,
		"pid":           os.Getpid(),
		"in_flight":     r.inFlight(),
		"breaker_state": r.breakerState(),
		"last_seen":     now.Format(time.RFC3339Nano),
	}
	key := store.WorkerHeartbeatKey(r.workerID)
	if err := r.store.HashSet(ctx, key, fields); err != nil {
		return fmt.Errorf("write heartbeat: %w", err)
	}
	if err := r.store.Expire(ctx, key, 3*r.period); err != nil {
		return fmt.Errorf("expire heartbeat: %w", err)
	}
	return r.store.SetAdd(ctx, store.WorkerRegistryKey, r.workerID)
}

// Run writes a heartbeat immediately, then every period, until ctx is
// cancelled — same immediate-then-tick shape as the teacher's pollLoop.
func (r *Reporter) Run(ctx context.Context) {
	_ = r.Beat(ctx)
	ticker := time.NewTicker(r.period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = r.Beat(ctx)
		}
	}
}

func parseHeartbeat(workerID string, fields map[string]string, period time.Duration, now time.Time) Record {
	rec := Record{WorkerID: workerID, Status: StatusNoHeartbeat}
	if len(fields) == 0 {
		return rec
	}

	if pid, err := strconv.Atoi(fields["pid"]); err == nil {
		rec.PID = pid
	}
	if inFlight, err := strconv.Atoi(fields["in_flight"]); err == nil {
		rec.InFlight = inFlight
	}
	rec.BreakerState = fields["breaker_state"]

	lastSeen, err := time.Parse(time.RFC3339Nano, fields["last_seen"])
	if err != nil {
		return rec
	}
	rec.LastSeen = lastSeen

	age := now.Sub(lastSeen)
	switch {
	case age <= period:
		rec.Status = StatusHealthy
	case age <= 3*period:
		rec.Status = StatusStale
	default:
		rec.Status = StatusNoHeartbeat
	}
	return rec
}
