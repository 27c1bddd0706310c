package breaker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rjalexa/taskbroker/internal/brokererr"
	"github.com/rjalexa/taskbroker/internal/store"
)

// State is one of the three breaker states (§4.4).
type State string

const (
	Closed   State = "CLOSED"
	Open     State = "OPEN"
	HalfOpen State = "HALF_OPEN"
)

// nowFunc is overridable in tests; production code always uses time.Now.
var nowFunc = time.Now

// Config parameterizes one breaker instance.
type Config struct {
	VolumeThreshold int           // min observations before evaluation
	FailureRatio    float64       // open when failures/(failures+successes) >= ratio
	OpenDuration    time.Duration // cool-down before HALF_OPEN
	HalfOpenProbes  int           // trials allowed while HALF_OPEN
}

// Breaker is a single worker's circuit breaker (§4.4). One instance guards
// every provider call a worker process makes; state is mirrored to the
// store so liveness/heartbeat readers and other workers can observe it.
type Breaker struct {
	workerID string
	cfg      Config
	store    *store.Client

	mu              sync.Mutex
	state           State
	successCount    int
	failureCount    int
	openedAt        time.Time
	probesRemaining int
}

// New creates a breaker for workerID, starting CLOSED.
func New(workerID string, cfg Config, s *store.Client) *Breaker {
	return &Breaker{
		workerID: workerID,
		cfg:      cfg,
		store:    s,
		state:    Closed,
	}
}

// Allow reports whether a call may proceed right now, advancing
// OPEN→HALF_OPEN when the cool-down has elapsed. Callers that get false
// must treat the attempt as a CircuitOpen failure without invoking the
// handler (P6).
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case HalfOpen:
		if b.probesRemaining > 0 {
			b.probesRemaining--
			return true
		}
		return false
	case Open:
		if nowFunc().Sub(b.openedAt) >= b.cfg.OpenDuration {
			b.state = HalfOpen
			b.probesRemaining = b.cfg.HalfOpenProbes - 1
			return true
		}
		return false
	default:
		return false
	}
}

// ErrOpen is returned by Call when the breaker declines the attempt.
var ErrOpen = brokererr.ErrCircuitOpen

// Call runs fn only if Allow() permits it, recording the outcome
// automatically. It is the shape ctx.call_provider wraps around handler
// invocations (§4.8).
func (b *Breaker) Call(ctx context.Context, fn func(context.Context) error) error {
	if !b.Allow() {
		return ErrOpen
	}
	err := fn(ctx)
	if err != nil {
		b.RecordFailure(ctx)
		return err
	}
	b.RecordSuccess(ctx)
	return nil
}

// RecordSuccess records a successful call, possibly closing the breaker
// out of HALF_OPEN once all probes have passed.
func (b *Breaker) RecordSuccess(ctx context.Context) {
	b.mu.Lock()
	switch b.state {
	case HalfOpen:
		if b.probesRemaining <= 0 {
			b.reset(Closed)
		}
	case Closed:
		b.successCount++
	}
	snapshot := b.snapshotLocked()
	b.mu.Unlock()

	b.persist(ctx, snapshot)
}

// RecordFailure records a failed call, tripping OPEN immediately from
// HALF_OPEN, or from CLOSED once volume_threshold and failure_ratio are
// both exceeded.
func (b *Breaker) RecordFailure(ctx context.Context) {
	b.mu.Lock()
	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.failureCount++
		total := b.failureCount + b.successCount
		if total >= b.cfg.VolumeThreshold {
			ratio := float64(b.failureCount) / float64(total)
			if ratio >= b.cfg.FailureRatio {
				b.trip()
			}
		}
	}
	snapshot := b.snapshotLocked()
	b.mu.Unlock()

	b.persist(ctx, snapshot)
}

// trip must be called with mu held.
func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = nowFunc()
	b.failureCount = 0
	b.successCount = 0
	b.probesRemaining = 0
}

// reset must be called with mu held.
func (b *Breaker) reset(to State) {
	b.state = to
	b.failureCount = 0
	b.successCount = 0
	b.probesRemaining = 0
}

// State returns the current state (for heartbeat reporting). It is a pure
// read and never advances OPEN→HALF_OPEN; only Allow (and GateState, which
// shares its cool-down check) do that.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// GateState reports the state to use for a pre-dispatch admission check,
// advancing OPEN→HALF_OPEN once open_duration has elapsed (§4.4) without
// consuming a probe slot — the probe itself is spent later by Allow when
// call_provider actually invokes the handler. Without this, a caller that
// only ever reads State before the handler runs would never observe the
// cool-down elapse, since Allow is unreachable until after the gate passes.
func (b *Breaker) GateState() State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open && nowFunc().Sub(b.openedAt) >= b.cfg.OpenDuration {
		b.state = HalfOpen
		b.probesRemaining = b.cfg.HalfOpenProbes
	}
	return b.state
}

type snapshot struct {
	state        State
	failureCount int
	successCount int
	openedAt     time.Time
}

func (b *Breaker) snapshotLocked() snapshot {
	return snapshot{state: b.state, failureCount: b.failureCount, successCount: b.successCount, openedAt: b.openedAt}
}

func (b *Breaker) persist(ctx context.Context, s snapshot) {
	if b.store == nil {
		return
	}
	fields := map[string]any{
		"state":         string(s.state),
		"failure_count": s.failureCount,
		"success_count": s.successCount,
	}
	if !s.openedAt.IsZero() {
		fields["opened_at"] = s.openedAt.UTC().Format(time.RFC3339Nano)
	}
	_ = b.store.HashSet(ctx, store.CircuitBreakerKey(b.workerID), fields)
}

// Reset forces the breaker CLOSED (used by reset_all_circuits()).
func (b *Breaker) Reset(ctx context.Context) {
	b.mu.Lock()
	b.reset(Closed)
	snap := b.snapshotLocked()
	b.mu.Unlock()
	b.persist(ctx, snap)
}

// ForceOpen forces the breaker OPEN (used by open_all_circuits()).
func (b *Breaker) ForceOpen(ctx context.Context) {
	b.mu.Lock()
	b.trip()
	snap := b.snapshotLocked()
	b.mu.Unlock()
	b.persist(ctx, snap)
}

// Describe returns a human-readable summary, used in logs.
func (b *Breaker) Describe() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("worker=%s state=%s failures=%d successes=%d", b.workerID, b.state, b.failureCount, b.successCount)
}
