package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/rjalexa/taskbroker/internal/store"
)

// nowFunc is overridable in tests; production code always uses time.Now.
var nowFunc = time.Now

// pollInterval bounds how long a single Acquire retry sleeps before
// re-checking the bucket, so a concurrent refresh or a shrinking deadline
// is noticed promptly rather than oversleeping past it.
const pollInterval = 500 * time.Millisecond

// Limiter implements C3: a single shared token bucket (§4.3, P5).
type Limiter struct {
	store *store.Client
}

// New creates a Limiter backed by the given store client.
func New(s *store.Client) *Limiter {
	return &Limiter{store: s}
}

// EnsureBucket seeds rate_limit:bucket with the given capacity/refill_rate
// if no process has done so yet. Safe to call from every worker at
// startup — the script no-ops once the bucket exists.
func (l *Limiter) EnsureBucket(ctx context.Context, capacity, refillRate float64) error {
	_, err := l.store.RunScript(ctx, initScript, []string{store.RateLimitBucketKey},
		capacity, refillRate, float64(nowFunc().UnixNano())/1e9)
	if err != nil {
		return fmt.Errorf("init rate limit bucket: %w", err)
	}
	return nil
}

// UpdateCapacity applies a configuration change (§4.3): the bucket's
// capacity and refill rate change immediately, clipping any surplus tokens
// down to the new capacity rather than granting a head start.
func (l *Limiter) UpdateCapacity(ctx context.Context, capacity, refillRate float64) error {
	_, err := l.store.RunScript(ctx, updateCapacityScript, []string{store.RateLimitBucketKey},
		capacity, refillRate)
	if err != nil {
		return fmt.Errorf("update rate limit capacity: %w", err)
	}
	return nil
}

// acquireResult is the decoded {status, wait_seconds, tokens_remaining} reply.
type acquireResult struct {
	status string
	wait   time.Duration
	tokens float64
}

func (l *Limiter) tryAcquire(ctx context.Context, n float64) (acquireResult, error) {
	raw, err := l.store.RunScript(ctx, acquireScript, []string{store.RateLimitBucketKey},
		n, float64(nowFunc().UnixNano())/1e9)
	if err != nil {
		return acquireResult{}, fmt.Errorf("acquire script: %w", err)
	}

	fields, ok := raw.([]any)
	if !ok || len(fields) != 3 {
		return acquireResult{}, fmt.Errorf("acquire script: unexpected reply %v", raw)
	}
	status, _ := fields[0].(string)
	waitStr, _ := fields[1].(string)
	tokensStr, _ := fields[2].(string)

	var waitSec, tokens float64
	if _, err := fmt.Sscanf(waitStr, "%g", &waitSec); err != nil {
		return acquireResult{}, fmt.Errorf("acquire script: parse wait: %w", err)
	}
	if _, err := fmt.Sscanf(tokensStr, "%g", &tokens); err != nil {
		return acquireResult{}, fmt.Errorf("acquire script: parse tokens: %w", err)
	}

	return acquireResult{status: status, wait: time.Duration(waitSec * float64(time.Second)), tokens: tokens}, nil
}

// Acquire implements C3.acquire (§4.3): blocks up to timeout trying to draw
// n tokens from the shared bucket, sleeping between denied attempts for the
// script-computed wait, capped at pollInterval (and used in place of a zero
// wait) and never longer than the remaining budget. Returns
// ErrTimeout if tokens are still unavailable once timeout elapses, or
// ErrUninitialized if EnsureBucket was never called for this deployment.
func (l *Limiter) Acquire(ctx context.Context, n float64, timeout time.Duration) error {
	deadline := nowFunc().Add(timeout)

	for {
		result, err := l.tryAcquire(ctx, n)
		if err != nil {
			return err
		}

		switch result.status {
		case "GRANTED":
			return nil
		case "UNINITIALIZED":
			return ErrUninitialized
		}

		remaining := deadline.Sub(nowFunc())
		if remaining <= 0 {
			return ErrTimeout
		}

		sleep := result.wait
		if sleep <= 0 || sleep > pollInterval {
			sleep = pollInterval
		}
		if sleep > remaining {
			sleep = remaining
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}
	}
}
