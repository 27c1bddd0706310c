package handler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rjalexa/taskbroker/internal/breaker"
	"github.com/rjalexa/taskbroker/internal/ratelimit"
)

// HandlerError carries a handler's classification of its own failure
// (§4.8). Classification is advisory — the router (C9) has final say on
// how it backs off or gives up.
type HandlerError struct {
	Classification string // e.g. "rate_limited", "auth", "validation", "unknown"
	Message        string
	Retryable      bool
	StatusCode     int // upstream HTTP status, 0 if not applicable
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Classification, e.Message)
}

// CallContext is passed to every handler invocation (§4.7 step 5, §4.8).
// call_provider wraps an upstream call with automatic breaker and
// rate-limit enforcement, so handlers never talk to the breaker/limiter
// directly.
type CallContext struct {
	Context context.Context
	Logger  *slog.Logger

	breaker *breaker.Breaker
	limiter *ratelimit.Limiter
	tokens  float64
}

// NewCallContext builds a CallContext for one handler invocation.
func NewCallContext(ctx context.Context, logger *slog.Logger, b *breaker.Breaker, l *ratelimit.Limiter, tokensPerCall float64) *CallContext {
	if logger == nil {
		logger = slog.Default()
	}
	if tokensPerCall <= 0 {
		tokensPerCall = 1
	}
	return &CallContext{Context: ctx, Logger: logger, breaker: b, limiter: l, tokens: tokensPerCall}
}

// CallProvider runs fn with automatic breaker gating and rate-limit
// acquisition (§4.7 step 5, §4.8): it first acquires a token within
// tokenWait, then runs fn through the breaker, which fails fast with
// CircuitOpen or invokes fn and records the outcome.
func (c *CallContext) CallProvider(tokenWait time.Duration, fn func(ctx context.Context) error) error {
	if c.limiter != nil {
		if err := c.limiter.Acquire(c.Context, c.tokens, tokenWait); err != nil {
			return err
		}
	}
	if c.breaker != nil {
		return c.breaker.Call(c.Context, fn)
	}
	return fn(c.Context)
}

// Handler is the contract every task_type implementation satisfies
// (§4.8): receives the payload and a call context, returns an opaque
// result or a classified HandlerError. Handlers must be idempotent with
// respect to task_id (at-least-once delivery).
type Handler func(taskID, payload string, cc *CallContext) (result string, herr *HandlerError)

// Registry maps task_type to its Handler.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds or replaces the handler for taskType.
func (r *Registry) Register(taskType string, h Handler) {
	r.handlers[taskType] = h
}

// Get looks up the handler for taskType.
func (r *Registry) Get(taskType string) (Handler, bool) {
	h, ok := r.handlers[taskType]
	return h, ok
}
