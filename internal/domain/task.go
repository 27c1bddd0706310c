package domain

import "time"

// Task is a single unit of deferred work, identified by task_id.
//
// Payload is treated as opaque by the core; the handler (see
// internal/handler) is the only thing that knows how to interpret it. Task
// carries no references to other tasks — there is no dependency graph in
// this model.
type Task struct {
	ID         string `json:"task_id"`
	Type       string `json:"task_type"`
	Payload    string `json:"payload"`
	State      State  `json:"state"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`

	LastError string     `json:"last_error,omitempty"`
	ErrorType ErrorClass `json:"error_type,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	RetryAfter  *time.Time `json:"retry_after,omitempty"`

	Result string `json:"result,omitempty"`

	StateHistory []StateEvent `json:"state_history"`
	ErrorHistory []ErrorEvent `json:"error_history"`
}

// StateEvent is one entry in state_history (I6: strictly monotone in time).
type StateEvent struct {
	State     State     `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorEvent is one entry in error_history.
type ErrorEvent struct {
	ErrorType ErrorClass `json:"error_type"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
}

// Age returns the time elapsed since the task was created.
func (t *Task) Age(now time.Time) time.Duration {
	return now.Sub(t.CreatedAt)
}

// CanRetry checks I5: a retry is only allowed while retry_count < max_retries.
func (t *Task) CanRetry() bool {
	return t.RetryCount < t.MaxRetries
}

// IsFinished reports whether the task has reached a terminal state.
func (t *Task) IsFinished() bool {
	return t.State.IsTerminal()
}
