package domain

// State is a task's lifecycle status.
//
// Lifecycle:
//
//	PENDING → ACTIVE → COMPLETED
//	                  ↘ FAILED → SCHEDULED → PENDING → ACTIVE (retry)
//	                           ↘ DLQ (terminal)
type State string

const (
	// StatePending — the task is queued (primary or retry), waiting for the dispatcher.
	StatePending State = "PENDING"

	// StateActive — the task is running in a worker; it is in no queue.
	StateActive State = "ACTIVE"

	// StateCompleted — the task finished successfully.
	StateCompleted State = "COMPLETED"

	// StateFailed — the last attempt errored out; a transitional state on
	// the way to SCHEDULED or DLQ.
	StateFailed State = "FAILED"

	// StateScheduled — the task waits in a zset until retry_after, then the
	// scheduler moves it to the retry queue.
	StateScheduled State = "SCHEDULED"

	// StateDLQ — terminal state; the task will not be retried again.
	StateDLQ State = "DLQ"
)

// IsTerminal reports true for states with no outgoing transition short of
// explicit intervention (retry/delete via Ingress).
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateDLQ:
		return true
	default:
		return false
	}
}

// Valid reports whether the value is one of the known states.
func (s State) Valid() bool {
	switch s {
	case StatePending, StateActive, StateCompleted, StateFailed, StateScheduled, StateDLQ:
		return true
	default:
		return false
	}
}

// lower returns the state in lowercase, used to build keys of the form
// metrics:tasks:state:{state_lower}.
func (s State) lower() string {
	switch s {
	case StatePending:
		return "pending"
	case StateActive:
		return "active"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateScheduled:
		return "scheduled"
	case StateDLQ:
		return "dlq"
	default:
		return "unknown"
	}
}

// Lower is the exported form of lower, for packages outside domain
// (taskstore builds counter keys from State).
func (s State) Lower() string { return s.lower() }

// ErrorClass classifies a failure per the §4.9 routing rules.
type ErrorClass string

const (
	ClassPermanent             ErrorClass = "Permanent"
	ClassTransientRateLimit    ErrorClass = "Transient/RateLimit"
	ClassTransientUnavailable  ErrorClass = "Transient/ServiceUnavailable"
	ClassTransientCredits      ErrorClass = "Transient/Credits"
	ClassTransientNetwork      ErrorClass = "Transient/Network"
	ClassTransientCircuitOpen  ErrorClass = "Transient/CircuitOpen"
	ClassTransientTimeout      ErrorClass = "Transient/Timeout"
	ClassTransientDefault      ErrorClass = "Transient/Default"
	ClassInternal              ErrorClass = "Internal"
)

// IsTransient reports whether this class is eligible for retry (given
// remaining attempts and a task not yet past max_task_age).
func (c ErrorClass) IsTransient() bool {
	switch c {
	case ClassPermanent, ClassInternal:
		return false
	default:
		return true
	}
}

// CountsAsRetry reports false for CircuitOpen — requeue without
// incrementing retry_count, as required by §4.7 step 2 and the §4.9 table.
func (c ErrorClass) CountsAsRetry() bool {
	return c != ClassTransientCircuitOpen
}
