package eventbus

import "github.com/rjalexa/taskbroker/internal/domain"

// Control event types, broadcast on the same channel as lifecycle events
// (§4.12 reset_all_circuits()/open_all_circuits()). Every worker process
// subscribes and applies these to its own in-process breaker — there is no
// other channel back to a remote worker's breaker instance.
const (
	TypeCircuitResetAll = "circuit_reset_all"
	TypeCircuitOpenAll  = "circuit_open_all"
)

// Event is the self-describing record published on every state transition
// and every queue-depth-affecting operation (§6.2). Fields are optional
// depending on Type; consumers should tolerate absent fields.
type Event struct {
	Type        string      `json:"type"` // task_created | task_state_changed | queue_snapshot | heartbeat | fatal
	TaskID      string      `json:"task_id,omitempty"`
	OldState    string      `json:"old_state,omitempty"`
	NewState    string      `json:"new_state,omitempty"`
	QueueDepths QueueDepths `json:"queue_depths"`
	StateCounts StateCounts `json:"state_counts"`
	RetryRatio  float64     `json:"retry_ratio,omitempty"`
	Timestamp   string      `json:"timestamp"` // UTC ISO-8601
}

// QueueDepths mirrors the four persisted queues (§6.1).
type QueueDepths struct {
	Primary   int64 `json:"primary"`
	Retry     int64 `json:"retry"`
	Scheduled int64 `json:"scheduled"`
	DLQ       int64 `json:"dlq"`
}

// StateCounts mirrors the six state counters (§3.1).
type StateCounts struct {
	Pending   int64 `json:"pending"`
	Active    int64 `json:"active"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Scheduled int64 `json:"scheduled"`
	DLQ       int64 `json:"dlq"`
}

// stateCountsFromMap adapts taskstore.StateCounts' map return into the
// wire-shaped struct.
func stateCountsFromMap(m map[domain.State]int64) StateCounts {
	return StateCounts{
		Pending:   m[domain.StatePending],
		Active:    m[domain.StateActive],
		Completed: m[domain.StateCompleted],
		Failed:    m[domain.StateFailed],
		Scheduled: m[domain.StateScheduled],
		DLQ:       m[domain.StateDLQ],
	}
}
