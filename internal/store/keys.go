package store

import "fmt"

// Key names are normative per §6.1 — changing them breaks compatibility
// with anything that inspects the store directly (dashboards, ad-hoc ops
// tooling), so they are centralized here rather than built ad hoc.

// TaskKey returns the hash key for a task record.
func TaskKey(taskID string) string { return fmt.Sprintf("task:%s", taskID) }

// DLQTaskKey returns the hash key for a task's DLQ copy.
func DLQTaskKey(taskID string) string { return fmt.Sprintf("dlq:task:%s", taskID) }

const (
	// PrimaryQueueKey holds new submissions, FIFO.
	PrimaryQueueKey = "tasks:pending:primary"

	// RetryQueueKey holds tasks due for immediate retry, FIFO.
	RetryQueueKey = "tasks:pending:retry"

	// ScheduledSetKey is the time-indexed set the scheduler promotes from.
	ScheduledSetKey = "tasks:scheduled"

	// DLQListKey is the terminal list of task_ids that will not be retried.
	DLQListKey = "dlq:tasks"

	// EventChannel is the pub/sub channel for lifecycle events (§6.2).
	EventChannel = "queue-updates"

	// RateLimitConfigKey holds {requests, interval, updated_at}.
	RateLimitConfigKey = "rate_limit:config"

	// RateLimitBucketKey holds {tokens, capacity, refill_rate, last_refill}.
	RateLimitBucketKey = "rate_limit:bucket"

	// ProviderStateKey holds the single provider-state record.
	ProviderStateKey = "provider:state"

	// ProviderRefreshLockKey collapses concurrent provider-state refreshes.
	ProviderRefreshLockKey = "provider:refresh_lock"

	// WorkerRegistryKey is the set of worker ids that have ever reported a
	// heartbeat; liveness scans it rather than SCANning worker:heartbeat:*.
	WorkerRegistryKey = "worker:registry"

	// AllTasksSetKey is every task_id that has ever been created and not
	// yet deleted; list() scans it rather than SCANning task:*.
	AllTasksSetKey = "tasks:all"
)

// StateCounterKey returns the counter key for a given lowercase state name.
func StateCounterKey(stateLower string) string {
	return fmt.Sprintf("metrics:tasks:state:%s", stateLower)
}

// ProviderMetricsKey returns the per-day aggregate counter hash key.
func ProviderMetricsKey(dateYYYYMMDD string) string {
	return fmt.Sprintf("provider:metrics:%s", dateYYYYMMDD)
}

// WorkerHeartbeatKey returns the heartbeat hash key (TTL-bearing) for a worker.
func WorkerHeartbeatKey(workerID string) string {
	return fmt.Sprintf("worker:heartbeat:%s", workerID)
}

// WorkerActiveTasksKey returns the set key of in-flight task_ids for a worker.
func WorkerActiveTasksKey(workerID string) string {
	return fmt.Sprintf("worker:active_tasks:%s", workerID)
}

// CircuitBreakerKey returns the hash key for a worker's breaker state.
func CircuitBreakerKey(workerID string) string {
	return fmt.Sprintf("circuit_breaker:%s", workerID)
}
