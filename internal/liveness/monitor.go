package liveness

import (
	"context"
	"fmt"
	"time"

	"github.com/rjalexa/taskbroker/internal/store"
)

// Monitor aggregates heartbeat records across every worker that has ever
// registered (§4.11). It has no in-process state of its own; every call
// reads fresh from the store, so any process (the API collaborator, a CLI
// command, another worker) can compute the same view.
type Monitor struct {
	store  *store.Client
	period time.Duration
}

// NewMonitor creates a Monitor. period must match the reporting period the
// fleet's Reporters use, since staleness thresholds are period-relative.
func NewMonitor(s *store.Client, period time.Duration) *Monitor {
	return &Monitor{store: s, period: period}
}

// Summary is the overall fleet view (§4.11 "Summary over all workers
// yields overall_status").
type Summary struct {
	Workers       []Record
	OverallStatus Status
}

// Snapshot reads every registered worker's heartbeat and classifies it.
func (m *Monitor) Snapshot(ctx context.Context) (Summary, error) {
	workerIDs, err := m.store.SetMembers(ctx, store.WorkerRegistryKey)
	if err != nil {
		return Summary{}, fmt.Errorf("list worker registry: %w", err)
	}

	now := nowFunc().UTC()
	records := make([]Record, 0, len(workerIDs))
	for _, id := range workerIDs {
		fields, err := m.store.HashGetAll(ctx, store.WorkerHeartbeatKey(id))
		if err != nil {
			return Summary{}, fmt.Errorf("read heartbeat %s: %w", id, err)
		}
		records = append(records, parseHeartbeat(id, fields, m.period, now))
	}

	return Summary{Workers: records, OverallStatus: overallStatus(records)}, nil
}

// overallStatus is the worst status across the fleet: any no_heartbeat
// worker drags the whole summary to no_heartbeat, any stale worker (with no
// no_heartbeat worse) drags it to stale, otherwise healthy. An empty fleet
// (no worker has ever reported) is no_heartbeat — there is nothing to be
// healthy about.
func overallStatus(records []Record) Status {
	if len(records) == 0 {
		return StatusNoHeartbeat
	}
	worst := StatusHealthy
	for _, r := range records {
		switch r.Status {
		case StatusNoHeartbeat:
			return StatusNoHeartbeat
		case StatusStale:
			worst = StatusStale
		}
	}
	return worst
}
