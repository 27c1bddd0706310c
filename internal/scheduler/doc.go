// Package scheduler implements the Scheduler (C6): on every tick (1s by
// default) it advances due entries from tasks:scheduled into the retry
// queue.
//
// Layout:
//   - scheduler.go — Scheduler, Tick (advancing due entries)
//   - cron.go      — tick driver on top of robfig/cron/v3 (an interval
//     spec, "@every", rather than user cron expressions)
//
// No leader election is required: Tick is idempotent (CAS on state), so
// duplicate ticks across multiple instances are harmless.
package scheduler
