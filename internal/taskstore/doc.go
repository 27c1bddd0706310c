// Package taskstore implements the Task Record & Counters component (C2):
// the persistent per-task hash, the six state counters, and the
// invariant-preserving mutation helpers (create, transition, record_error,
// delete) that keep I1, I2, I6, I7 true across concurrent dispatchers.
//
// Every mutation that touches more than one key runs as a single Lua
// script via store.Client.RunScript, so the hash update, the counter
// delta, the queue push/remove, the state_history append, and the event
// publish all happen in one atomic round trip — the Redis equivalent of
// the single SQL transaction internal/repo/task_repo.go used to rely on
// for the same "update record + keep derived state consistent" shape.
package taskstore
