// Package store implements the Store Adapter (C1): typed operations over a
// shared key-value store — hashes for records, lists for FIFO queues,
// ordered sets for time-indexed scheduling, counters, and a pub/sub
// channel — plus server-side atomic scripts for multi-key transitions.
//
// Three logical connection pools are kept, matching §4.1:
//   - Standard — short operations and scripts.
//   - Blocking — long-blocking pops, with extended timeouts.
//   - Pipeline — best-effort batched round trips.
//
// go-redis has no first-class notion of named sub-pools, so each is a
// separate *redis.Client built from the same Options with a different
// PoolSize/ReadTimeout, the way internal/repo/db.go tuned a single pgxpool
// for the teacher's workload — here tuned three ways for three access
// patterns instead of one.
//
// Files:
//   - client.go — pool construction, health checks, lifecycle
//   - ops.go    — typed hash/list/zset/counter/pub-sub operations, plus
//                 RunScript for atomic multi-key transitions (the actual
//                 Lua lives with the component that owns the invariant —
//                 see internal/taskstore, internal/ratelimit,
//                 internal/provider)
//   - keys.go   — normative key-name builders (§6.1)
package store
