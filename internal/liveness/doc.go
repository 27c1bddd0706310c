// Package liveness implements the Liveness Monitor (C11): each worker
// process periodically writes a TTL-bearing heartbeat record, and the
// aggregate view classifies every known worker as healthy, stale, or
// no_heartbeat (§4.11).
package liveness
