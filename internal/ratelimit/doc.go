// Package ratelimit implements the distributed token bucket (C3): a single
// shared bucket with atomic acquire/refill via a server-side script, so
// concurrent dispatchers across every worker process draw from the same
// budget (§4.3, P5).
package ratelimit
