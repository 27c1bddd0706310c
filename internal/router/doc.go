// Package router implements the Retry & DLQ Router (C9): classifies a
// handler failure, decides between a backoff-and-retry (SCHEDULED) or a
// terminal DLQ move, and applies class-specific backoff schedules with
// jitter (§4.9).
package router
