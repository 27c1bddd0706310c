// Package telemetry provides observability for the broker core.
//
// Includes:
//   - logging.go — structured logging via slog
//   - metrics.go — Prometheus metrics
//
// The worker and scheduler binaries use the same logging format and export
// metrics on a /metrics endpoint; the CLI does neither.
package telemetry
