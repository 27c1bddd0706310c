// Package breaker implements the per-worker circuit breaker (C4):
// CLOSED/OPEN/HALF_OPEN, guarding every provider call so a sustained
// upstream outage fails fast instead of piling up timeouts (§4.4, P6).
package breaker
