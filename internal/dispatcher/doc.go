// Package dispatcher implements the Dispatcher/Consumer (C7): per worker
// process, W concurrent loops pop a task id from the primary or retry
// queue with an adaptive preference, CAS it PENDING→ACTIVE, consult the
// circuit breaker and rate limiter, invoke the registered handler under a
// soft/hard deadline, and route the outcome to completion or the retry
// router (§4.7).
package dispatcher
