package router

import (
	"math/rand"
	"time"

	"github.com/rjalexa/taskbroker/internal/config"
	"github.com/rjalexa/taskbroker/internal/domain"
)

// jitterFunc is overridable in tests for deterministic delays.
var jitterFunc = rand.Float64

// Backoff computes the retry delay for attempt k (0-indexed) under class's
// schedule (§4.9): delay = schedule[min(k, len-1)] * (1 + jitter),
// jitter in [0, 0.1].
func Backoff(schedules map[string]config.RetrySchedule, class domain.ErrorClass, attempt int) time.Duration {
	schedule, ok := schedules[string(class)]
	if !ok || len(schedule) == 0 {
		schedule = schedules[string(domain.ClassTransientDefault)]
	}
	if len(schedule) == 0 {
		return 5 * time.Second
	}

	idx := attempt
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	if idx < 0 {
		idx = 0
	}

	base := float64(schedule[idx])
	jitter := jitterFunc() * 0.1
	return time.Duration(base * (1 + jitter) * float64(time.Second))
}
