package router

import (
	"github.com/rjalexa/taskbroker/internal/domain"
	"github.com/rjalexa/taskbroker/internal/handler"
)

// Signal carries everything the dispatcher observed about a failed
// invocation; Classify picks the first matching row of the table in §4.9.
type Signal struct {
	HandlerErr        *handler.HandlerError
	CircuitOpen       bool // ctx.call_provider's breaker declined the call
	Timeout           bool // hard deadline fired
	DependencyMissing bool // no handler registered for task_type
}

// Classify implements the first-match-wins classification table of §4.9.
func Classify(sig Signal) domain.ErrorClass {
	switch {
	case sig.DependencyMissing:
		return domain.ClassPermanent
	case sig.CircuitOpen:
		return domain.ClassTransientCircuitOpen
	case sig.Timeout:
		return domain.ClassTransientTimeout
	case sig.HandlerErr != nil:
		return classifyHandlerError(sig.HandlerErr)
	default:
		return domain.ClassTransientDefault
	}
}

func classifyHandlerError(herr *handler.HandlerError) domain.ErrorClass {
	switch herr.Classification {
	case "validation", "auth", "content_policy", "dependency_missing":
		return domain.ClassPermanent
	case "rate_limited":
		return domain.ClassTransientRateLimit
	case "service_unavailable":
		return domain.ClassTransientUnavailable
	case "credits_exhausted":
		return domain.ClassTransientCredits
	case "network_error", "timeout":
		return domain.ClassTransientNetwork
	default:
		if herr.StatusCode == 429 {
			return domain.ClassTransientRateLimit
		}
		if herr.StatusCode == 402 {
			return domain.ClassTransientCredits
		}
		if herr.StatusCode >= 500 {
			return domain.ClassTransientUnavailable
		}
		if herr.StatusCode == 401 || herr.StatusCode == 403 || herr.StatusCode == 404 {
			return domain.ClassPermanent
		}
		if !herr.Retryable {
			return domain.ClassPermanent
		}
		return domain.ClassTransientDefault
	}
}
