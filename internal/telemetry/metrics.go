package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the set of Prometheus metrics registered by the worker.
// Exported on /metrics via promhttp.Handler() in cmd/.
type Metrics struct {
	QueueDepth       *prometheus.GaugeVec
	TaskStateTotal   *prometheus.GaugeVec
	RetryRatio       prometheus.Gauge
	BreakerState     *prometheus.GaugeVec
	DispatchedTotal  *prometheus.CounterVec
	HandlerDuration  *prometheus.HistogramVec
	RateLimitWaitSec prometheus.Histogram
}

// NewMetrics registers and returns Metrics on the given registerer. Pass
// prometheus.DefaultRegisterer in production code.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "broker",
			Name:      "queue_depth",
			Help:      "Current depth of a named queue (primary, retry, scheduled, dlq).",
		}, []string{"queue"}),

		TaskStateTotal: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "broker",
			Name:      "task_state_total",
			Help:      "Current number of tasks in a given state (mirrors metrics:tasks:state:{state}).",
		}, []string{"state"}),

		RetryRatio: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "broker",
			Name:      "dispatcher_retry_ratio",
			Help:      "Current adaptive retry-queue selection ratio (§4.7).",
		}),

		BreakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "broker",
			Name:      "circuit_breaker_state",
			Help:      "Circuit breaker state per worker: 0=CLOSED, 1=HALF_OPEN, 2=OPEN.",
		}, []string{"worker_id"}),

		DispatchedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "broker",
			Name:      "dispatched_total",
			Help:      "Total tasks dispatched, labeled by outcome.",
		}, []string{"outcome"}),

		HandlerDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "broker",
			Name:      "handler_duration_seconds",
			Help:      "Handler execution duration by task_type.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"task_type"}),

		RateLimitWaitSec: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "broker",
			Name:      "rate_limit_wait_seconds",
			Help:      "Time spent waiting on rate-limit acquire before grant or timeout.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// BreakerStateValue converts a breaker state label into the gauge value used
// by BreakerState — kept here so dispatcher and breaker packages agree on
// the encoding without importing each other.
func BreakerStateValue(state string) float64 {
	switch state {
	case "HALF_OPEN":
		return 1
	case "OPEN":
		return 2
	default:
		return 0
	}
}
