package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	require.NotNil(t, m)

	m.QueueDepth.WithLabelValues("primary").Set(5)
	m.TaskStateTotal.WithLabelValues("pending").Set(2)
	m.RetryRatio.Set(0.3)
	m.BreakerState.WithLabelValues("w1").Set(2)
	m.DispatchedTotal.WithLabelValues("completed").Inc()
	m.HandlerDuration.WithLabelValues("echo").Observe(0.05)
	m.RateLimitWaitSec.Observe(0.1)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestBreakerStateValue(t *testing.T) {
	require.Equal(t, float64(0), BreakerStateValue("CLOSED"))
	require.Equal(t, float64(1), BreakerStateValue("HALF_OPEN"))
	require.Equal(t, float64(2), BreakerStateValue("OPEN"))
	require.Equal(t, float64(0), BreakerStateValue("UNKNOWN"))
}
