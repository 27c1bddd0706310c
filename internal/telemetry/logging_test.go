package telemetry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLogLevelDefaultsToInfo(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	require.Equal(t, 0, int(LogLevel()))
}

func TestLogLevelHonorsEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "DEBUG")
	require.Equal(t, -4, int(LogLevel()))

	t.Setenv("LOG_LEVEL", "ERROR")
	require.Equal(t, 8, int(LogLevel()))
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	logger := FromContext(context.Background())
	require.NotNil(t, logger)
}

func TestWithLoggerRoundTrips(t *testing.T) {
	base := SetupLogger()
	ctx := WithLogger(context.Background(), base)
	require.Same(t, base, FromContext(ctx))
}

func TestWithTaskIDAndWorkerIDAttachFields(t *testing.T) {
	base := SetupLogger()
	withTask := WithTaskID(base, "t1")
	withWorker := WithWorkerID(withTask, "w1")
	require.NotNil(t, withWorker)
}
