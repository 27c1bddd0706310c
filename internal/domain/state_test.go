package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStateIsTerminal(t *testing.T) {
	require.False(t, StatePending.IsTerminal())
	require.False(t, StateActive.IsTerminal())
	require.False(t, StateFailed.IsTerminal())
	require.False(t, StateScheduled.IsTerminal())
	require.True(t, StateCompleted.IsTerminal())
	require.True(t, StateDLQ.IsTerminal())
}

func TestStateValid(t *testing.T) {
	require.True(t, StatePending.Valid())
	require.False(t, State("BOGUS").Valid())
}

func TestStateLower(t *testing.T) {
	require.Equal(t, "dlq", StateDLQ.Lower())
	require.Equal(t, "unknown", State("BOGUS").Lower())
}

func TestErrorClassCountsAsRetry(t *testing.T) {
	require.False(t, ClassTransientCircuitOpen.CountsAsRetry())
	require.True(t, ClassTransientNetwork.CountsAsRetry())
}

func TestErrorClassIsTransient(t *testing.T) {
	require.False(t, ClassPermanent.IsTransient())
	require.False(t, ClassInternal.IsTransient())
	require.True(t, ClassTransientRateLimit.IsTransient())
}

func TestTaskCanRetry(t *testing.T) {
	task := &Task{RetryCount: 2, MaxRetries: 3}
	require.True(t, task.CanRetry())
	task.RetryCount = 3
	require.False(t, task.CanRetry())
}
