package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/rjalexa/taskbroker/internal/store"
)

func newTestLimiter(t *testing.T) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)

	cli, err := store.New(context.Background(), store.DefaultConfig(mr.Addr()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })

	return New(cli), mr
}

func TestLimiterGrantsWithinCapacity(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	require.NoError(t, l.EnsureBucket(ctx, 5, 1))
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Acquire(ctx, 1, time.Second))
	}
}

func TestLimiterDeniesOverCapacityThenTimesOut(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	require.NoError(t, l.EnsureBucket(ctx, 1, 0.001))
	require.NoError(t, l.Acquire(ctx, 1, time.Second))

	err := l.Acquire(ctx, 1, 50*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
}

func TestLimiterUninitializedBucket(t *testing.T) {
	l, _ := newTestLimiter(t)
	err := l.Acquire(context.Background(), 1, time.Second)
	require.ErrorIs(t, err, ErrUninitialized)
}

func TestUpdateCapacityClipsExcessTokens(t *testing.T) {
	l, _ := newTestLimiter(t)
	ctx := context.Background()

	require.NoError(t, l.EnsureBucket(ctx, 10, 1))
	require.NoError(t, l.UpdateCapacity(ctx, 2, 1))

	// Draining 2 tokens should succeed; a 3rd must block until refill.
	require.NoError(t, l.Acquire(ctx, 2, time.Second))
	err := l.Acquire(ctx, 1, 20*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
}
