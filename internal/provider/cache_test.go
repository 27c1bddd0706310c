package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/rjalexa/taskbroker/internal/store"
)

func newTestCache(t *testing.T, prober Prober) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)

	cli, err := store.New(context.Background(), store.DefaultConfig(mr.Addr()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })

	return New(cli, Config{Fresh: time.Minute, CircuitThreshold: 3}, prober)
}

func TestGetStateDefaultsToActiveWhenUnset(t *testing.T) {
	c := newTestCache(t, nil)
	s, err := c.GetState(context.Background(), false)
	require.NoError(t, err)
	require.Equal(t, "active", s.State)
	require.False(t, s.CircuitOpen)
}

func TestReportFailureOpensCircuitAtThreshold(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, c.ReportFailure(ctx, KindServiceUnavailable, "boom", 503))
	}

	s, err := c.GetState(ctx, false)
	require.NoError(t, err)
	require.True(t, s.CircuitOpen)
	require.Equal(t, 3, s.ConsecutiveFailures)
}

func TestReportSuccessResetsFailures(t *testing.T) {
	c := newTestCache(t, nil)
	ctx := context.Background()

	require.NoError(t, c.ReportFailure(ctx, KindTimeout, "slow", 0))
	require.NoError(t, c.ReportSuccess(ctx))

	s, err := c.GetState(ctx, false)
	require.NoError(t, err)
	require.Equal(t, 0, s.ConsecutiveFailures)
	require.Equal(t, "active", s.State)
}

func TestGetStateForceRefreshInvokesProber(t *testing.T) {
	called := false
	prober := func(context.Context) error {
		called = true
		return nil
	}
	c := newTestCache(t, prober)

	_, err := c.GetState(context.Background(), true)
	require.NoError(t, err)
	require.True(t, called)
}

func TestGetStateForceRefreshRecordsProberFailure(t *testing.T) {
	prober := func(context.Context) error { return errors.New("unreachable") }
	c := newTestCache(t, prober)

	s, err := c.GetState(context.Background(), true)
	require.NoError(t, err)
	require.Equal(t, string(KindUnknown), s.State)
	require.Equal(t, 1, s.ConsecutiveFailures)
}
