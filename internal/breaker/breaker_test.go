package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{VolumeThreshold: 4, FailureRatio: 0.5, OpenDuration: 50 * time.Millisecond, HalfOpenProbes: 2}
}

func TestBreakerTripsOnFailureRatio(t *testing.T) {
	b := New("w1", testConfig(), nil)
	ctx := context.Background()

	require.Equal(t, Closed, b.State())

	b.RecordSuccess(ctx)
	b.RecordFailure(ctx)
	b.RecordFailure(ctx)
	b.RecordFailure(ctx)

	require.Equal(t, Open, b.State())
	require.False(t, b.Allow())
}

func TestBreakerHalfOpenRecoversOnAllProbesSucceeding(t *testing.T) {
	b := New("w1", testConfig(), nil)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		b.RecordFailure(ctx)
	}
	require.Equal(t, Open, b.State())

	// Force the cool-down to have elapsed.
	restore := nowFunc
	nowFunc = func() time.Time { return restore().Add(time.Hour) }
	defer func() { nowFunc = restore }()

	require.True(t, b.Allow())
	b.RecordSuccess(ctx)
	require.True(t, b.Allow())
	b.RecordSuccess(ctx)

	require.Equal(t, Closed, b.State())
}

func TestBreakerHalfOpenReopensOnProbeFailure(t *testing.T) {
	b := New("w1", testConfig(), nil)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		b.RecordFailure(ctx)
	}

	restore := nowFunc
	nowFunc = func() time.Time { return restore().Add(time.Hour) }
	defer func() { nowFunc = restore }()

	require.True(t, b.Allow())
	b.RecordFailure(ctx)
	require.Equal(t, Open, b.State())
}

func TestGateStateAdvancesOpenToHalfOpenWithoutConsumingProbe(t *testing.T) {
	b := New("w1", testConfig(), nil)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		b.RecordFailure(ctx)
	}
	require.Equal(t, Open, b.State())

	// Before the cool-down elapses, the gate must keep reporting Open.
	require.Equal(t, Open, b.GateState())

	restore := nowFunc
	nowFunc = func() time.Time { return restore().Add(time.Hour) }
	defer func() { nowFunc = restore }()

	require.Equal(t, HalfOpen, b.GateState())
	require.Equal(t, HalfOpen, b.State())

	// GateState must not have spent the probe Allow still needs.
	require.True(t, b.Allow())
	b.RecordSuccess(ctx)
	require.True(t, b.Allow())
	b.RecordSuccess(ctx)
	require.Equal(t, Closed, b.State())
}

func TestCallShortCircuitsWhenOpen(t *testing.T) {
	b := New("w1", testConfig(), nil)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		b.RecordFailure(ctx)
	}

	err := b.Call(ctx, func(context.Context) error { return nil })
	require.ErrorIs(t, err, ErrOpen)
}

func TestCallPropagatesHandlerError(t *testing.T) {
	b := New("w1", testConfig(), nil)
	ctx := context.Background()
	boom := errors.New("boom")

	err := b.Call(ctx, func(context.Context) error { return boom })
	require.ErrorIs(t, err, boom)
}
