package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register("echo", Echo)

	h, ok := r.Get("echo")
	require.True(t, ok)

	result, herr := h("t1", "hello", NewCallContext(context.Background(), nil, nil, nil, 1))
	require.Nil(t, herr)
	require.Equal(t, "hello", result)

	_, ok = r.Get("missing")
	require.False(t, ok)
}

func TestHTTPCallSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	cc := NewCallContext(context.Background(), nil, nil, nil, 1)
	result, herr := HTTPCall("t1", srv.URL, cc)
	require.Nil(t, herr)
	require.Equal(t, "ok", result)
}

func TestHTTPCallClassifiesUpstream429(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	cc := NewCallContext(context.Background(), nil, nil, nil, 1)
	_, herr := HTTPCall("t1", srv.URL, cc)
	require.NotNil(t, herr)
	require.Equal(t, "rate_limited", herr.Classification)
	require.True(t, herr.Retryable)
}

func TestHTTPCallRejectsEmptyPayload(t *testing.T) {
	cc := NewCallContext(context.Background(), nil, nil, nil, 1)
	_, herr := HTTPCall("t1", "  ", cc)
	require.NotNil(t, herr)
	require.Equal(t, "validation", herr.Classification)
	require.False(t, herr.Retryable)
}

func TestCallProviderTimesOutWithoutLimiterIsNoOp(t *testing.T) {
	cc := NewCallContext(context.Background(), nil, nil, nil, 1)
	called := false
	err := cc.CallProvider(time.Second, func(ctx context.Context) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	require.True(t, called)
}
