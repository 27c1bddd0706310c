package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	mr := miniredis.RunT(t)
	cli, err := New(context.Background(), DefaultConfig(mr.Addr()), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = cli.Close() })
	return cli
}

func TestHashRoundTrip(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.HashSet(ctx, "h1", map[string]any{"a": "1", "b": "2"}))
	all, err := c.HashGetAll(ctx, "h1")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"a": "1", "b": "2"}, all)

	v, ok, err := c.HashGet(ctx, "h1", "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1", v)

	_, ok, err = c.HashGet(ctx, "h1", "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.HashDel(ctx, "h1"))
	all, err = c.HashGetAll(ctx, "h1")
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestHashSetNXOnlySetsOnce(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	set, err := c.HashSetNX(ctx, "h2", "f", "first")
	require.NoError(t, err)
	require.True(t, set)

	set, err = c.HashSetNX(ctx, "h2", "f", "second")
	require.NoError(t, err)
	require.False(t, set)

	v, _, err := c.HashGet(ctx, "h2", "f")
	require.NoError(t, err)
	require.Equal(t, "first", v)
}

func TestSetNXRespectsTTL(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	acquired, err := c.SetNX(ctx, "lock", "owner", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	acquired, err = c.SetNX(ctx, "lock", "other", time.Minute)
	require.NoError(t, err)
	require.False(t, acquired)
}

func TestListPushRangeRemove(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.ListPushLeft(ctx, "q", "a", "b"))
	n, err := c.ListLen(ctx, "q")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	vals, err := c.ListRange(ctx, "q")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"a", "b"}, vals)

	require.NoError(t, c.ListRemove(ctx, "q", "a"))
	n, err = c.ListLen(ctx, "q")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
}

func TestPopBlockingRightMissReturnsEmpty(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	queue, value, err := c.PopBlockingRight(ctx, 50*time.Millisecond, "empty-queue")
	require.NoError(t, err)
	require.Empty(t, queue)
	require.Empty(t, value)
}

func TestPopBlockingRightHit(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.ListPushLeft(ctx, "q", "x"))
	queue, value, err := c.PopBlockingRight(ctx, time.Second, "q")
	require.NoError(t, err)
	require.Equal(t, "q", queue)
	require.Equal(t, "x", value)
}

func TestZSetOps(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.ZAdd(ctx, "z", 10, "a"))
	require.NoError(t, c.ZAdd(ctx, "z", 20, "b"))

	card, err := c.ZCard(ctx, "z")
	require.NoError(t, err)
	require.Equal(t, int64(2), card)

	members, err := c.ZRangeByScoreMax(ctx, "z", 15, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, members)

	require.NoError(t, c.ZRemove(ctx, "z", "a"))
	card, err = c.ZCard(ctx, "z")
	require.NoError(t, err)
	require.Equal(t, int64(1), card)
}

func TestSetOps(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, c.SetAdd(ctx, "s", "m1"))
	require.NoError(t, c.SetAdd(ctx, "s", "m2"))

	members, err := c.SetMembers(ctx, "s")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"m1", "m2"}, members)

	require.NoError(t, c.SetRemove(ctx, "s", "m1"))
	members, err = c.SetMembers(ctx, "s")
	require.NoError(t, err)
	require.Equal(t, []string{"m2"}, members)
}

func TestIncr(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	n, err := c.Incr(ctx, "counter", 3)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	n, err = c.Incr(ctx, "counter", -1)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}

func TestPublishSubscribe(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msgs, unsub, err := c.Subscribe(ctx, "chan")
	require.NoError(t, err)
	defer unsub()

	require.NoError(t, c.Publish(ctx, "chan", "hello"))

	select {
	case m := <-msgs:
		require.Equal(t, "hello", m)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for message")
	}
}
