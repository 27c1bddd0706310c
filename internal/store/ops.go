package store

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// retryAttempts/backoff bound the exponential backoff applied to
// connection-class errors only (§4.1: "never on server-returned logical
// errors" — redis.Nil and script-raised errors are never retried here).
const (
	retryAttempts   = 3
	retryBaseDelay  = 50 * time.Millisecond
	retryMaxDelay   = 1 * time.Second
)

// isConnErr reports whether err looks like a transport-level failure
// (dial/read/write/timeout) rather than a logical result from the server.
func isConnErr(err error) bool {
	if err == nil || errors.Is(err, redis.Nil) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, redis.ErrClosed)
}

// withRetry runs op, retrying with capped exponential backoff only when the
// failure is connection-class. Logical errors (including script-returned
// ones) propagate on the first attempt, unmodified, per §7.
func withRetry(ctx context.Context, op func() error) error {
	delay := retryBaseDelay
	var err error
	for attempt := 0; attempt < retryAttempts; attempt++ {
		err = op()
		if err == nil || !isConnErr(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > retryMaxDelay {
			delay = retryMaxDelay
		}
	}
	return err
}

// HashSet sets multiple fields on a hash in one round trip.
func (c *Client) HashSet(ctx context.Context, key string, fields map[string]any) error {
	return withRetry(ctx, func() error {
		return c.standard.HSet(ctx, key, fields).Err()
	})
}

// HashGet returns one field of a hash. ok is false if the field or key is absent.
func (c *Client) HashGet(ctx context.Context, key, field string) (value string, ok bool, err error) {
	err = withRetry(ctx, func() error {
		v, e := c.standard.HGet(ctx, key, field).Result()
		if errors.Is(e, redis.Nil) {
			return nil
		}
		if e != nil {
			return e
		}
		value, ok = v, true
		return nil
	})
	return value, ok, err
}

// HashGetAll returns every field of a hash. An absent key returns an empty,
// non-nil map (matches Redis HGETALL semantics).
func (c *Client) HashGetAll(ctx context.Context, key string) (map[string]string, error) {
	var result map[string]string
	err := withRetry(ctx, func() error {
		v, e := c.standard.HGetAll(ctx, key).Result()
		if e != nil {
			return e
		}
		result = v
		return nil
	})
	return result, err
}

// HashIncr increments a single hash field by delta, creating it at delta if
// absent.
func (c *Client) HashIncr(ctx context.Context, key, field string, delta int64) (int64, error) {
	var n int64
	err := withRetry(ctx, func() error {
		v, e := c.standard.HIncrBy(ctx, key, field, delta).Result()
		n = v
		return e
	})
	return n, err
}

// HashDel removes a key entirely with DEL, whatever its type (used to
// release the provider refresh lock).
func (c *Client) HashDel(ctx context.Context, key string) error {
	return withRetry(ctx, func() error {
		return c.standard.Del(ctx, key).Err()
	})
}

// HashSetNX sets a single hash field only if it does not already exist,
// so concurrent initializers of a shared record do not clobber each other.
func (c *Client) HashSetNX(ctx context.Context, key, field string, value any) (bool, error) {
	var set bool
	err := withRetry(ctx, func() error {
		v, e := c.standard.HSetNX(ctx, key, field, value).Result()
		set = v
		return e
	})
	return set, err
}

// SetNX sets key to value with a TTL only if key does not already exist —
// the mutual-exclusion primitive behind the provider-state refresh lock.
func (c *Client) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	var acquired bool
	err := withRetry(ctx, func() error {
		v, e := c.standard.SetNX(ctx, key, value, ttl).Result()
		acquired = v
		return e
	})
	return acquired, err
}

// Expire sets a TTL on a key (used for heartbeats).
func (c *Client) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return withRetry(ctx, func() error {
		return c.standard.Expire(ctx, key, ttl).Err()
	})
}

// ListPushLeft pushes one or more values onto the left of a list.
func (c *Client) ListPushLeft(ctx context.Context, key string, values ...string) error {
	return withRetry(ctx, func() error {
		args := make([]any, len(values))
		for i, v := range values {
			args[i] = v
		}
		return c.standard.LPush(ctx, key, args...).Err()
	})
}

// ListRemove removes up to one occurrence of value from key.
func (c *Client) ListRemove(ctx context.Context, key, value string) error {
	return withRetry(ctx, func() error {
		return c.standard.LRem(ctx, key, 1, value).Err()
	})
}

// ListRange returns every element of a list, head to tail — used by
// requeue_orphaned() to build the set of task_ids currently queued.
func (c *Client) ListRange(ctx context.Context, key string) ([]string, error) {
	var values []string
	err := withRetry(ctx, func() error {
		v, e := c.standard.LRange(ctx, key, 0, -1).Result()
		values = v
		return e
	})
	return values, err
}

// ListLen returns the current depth of a list (used for queue_status()).
func (c *Client) ListLen(ctx context.Context, key string) (int64, error) {
	var n int64
	err := withRetry(ctx, func() error {
		v, e := c.standard.LLen(ctx, key).Result()
		n = v
		return e
	})
	return n, err
}

// PopBlockingRight performs a right-pop across one or more keys, blocking up
// to timeout on the dedicated blocking pool. It returns ("", "", nil) on a
// timeout miss (no error — a miss is an expected outcome, not a failure).
// timeout must be > 0; callers loop with their own short timeout so
// shutdown can cancel promptly (§5).
func (c *Client) PopBlockingRight(ctx context.Context, timeout time.Duration, keys ...string) (queue, value string, err error) {
	err = withRetry(ctx, func() error {
		result, e := c.blocking.BRPop(ctx, timeout, keys...).Result()
		if errors.Is(e, redis.Nil) {
			return nil
		}
		if e != nil {
			return e
		}
		if len(result) == 2 {
			queue, value = result[0], result[1]
		}
		return nil
	})
	return queue, value, err
}

// ZAdd adds a member to an ordered set with the given score.
func (c *Client) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return withRetry(ctx, func() error {
		return c.standard.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
	})
}

// ZRangeByScoreMax returns up to count members with score <= max, ascending,
// ties broken lexicographically by member (P7) — the default ZRANGEBYSCORE
// ordering for equal scores.
func (c *Client) ZRangeByScoreMax(ctx context.Context, key string, max float64, count int64) ([]string, error) {
	var members []string
	err := withRetry(ctx, func() error {
		v, e := c.standard.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min:   "-inf",
			Max:   strconv.FormatFloat(max, 'f', -1, 64),
			Count: count,
		}).Result()
		members = v
		return e
	})
	return members, err
}

// ZCard returns the cardinality of an ordered set (used for queue_status()).
func (c *Client) ZCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := withRetry(ctx, func() error {
		v, e := c.standard.ZCard(ctx, key).Result()
		n = v
		return e
	})
	return n, err
}

// ZRemove removes a member from an ordered set.
func (c *Client) ZRemove(ctx context.Context, key, member string) error {
	return withRetry(ctx, func() error {
		return c.standard.ZRem(ctx, key, member).Err()
	})
}

// SetAdd adds a member to a plain (unordered) set.
func (c *Client) SetAdd(ctx context.Context, key, member string) error {
	return withRetry(ctx, func() error {
		return c.standard.SAdd(ctx, key, member).Err()
	})
}

// SetMembers returns all members of a plain set.
func (c *Client) SetMembers(ctx context.Context, key string) ([]string, error) {
	var members []string
	err := withRetry(ctx, func() error {
		v, e := c.standard.SMembers(ctx, key).Result()
		members = v
		return e
	})
	return members, err
}

// SetRemove removes a member from a plain set.
func (c *Client) SetRemove(ctx context.Context, key, member string) error {
	return withRetry(ctx, func() error {
		return c.standard.SRem(ctx, key, member).Err()
	})
}

// Incr increments a counter by delta (may be negative) and returns the new value.
func (c *Client) Incr(ctx context.Context, key string, delta int64) (int64, error) {
	var n int64
	err := withRetry(ctx, func() error {
		v, e := c.standard.IncrBy(ctx, key, delta).Result()
		n = v
		return e
	})
	return n, err
}

// Publish sends message on channel. Delivery is best-effort (§4.10):
// subscribers that are not currently connected simply miss it.
func (c *Client) Publish(ctx context.Context, channel, message string) error {
	return withRetry(ctx, func() error {
		return c.standard.Publish(ctx, channel, message).Err()
	})
}

// Subscribe returns a channel of message payloads for the given channel
// name and a cancel function that closes the underlying subscription.
func (c *Client) Subscribe(ctx context.Context, channel string) (<-chan string, func(), error) {
	pubsub := c.standard.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, err
	}

	out := make(chan string, 64)
	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, func() { _ = pubsub.Close() }, nil
}

// RunScript evaluates a pre-loaded Lua script atomically on the standard
// pool. Connection-class failures are retried; a script-raised logical
// error (e.g. "conflict") is returned to the caller unmodified.
func (c *Client) RunScript(ctx context.Context, script *redis.Script, keys []string, args ...any) (any, error) {
	var result any
	err := withRetry(ctx, func() error {
		v, e := script.Run(ctx, c.standard, keys, args...).Result()
		if e != nil {
			return e
		}
		result = v
		return nil
	})
	return result, err
}
