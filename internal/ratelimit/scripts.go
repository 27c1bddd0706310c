package ratelimit

import "github.com/redis/go-redis/v9"

// initScript lazily seeds the bucket hash the first time it is touched,
// without clobbering a bucket another process already initialized (§4.3).
//
// KEYS[1] rate_limit:bucket
// ARGV[1] capacity
// ARGV[2] refill_rate (tokens/sec)
// ARGV[3] now (unix seconds, float)
var initScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('HSET', KEYS[1],
    'tokens', ARGV[1],
    'capacity', ARGV[1],
    'refill_rate', ARGV[2],
    'last_refill', ARGV[3]
  )
end
return 'OK'
`)

// acquireScript implements C3.acquire (§4.3): refill by elapsed time since
// last_refill, clip to capacity, then grant or deny atomically so that
// concurrent dispatchers across every worker process never over-draw the
// shared budget (P5).
//
// KEYS[1] rate_limit:bucket
// ARGV[1] requested tokens
// ARGV[2] now (unix seconds, float)
//
// Returns {status, wait_seconds, tokens_remaining}. status is "GRANTED",
// "DENIED", or "UNINITIALIZED" (bucket never seeded — caller must EnsureBucket first).
var acquireScript = redis.NewScript(`
local capacity = tonumber(redis.call('HGET', KEYS[1], 'capacity'))
if not capacity then
  return {'UNINITIALIZED', '0', '0'}
end
local refillRate = tonumber(redis.call('HGET', KEYS[1], 'refill_rate'))
local lastRefill = tonumber(redis.call('HGET', KEYS[1], 'last_refill')) or tonumber(ARGV[2])
local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens')) or 0

local now = tonumber(ARGV[2])
local elapsed = now - lastRefill
if elapsed < 0 then elapsed = 0 end
tokens = math.min(capacity, tokens + elapsed * refillRate)

local requested = tonumber(ARGV[1])
if tokens >= requested then
  tokens = tokens - requested
  redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'last_refill', tostring(now))
  return {'GRANTED', '0', tostring(tokens)}
end

redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'last_refill', tostring(now))
local wait = 0
if refillRate > 0 then
  wait = (requested - tokens) / refillRate
end
return {'DENIED', tostring(wait), tostring(tokens)}
`)

// updateCapacityScript implements the configuration-refresh path (§4.3):
// changing capacity/refill_rate never grants a head start — tokens already
// above the new capacity are clipped down to it.
//
// KEYS[1] rate_limit:bucket
// ARGV[1] new capacity
// ARGV[2] new refill_rate
var updateCapacityScript = redis.NewScript(`
local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens')) or 0
local newCapacity = tonumber(ARGV[1])
if tokens > newCapacity then
  tokens = newCapacity
end
redis.call('HSET', KEYS[1], 'capacity', ARGV[1], 'refill_rate', ARGV[2], 'tokens', tostring(tokens))
return 'OK'
`)
