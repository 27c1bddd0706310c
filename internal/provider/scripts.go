package provider

import "github.com/redis/go-redis/v9"

// reportSuccessScript implements the success half of C5's write API:
// consecutive_failures resets, circuit_open clears, state becomes active.
//
// KEYS[1] provider:state
// ARGV[1] now (RFC3339Nano)
var reportSuccessScript = redis.NewScript(`
redis.call('HSET', KEYS[1],
  'state', 'active',
  'message', '',
  'consecutive_failures', '0',
  'circuit_open', 'false',
  'last_check', ARGV[1]
)
return 'OK'
`)

// reportFailureScript implements the failure half of C5's write API:
// bumps consecutive_failures, classifies state by kind, opens the circuit
// once the threshold is reached, and increments a daily per-kind counter —
// all atomically so concurrent workers' reports never race (§4.5).
//
// KEYS[1] provider:state
// KEYS[2] provider:metrics:{YYYY-MM-DD}
// ARGV[1] kind
// ARGV[2] message
// ARGV[3] now (RFC3339Nano)
// ARGV[4] circuit_threshold
// ARGV[5] http_status (0 if not applicable)
var reportFailureScript = redis.NewScript(`
local failures = tonumber(redis.call('HGET', KEYS[1], 'consecutive_failures')) or 0
failures = failures + 1

local circuitOpen = 'false'
if failures >= tonumber(ARGV[4]) then
  circuitOpen = 'true'
end

redis.call('HSET', KEYS[1],
  'state', ARGV[1],
  'message', ARGV[2],
  'consecutive_failures', tostring(failures),
  'circuit_open', circuitOpen,
  'last_check', ARGV[3]
)
if ARGV[5] ~= '0' then
  redis.call('HSET', KEYS[1], 'last_http_status', ARGV[5])
end

redis.call('HINCRBY', KEYS[2], ARGV[1], 1)

return 'OK'
`)
