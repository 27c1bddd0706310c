package taskstore

import "github.com/redis/go-redis/v9"

// createScript implements C2.create: if the record is absent, write it with
// state=PENDING, bump the PENDING counter, and push to the primary queue —
// all inside one round trip so a racing duplicate create reliably observes
// EXISTS and fails AlreadyExists instead of double-enqueuing.
//
// KEYS[1] task:{id}
// KEYS[2] tasks:pending:primary
// KEYS[3] metrics:tasks:state:pending
// KEYS[4] event channel
// KEYS[5..8] tasks:pending:primary, tasks:pending:retry, tasks:scheduled, dlq:tasks (depth snapshot)
// KEYS[9..14] counter[pending,active,completed,failed,scheduled,dlq] (snapshot)
// ARGV[1] task_id
// ARGV[2] task_type
// ARGV[3] payload
// ARGV[4] max_retries
// ARGV[5] now (RFC3339Nano)
// ARGV[6] initial state_history entry, JSON
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 'ALREADY_EXISTS'
end

redis.call('HSET', KEYS[1],
  'task_id', ARGV[1],
  'task_type', ARGV[2],
  'payload', ARGV[3],
  'state', 'PENDING',
  'retry_count', '0',
  'max_retries', ARGV[4],
  'created_at', ARGV[5],
  'updated_at', ARGV[5],
  'state_history', '[' .. ARGV[6] .. ']',
  'error_history', '[]'
)
redis.call('LPUSH', KEYS[2], ARGV[1])
redis.call('INCR', KEYS[3])

local primaryDepth = redis.call('LLEN', KEYS[5])
local retryDepth = redis.call('LLEN', KEYS[6])
local scheduledDepth = redis.call('ZCARD', KEYS[7])
local dlqDepth = redis.call('LLEN', KEYS[8])

local cPending = tonumber(redis.call('GET', KEYS[9]) or '0')
local cActive = tonumber(redis.call('GET', KEYS[10]) or '0')
local cCompleted = tonumber(redis.call('GET', KEYS[11]) or '0')
local cFailed = tonumber(redis.call('GET', KEYS[12]) or '0')
local cScheduled = tonumber(redis.call('GET', KEYS[13]) or '0')
local cDlq = tonumber(redis.call('GET', KEYS[14]) or '0')

local event = '{"type":"task_created","task_id":"' .. ARGV[1] ..
  '","new_state":"PENDING","queue_depths":{"primary":' .. primaryDepth ..
  ',"retry":' .. retryDepth .. ',"scheduled":' .. scheduledDepth ..
  ',"dlq":' .. dlqDepth .. '},"state_counts":{"pending":' .. cPending ..
  ',"active":' .. cActive .. ',"completed":' .. cCompleted ..
  ',"failed":' .. cFailed .. ',"scheduled":' .. cScheduled ..
  ',"dlq":' .. cDlq .. '},"timestamp":"' .. ARGV[5] .. '"}'

redis.call('PUBLISH', KEYS[4], event)

return 'OK'
`)

// transitionScript implements C2.transition: CAS on state, patch fields,
// queue push/remove, counter delta, state_history append, and a
// best-effort publish of the resulting event with a full queue/counter
// snapshot (§6.2) — all atomically.
//
// KEYS[1]  task:{id}
// KEYS[2]  counter[from_state]
// KEYS[3]  counter[to_state]
// KEYS[4]  queue to remove task_id from (LREM or ZREM, per ARGV[11]); 'none' if unused
// KEYS[5]  queue/zset to push task_id onto; 'none' if unused
// KEYS[6]  event channel
// KEYS[7]  tasks:pending:primary   (depth snapshot)
// KEYS[8]  tasks:pending:retry     (depth snapshot)
// KEYS[9]  tasks:scheduled         (depth snapshot, ZCARD)
// KEYS[10] dlq:tasks               (depth snapshot)
// KEYS[11..16] counter[pending,active,completed,failed,scheduled,dlq] (snapshot)
//
// ARGV[1]  task_id
// ARGV[2]  from_state
// ARGV[3]  to_state
// ARGV[4]  now (RFC3339Nano)
// ARGV[5]  value to remove from KEYS[4]; '' if none
// ARGV[6]  value to push onto KEYS[5]; '' if none
// ARGV[7]  '1' if push is a ZADD (KEYS[5] is a zset), else LPUSH
// ARGV[8]  zset score (only meaningful when ARGV[7] == '1')
// ARGV[9]  state_history entry to append, JSON object (no brackets)
// ARGV[10] patch field count N
// ARGV[11] '1' if removal from KEYS[4] is a ZREM (KEYS[4] is a zset), else LREM
// ARGV[12..12+2N-1] patch field/value pairs, alternating
var transitionScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], 'state')
if not current or current ~= ARGV[2] then
  return 'CONFLICT'
end

local patchCount = tonumber(ARGV[10])
local idx = 12
for _ = 1, patchCount do
  local field = ARGV[idx]
  local value = ARGV[idx + 1]
  redis.call('HSET', KEYS[1], field, value)
  idx = idx + 2
end

redis.call('HSET', KEYS[1], 'state', ARGV[3], 'updated_at', ARGV[4])

local hist = redis.call('HGET', KEYS[1], 'state_history')
if not hist or hist == '' or hist == '[]' then
  redis.call('HSET', KEYS[1], 'state_history', '[' .. ARGV[9] .. ']')
else
  redis.call('HSET', KEYS[1], 'state_history', string.sub(hist, 1, -2) .. ',' .. ARGV[9] .. ']')
end

redis.call('DECR', KEYS[2])
redis.call('INCR', KEYS[3])

if ARGV[5] ~= '' then
  if ARGV[11] == '1' then
    redis.call('ZREM', KEYS[4], ARGV[5])
  else
    redis.call('LREM', KEYS[4], 1, ARGV[5])
  end
end
if ARGV[6] ~= '' then
  if ARGV[7] == '1' then
    redis.call('ZADD', KEYS[5], tonumber(ARGV[8]), ARGV[6])
  else
    redis.call('LPUSH', KEYS[5], ARGV[6])
  end
end

local primaryDepth = redis.call('LLEN', KEYS[7])
local retryDepth = redis.call('LLEN', KEYS[8])
local scheduledDepth = redis.call('ZCARD', KEYS[9])
local dlqDepth = redis.call('LLEN', KEYS[10])

local cPending = tonumber(redis.call('GET', KEYS[11]) or '0')
local cActive = tonumber(redis.call('GET', KEYS[12]) or '0')
local cCompleted = tonumber(redis.call('GET', KEYS[13]) or '0')
local cFailed = tonumber(redis.call('GET', KEYS[14]) or '0')
local cScheduled = tonumber(redis.call('GET', KEYS[15]) or '0')
local cDlq = tonumber(redis.call('GET', KEYS[16]) or '0')

local event = '{"type":"task_state_changed","task_id":"' .. ARGV[1] ..
  '","old_state":"' .. ARGV[2] .. '","new_state":"' .. ARGV[3] ..
  '","queue_depths":{"primary":' .. primaryDepth .. ',"retry":' .. retryDepth ..
  ',"scheduled":' .. scheduledDepth .. ',"dlq":' .. dlqDepth ..
  '},"state_counts":{"pending":' .. cPending .. ',"active":' .. cActive ..
  ',"completed":' .. cCompleted .. ',"failed":' .. cFailed ..
  ',"scheduled":' .. cScheduled .. ',"dlq":' .. cDlq ..
  '},"timestamp":"' .. ARGV[4] .. '"}'

redis.call('PUBLISH', KEYS[6], event)

return 'OK'
`)

// recordErrorScript implements C2.record_error: append error_history and set
// error_type — no state change, no counter delta. last_error is written by
// RecordError after the script runs.
//
// KEYS[1] task:{id}
// ARGV[1] error_type
// ARGV[2] error event entry to append, JSON object (no brackets)
var recordErrorScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 'NOT_FOUND'
end

local hist = redis.call('HGET', KEYS[1], 'error_history')
if not hist or hist == '' or hist == '[]' then
  redis.call('HSET', KEYS[1], 'error_history', '[' .. ARGV[2] .. ']')
else
  redis.call('HSET', KEYS[1], 'error_history', string.sub(hist, 1, -2) .. ',' .. ARGV[2] .. ']')
end
redis.call('HSET', KEYS[1], 'error_type', ARGV[1])

return 'OK'
`)

// deleteScript implements C2.delete: remove the record, any queue
// membership, and decrement the relevant counter, then publish a
// task_state_changed event carrying the same queue/counter snapshot and
// real timestamp every other event in this file carries (§6.2).
//
// KEYS[1] task:{id}
// KEYS[2] tasks:pending:primary
// KEYS[3] tasks:pending:retry
// KEYS[4] tasks:scheduled
// KEYS[5] dlq:tasks
// KEYS[6] event channel
// KEYS[7..12] counter[pending,active,completed,failed,scheduled,dlq]
// ARGV[1] task_id
// ARGV[2] now (RFC3339Nano)
var deleteScript = redis.NewScript(`
local state = redis.call('HGET', KEYS[1], 'state')
if not state then
  return 'NOT_FOUND'
end

redis.call('DEL', KEYS[1])
redis.call('LREM', KEYS[2], 1, ARGV[1])
redis.call('LREM', KEYS[3], 1, ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[1])
redis.call('LREM', KEYS[5], 1, ARGV[1])

local counterKey = nil
if state == 'PENDING' then counterKey = KEYS[7]
elseif state == 'ACTIVE' then counterKey = KEYS[8]
elseif state == 'COMPLETED' then counterKey = KEYS[9]
elseif state == 'FAILED' then counterKey = KEYS[10]
elseif state == 'SCHEDULED' then counterKey = KEYS[11]
elseif state == 'DLQ' then counterKey = KEYS[12]
end
if counterKey then
  redis.call('DECR', counterKey)
end

local primaryDepth = redis.call('LLEN', KEYS[2])
local retryDepth = redis.call('LLEN', KEYS[3])
local scheduledDepth = redis.call('ZCARD', KEYS[4])
local dlqDepth = redis.call('LLEN', KEYS[5])

local cPending = tonumber(redis.call('GET', KEYS[7]) or '0')
local cActive = tonumber(redis.call('GET', KEYS[8]) or '0')
local cCompleted = tonumber(redis.call('GET', KEYS[9]) or '0')
local cFailed = tonumber(redis.call('GET', KEYS[10]) or '0')
local cScheduled = tonumber(redis.call('GET', KEYS[11]) or '0')
local cDlq = tonumber(redis.call('GET', KEYS[12]) or '0')

local event = '{"type":"task_state_changed","task_id":"' .. ARGV[1] ..
  '","old_state":"' .. state .. '","new_state":"DELETED","queue_depths":{"primary":' .. primaryDepth ..
  ',"retry":' .. retryDepth .. ',"scheduled":' .. scheduledDepth ..
  ',"dlq":' .. dlqDepth .. '},"state_counts":{"pending":' .. cPending ..
  ',"active":' .. cActive .. ',"completed":' .. cCompleted ..
  ',"failed":' .. cFailed .. ',"scheduled":' .. cScheduled ..
  ',"dlq":' .. cDlq .. '},"timestamp":"' .. ARGV[2] .. '"}'
redis.call('PUBLISH', KEYS[6], event)

return 'OK'
`)
