package queue

import "github.com/redis/go-redis/v9"

// Every state transition is a single script so a crash between commands
// cannot leave a job in two structures or in none.

// KEYS: job hash, waiting, delayed
// ARGV: id, kind, payload, max_attempts, created_ms, run_at_ms, delayed(0|1)
var enqueueScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
local state = 'waiting'
if ARGV[7] == '1' then state = 'delayed' end
redis.call('HSET', KEYS[1],
  'kind', ARGV[2], 'payload', ARGV[3], 'attempts', 0, 'max_attempts', ARGV[4],
  'created_at', ARGV[5], 'run_at', ARGV[6], 'state', state, 'last_error', '')
if state == 'delayed' then
  redis.call('ZADD', KEYS[3], ARGV[6], ARGV[1])
else
  redis.call('LPUSH', KEYS[2], ARGV[1])
end
return 1
`)

// KEYS: waiting, active
// ARGV: lease deadline ms, job key prefix
var claimScript = redis.NewScript(`
while true do
  local id = redis.call('RPOP', KEYS[1])
  if not id then
    return false
  end
  local key = ARGV[2] .. id
  if redis.call('EXISTS', key) == 1 then
    redis.call('ZADD', KEYS[2], ARGV[1], id)
    redis.call('HSET', key, 'state', 'active')
    redis.call('HINCRBY', key, 'attempts', 1)
    return id
  end
end
`)

// KEYS: active
// ARGV: id, lease deadline ms
var renewScript = redis.NewScript(`
if not redis.call('ZSCORE', KEYS[1], ARGV[1]) then
  return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
return 1
`)

// KEYS: job hash, active, completed
// ARGV: id, keep, job key prefix, now ms
var completeScript = redis.NewScript(`
if redis.call('ZREM', KEYS[2], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], 'state', 'completed', 'finished_at', ARGV[4])
redis.call('LPUSH', KEYS[3], ARGV[1])
local keep = tonumber(ARGV[2])
while redis.call('LLEN', KEYS[3]) > keep do
  local old = redis.call('RPOP', KEYS[3])
  redis.call('DEL', ARGV[3] .. old)
end
return 1
`)

// KEYS: job hash, active, delayed, failed
// ARGV: id, error, now ms, retry due ms, keep, job key prefix
// Returns -1 when the job was not active, 1 when rescheduled, 0 when failed for good.
var failScript = redis.NewScript(`
if redis.call('ZREM', KEYS[2], ARGV[1]) == 0 then
  return -1
end
redis.call('HSET', KEYS[1], 'last_error', ARGV[2])
local attempts = tonumber(redis.call('HGET', KEYS[1], 'attempts') or '0')
local max = tonumber(redis.call('HGET', KEYS[1], 'max_attempts') or '1')
if attempts < max then
  redis.call('HSET', KEYS[1], 'state', 'delayed', 'run_at', ARGV[4])
  redis.call('ZADD', KEYS[3], ARGV[4], ARGV[1])
  return 1
end
redis.call('HSET', KEYS[1], 'state', 'failed', 'finished_at', ARGV[3])
redis.call('LPUSH', KEYS[4], ARGV[1])
local keep = tonumber(ARGV[5])
while redis.call('LLEN', KEYS[4]) > keep do
  local old = redis.call('RPOP', KEYS[4])
  redis.call('DEL', ARGV[6] .. old)
end
return 0
`)

// Delay does not count as an attempt, so the claim's increment is undone.
// KEYS: job hash, active, delayed
// ARGV: id, run_at ms, reason
var delayScript = redis.NewScript(`
if redis.call('ZREM', KEYS[2], ARGV[1]) == 0 then
  return 0
end
redis.call('HINCRBY', KEYS[1], 'attempts', -1)
redis.call('HSET', KEYS[1], 'state', 'delayed', 'run_at', ARGV[2], 'last_error', ARGV[3])
redis.call('ZADD', KEYS[3], ARGV[2], ARGV[1])
return 1
`)

// Moves up to limit delayed jobs due at or before now to waiting.
// KEYS: delayed, waiting
// ARGV: now ms, job key prefix, limit
var promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  local key = ARGV[2] .. id
  if redis.call('EXISTS', key) == 1 then
    redis.call('HSET', key, 'state', 'waiting')
    redis.call('LPUSH', KEYS[2], id)
  end
end
return #ids
`)

// Handles up to limit active jobs whose lease ran out. A job with attempts
// left goes back to waiting; one that has used them all is failed.
// KEYS: active, waiting, failed
// ARGV: now ms, job key prefix, limit, keep
// Returns {requeued, failed}.
var reapScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[3]))
local requeued, failed = 0, 0
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  local key = ARGV[2] .. id
  if redis.call('EXISTS', key) == 1 then
    local attempts = tonumber(redis.call('HGET', key, 'attempts') or '0')
    local max = tonumber(redis.call('HGET', key, 'max_attempts') or '1')
    if attempts < max then
      redis.call('HSET', key, 'state', 'waiting')
      redis.call('LPUSH', KEYS[2], id)
      requeued = requeued + 1
    else
      redis.call('HSET', key, 'state', 'failed', 'last_error', 'lease expired', 'finished_at', ARGV[1])
      redis.call('LPUSH', KEYS[3], id)
      failed = failed + 1
    end
  end
end
local keep = tonumber(ARGV[4])
while redis.call('LLEN', KEYS[3]) > keep do
  local old = redis.call('RPOP', KEYS[3])
  redis.call('DEL', ARGV[2] .. old)
end
return {requeued, failed}
`)
