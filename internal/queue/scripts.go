package queue

import "github.com/redis/go-redis/v9"

// claimScript pops the best waiting job and leases it in one step.
// KEYS[1] waiting set, KEYS[2] active set.
// ARGV[1] lease deadline (unix ms), ARGV[2] lease token, ARGV[3] job key prefix.
// Members whose hash has been purged are dropped.
var claimScript = redis.NewScript(`
while true do
  local popped = redis.call('ZPOPMIN', KEYS[1])
  if #popped == 0 then
    return false
  end
  local id = popped[1]
  if redis.call('EXISTS', ARGV[3] .. id) == 1 then
    redis.call('ZADD', KEYS[2], ARGV[1], id)
    redis.call('HSET', ARGV[3] .. id, 'lease_token', ARGV[2])
    return id
  end
end
`)
