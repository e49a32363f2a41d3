// Package throttle rate-limits logical requests per user with a redis-backed
// token bucket. It fails open on redis errors so a cache outage degrades to
// credit-gating only rather than a hard outage.
package throttle

import (
	"time"

	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/TeacherMada/tutor-engine/internal/domain"
)

// BucketConfig describes one user's token bucket.
type BucketConfig struct {
	Capacity   int64
	RefillRate float64 // tokens per second
}

// PerMinute builds a bucket allowing perMinute requests with burst capacity
// equal to the per-minute cap.
func PerMinute(perMinute int) BucketConfig {
	if perMinute <= 0 {
		return BucketConfig{}
	}
	return BucketConfig{
		Capacity:   int64(perMinute),
		RefillRate: float64(perMinute) / 60.0,
	}
}

// RedisThrottle implements domain.Throttle with a Lua token bucket so the
// refill-and-take is a single atomic redis round trip.
type RedisThrottle struct {
	redis  *redis.Client
	bucket BucketConfig
	script *redis.Script
}

// New constructs a RedisThrottle; a nil client yields a throttle that always
// allows.
func New(rdb *redis.Client, bucket BucketConfig) *RedisThrottle {
	if rdb == nil {
		return nil
	}
	return &RedisThrottle{
		redis:  rdb,
		bucket: bucket,
		script: redis.NewScript(luaTokenBucketScript),
	}
}

const luaTokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local tokens = capacity
local last_refill = now

local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] ~= false and data[1] ~= nil then
  tokens = tonumber(data[1])
end
if data[2] ~= false and data[2] ~= nil then
  last_refill = tonumber(data[2])
end

local delta = now - last_refill
if delta < 0 then
  delta = 0
end

tokens = math.min(capacity, tokens + delta * refill_rate)
last_refill = now

local allowed = 0
local retry_after = 0

if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  local shortage = cost - tokens
  if refill_rate > 0 then
    retry_after = shortage / refill_rate
  end
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)

return { allowed, retry_after }
`

// Allow takes cost tokens from the user's bucket. Denials report how long the
// caller should wait before retrying.
func (t *RedisThrottle) Allow(ctx domain.Context, key string, cost int64) (bool, time.Duration, error) {
	if t == nil || t.redis == nil || t.bucket.Capacity <= 0 || t.bucket.RefillRate <= 0 {
		return true, 0, nil
	}
	if cost <= 0 {
		cost = 1
	}

	nowSec := float64(time.Now().UnixNano()) / 1e9
	redisKey := "throttle:user:" + key
	res, err := t.script.Run(ctx, t.redis, []string{redisKey}, t.bucket.Capacity, t.bucket.RefillRate, nowSec, cost).Result()
	if err != nil {
		slog.Error("redis throttle script error", slog.String("key", key), slog.Any("error", err))
		return true, 0, err
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		slog.Error("redis throttle unexpected script result", slog.String("key", key), slog.Any("result", res))
		return true, 0, nil
	}

	allowed := toInt64(vals[0]) == 1
	retryAfter := time.Duration(toFloat64(vals[1]) * float64(time.Second))
	return allowed, retryAfter, nil
}

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return 0
	}
}
