package ratelimit

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucket refills at rps tokens per second up to burst and takes one
// token per call. Returns 1 when a token was taken.
const tokenBucket = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local rps = tonumber(ARGV[3])

local t = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(t[1]) or burst
local ts = tonumber(t[2]) or now
local delta = math.max(0, now - ts)
tokens = math.min(burst, tokens + delta * rps / 1000.0)

local allowed = 0
if tokens >= 1.0 then
  tokens = tokens - 1.0
  allowed = 1
end
redis.call('HSET', key, 'tokens', tokens, 'ts', now)
redis.call('PEXPIRE', key, 60000)
return allowed
`

// RedisLimiter shares token buckets between service instances.
type RedisLimiter struct {
	rdb    *redis.Client
	script *redis.Script
	rps    float64
	burst  int
	prefix string
}

// NewRedisLimiter creates a limiter backed by rdb.
func NewRedisLimiter(rdb *redis.Client, rps float64, burst int) *RedisLimiter {
	return &RedisLimiter{
		rdb:    rdb,
		script: redis.NewScript(tokenBucket),
		rps:    rps,
		burst:  burst,
		prefix: "formdrop:rl:",
	}
}

// Allow consumes a token for key. If Redis is unreachable the request is
// let through so the limiter cannot take submissions down with it.
func (l *RedisLimiter) Allow(ctx context.Context, key string) bool {
	now := time.Now().UnixMilli()
	n, err := l.script.Run(ctx, l.rdb, []string{l.prefix + key}, now, l.burst, l.rps).Int()
	if err != nil {
		slog.Warn("redis rate limiter unavailable, allowing request", "error", err)
		return true
	}
	return n == 1
}
