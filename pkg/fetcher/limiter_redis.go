package fetcher

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// sharedBucketScript runs the token bucket atomically in Redis so multiple
// fetcher processes hitting the same source share one budget.
// KEYS[1] = bucket key (one per source host)
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity (max tokens)
// ARGV[3] = cost (tokens to consume)
// ARGV[4] = current unix timestamp (seconds, microsecond precision)
var sharedBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    local added = elapsed * rate
    tokens = tokens + added
    if tokens > capacity then
        tokens = capacity
    end
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return allowed
`)

// SharedBucket is a Redis-backed token bucket shared across fetcher processes.
// The in-process rate.Limiter still applies; this adds a cross-process cap for
// deployments with more than one acquisition worker pool.
type SharedBucket struct {
	client *redis.Client
	rps    float64
}

// NewSharedBucket creates a shared bucket against the given Redis address.
func NewSharedBucket(addr, password string, db int, rps float64) *SharedBucket {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &SharedBucket{client: rdb, rps: rps}
}

// Allow consumes one token for the source host, reporting whether the fetch
// may start now.
func (b *SharedBucket) Allow(ctx context.Context, sourceHost string) (bool, error) {
	key := fmt.Sprintf("fetch_bucket:%s", sourceHost)
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := sharedBucketScript.Run(ctx, b.client, []string{key}, b.rps, 1, 1, now).Int64()
	if err != nil {
		return false, fmt.Errorf("shared bucket: %w", err)
	}
	return res == 1, nil
}

// Close releases the Redis connection.
func (b *SharedBucket) Close() error {
	return b.client.Close()
}
