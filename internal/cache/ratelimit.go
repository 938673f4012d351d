package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimitResult is the outcome of one token-bucket draw.
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	ResetAt    time.Time
	RetryAfter time.Duration
}

// bucket describes one family of limiter keys.
type bucket struct {
	prefix string
	ttl    time.Duration
}

var (
	ownerBucket = bucket{prefix: "ratelimit:owner:", ttl: 2 * time.Minute}
	ipBucket    = bucket{prefix: "ratelimit:ip:", ttl: 10 * time.Second}
)

// drawScript refills the bucket for the elapsed milliseconds and takes one token.
// Returns {allowed, retry_after_ms, tokens_left}.
var drawScript = redis.NewScript(`
local rate = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local ttl = tonumber(ARGV[4])

local state = redis.call('HMGET', KEYS[1], 'tokens', 'at')
local tokens = tonumber(state[1]) or burst
local at = tonumber(state[2]) or now

tokens = math.min(burst, tokens + math.max(0, now - at) * rate / 1000)

local allowed = 0
local wait = 0
if tokens >= 1 then
	tokens = tokens - 1
	allowed = 1
else
	wait = math.ceil((1 - tokens) * 1000 / rate)
end

redis.call('HSET', KEYS[1], 'tokens', tokens, 'at', now)
redis.call('PEXPIRE', KEYS[1], ttl)
return {allowed, wait, math.floor(tokens)}
`)

// CheckOwnerRateLimit draws from the owner's bucket. A zero rate disables the limit.
func (c *Cache) CheckOwnerRateLimit(ctx context.Context, ownerID string, ratePerMinute, burst int) (*RateLimitResult, error) {
	if ratePerMinute == 0 {
		return c.unlimited(burst), nil
	}
	return c.draw(ctx, ownerBucket, ownerID, float64(ratePerMinute)/60, burst)
}

// CheckIPRateLimit draws from the client address's bucket.
func (c *Cache) CheckIPRateLimit(ctx context.Context, ip string, ratePerSecond, burst int) (*RateLimitResult, error) {
	if ratePerSecond == 0 {
		return c.unlimited(burst), nil
	}
	return c.draw(ctx, ipBucket, ip, float64(ratePerSecond), burst)
}

// draw fails open: a Redis outage must not take the API down with it.
func (c *Cache) draw(ctx context.Context, b bucket, id string, perSecond float64, burst int) (*RateLimitResult, error) {
	now := c.now()
	out, err := drawScript.Run(ctx, c.client,
		[]string{c.key(b.prefix, hashIdentity(id))},
		perSecond, burst, now.UnixMilli(), b.ttl.Milliseconds(),
	).Int64Slice()
	if err != nil || len(out) != 3 {
		return c.unlimited(burst), nil
	}

	res := &RateLimitResult{
		Allowed:    out[0] == 1,
		Remaining:  out[2],
		RetryAfter: time.Duration(out[1]) * time.Millisecond,
	}
	res.ResetAt = now.Add(refillTime(float64(burst)-float64(res.Remaining), perSecond))
	return res, nil
}

func (c *Cache) unlimited(burst int) *RateLimitResult {
	return &RateLimitResult{
		Allowed:   true,
		Remaining: int64(burst),
		ResetAt:   c.now().Add(time.Minute),
	}
}

// refillTime is how long the bucket needs to regain missing tokens.
func refillTime(missing, perSecond float64) time.Duration {
	if missing <= 0 || perSecond <= 0 {
		return 0
	}
	return time.Duration(math.Ceil(missing / perSecond * float64(time.Second)))
}

// hashIdentity keeps raw addresses and subject ids out of Redis keys.
func hashIdentity(v string) string {
	sum := sha256.Sum256([]byte(v))
	return hex.EncodeToString(sum[:8])
}
