package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "ratelimit:"

	// Bucket state expires after an hour of inactivity.
	bucketTTL = time.Hour
)

// Tier names map inbound callers to bucket sizes.
const (
	TierAnonymous = "anonymous"
	TierUser      = "user"
	TierEditor    = "editor"
	TierAdmin     = "admin"
)

// Bucket holds the token-bucket parameters for one tier.
type Bucket struct {
	MaxTokens  float64
	RefillRate float64 // tokens per second
}

var tiers = map[string]Bucket{
	TierAnonymous: {MaxTokens: 20, RefillRate: 0.2},
	TierUser:      {MaxTokens: 60, RefillRate: 1},
	TierEditor:    {MaxTokens: 120, RefillRate: 2},
	TierAdmin:     {MaxTokens: 300, RefillRate: 5},
}

// TierBucket resolves a tier name, defaulting unknown names to anonymous.
func TierBucket(tier string) Bucket {
	if b, ok := tiers[tier]; ok {
		return b
	}
	return tiers[TierAnonymous]
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed           bool
	Remaining         float64
	RetryAfterSeconds int
}

// tokenBucketScript refills and deducts in one server-side evaluation so the
// check is atomic across concurrent callers.
//
// KEYS[1] = bucket key
// ARGV[1] = max tokens, ARGV[2] = refill rate/sec, ARGV[3] = cost,
// ARGV[4] = now (unix ms), ARGV[5] = state TTL ms
// Returns {allowed(0/1), remaining tokens ×1000, retry-after seconds}
var tokenBucketScript = redis.NewScript(`
	local tokens = tonumber(ARGV[1])
	local rate = tonumber(ARGV[2])
	local cost = tonumber(ARGV[3])
	local now = tonumber(ARGV[4])

	local state = redis.call("hmget", KEYS[1], "tokens", "ts")
	if state[1] then
		local elapsed = (now - tonumber(state[2])) / 1000
		tokens = math.min(tonumber(ARGV[1]), tonumber(state[1]) + elapsed * rate)
	end

	local allowed = 0
	local retry = 0
	if tokens >= cost then
		allowed = 1
		tokens = tokens - cost
	else
		retry = math.ceil((cost - tokens) / rate)
	end

	redis.call("hset", KEYS[1], "tokens", tokens, "ts", now)
	redis.call("pexpire", KEYS[1], tonumber(ARGV[5]))

	return {allowed, math.floor(tokens * 1000), retry}
`)

// Limiter is a Redis-backed per-key token bucket shared across instances.
// It fails open: if Redis is unreachable the request is admitted with a full
// remaining budget rather than blocking traffic.
type Limiter struct {
	client *redis.Client
}

func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{client: client}
}

// Allow checks and deducts one token for key under the tier's bucket.
func (l *Limiter) Allow(ctx context.Context, key, tier string) Decision {
	return l.AllowBucket(ctx, tier+":"+key, TierBucket(tier))
}

// AllowBucket checks and deducts one token for key under an explicit bucket.
func (l *Limiter) AllowBucket(ctx context.Context, key string, bucket Bucket) Decision {
	res, err := tokenBucketScript.Run(ctx, l.client,
		[]string{keyPrefix + key},
		bucket.MaxTokens,
		bucket.RefillRate,
		1,
		time.Now().UnixMilli(),
		bucketTTL.Milliseconds(),
	).Result()
	if err != nil {
		// Fail open.
		slog.WarnContext(ctx, "rate limiter unavailable, admitting request", "error", err)
		return Decision{Allowed: true, Remaining: bucket.MaxTokens}
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) != 3 {
		slog.WarnContext(ctx, "rate limiter returned malformed result, admitting request",
			"result", fmt.Sprintf("%v", res))
		return Decision{Allowed: true, Remaining: bucket.MaxTokens}
	}

	allowed, _ := vals[0].(int64)
	remainingMillis, _ := vals[1].(int64)
	retry, _ := vals[2].(int64)

	return Decision{
		Allowed:           allowed == 1,
		Remaining:         math.Floor(float64(remainingMillis)) / 1000,
		RetryAfterSeconds: int(retry),
	}
}
