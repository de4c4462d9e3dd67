package redis

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
)

const (
	rateLimitKeyPrefix = "rate_limit:votes:"
	rateLimitTimeout   = 500 * time.Millisecond
)

// tokenBucketScript refills the bucket for the time elapsed since the last
// call, takes one token if available and returns 1 when the call is allowed.
// ARGV: [1]=now_ms, [2]=capacity, [3]=tokens_per_second, [4]=ttl_ms
var tokenBucketScript = goredis.NewScript(`
local capacity = tonumber(ARGV[2])
local tokens = tonumber(redis.call('HGET', KEYS[1], 'tokens')) or capacity
local last = tonumber(redis.call('HGET', KEYS[1], 'last')) or tonumber(ARGV[1])
local elapsed = math.max(0, tonumber(ARGV[1]) - last) / 1000.0
tokens = math.min(capacity, tokens + elapsed * tonumber(ARGV[3]))
local allowed = 0
if tokens >= 1 then
  tokens = tokens - 1
  allowed = 1
end
redis.call('HSET', KEYS[1], 'tokens', tostring(tokens), 'last', ARGV[1])
redis.call('PEXPIRE', KEYS[1], ARGV[4])
return allowed
`)

// VoteRateLimiter is a token bucket per identifier shared by every server
// that talks to the same Redis. It satisfies echo's RateLimiterStore.
type VoteRateLimiter struct {
	rdb      *goredis.Client
	clock    clockwork.Clock
	capacity int
	rate     float64
	ttl      time.Duration
}

// NewVoteRateLimiter allows burst requests at once and ratePerSecond sustained.
func NewVoteRateLimiter(rdb *goredis.Client, clock clockwork.Clock, ratePerSecond float64, burst int) *VoteRateLimiter {
	// an idle bucket is full again after capacity/rate seconds
	refill := time.Duration(math.Ceil(float64(burst)/ratePerSecond*1000)) * time.Millisecond
	return &VoteRateLimiter{
		rdb:      rdb,
		clock:    clock,
		capacity: burst,
		rate:     ratePerSecond,
		ttl:      refill + time.Second,
	}
}

// Allow takes a token for identifier. Redis failures let the request through;
// the vote write that follows reports them.
func (v *VoteRateLimiter) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rateLimitTimeout)
	defer cancel()

	allowed, err := v.take(ctx, identifier)
	if err != nil {
		slog.Warn("Vote rate limit check failed, allowing request", "identifier", identifier, "error", err)
		return true, nil
	}
	return allowed, nil
}

func (v *VoteRateLimiter) take(ctx context.Context, identifier string) (bool, error) {
	result, err := tokenBucketScript.Run(ctx, v.rdb,
		[]string{rateLimitKeyPrefix + identifier},
		v.clock.Now().UnixMilli(),
		v.capacity,
		v.rate,
		v.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("rate limit check failed: %w", err)
	}
	return result == 1, nil
}
