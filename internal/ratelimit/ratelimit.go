package ratelimit

import (
	"context"
	"time"

	redisadapter "github.com/robertarktes/seat-reservation-engine/internal/adapters/redis"
	"github.com/robertarktes/seat-reservation-engine/internal/observability"
)

// RateLimiter is a fixed-window counter in redis. Failing open on redis
// errors keeps the engine serving when the limiter store is down.
type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	count, err := rl.redis.IncrWindow(ctx, "rl:"+key, period)
	if err != nil {
		return true
	}
	if count > int64(rate) {
		observability.RateLimitExceeded.Inc()
		return false
	}
	return true
}
