package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RateLimiter implements sliding window rate limiting using Redis
type RateLimiter struct {
	redis  *Redis
	limit  int
	window time.Duration
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	Allowed    bool
	Remaining  int64
	Limit      int
	RetryAfter time.Duration
	ResetAt    time.Time
}

// NewRateLimiter creates a limiter allowing limit requests per window
func NewRateLimiter(r *Redis, limit int, window time.Duration) *RateLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{redis: r, limit: limit, window: window}
}

func rateLimitKey(callerID string) string {
	return fmt.Sprintf("ratelimit:sliding:%s", callerID)
}

// Check records one request for callerID and reports whether it is allowed.
// Redis failures fail open.
func (r *RateLimiter) Check(ctx context.Context, callerID string) (*RateLimitResult, error) {
	now := time.Now()
	windowStart := now.Add(-r.window)
	key := rateLimitKey(callerID)

	// Score = timestamp, Member = unique request ID
	pipe := r.redis.Client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	countCmd := pipe.ZCard(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil {
		log.Error().Err(err).Str("caller_id", callerID).Msg("Failed to check rate limit")
		return &RateLimitResult{
			Allowed:   true,
			Remaining: int64(r.limit),
			Limit:     r.limit,
		}, nil
	}

	currentCount := countCmd.Val()
	result := &RateLimitResult{
		Limit:   r.limit,
		ResetAt: now.Add(r.window),
	}

	if currentCount >= int64(r.limit) {
		result.Allowed = false
		result.Remaining = 0

		oldest, err := r.redis.Client.ZRangeWithScores(ctx, key, 0, 0).Result()
		if err == nil && len(oldest) > 0 {
			oldestTime := time.Unix(0, int64(oldest[0].Score))
			result.RetryAfter = oldestTime.Add(r.window).Sub(now)
			if result.RetryAfter < 0 {
				result.RetryAfter = time.Second
			}
		} else {
			result.RetryAfter = r.window
		}
		return result, nil
	}

	member := fmt.Sprintf("%d-%s", now.UnixNano(), callerID)
	if err := r.redis.Client.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixNano()),
		Member: member,
	}).Err(); err != nil {
		log.Warn().Err(err).Str("caller_id", callerID).Msg("Failed to add rate limit entry")
	}
	r.redis.Client.Expire(ctx, key, r.window*2)

	result.Allowed = true
	result.Remaining = int64(r.limit) - currentCount - 1
	if result.Remaining < 0 {
		result.Remaining = 0
	}
	return result, nil
}

// Reset clears the window for callerID
func (r *RateLimiter) Reset(ctx context.Context, callerID string) error {
	return r.redis.Client.Del(ctx, rateLimitKey(callerID)).Err()
}
