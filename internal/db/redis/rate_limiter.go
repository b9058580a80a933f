package redis

import (
	"context"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"norelock.dev/soundscope/internal/utils"
)

const (
	// RateLimitKeyPrefix is the prefix for rate limit keys
	RateLimitKeyPrefix = "ratelimit"
)

// RateLimiter implements a sliding-window rate limit on a sorted set, so that
// several scope daemons behind one account share the same budget.
type RateLimiter struct {
	client *Client
	logger *utils.Logger
	limit  RateLimit
}

// RateLimit defines a rate limit constraint
type RateLimit struct {
	// Key is the identifier for this rate limit
	Key string

	// MaxRequests is the maximum number of requests allowed in the time window
	MaxRequests int

	// Window is the time window for rate limiting
	Window time.Duration
}

// RateLimitResult contains the result of a rate limit check
type RateLimitResult struct {
	// Allowed indicates whether the request is allowed
	Allowed bool

	// Remaining is the number of requests remaining in the current window
	Remaining int

	// RetryAfter is the time after which the client should retry (if rate limited)
	RetryAfter time.Duration

	// Limit is the maximum number of requests allowed in the window
	Limit int
}

// RateLimitActions is the budget for social actions (like, follow, comment).
func RateLimitActions(maxRequests int, window time.Duration) RateLimit {
	return RateLimit{Key: "scope:actions", MaxRequests: maxRequests, Window: window}
}

// NewRateLimiter creates a new rate limiter for limit.
func NewRateLimiter(client *Client, limit RateLimit) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: client.Logger().Named("rate_limiter"),
		limit:  limit,
	}
}

// Allow records an attempt by identifier and reports whether it fits the budget.
func (rl *RateLimiter) Allow(ctx context.Context, identifier string) (bool, error) {
	result, err := rl.Check(ctx, identifier)
	if err != nil {
		return false, err
	}
	return result.Allowed, nil
}

// Check evaluates the limit for identifier and, when allowed, consumes one slot.
func (rl *RateLimiter) Check(ctx context.Context, identifier string) (*RateLimitResult, error) {
	if rl.limit.MaxRequests <= 0 {
		return &RateLimitResult{Allowed: true}, nil
	}

	key := rl.client.Key(RateLimitKeyPrefix, rl.limit.Key, identifier)

	now := time.Now()
	windowStartMs := now.Add(-rl.limit.Window).UnixMilli()

	pipe := rl.client.Pipeline()

	// Remove tokens older than the window
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStartMs, 10))
	countCmd := pipe.ZCard(ctx, key)
	oldestCmd := pipe.ZRangeWithScores(ctx, key, 0, 0)

	if _, err := pipe.Exec(ctx); err != nil && !IsNil(err) {
		rl.logger.Error("Failed to execute rate limit pipeline", err, "key", key)
		return nil, err
	}

	count := countCmd.Val()
	allowed := count < int64(rl.limit.MaxRequests)
	result := &RateLimitResult{
		Allowed:   allowed,
		Remaining: max(rl.limit.MaxRequests-int(count)-1, 0),
		Limit:     rl.limit.MaxRequests,
	}

	if !allowed {
		result.Remaining = 0
		result.RetryAfter = rl.limit.Window
		if oldest := oldestCmd.Val(); len(oldest) > 0 {
			oldestTime := time.UnixMilli(int64(oldest[0].Score))
			result.RetryAfter = time.Until(oldestTime.Add(rl.limit.Window))
		}
		return result, nil
	}

	nowNs := now.UnixNano()
	err := rl.client.Client().ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(nowNs, 10),
	}).Err()
	if err != nil {
		// Still return allowed since we've already determined that
		rl.logger.Error("Failed to add token to rate limit", err, "key", key)
	}

	if err := rl.client.Expire(ctx, key, rl.limit.Window*2); err != nil {
		rl.logger.Error("Failed to set expiry on rate limit key", err, "key", key)
	}

	return result, nil
}

// Reset clears the budget of identifier.
func (rl *RateLimiter) Reset(ctx context.Context, identifier string) error {
	key := rl.client.Key(RateLimitKeyPrefix, rl.limit.Key, identifier)
	if err := rl.client.Del(ctx, key); err != nil {
		rl.logger.Error("Failed to reset rate limit", err, "key", key)
		return err
	}
	rl.logger.Debug("Reset rate limit", "key", key)
	return nil
}
