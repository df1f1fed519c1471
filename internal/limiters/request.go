package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrRequestRateLimited = errors.New("request rate limited")
	ErrRequestUnavailable = errors.New("request limiter backend unavailable")
)

// RequestConfig is a fixed window: at most Max requests per Window.
type RequestConfig struct {
	Max       int
	Window    time.Duration
	KeyPrefix string
}

// RequestLimiter throttles outbound-notification requests such as password
// reset and email verification mails. A nil limiter allows everything.
type RequestLimiter struct {
	redis  redis.UniversalClient
	config RequestConfig
}

func NewRequestLimiter(redisClient redis.UniversalClient, cfg RequestConfig) *RequestLimiter {
	if cfg.Max <= 0 || cfg.Window <= 0 {
		return nil
	}
	return &RequestLimiter{redis: redisClient, config: cfg}
}

// Allow counts one request against identifier and returns
// ErrRequestRateLimited once the window budget is spent.
func (l *RequestLimiter) Allow(ctx context.Context, identifier string) error {
	if l == nil || identifier == "" {
		return nil
	}
	key := l.config.KeyPrefix + ":" + identifier

	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRequestUnavailable, err)
		}
	}
	if count > int64(l.config.Max) {
		return ErrRequestRateLimited
	}
	return nil
}
