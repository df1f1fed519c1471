package limiters

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrAttemptsUnavailable indicates the attempt counter backend is unreachable.
	ErrAttemptsUnavailable = errors.New("login attempt backend unavailable")
)

// AttemptConfig controls the login attempt guard. Defaults are 5 failures
// within a 15 minute window.
type AttemptConfig struct {
	MaxAttempts int
	Window      time.Duration
	KeyPrefix   string
}

// AttemptGuard counts failed logins per (email, origin) pair. Each failure
// refreshes the window, so the counter only clears once the pair has been
// quiet for a full window or a login succeeds.
type AttemptGuard struct {
	redis  redis.UniversalClient
	config AttemptConfig
}

// NewAttemptGuard creates a guard, filling zero config fields with defaults.
func NewAttemptGuard(redisClient redis.UniversalClient, cfg AttemptConfig) *AttemptGuard {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Window <= 0 {
		cfg.Window = 15 * time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "login_attempts"
	}
	return &AttemptGuard{redis: redisClient, config: cfg}
}

func (g *AttemptGuard) key(email, origin string) string {
	return g.config.KeyPrefix + ":" + strings.ToLower(strings.TrimSpace(email)) + ":" + origin
}

// RecordAttempt clears the counter on success. On failure it increments
// the counter and resets its expiry in a single MULTI/EXEC.
func (g *AttemptGuard) RecordAttempt(ctx context.Context, email, origin string, success bool) error {
	if g == nil {
		return nil
	}
	key := g.key(email, origin)

	if success {
		if err := g.redis.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
		}
		return nil
	}

	_, err := g.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, g.config.Window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}
	return nil
}

// Attempts returns the current failure count, zero when no counter exists.
func (g *AttemptGuard) Attempts(ctx context.Context, email, origin string) (int, error) {
	if g == nil {
		return 0, nil
	}
	count, err := g.redis.Get(ctx, g.key(email, origin)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrAttemptsUnavailable, err)
	}
	return int(count), nil
}

// IsLocked reports whether the failure count reached the threshold. It
// never mutates the counter.
func (g *AttemptGuard) IsLocked(ctx context.Context, email, origin string) (bool, error) {
	count, err := g.Attempts(ctx, email, origin)
	if err != nil {
		return false, err
	}
	return g != nil && count >= g.config.MaxAttempts, nil
}

// Window reports the configured lockout window.
func (g *AttemptGuard) Window() time.Duration {
	return g.config.Window
}
