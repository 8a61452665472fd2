package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spec-kit/folio/internal/domain"
)

var (
	// ErrRateLimited is returned when the failed-login budget is exhausted.
	ErrRateLimited = errors.New("ratelimit: too many login attempts")
	// ErrRedisUnavailable wraps any Redis transport failure.
	ErrRedisUnavailable = errors.New("ratelimit: redis unavailable")
)

// Config holds limiter tuning parameters.
type Config struct {
	MaxAttempts int
	Cooldown    time.Duration
	KeyPrefix   string
}

// LoginLimiter counts failed logins per email in a fixed window.
// A nil *LoginLimiter admits everything.
type LoginLimiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a limiter backed by the given Redis client.
func New(client redis.UniversalClient, cfg Config) *LoginLimiter {
	if client == nil {
		return nil
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 15 * time.Minute
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "folio"
	}
	return &LoginLimiter{redis: client, config: cfg}
}

// Check returns ErrRateLimited once the email has used up its attempts.
func (l *LoginLimiter) Check(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	count, err := l.redis.Get(ctx, l.key(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count >= int64(l.config.MaxAttempts) {
		return ErrRateLimited
	}
	return nil
}

// RecordFailure increments the counter, starting the window on the first hit.
func (l *LoginLimiter) RecordFailure(ctx context.Context, email string) (int64, error) {
	if l == nil {
		return 0, nil
	}
	key := l.key(email)
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.Cooldown).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	return count, nil
}

// Reset clears the counter after a successful login.
func (l *LoginLimiter) Reset(ctx context.Context, email string) error {
	if l == nil {
		return nil
	}
	if err := l.redis.Del(ctx, l.key(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// RetryAfter reports how long until the window for email closes.
func (l *LoginLimiter) RetryAfter(ctx context.Context, email string) time.Duration {
	if l == nil {
		return 0
	}
	ttl, err := l.redis.TTL(ctx, l.key(email)).Result()
	if err != nil || ttl < 0 {
		return l.config.Cooldown
	}
	return ttl
}

func (l *LoginLimiter) key(email string) string {
	return l.config.KeyPrefix + ":login:" + domain.NormalizeEmail(email)
}
