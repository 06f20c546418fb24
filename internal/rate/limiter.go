// Package rate enforces a per-account login attempt budget using Redis
// fixed-window counters. It is only wired when the engine is built with a
// Redis client; desktop deployments normally run without it.
package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRateLimited means the attempt budget for the window is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis transport failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// Config holds rate limiter tuning parameters.
type Config struct {
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
}

// Limiter counts failed login attempts per account name.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

func loginKey(account string) string {
	return "vapor:rl:login:" + account
}

// CheckLogin reports whether the account is within its attempt budget.
func (l *Limiter) CheckLogin(ctx context.Context, account string) error {
	count, err := l.redis.Get(ctx, loginKey(account)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}
	return nil
}

// IncrementLogin records a failed login attempt for the account.
func (l *Limiter) IncrementLogin(ctx context.Context, account string) error {
	count, err := l.redis.Incr(ctx, loginKey(account)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, loginKey(account), l.config.LoginCooldownDuration).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}
	if count > int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}
	return nil
}

// ResetLogin clears the failed-login counter. Called after a successful
// login.
func (l *Limiter) ResetLogin(ctx context.Context, account string) error {
	if err := l.redis.Del(ctx, loginKey(account)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Attempts returns the current counter for an account. Missing keys return
// zero.
func (l *Limiter) Attempts(ctx context.Context, account string) (int, error) {
	count, err := l.redis.Get(ctx, loginKey(account)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}
