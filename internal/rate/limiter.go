package rate

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds rate limiter tuning parameters. A max of zero disables the
// corresponding throttle.
type Config struct {
	Prefix             string
	PollMaxAttempts    int
	PollWindow         time.Duration
	ReissueMaxAttempts int
	ReissueWindow      time.Duration
}

// Limiter enforces fixed-window budgets for the login poll and token reissue
// endpoints using Redis counters.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a rate [Limiter] backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "rl"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// CheckPoll counts one poll for state and rejects it once the window budget
// is spent.
func (l *Limiter) CheckPoll(ctx context.Context, state string) error {
	return l.hit(ctx, l.pollKey(state), l.config.PollMaxAttempts, l.config.PollWindow)
}

// CheckReissue counts one reissue from ip. Callers without an ip are not throttled.
func (l *Limiter) CheckReissue(ctx context.Context, ip string) error {
	if ip == "" {
		return nil
	}
	return l.hit(ctx, l.reissueKey(ip), l.config.ReissueMaxAttempts, l.config.ReissueWindow)
}

func (l *Limiter) hit(ctx context.Context, key string, maxAttempts int, window time.Duration) error {
	if l == nil || maxAttempts <= 0 || window <= 0 {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, key, window)
	if err != nil {
		return err
	}
	if count > int64(maxAttempts) {
		return ErrRateLimited
	}
	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, ttl).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}

func (l *Limiter) pollKey(state string) string {
	return l.config.Prefix + ":poll:" + state
}

func (l *Limiter) reissueKey(ip string) string {
	return l.config.Prefix + ":reissue:" + ip
}
