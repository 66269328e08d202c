package signup

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

var releaseLua = redis.NewScript(releaseScript)

// RedisConfig tunes a RedisSerializer. Zero values take the defaults.
type RedisConfig struct {
	Prefix        string
	WaitTimeout   time.Duration
	LeaseTTL      time.Duration
	RetryInterval time.Duration
}

// RedisSerializer is a Serializer shared across instances. Each holder writes
// a unique owner token with SET NX PX, and release deletes the key only if the
// token still matches.
type RedisSerializer struct {
	redis redis.UniversalClient
	cfg   RedisConfig
}

// NewRedisSerializer returns a RedisSerializer over redisClient.
func NewRedisSerializer(redisClient redis.UniversalClient, cfg RedisConfig) *RedisSerializer {
	if cfg.Prefix == "" {
		cfg.Prefix = "signup"
	}
	if cfg.WaitTimeout <= 0 {
		cfg.WaitTimeout = DefaultWaitTimeout
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = DefaultLeaseTTL
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	return &RedisSerializer{redis: redisClient, cfg: cfg}
}

func (s *RedisSerializer) key(key string) string {
	return s.cfg.Prefix + ":lock:" + key
}

func (s *RedisSerializer) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := s.key(key)
	owner := uuid.NewString()
	deadline := time.Now().Add(s.cfg.WaitTimeout)

	ticker := time.NewTicker(s.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		ok, err := s.redis.SetNX(ctx, redisKey, owner, s.cfg.LeaseTTL).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire signup lock: %w", err)
		}
		if ok {
			return func() {
				// Release runs even after the request context is cancelled.
				releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				defer cancel()
				_, _ = releaseLua.Run(releaseCtx, s.redis, []string{redisKey}, owner).Result()
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrSignupInProgress
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
