package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Namespace partitions the ephemeral keyspace by record kind.
type Namespace string

const (
	// NamespaceState holds state -> PKCE code verifier.
	NamespaceState Namespace = "state"
	// NamespacePending holds state -> encoded PendingLogin.
	NamespacePending Namespace = "pending"
)

var (
	// ErrEphemeralNotFound is returned for absent or expired entries.
	ErrEphemeralNotFound = errors.New("ephemeral entry not found")
	// ErrEphemeralBackend wraps Redis failures.
	ErrEphemeralBackend = errors.New("ephemeral store backend unavailable")
)

// EphemeralStore is a TTL key/value store over Redis.
type EphemeralStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewEphemeralStore returns a store writing under prefix ("oauth" when empty).
func NewEphemeralStore(redisClient redis.UniversalClient, prefix string) *EphemeralStore {
	if prefix == "" {
		prefix = "oauth"
	}
	return &EphemeralStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *EphemeralStore) key(ns Namespace, key string) string {
	return s.prefix + ":" + string(ns) + ":" + key
}

// Put stores value under key for ttl, replacing any previous value.
func (s *EphemeralStore) Put(ctx context.Context, ns Namespace, key string, value []byte, ttl time.Duration) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("ephemeral key required")
	}
	if ttl <= 0 {
		return errors.New("ephemeral ttl must be positive")
	}
	if err := s.redis.Set(ctx, s.key(ns, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrEphemeralBackend, err)
	}
	return nil
}

// Get reads the value without consuming it.
func (s *EphemeralStore) Get(ctx context.Context, ns Namespace, key string) ([]byte, error) {
	data, err := s.redis.Get(ctx, s.key(ns, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEphemeralNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrEphemeralBackend, err)
	}
	return data, nil
}

// Take atomically reads and deletes the value. At most one caller observes it.
func (s *EphemeralStore) Take(ctx context.Context, ns Namespace, key string) ([]byte, error) {
	if strings.TrimSpace(key) == "" {
		return nil, ErrEphemeralNotFound
	}
	data, err := s.redis.GetDel(ctx, s.key(ns, key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrEphemeralNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrEphemeralBackend, err)
	}
	return data, nil
}

// Delete removes the entry and reports whether it existed.
func (s *EphemeralStore) Delete(ctx context.Context, ns Namespace, key string) (bool, error) {
	n, err := s.redis.Del(ctx, s.key(ns, key)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrEphemeralBackend, err)
	}
	return n > 0, nil
}
