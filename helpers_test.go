package auth_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	auth "github.com/realchillguyclub/backend-sub000"
	"github.com/realchillguyclub/backend-sub000/session/memory"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

func testConfig() auth.Config {
	cfg := auth.DefaultConfig()
	cfg.JWT.Secret = testSecret
	cfg.JWT.Issuer = "auth-test"
	return cfg
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

type engineFixture struct {
	engine *auth.Engine
	store  *memory.Store
	clock  *testClock
}

func newEngine(t *testing.T, configure func(*auth.Builder)) *engineFixture {
	t.Helper()
	f := &engineFixture{store: memory.New(), clock: newTestClock()}
	b := auth.New().
		WithConfig(testConfig()).
		WithStore(f.store).
		WithClock(f.clock.Now).
		WithLogger(discardLogger()).
		WithMetricsEnabled(true)
	if configure != nil {
		configure(b)
	}
	engine, err := b.Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)
	f.engine = engine
	return f
}

func (f *engineFixture) issue(t *testing.T, userID string, mobile string) *auth.TokenPair {
	t.Helper()
	pair, err := f.engine.IssueSession(context.Background(), auth.IssueRequest{
		UserID:     userID,
		MobileType: sessionType(mobile),
		ClientID:   clientFor(mobile),
	})
	if err != nil {
		t.Fatalf("issue session: %v", err)
	}
	return pair
}

func newTestStore() *memory.Store { return memory.New() }
