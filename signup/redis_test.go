package signup

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisSerializer(t *testing.T, cfg RedisConfig) (*RedisSerializer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisSerializer(rdb, cfg), mr
}

func TestRedisSerializerAcquireRelease(t *testing.T) {
	s, mr := newRedisSerializer(t, RedisConfig{Prefix: "t"})

	unlock, err := s.Lock(context.Background(), "google:1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !mr.Exists("t:lock:google:1") {
		t.Fatal("expected lock key")
	}
	unlock()
	if mr.Exists("t:lock:google:1") {
		t.Fatal("lock key not released")
	}
}

func TestRedisSerializerTimesOutWhileHeld(t *testing.T) {
	s, _ := newRedisSerializer(t, RedisConfig{
		WaitTimeout:   30 * time.Millisecond,
		RetryInterval: 5 * time.Millisecond,
	})

	unlock, err := s.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	defer unlock()

	if _, err := s.Lock(context.Background(), "k"); !errors.Is(err, ErrSignupInProgress) {
		t.Fatalf("expected ErrSignupInProgress, got %v", err)
	}
}

func TestRedisSerializerWaiterAcquiresAfterRelease(t *testing.T) {
	s, _ := newRedisSerializer(t, RedisConfig{
		WaitTimeout:   time.Second,
		RetryInterval: 5 * time.Millisecond,
	})

	unlock, err := s.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var waitErr error
	go func() {
		defer wg.Done()
		u, err := s.Lock(context.Background(), "k")
		waitErr = err
		if err == nil {
			u()
		}
	}()

	time.Sleep(20 * time.Millisecond)
	unlock()
	wg.Wait()
	if waitErr != nil {
		t.Fatalf("waiter failed: %v", waitErr)
	}
}

func TestRedisSerializerReleaseIsOwnerOnly(t *testing.T) {
	s, mr := newRedisSerializer(t, RedisConfig{LeaseTTL: time.Second})

	unlock, err := s.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	// The lease lapses and another instance takes the lock.
	mr.FastForward(2 * time.Second)
	if err := mr.Set("signup:lock:k", "someone-else"); err != nil {
		t.Fatalf("seed: %v", err)
	}

	unlock()
	got, err := mr.Get("signup:lock:k")
	if err != nil || got != "someone-else" {
		t.Fatalf("stale holder released another owner's lock: %q %v", got, err)
	}
}

func TestRedisSerializerBackendError(t *testing.T) {
	s, mr := newRedisSerializer(t, RedisConfig{})
	mr.Close()

	if _, err := s.Lock(context.Background(), "k"); err == nil || errors.Is(err, ErrSignupInProgress) {
		t.Fatalf("expected backend error, got %v", err)
	}
}
