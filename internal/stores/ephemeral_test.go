package stores

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T) (*EphemeralStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewEphemeralStore(rdb, "test"), mr
}

func TestPutTakeIsOneTime(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, NamespaceState, "st1", []byte("verifier"), 10*time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	if !mr.Exists("test:state:st1") {
		t.Fatal("expected namespaced key")
	}

	got, err := s.Take(ctx, NamespaceState, "st1")
	if err != nil || string(got) != "verifier" {
		t.Fatalf("take: %q %v", got, err)
	}
	if _, err := s.Take(ctx, NamespaceState, "st1"); !errors.Is(err, ErrEphemeralNotFound) {
		t.Fatalf("second take should miss, got %v", err)
	}
}

func TestEntriesExpireWithTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, NamespacePending, "st1", []byte("x"), 3*time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := s.Get(ctx, NamespacePending, "st1"); err != nil {
		t.Fatalf("entry expired early: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := s.Get(ctx, NamespacePending, "st1"); !errors.Is(err, ErrEphemeralNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestNamespacesAreIsolated(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, NamespaceState, "same", []byte("verifier"), time.Minute)
	if _, err := s.Take(ctx, NamespacePending, "same"); !errors.Is(err, ErrEphemeralNotFound) {
		t.Fatalf("pending namespace saw state entry: %v", err)
	}
}

func TestConcurrentTakeSingleWinner(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_ = s.Put(ctx, NamespaceState, "race", []byte("v"), time.Minute)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Take(ctx, NamespaceState, "race"); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("expected one winner, got %d", wins)
	}
}

func TestDeleteReportsExistence(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	_ = s.Put(ctx, NamespaceState, "k", []byte("v"), time.Minute)

	ok, err := s.Delete(ctx, NamespaceState, "k")
	if err != nil || !ok {
		t.Fatalf("delete existing: %v %v", ok, err)
	}
	ok, err = s.Delete(ctx, NamespaceState, "k")
	if err != nil || ok {
		t.Fatalf("delete missing: %v %v", ok, err)
	}
}

func TestBackendFailureIsWrapped(t *testing.T) {
	s, mr := newTestStore(t)
	mr.Close()

	err := s.Put(context.Background(), NamespaceState, "k", []byte("v"), time.Minute)
	if !errors.Is(err, ErrEphemeralBackend) {
		t.Fatalf("expected ErrEphemeralBackend, got %v", err)
	}
}

func TestPutRejectsBadInput(t *testing.T) {
	s, _ := newTestStore(t)
	if err := s.Put(context.Background(), NamespaceState, " ", []byte("v"), time.Minute); err == nil {
		t.Fatal("expected empty key to be rejected")
	}
	if err := s.Put(context.Background(), NamespaceState, "k", []byte("v"), 0); err == nil {
		t.Fatal("expected zero ttl to be rejected")
	}
}
