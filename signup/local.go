package signup

import (
	"context"
	"sync"
	"time"
)

// LocalSerializer is an in-process Serializer for single-node deployments.
// Each key owns a one-slot channel; map entries are reference-counted and
// removed when the last waiter leaves.
type LocalSerializer struct {
	wait time.Duration

	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocalSerializer returns a LocalSerializer. wait <= 0 uses DefaultWaitTimeout.
func NewLocalSerializer(wait time.Duration) *LocalSerializer {
	if wait <= 0 {
		wait = DefaultWaitTimeout
	}
	return &LocalSerializer{wait: wait, slots: make(map[string]*slot)}
}

func (l *LocalSerializer) Lock(ctx context.Context, key string) (func(), error) {
	sl := l.acquireRef(key)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case sl.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-sl.ch
				l.releaseRef(key)
			})
		}, nil
	case <-timer.C:
		l.releaseRef(key)
		return nil, ErrSignupInProgress
	case <-ctx.Done():
		l.releaseRef(key)
		return nil, ctx.Err()
	}
}

func (l *LocalSerializer) acquireRef(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl, ok := l.slots[key]
	if !ok {
		sl = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = sl
	}
	sl.refs++
	return sl
}

func (l *LocalSerializer) releaseRef(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	sl, ok := l.slots[key]
	if !ok {
		return
	}
	sl.refs--
	if sl.refs == 0 {
		delete(l.slots, key)
	}
}

// keys reports the number of live map entries.
func (l *LocalSerializer) keys() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}
