// Package signup serialises account creation per external identity so that
// concurrent logins for the same provider subject cannot create two members.
//
// Acquisition blocks for at most the configured wait; a caller that cannot
// acquire in time gets ErrSignupInProgress and is expected to retry shortly.
// Locks on different keys never contend.
package signup

import (
	"context"
	"errors"
	"time"
)

const (
	// DefaultWaitTimeout bounds how long Lock blocks.
	DefaultWaitTimeout = 3 * time.Second
	// DefaultLeaseTTL bounds how long a crashed holder can keep a distributed lock.
	DefaultLeaseTTL = 10 * time.Second
	// DefaultRetryInterval is the distributed lock polling period.
	DefaultRetryInterval = 50 * time.Millisecond
)

// ErrSignupInProgress is returned when the lock could not be acquired in time.
var ErrSignupInProgress = errors.New("signup in progress")

// Serializer is a keyed mutual-exclusion primitive.
type Serializer interface {
	// Lock blocks until key is held or the wait timeout elapses. The returned
	// unlock must be called exactly once.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

// Execute runs op while holding key and always releases the lock.
func Execute[T any](ctx context.Context, s Serializer, key string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	unlock, err := s.Lock(ctx, key)
	if err != nil {
		return zero, err
	}
	defer unlock()
	return op(ctx)
}
