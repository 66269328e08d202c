package refresh

import (
	"context"
	"time"

	"github.com/realchillguyclub/backend-sub000/session"
)

// Revoker retires sessions out of band. Every operation is idempotent and
// reports how many records changed.
type Revoker struct {
	store session.Store
	now   func() time.Time
}

// NewRevoker returns a Revoker over store. A nil now uses time.Now.
func NewRevoker(store session.Store, now func() time.Time) *Revoker {
	if now == nil {
		now = time.Now
	}
	return &Revoker{store: store, now: now}
}

// RevokeByUserAndDevice revokes the user's ACTIVE sessions on one device class.
func (v *Revoker) RevokeByUserAndDevice(ctx context.Context, userID string, mobileType session.MobileType) (int64, error) {
	if _, err := session.ParseMobileType(string(mobileType)); err != nil {
		return 0, err
	}
	return v.run(ctx, func(ctx context.Context, tx session.Tx, at time.Time) (int64, error) {
		return tx.RevokeByUserAndDevice(ctx, userID, mobileType, at)
	})
}

// RevokeAllForUser revokes every ACTIVE session of the user.
func (v *Revoker) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	return v.run(ctx, func(ctx context.Context, tx session.Tx, at time.Time) (int64, error) {
		return tx.RevokeAllForUser(ctx, userID, at)
	})
}

// RevokeFamily revokes the ACTIVE and ROTATED members of a family.
func (v *Revoker) RevokeFamily(ctx context.Context, familyID string) (int64, error) {
	return v.run(ctx, func(ctx context.Context, tx session.Tx, at time.Time) (int64, error) {
		return tx.RevokeFamily(ctx, familyID, at)
	})
}

func (v *Revoker) run(ctx context.Context, fn func(context.Context, session.Tx, time.Time) (int64, error)) (int64, error) {
	var n int64
	err := v.store.WithTx(ctx, func(ctx context.Context, tx session.Tx) error {
		var err error
		n, err = fn(ctx, tx, v.now())
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}
