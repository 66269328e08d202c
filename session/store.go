package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no record matches the lookup.
	ErrNotFound = errors.New("refresh token record not found")
	// ErrDuplicateJTI is returned when an insert collides with an existing jti.
	ErrDuplicateJTI = errors.New("refresh token jti already exists")
	// ErrUnavailable wraps backend failures (connection loss, driver errors).
	ErrUnavailable = errors.New("refresh token store unavailable")
)

// Store is the durable record of every issued refresh token.
//
// Mutations that participate in rotation or revocation go through WithTx so
// that the read-check-write sequence for one jti is atomic with respect to
// concurrent rotations of the same record.
type Store interface {
	// WithTx runs fn in one unit of work. The work is committed when fn returns
	// nil and rolled back otherwise.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	FindByJTI(ctx context.Context, jti string) (*Record, error)
	FindByID(ctx context.Context, id int64) (*Record, error)
	ListFamily(ctx context.Context, familyID string) ([]*Record, error)

	// MarkExpired moves ACTIVE records whose expiry is before now to EXPIRED.
	MarkExpired(ctx context.Context, now time.Time) (int64, error)
	// HardDeleteInactive removes REVOKED, EXPIRED and ROTATED records last
	// modified before threshold. ACTIVE records are never removed.
	HardDeleteInactive(ctx context.Context, threshold time.Time) (int64, error)
}

// Tx is the transactional view handed to Store.WithTx callbacks.
type Tx interface {
	// Insert persists rec and assigns rec.ID.
	Insert(ctx context.Context, rec *Record) error
	// LockByJTI loads the record for jti and holds it exclusively until the
	// unit of work ends.
	LockByJTI(ctx context.Context, jti string) (*Record, error)
	// MarkRotated moves an ACTIVE record to ROTATED and records its last use.
	MarkRotated(ctx context.Context, id int64, usedAt time.Time, ip string) error

	// RevokeFamily moves ACTIVE and ROTATED members of the family to REVOKED.
	RevokeFamily(ctx context.Context, familyID string, at time.Time) (int64, error)
	// RevokeByUserAndDevice moves the user's ACTIVE records for one device class to REVOKED.
	RevokeByUserAndDevice(ctx context.Context, userID string, mobileType MobileType, at time.Time) (int64, error)
	// RevokeAllForUser moves every ACTIVE record of the user to REVOKED.
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
}
