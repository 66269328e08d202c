package refresh

import "errors"

var (
	// ErrNotFoundOrExpired is returned when the presented jti has no record.
	ErrNotFoundOrExpired = errors.New("refresh token not found or expired")
	// ErrTokenMismatch is returned when the stored token differs from the presented one.
	ErrTokenMismatch = errors.New("refresh token mismatch")
	// ErrDuplicateRequest is returned for a ROTATED token replayed within the grace window.
	ErrDuplicateRequest = errors.New("refresh token already rotated within grace window")
	// ErrReuseDetected is returned for a ROTATED token replayed after the grace window.
	// The family has been revoked when this is returned.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrAlreadyUsed is returned for tokens in a terminal status.
	ErrAlreadyUsed = errors.New("refresh token already used")
)
