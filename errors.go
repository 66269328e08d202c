package auth

import (
	"errors"
	"net/http"
)

var (
	// ErrExpiredAccess is returned for a well-formed access token past its expiry.
	ErrExpiredAccess = errors.New("access token expired")
	// ErrExpiredRefresh is returned for a well-formed refresh token past its expiry.
	ErrExpiredRefresh = errors.New("refresh token expired")
	// ErrInvalidToken covers bad signatures, issuers, subjects and formats.
	ErrInvalidToken = errors.New("invalid token")
	// ErrMissingToken is returned when no credential was presented.
	ErrMissingToken = errors.New("missing token")
	// ErrNotFoundOrExpired is returned when the refresh token has no record.
	ErrNotFoundOrExpired = errors.New("refresh token not found or expired")
	// ErrTokenMismatch is returned when the stored refresh token differs from the presented one.
	ErrTokenMismatch = errors.New("refresh token mismatch")
	// ErrDuplicateRequest is returned for a refresh token replayed inside the grace window.
	ErrDuplicateRequest = errors.New("duplicate reissue request")
	// ErrReuseDetected is returned when a rotated refresh token is replayed. The family is revoked.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrAlreadyUsed is returned for refresh tokens that were revoked or expired.
	ErrAlreadyUsed = errors.New("refresh token already used")
	// ErrSignupInProgress is returned when another login holds the identity's signup lock.
	ErrSignupInProgress = errors.New("signup in progress")
	// ErrInvalidRequest covers unknown state, consumed state and malformed callbacks.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrCanceled is returned when the provider reported an error on callback.
	ErrCanceled = errors.New("authorization canceled")
	// ErrOAuthExchange is returned when the provider exchange or user lookup fails.
	ErrOAuthExchange = errors.New("identity provider exchange failed")
	// ErrUnknownProvider is returned for provider ids that are not configured.
	ErrUnknownProvider = errors.New("unknown identity provider")
	// ErrInvalidDevice is returned for unknown mobile types or a missing client id.
	ErrInvalidDevice = errors.New("invalid device")
	// ErrRateLimited is returned when a poll or reissue budget is exhausted.
	ErrRateLimited = errors.New("rate limited")
	// ErrStoreUnavailable wraps storage and cache backend failures.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrEngineNotReady is returned when a required dependency was not configured.
	ErrEngineNotReady = errors.New("engine not ready")
	// ErrUserNotFound is returned by UserProvider lookups that match nothing.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountExists is returned by UserProvider.CreateSocialUser when the
	// identity is already linked.
	ErrAccountExists = errors.New("account already exists")
)

type errorSpec struct {
	err    error
	code   string
	status int
}

var errorTable = []errorSpec{
	{ErrExpiredAccess, "EXPIRED_ACCESS_TOKEN", http.StatusUnauthorized},
	{ErrExpiredRefresh, "EXPIRED_REFRESH_TOKEN", http.StatusUnauthorized},
	{ErrInvalidToken, "INVALID_TOKEN", http.StatusUnauthorized},
	{ErrMissingToken, "MISSING_TOKEN", http.StatusUnauthorized},
	{ErrNotFoundOrExpired, "NOT_FOUND_OR_EXPIRED", http.StatusUnauthorized},
	{ErrTokenMismatch, "TOKEN_MISMATCH", http.StatusUnauthorized},
	{ErrDuplicateRequest, "DUPLICATE_REQUEST", http.StatusTooManyRequests},
	{ErrReuseDetected, "REUSE_DETECTED", http.StatusUnauthorized},
	{ErrAlreadyUsed, "ALREADY_USED", http.StatusUnauthorized},
	{ErrSignupInProgress, "SIGNUP_IN_PROGRESS", http.StatusConflict},
	{ErrInvalidRequest, "INVALID_REQUEST", http.StatusBadRequest},
	{ErrCanceled, "CANCELED", http.StatusBadRequest},
	{ErrOAuthExchange, "ERROR", http.StatusBadGateway},
	{ErrUnknownProvider, "UNKNOWN_PROVIDER", http.StatusNotFound},
	{ErrInvalidDevice, "INVALID_DEVICE", http.StatusBadRequest},
	{ErrRateLimited, "RATE_LIMITED", http.StatusTooManyRequests},
	{ErrStoreUnavailable, "STORE_UNAVAILABLE", http.StatusServiceUnavailable},
	{ErrEngineNotReady, "INTERNAL", http.StatusInternalServerError},
}

// ErrorCode returns the stable taxonomy code for err. Errors outside the
// taxonomy map to "INTERNAL".
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, entry := range errorTable {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return "INTERNAL"
}

// HTTPStatus returns the response status for err.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	for _, entry := range errorTable {
		if errors.Is(err, entry.err) {
			return entry.status
		}
	}
	return http.StatusInternalServerError
}
