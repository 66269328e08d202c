package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	auth "github.com/realchillguyclub/backend-sub000"
)

// Validator resolves an Authorization header to a user id. *auth.Engine
// implements it.
type Validator interface {
	UserIDFromBearerHeader(header string) (string, error)
}

type userIDContextKey struct{}

// UserIDFromContext returns the user id stored by [Guard].
func UserIDFromContext(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDContextKey{}).(string)
	return userID, ok && userID != ""
}

// Guard rejects requests without a valid bearer access token. The response
// body is the error code, for example EXPIRED_ACCESS_TOKEN, so clients can
// tell an expired token from a bad one.
func Guard(v Validator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				http.Error(w, auth.ErrorCode(auth.ErrEngineNotReady), http.StatusUnauthorized)
				return
			}

			userID, err := v.UserIDFromBearerHeader(r.Header.Get("Authorization"))
			if err != nil {
				http.Error(w, auth.ErrorCode(err), http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userIDContextKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientInfo copies the caller's address and user agent into the request
// context for audit events, session records and per-IP throttles. The address
// is the first X-Forwarded-For hop when present, else RemoteAddr.
func ClientInfo(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithClientIP(r.Context(), ClientIP(r))
		ctx = auth.WithUserAgent(ctx, r.UserAgent())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIP returns the first X-Forwarded-For hop, or the host of RemoteAddr.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return remoteIP(r.RemoteAddr)
}

func remoteIP(addr string) string {
	addr = strings.TrimSpace(addr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
