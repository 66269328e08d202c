package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	auth "github.com/realchillguyclub/backend-sub000"
)

type stubValidator map[string]error

func (s stubValidator) UserIDFromBearerHeader(header string) (string, error) {
	token := strings.TrimPrefix(header, "Bearer ")
	if err, ok := s[token]; ok {
		return "", err
	}
	if header == "" {
		return "", auth.ErrMissingToken
	}
	return "user-" + token, nil
}

func TestGuard(t *testing.T) {
	v := stubValidator{"old": auth.ErrExpiredAccess, "junk": errors.New("boom")}
	h := Guard(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := UserIDFromContext(r.Context())
		if !ok {
			t.Fatal("guard passed without a user id")
		}
		_, _ = w.Write([]byte(userID))
	}))

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer abc", http.StatusOK, "user-abc"},
		{"missing", "", http.StatusUnauthorized, "MISSING_TOKEN"},
		{"expired", "Bearer old", http.StatusUnauthorized, "EXPIRED_ACCESS_TOKEN"},
		{"unclassified", "Bearer junk", http.StatusUnauthorized, "INTERNAL"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Fatalf("status = %d, want %d", rec.Code, tc.status)
			}
			if got := strings.TrimSpace(rec.Body.String()); got != tc.body {
				t.Fatalf("body = %q, want %q", got, tc.body)
			}
		})
	}
}

func TestGuardNilValidator(t *testing.T) {
	h := Guard(nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler must not run")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRemoteIP(t *testing.T) {
	if got := remoteIP("192.0.2.1:5555"); got != "192.0.2.1" {
		t.Fatalf("got %q", got)
	}
	if got := remoteIP("[2001:db8::1]:443"); got != "2001:db8::1" {
		t.Fatalf("got %q", got)
	}
	if got := remoteIP("192.0.2.9"); got != "192.0.2.9" {
		t.Fatalf("got %q", got)
	}
}

func TestClientInfoPrefersForwardedFor(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:1234"
	if got := ClientIP(req); got != "10.0.0.1" {
		t.Fatalf("got %q", got)
	}
	req.Header.Set("X-Forwarded-For", " 203.0.113.5 , 10.0.0.1")
	if got := ClientIP(req); got != "203.0.113.5" {
		t.Fatalf("got %q", got)
	}
}
