package oauth

import (
	"crypto/sha256"
	"encoding/base64"

	"golang.org/x/oauth2"
)

// ChallengeMethod is the only PKCE method this package issues.
const ChallengeMethod = "S256"

// NewVerifier returns a fresh PKCE code verifier.
func NewVerifier() string {
	return oauth2.GenerateVerifier()
}

// Challenge derives the S256 code challenge, BASE64URL(SHA256(verifier)).
func Challenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
