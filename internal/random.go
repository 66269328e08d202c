package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// StateSize is the entropy of an OAuth state value in bytes.
const StateSize = 32

// RandomURLToken returns size random bytes encoded as unpadded base64url.
func RandomURLToken(size int) (string, error) {
	if size < 16 {
		return "", errors.New("random token too short")
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewState returns a fresh OAuth state value.
func NewState() (string, error) {
	return RandomURLToken(StateSize)
}
