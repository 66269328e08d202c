package flows

import (
	"errors"
	"time"

	"github.com/realchillguyclub/backend-sub000/jwt"
)

// ValidateFailureKind classifies access-token validation failures.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureMissing
	ValidateFailureExpired
	ValidateFailureInvalid
)

// ValidateResult returns either the claims or the classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.Claims
	Elapsed time.Duration
}

// ValidateDeps captures access validation dependencies.
type ValidateDeps struct {
	ParseAccess func(string) (*jwt.Claims, error)
	Now         func() time.Time
}

// RunValidate parses an access token and measures how long it took.
func RunValidate(token string, deps ValidateDeps) ValidateResult {
	if token == "" {
		return ValidateResult{Failure: ValidateFailureMissing, Err: jwt.ErrMissing}
	}
	now := time.Now
	if deps.Now != nil {
		now = deps.Now
	}

	start := now()
	claims, err := deps.ParseAccess(token)
	elapsed := now().Sub(start)
	if err != nil {
		kind := ValidateFailureInvalid
		if errors.Is(err, jwt.ErrExpired) {
			kind = ValidateFailureExpired
		}
		return ValidateResult{Failure: kind, Err: err, Elapsed: elapsed}
	}
	return ValidateResult{Claims: claims, Elapsed: elapsed}
}
