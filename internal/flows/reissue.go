package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/realchillguyclub/backend-sub000/internal/rate"
	"github.com/realchillguyclub/backend-sub000/jwt"
	"github.com/realchillguyclub/backend-sub000/refresh"
	"github.com/realchillguyclub/backend-sub000/session"
)

// ReissueFailureKind classifies reissue failures for root-level mapping.
type ReissueFailureKind int

const (
	ReissueFailureNone ReissueFailureKind = iota
	ReissueFailureMissing
	ReissueFailureExpired
	ReissueFailureInvalid
	ReissueFailureRateLimited
	ReissueFailureNotFound
	ReissueFailureMismatch
	ReissueFailureDuplicate
	ReissueFailureReuse
	ReissueFailureAlreadyUsed
	ReissueFailureStore
)

// ReissueInput is one refresh request.
type ReissueInput struct {
	RefreshToken string
	ClientID     string
	IP           string
	UserAgent    string
}

// ReissueResult carries either the rotated session or failure metadata.
// Parent is the presented record when one was found.
type ReissueResult struct {
	Failure ReissueFailureKind
	Err     error
	UserID  string
	JTI     string
	Session *refresh.Session
	Parent  *session.Record
}

type RefreshParser interface {
	ParseRefresh(token string) (*jwt.Claims, error)
}

type Reissuer interface {
	Reissue(ctx context.Context, jti, presented string, in refresh.RotateInput) (*refresh.Session, *session.Record, error)
}

type ReissueRateLimiter interface {
	CheckReissue(ctx context.Context, ip string) error
}

// ReissueDeps captures reissue flow dependencies. RateLimiter may be nil.
type ReissueDeps struct {
	Parser      RefreshParser
	Rotator     Reissuer
	RateLimiter ReissueRateLimiter
}

// RunReissue verifies the presented refresh token and rotates it.
func RunReissue(ctx context.Context, in ReissueInput, deps ReissueDeps) ReissueResult {
	token := strings.TrimSpace(in.RefreshToken)
	if token == "" {
		return ReissueResult{Failure: ReissueFailureMissing, Err: jwt.ErrMissing}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckReissue(ctx, in.IP); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return ReissueResult{Failure: ReissueFailureRateLimited, Err: err}
			}
			return ReissueResult{Failure: ReissueFailureStore, Err: err}
		}
	}

	claims, err := deps.Parser.ParseRefresh(token)
	if err != nil {
		kind := ReissueFailureInvalid
		switch {
		case errors.Is(err, jwt.ErrExpired):
			kind = ReissueFailureExpired
		case errors.Is(err, jwt.ErrMissing):
			kind = ReissueFailureMissing
		}
		return ReissueResult{Failure: kind, Err: err}
	}

	sess, parent, err := deps.Rotator.Reissue(ctx, claims.ID, token, refresh.RotateInput{
		IP:        in.IP,
		UserAgent: in.UserAgent,
		ClientID:  strings.TrimSpace(in.ClientID),
	})
	result := ReissueResult{
		UserID: claims.UserID,
		JTI:    claims.ID,
		Parent: parent,
	}
	if err != nil {
		result.Err = err
		result.Failure = classifyReissue(err)
		return result
	}

	result.Session = sess
	return result
}

func classifyReissue(err error) ReissueFailureKind {
	switch {
	case errors.Is(err, refresh.ErrNotFoundOrExpired):
		return ReissueFailureNotFound
	case errors.Is(err, refresh.ErrTokenMismatch):
		return ReissueFailureMismatch
	case errors.Is(err, refresh.ErrDuplicateRequest):
		return ReissueFailureDuplicate
	case errors.Is(err, refresh.ErrReuseDetected):
		return ReissueFailureReuse
	case errors.Is(err, refresh.ErrAlreadyUsed):
		return ReissueFailureAlreadyUsed
	default:
		return ReissueFailureStore
	}
}
