package flows

import (
	"context"
	"errors"
	"fmt"

	"github.com/realchillguyclub/backend-sub000/internal/rate"
	"github.com/realchillguyclub/backend-sub000/oauth"
	"github.com/realchillguyclub/backend-sub000/refresh"
	"github.com/realchillguyclub/backend-sub000/session"
	"github.com/realchillguyclub/backend-sub000/signup"
)

// SocialLoginFailureKind classifies poll failures for root-level mapping.
type SocialLoginFailureKind int

const (
	SocialLoginFailureNone SocialLoginFailureKind = iota
	SocialLoginFailurePending
	SocialLoginFailureInvalidDevice
	SocialLoginFailureRateLimited
	SocialLoginFailureUnknownProvider
	SocialLoginFailureUserInfo
	SocialLoginFailureSignupInProgress
	SocialLoginFailureUserStore
	SocialLoginFailureIssue
	SocialLoginFailureStore
)

// SocialLoginInput is one poll for the login parked under State.
type SocialLoginInput struct {
	State      string
	MobileType session.MobileType
	ClientID   string
	IP         string
	UserAgent  string
}

// SocialLoginResult carries either the issued session or failure metadata.
type SocialLoginResult struct {
	Failure    SocialLoginFailureKind
	Err        error
	ProviderID string
	SocialID   string
	UserID     string
	NewUser    bool
	Session    *refresh.Session
}

type PendingLoginStore interface {
	ClaimPendingLogin(ctx context.Context, state string) (*oauth.PendingLogin, bool, error)
	RestorePendingLogin(ctx context.Context, state string, pending *oauth.PendingLogin) error
}

type ProviderLookup interface {
	Get(id string) (oauth.IdentityProvider, error)
}

type SessionIssuer interface {
	Issue(ctx context.Context, req refresh.IssueRequest) (*refresh.Session, error)
}

type PollRateLimiter interface {
	CheckPoll(ctx context.Context, state string) error
}

// SocialLoginDeps captures social login dependencies. RateLimiter and
// Warn may be nil.
type SocialLoginDeps struct {
	Pending     PendingLoginStore
	Providers   ProviderLookup
	Serializer  signup.Serializer
	Sessions    SessionIssuer
	RateLimiter PollRateLimiter
	// FindMember returns the member id linked to the external identity.
	FindMember func(ctx context.Context, providerID, socialID string) (string, bool, error)
	// CreateMember links a new member to the external identity.
	CreateMember func(ctx context.Context, user *oauth.ProviderUser) (string, error)
	// IsDuplicate reports whether a CreateMember error means the identity is
	// already linked.
	IsDuplicate func(error) bool
	Warn        func(string, ...any)
}

type member struct {
	userID  string
	newUser bool
}

// RunSocialLogin claims the pending login for in.State, resolves or creates
// the member under the signup lock for that identity, and issues a session.
func RunSocialLogin(ctx context.Context, in SocialLoginInput, deps SocialLoginDeps) SocialLoginResult {
	if err := session.ValidateDevice(in.MobileType, in.ClientID); err != nil {
		return SocialLoginResult{Failure: SocialLoginFailureInvalidDevice, Err: err}
	}

	if deps.RateLimiter != nil {
		if err := deps.RateLimiter.CheckPoll(ctx, in.State); err != nil {
			if errors.Is(err, rate.ErrRateLimited) {
				return SocialLoginResult{Failure: SocialLoginFailureRateLimited, Err: err}
			}
			return SocialLoginResult{Failure: SocialLoginFailureStore, Err: err}
		}
	}

	pending, ok, err := deps.Pending.ClaimPendingLogin(ctx, in.State)
	if err != nil {
		return SocialLoginResult{Failure: SocialLoginFailureStore, Err: err}
	}
	if !ok {
		return SocialLoginResult{Failure: SocialLoginFailurePending}
	}

	result := SocialLoginResult{ProviderID: pending.ProviderID}

	provider, err := deps.Providers.Get(pending.ProviderID)
	if err != nil {
		result.Failure = SocialLoginFailureUnknownProvider
		result.Err = err
		return result
	}

	user, err := provider.FetchUser(ctx, pending.Token)
	if err != nil {
		// Keep the login claimable so a later poll retries the lookup.
		restorePending(ctx, in.State, pending, deps)
		result.Failure = SocialLoginFailureUserInfo
		result.Err = err
		return result
	}
	result.SocialID = user.SocialID

	key := user.ProviderID + ":" + user.SocialID
	m, err := signup.Execute(ctx, deps.Serializer, key, func(ctx context.Context) (member, error) {
		return resolveMember(ctx, user, deps)
	})
	if err != nil {
		if errors.Is(err, signup.ErrSignupInProgress) {
			restorePending(ctx, in.State, pending, deps)
			result.Failure = SocialLoginFailureSignupInProgress
		} else {
			result.Failure = SocialLoginFailureUserStore
		}
		result.Err = err
		return result
	}
	result.UserID = m.userID
	result.NewUser = m.newUser

	sess, err := deps.Sessions.Issue(ctx, refresh.IssueRequest{
		UserID:     m.userID,
		MobileType: in.MobileType,
		ClientID:   in.ClientID,
		IP:         in.IP,
		UserAgent:  in.UserAgent,
	})
	if err != nil {
		result.Failure = SocialLoginFailureIssue
		result.Err = err
		return result
	}
	result.Session = sess
	return result
}

// restorePending parks a claimed login again so the retried poll has
// something to claim.
func restorePending(ctx context.Context, state string, pending *oauth.PendingLogin, deps SocialLoginDeps) {
	if err := deps.Pending.RestorePendingLogin(ctx, state, pending); err != nil && deps.Warn != nil {
		deps.Warn("pending login restore failed", "state", state, "error", err)
	}
}

func resolveMember(ctx context.Context, user *oauth.ProviderUser, deps SocialLoginDeps) (member, error) {
	userID, found, err := deps.FindMember(ctx, user.ProviderID, user.SocialID)
	if err != nil {
		return member{}, fmt.Errorf("find member: %w", err)
	}
	if found {
		return member{userID: userID}, nil
	}

	userID, err = deps.CreateMember(ctx, user)
	if err == nil {
		return member{userID: userID, newUser: true}, nil
	}
	if deps.IsDuplicate == nil || !deps.IsDuplicate(err) {
		return member{}, fmt.Errorf("create member: %w", err)
	}

	// Another node linked the identity between our lookup and insert.
	userID, found, err = deps.FindMember(ctx, user.ProviderID, user.SocialID)
	if err != nil {
		return member{}, fmt.Errorf("find member: %w", err)
	}
	if !found {
		return member{}, errors.New("member vanished after duplicate insert")
	}
	return member{userID: userID}, nil
}
