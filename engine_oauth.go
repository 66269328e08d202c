package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/realchillguyclub/backend-sub000/internal/flows"
	"github.com/realchillguyclub/backend-sub000/internal/stores"
	"github.com/realchillguyclub/backend-sub000/oauth"
	"github.com/realchillguyclub/backend-sub000/session"
)

// CallbackResult is the outcome of a provider redirect. Err is one of
// ErrCanceled, ErrInvalidRequest, ErrUnknownProvider, ErrOAuthExchange or
// ErrStoreUnavailable, and nil on success.
type CallbackResult struct {
	Outcome    oauth.Outcome
	ProviderID string
	Err        error
}

// Providers lists the configured identity provider ids.
func (e *Engine) Providers() []string {
	if e == nil || e.coordinator == nil {
		return nil
	}
	return e.coordinator.Providers().IDs()
}

// BeginAuthorization starts an authorization-code + PKCE attempt with the
// provider and returns the URL to open and the state to poll with.
func (e *Engine) BeginAuthorization(ctx context.Context, providerID string) (*Authorization, error) {
	if e == nil || e.coordinator == nil {
		return nil, ErrEngineNotReady
	}
	auth, err := e.coordinator.Begin(ctx, providerID)
	if err != nil {
		if errors.Is(err, oauth.ErrUnknownProvider) {
			return nil, ErrUnknownProvider
		}
		return nil, e.storeError(ctx, "begin authorization", err)
	}
	e.metricInc(MetricOAuthAuthorizeStarted)
	e.emitAudit(ctx, auditEventOAuthAuthorize, true, auditFields{}, nil, func() map[string]string {
		return map[string]string{"provider": providerID}
	})
	return &Authorization{URL: auth.URL, State: auth.State}, nil
}

// HandleCallback completes the provider redirect and parks the provider
// credential for the poller. A state completes at most one callback.
func (e *Engine) HandleCallback(ctx context.Context, providerID string, params oauth.CallbackParams) CallbackResult {
	if e == nil || e.coordinator == nil {
		return CallbackResult{Outcome: oauth.OutcomeError, ProviderID: providerID, Err: ErrEngineNotReady}
	}
	res := e.coordinator.HandleCallback(ctx, providerID, params)
	out := CallbackResult{Outcome: res.Outcome, ProviderID: res.ProviderID}

	switch res.Outcome {
	case oauth.OutcomeSuccess:
		e.metricInc(MetricOAuthCallbackSuccess)
	case oauth.OutcomeCanceled:
		e.metricInc(MetricOAuthCallbackCanceled)
		out.Err = ErrCanceled
	case oauth.OutcomeInvalidRequest:
		e.metricInc(MetricOAuthCallbackInvalid)
		out.Err = ErrInvalidRequest
		if errors.Is(res.Err, oauth.ErrUnknownProvider) {
			out.Err = ErrUnknownProvider
		}
	default:
		e.metricInc(MetricOAuthCallbackError)
		out.Err = ErrOAuthExchange
		if errors.Is(res.Err, stores.ErrEphemeralBackend) {
			out.Err = fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
		}
		e.log.WarnContext(ctx, "oauth callback failed",
			slog.String("provider", res.ProviderID),
			slog.String("error", errString(res.Err)),
		)
	}

	e.emitAudit(ctx, auditEventOAuthCallback, out.Err == nil, auditFields{}, out.Err, func() map[string]string {
		return map[string]string{
			"provider": res.ProviderID,
			"outcome":  string(res.Outcome),
		}
	})
	return out
}

// PollPendingLogin claims the login parked under state, resolves or creates
// the member, and issues a session for the polling device. It returns
// (nil, false, nil) while the callback has not completed yet.
func (e *Engine) PollPendingLogin(ctx context.Context, state string, mobileType session.MobileType, clientID string) (*LoginResult, bool, error) {
	if e == nil || e.coordinator == nil || e.userProvider == nil {
		return nil, false, ErrEngineNotReady
	}
	if state == "" {
		return nil, false, ErrInvalidRequest
	}

	result := flows.RunSocialLogin(ctx, flows.SocialLoginInput{
		State:      state,
		MobileType: mobileType,
		ClientID:   clientID,
		IP:         ClientIPFromContext(ctx),
		UserAgent:  UserAgentFromContext(ctx),
	}, e.flows.SocialLogin)

	subject := auditFields{userID: result.UserID}
	meta := func() map[string]string {
		return map[string]string{
			"provider":    result.ProviderID,
			"mobile_type": string(mobileType),
		}
	}

	var err error
	switch result.Failure {
	case flows.SocialLoginFailureNone:
		e.metricInc(MetricSocialLoginSuccess)
		if result.NewUser {
			e.metricInc(MetricSocialLoginNewUser)
		}
		e.recordIssued(ctx, result.Session)
		subject.familyID = result.Session.Record.FamilyID
		e.emitAudit(ctx, auditEventSocialLoginSuccess, true, subject, nil, meta)
		return &LoginResult{
			AccessToken:  result.Session.AccessToken,
			RefreshToken: result.Session.RefreshToken,
			UserID:       result.UserID,
			NewUser:      result.NewUser,
		}, true, nil

	case flows.SocialLoginFailurePending:
		e.metricInc(MetricPollPending)
		return nil, false, nil

	case flows.SocialLoginFailureRateLimited:
		e.metricInc(MetricPollRateLimited)
		e.emitRateLimit(ctx, "poll")
		return nil, false, ErrRateLimited

	case flows.SocialLoginFailureInvalidDevice:
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidDevice, result.Err)

	case flows.SocialLoginFailureSignupInProgress:
		e.metricInc(MetricSignupInProgress)
		e.emitAudit(ctx, auditEventSignupInProgress, false, subject, ErrSignupInProgress, meta)
		return nil, false, ErrSignupInProgress

	case flows.SocialLoginFailureUnknownProvider:
		err = ErrUnknownProvider
	case flows.SocialLoginFailureUserInfo:
		e.log.WarnContext(ctx, "provider user lookup failed",
			slog.String("provider", result.ProviderID),
			slog.String("error", errString(result.Err)),
		)
		err = ErrOAuthExchange
	default:
		err = e.storeError(ctx, "social login", result.Err)
	}

	e.metricInc(MetricSocialLoginFailure)
	e.emitAudit(ctx, auditEventSocialLoginFailure, false, subject, err, meta)
	return nil, false, err
}

func (e *Engine) findMember(ctx context.Context, providerID, socialID string) (string, bool, error) {
	rec, err := e.userProvider.FindBySocialID(ctx, providerID, socialID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	return rec.UserID, true, nil
}

func (e *Engine) createMember(ctx context.Context, user *oauth.ProviderUser) (string, error) {
	rec, err := e.userProvider.CreateSocialUser(ctx, CreateUserInput{
		ProviderID: user.ProviderID,
		SocialID:   user.SocialID,
		Email:      user.Email,
		Name:       user.Name,
	})
	if err != nil {
		return "", err
	}
	return rec.UserID, nil
}

func isAccountExists(err error) bool {
	return errors.Is(err, ErrAccountExists)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
