package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/realchillguyclub/backend-sub000/internal"
	"github.com/realchillguyclub/backend-sub000/internal/stores"
)

const (
	// DefaultStateTTL bounds how long a started authorization can be completed.
	DefaultStateTTL = 10 * time.Minute
	// DefaultPendingLoginTTL bounds how long a completed callback waits for the poll.
	DefaultPendingLoginTTL = 3 * time.Minute
)

// Outcome is the result class of a provider callback.
type Outcome string

const (
	OutcomeSuccess        Outcome = "SUCCESS"
	OutcomeCanceled       Outcome = "CANCELED"
	OutcomeInvalidRequest Outcome = "INVALID_REQUEST"
	OutcomeError          Outcome = "ERROR"
)

// ErrInvalidState is reported with OutcomeInvalidRequest when the state is
// missing, unknown, expired, or bound to another provider.
var ErrInvalidState = errors.New("invalid or expired oauth state")

// Authorization is what a client needs to send the user to the provider.
type Authorization struct {
	URL   string
	State string
}

// CallbackParams are the query parameters of the provider redirect.
type CallbackParams struct {
	Code             string
	State            string
	Error            string
	ErrorDescription string
}

// CallbackResult reports the callback outcome. Err carries detail for
// OutcomeInvalidRequest and OutcomeError.
type CallbackResult struct {
	Outcome    Outcome
	ProviderID string
	Err        error
}

// PendingLogin is a provider credential waiting to be claimed by the poller.
type PendingLogin struct {
	ProviderID string
	Token      *ProviderToken
}

// CoordinatorConfig tunes TTLs. Zero values take the defaults.
type CoordinatorConfig struct {
	StateTTL        time.Duration
	PendingLoginTTL time.Duration
}

// Coordinator drives authorization attempts across Begin, HandleCallback and
// ClaimPendingLogin.
type Coordinator struct {
	providers *Registry
	store     *stores.EphemeralStore
	cfg       CoordinatorConfig
	newState  func() (string, error)
}

// NewCoordinator returns a coordinator over the given providers and store.
func NewCoordinator(providers *Registry, store *stores.EphemeralStore, cfg CoordinatorConfig) *Coordinator {
	if cfg.StateTTL <= 0 {
		cfg.StateTTL = DefaultStateTTL
	}
	if cfg.PendingLoginTTL <= 0 {
		cfg.PendingLoginTTL = DefaultPendingLoginTTL
	}
	return &Coordinator{
		providers: providers,
		store:     store,
		cfg:       cfg,
		newState:  internal.NewState,
	}
}

// Providers exposes the registry.
func (c *Coordinator) Providers() *Registry { return c.providers }

// Begin starts an authorization attempt with providerID.
func (c *Coordinator) Begin(ctx context.Context, providerID string) (*Authorization, error) {
	provider, err := c.providers.Get(providerID)
	if err != nil {
		return nil, err
	}

	state, err := c.newState()
	if err != nil {
		return nil, fmt.Errorf("generate state: %w", err)
	}
	verifier := NewVerifier()

	if err := c.store.Put(ctx, stores.NamespaceState, state, encodeStateValue(provider.ID(), verifier), c.cfg.StateTTL); err != nil {
		return nil, err
	}

	return &Authorization{
		URL:   provider.AuthCodeURL(state, Challenge(verifier)),
		State: state,
	}, nil
}

// HandleCallback completes the provider redirect. The state entry is consumed
// before any provider call, so a state can complete at most one callback.
func (c *Coordinator) HandleCallback(ctx context.Context, providerID string, params CallbackParams) CallbackResult {
	result := CallbackResult{ProviderID: normalizeID(providerID)}

	if params.Error != "" {
		if params.State != "" {
			_, _ = c.store.Delete(ctx, stores.NamespaceState, params.State)
		}
		result.Outcome = OutcomeCanceled
		result.Err = fmt.Errorf("provider returned %s: %s", params.Error, params.ErrorDescription)
		return result
	}

	if strings.TrimSpace(params.State) == "" {
		result.Outcome = OutcomeInvalidRequest
		result.Err = ErrInvalidState
		return result
	}

	raw, err := c.store.Take(ctx, stores.NamespaceState, params.State)
	if err != nil {
		if errors.Is(err, stores.ErrEphemeralNotFound) {
			result.Outcome = OutcomeInvalidRequest
			result.Err = ErrInvalidState
			return result
		}
		result.Outcome = OutcomeError
		result.Err = err
		return result
	}

	boundProvider, verifier, ok := decodeStateValue(raw)
	if !ok || boundProvider != result.ProviderID {
		result.Outcome = OutcomeInvalidRequest
		result.Err = ErrInvalidState
		return result
	}

	provider, err := c.providers.Get(providerID)
	if err != nil {
		result.Outcome = OutcomeInvalidRequest
		result.Err = err
		return result
	}

	if strings.TrimSpace(params.Code) == "" {
		result.Outcome = OutcomeInvalidRequest
		result.Err = errors.New("authorization code missing")
		return result
	}

	token, err := provider.ExchangeCode(ctx, params.Code, verifier)
	if err != nil {
		result.Outcome = OutcomeError
		result.Err = err
		return result
	}

	payload, err := stores.EncodePendingLogin(toPendingRecord(provider.ID(), token))
	if err != nil {
		result.Outcome = OutcomeError
		result.Err = err
		return result
	}
	if err := c.store.Put(ctx, stores.NamespacePending, params.State, payload, c.cfg.PendingLoginTTL); err != nil {
		result.Outcome = OutcomeError
		result.Err = err
		return result
	}

	result.Outcome = OutcomeSuccess
	return result
}

// ClaimPendingLogin takes the pending login parked under state. It returns
// (nil, false, nil) when nothing is parked yet or the entry expired.
func (c *Coordinator) ClaimPendingLogin(ctx context.Context, state string) (*PendingLogin, bool, error) {
	raw, err := c.store.Take(ctx, stores.NamespacePending, state)
	if err != nil {
		if errors.Is(err, stores.ErrEphemeralNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	record, err := stores.DecodePendingLogin(raw)
	if err != nil {
		return nil, false, err
	}
	return fromPendingRecord(record), true, nil
}

// RestorePendingLogin parks a claimed login under state again with a fresh
// TTL, so a poll that failed transiently can be retried.
func (c *Coordinator) RestorePendingLogin(ctx context.Context, state string, pending *PendingLogin) error {
	if pending == nil || pending.Token == nil {
		return errors.New("pending login is empty")
	}
	payload, err := stores.EncodePendingLogin(toPendingRecord(pending.ProviderID, pending.Token))
	if err != nil {
		return err
	}
	return c.store.Put(ctx, stores.NamespacePending, state, payload, c.cfg.PendingLoginTTL)
}

// The state value binds the verifier to the provider the attempt began with.
// Verifiers are base64url and never contain ':'.
func encodeStateValue(providerID, verifier string) []byte {
	return []byte(verifier + ":" + providerID)
}

func decodeStateValue(raw []byte) (providerID, verifier string, ok bool) {
	verifier, providerID, ok = strings.Cut(string(raw), ":")
	if !ok || verifier == "" || providerID == "" {
		return "", "", false
	}
	return providerID, verifier, true
}

func toPendingRecord(providerID string, token *ProviderToken) *stores.PendingLogin {
	rec := &stores.PendingLogin{
		ProviderID:   providerID,
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
		IDToken:      token.IDToken,
	}
	if !token.Expiry.IsZero() {
		rec.Expiry = token.Expiry.Unix()
	}
	return rec
}

func fromPendingRecord(rec *stores.PendingLogin) *PendingLogin {
	token := &ProviderToken{
		AccessToken:  rec.AccessToken,
		TokenType:    rec.TokenType,
		RefreshToken: rec.RefreshToken,
		IDToken:      rec.IDToken,
	}
	if rec.Expiry != 0 {
		token.Expiry = time.Unix(rec.Expiry, 0)
	}
	return &PendingLogin{ProviderID: rec.ProviderID, Token: token}
}
