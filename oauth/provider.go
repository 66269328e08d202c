package oauth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

var (
	// ErrUnknownProvider is returned for provider ids missing from the registry.
	ErrUnknownProvider = errors.New("unknown identity provider")
	// ErrExchange wraps failures of the authorization-code exchange.
	ErrExchange = errors.New("authorization code exchange failed")
	// ErrUserInfo wraps failures fetching or decoding the provider user.
	ErrUserInfo = errors.New("provider user lookup failed")
)

// ProviderToken is the credential returned by a provider's token endpoint.
type ProviderToken struct {
	AccessToken  string
	TokenType    string
	RefreshToken string
	IDToken      string
	Expiry       time.Time
}

// ProviderUser is the identity a provider vouches for.
type ProviderUser struct {
	ProviderID string
	SocialID   string
	Email      string
	Name       string
}

// IdentityProvider is one external OAuth2 identity provider.
type IdentityProvider interface {
	ID() string
	AuthCodeURL(state, codeChallenge string) string
	ExchangeCode(ctx context.Context, code, codeVerifier string) (*ProviderToken, error)
	FetchUser(ctx context.Context, token *ProviderToken) (*ProviderUser, error)
}

// Registry maps provider ids to providers. It is immutable after construction.
type Registry struct {
	providers map[string]IdentityProvider
}

// NewRegistry indexes providers by ID. Ids are case-insensitive.
func NewRegistry(providers ...IdentityProvider) (*Registry, error) {
	r := &Registry{providers: make(map[string]IdentityProvider, len(providers))}
	for _, p := range providers {
		if p == nil {
			return nil, errors.New("nil identity provider")
		}
		id := normalizeID(p.ID())
		if id == "" {
			return nil, errors.New("identity provider id required")
		}
		if _, dup := r.providers[id]; dup {
			return nil, fmt.Errorf("duplicate identity provider %q", id)
		}
		r.providers[id] = p
	}
	return r, nil
}

// Get looks up a provider.
func (r *Registry) Get(id string) (IdentityProvider, error) {
	if r == nil {
		return nil, ErrUnknownProvider
	}
	p, ok := r.providers[normalizeID(id)]
	if !ok {
		return nil, ErrUnknownProvider
	}
	return p, nil
}

// IDs lists the registered provider ids in sorted order.
func (r *Registry) IDs() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.providers))
	for id := range r.providers {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func normalizeID(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}
