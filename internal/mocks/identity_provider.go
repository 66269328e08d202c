// Package mocks holds testify doubles shared across package tests.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/realchillguyclub/backend-sub000/oauth"
)

// IdentityProvider is a testify double for oauth.IdentityProvider. ID and
// AuthCodeURL are answered from fields so tests only stub the network calls.
type IdentityProvider struct {
	mock.Mock
	ProviderID string
	AuthURL    string
}

var _ oauth.IdentityProvider = (*IdentityProvider)(nil)

func (m *IdentityProvider) ID() string { return m.ProviderID }

func (m *IdentityProvider) AuthCodeURL(state, codeChallenge string) string {
	return m.AuthURL + "?state=" + state + "&code_challenge=" + codeChallenge
}

func (m *IdentityProvider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*oauth.ProviderToken, error) {
	args := m.Called(ctx, code, codeVerifier)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth.ProviderToken), args.Error(1)
}

func (m *IdentityProvider) FetchUser(ctx context.Context, token *oauth.ProviderToken) (*oauth.ProviderUser, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth.ProviderUser), args.Error(1)
}
