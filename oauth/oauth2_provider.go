package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
)

const maxUserInfoBytes = 1 << 20

// OAuth2ProviderConfig describes a generic authorization-code provider.
type OAuth2ProviderConfig struct {
	ID           string
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	UserInfoURL  string
	Scopes       []string

	// Dotted JSON paths into the userinfo document, e.g. "kakao_account.email".
	IDField    string
	EmailField string
	NameField  string

	// HTTPClient is used for the token exchange and userinfo calls when set.
	HTTPClient *http.Client
}

// OAuth2Provider is an IdentityProvider over golang.org/x/oauth2.
type OAuth2Provider struct {
	id          string
	cfg         oauth2.Config
	userInfoURL string
	idField     string
	emailField  string
	nameField   string
	client      *http.Client
}

var _ IdentityProvider = (*OAuth2Provider)(nil)

// NewOAuth2Provider validates cfg and returns a provider.
func NewOAuth2Provider(cfg OAuth2ProviderConfig) (*OAuth2Provider, error) {
	switch {
	case strings.TrimSpace(cfg.ID) == "":
		return nil, errors.New("provider id required")
	case cfg.ClientID == "":
		return nil, fmt.Errorf("provider %s: client id required", cfg.ID)
	case cfg.AuthURL == "" || cfg.TokenURL == "":
		return nil, fmt.Errorf("provider %s: auth and token urls required", cfg.ID)
	case cfg.RedirectURL == "":
		return nil, fmt.Errorf("provider %s: redirect url required", cfg.ID)
	case cfg.UserInfoURL == "":
		return nil, fmt.Errorf("provider %s: userinfo url required", cfg.ID)
	}
	if cfg.IDField == "" {
		cfg.IDField = "id"
	}
	return &OAuth2Provider{
		id: normalizeID(cfg.ID),
		cfg: oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
		},
		userInfoURL: cfg.UserInfoURL,
		idField:     cfg.IDField,
		emailField:  cfg.EmailField,
		nameField:   cfg.NameField,
		client:      cfg.HTTPClient,
	}, nil
}

func (p *OAuth2Provider) ID() string { return p.id }

func (p *OAuth2Provider) AuthCodeURL(state, codeChallenge string) string {
	return p.cfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", ChallengeMethod),
	)
}

func (p *OAuth2Provider) ExchangeCode(ctx context.Context, code, codeVerifier string) (*ProviderToken, error) {
	tok, err := p.cfg.Exchange(p.withClient(ctx), code, oauth2.VerifierOption(codeVerifier))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	out := &ProviderToken{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
	if idToken, ok := tok.Extra("id_token").(string); ok {
		out.IDToken = idToken
	}
	return out, nil
}

func (p *OAuth2Provider) FetchUser(ctx context.Context, token *ProviderToken) (*ProviderUser, error) {
	if token == nil || token.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access token", ErrUserInfo)
	}
	client := p.cfg.Client(p.withClient(ctx), &oauth2.Token{
		AccessToken:  token.AccessToken,
		TokenType:    token.TokenType,
		RefreshToken: token.RefreshToken,
		Expiry:       token.Expiry,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo status %d", ErrUserInfo, resp.StatusCode)
	}

	dec := json.NewDecoder(io.LimitReader(resp.Body, maxUserInfoBytes))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: decode userinfo: %v", ErrUserInfo, err)
	}

	socialID := lookupString(doc, p.idField)
	if socialID == "" {
		return nil, fmt.Errorf("%w: userinfo missing %q", ErrUserInfo, p.idField)
	}
	return &ProviderUser{
		ProviderID: p.id,
		SocialID:   socialID,
		Email:      lookupString(doc, p.emailField),
		Name:       lookupString(doc, p.nameField),
	}, nil
}

func (p *OAuth2Provider) withClient(ctx context.Context) context.Context {
	if p.client == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, p.client)
}

// lookupString walks a dotted path and renders the leaf as a string.
func lookupString(doc map[string]any, path string) string {
	if path == "" {
		return ""
	}
	var cur any = doc
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur, ok = m[part]
		if !ok {
			return ""
		}
	}
	switch v := cur.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	case bool:
		if v {
			return "true"
		}
		return "false"
	default:
		return ""
	}
}
