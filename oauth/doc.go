// Package oauth coordinates the OAuth2 authorization-code flow with PKCE that
// bootstraps a session from an external identity provider.
//
// A login attempt is keyed by its state value. Begin parks the PKCE verifier
// under the state; the provider's callback consumes it, exchanges the code,
// and parks the provider token as a pending login under the same state; the
// desktop client then claims the pending login by polling with the state it
// was given. Every parked entry is one-time and TTL-bounded.
//
// Providers plug in through IdentityProvider. OAuth2Provider covers any
// provider that speaks standard authorization-code OAuth2 with a JSON userinfo
// endpoint.
package oauth
