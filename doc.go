// Package auth is the session lifecycle engine: short-lived JWT access tokens,
// rotating refresh tokens tracked in a durable store, device-scoped and
// family-wide revocation, retention of aged records, and OAuth2 + PKCE social
// login with serialized first-time signup.
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// auth is the public surface. It exposes [Engine], [Builder], [Config], the
// error taxonomy and value types. Flow orchestration, ephemeral Redis state,
// rate limiting and audit dispatch live under internal/ and are never
// exported. The durable refresh-token store is pluggable through
// session.Store; session/memory and session/postgres are provided.
//
// # Rotation contract
//
// A refresh token rotates exactly once. Replaying a rotated token within the
// grace window yields [ErrDuplicateRequest] and leaves the family alone.
// Replaying it after the window yields [ErrReuseDetected] and revokes every
// ACTIVE and ROTATED member of its family in the same unit of work.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Perform I/O outside of Engine methods.
//   - Import any sub-package that re-imports auth (no import cycles).
package auth
