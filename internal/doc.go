// Package internal holds helpers private to the auth module, currently the
// random state generator used by the OAuth coordinator.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher and Sink implementations)
//   - config: cleanenv-backed service configuration for cmd/authd
//   - dbx: the query surface shared by the Postgres stores
//   - flows: flow orchestrators behind every Engine operation
//   - members: Postgres-backed member lookup and social signup
//   - migrations: goose migrations for refresh tokens and members
//   - mocks: testify mocks for engine collaborators
//   - rate: Redis-backed fixed-window limiter
//   - stores: Redis-backed ephemeral state and pending logins
//   - transport/httpapi: chi router and JSON handlers
//
// # What this package must NOT do
//
//   - Export types that appear in the public auth API.
package internal
