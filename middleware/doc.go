// Package middleware adapts the auth engine to net/http.
//
// # Handlers
//
//   - [Guard] requires a valid bearer access token and stores the user id in
//     the request context.
//   - [ClientInfo] records the caller IP and user agent for the engine.
//
// This package translates HTTP semantics into Engine calls. It does not parse
// JWTs or touch any store itself.
package middleware
