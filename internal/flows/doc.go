// Package flows contains pure-function orchestrators for the Engine's
// session operations.
//
// Each flow function (RunReissue, RunSocialLogin, RunValidate) accepts a typed
// dependency struct and returns a result carrying a FailureKind instead of a
// public error. The Engine maps each kind to its sentinel, metric and audit
// event, which keeps this package free of the root package.
//
// # Architecture boundaries
//
// Flow functions coordinate the token codec, rotator, coordinator, signup
// serializer and rate limiter. They do NOT own any of these resources;
// ownership stays with the Engine.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import the root auth package (to avoid import cycles).
//   - Emit audit events or metrics.
package flows
