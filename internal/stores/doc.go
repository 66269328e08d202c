// Package stores provides the Redis-backed ephemeral state used by the OAuth
// authorization flow: the state to PKCE verifier pairing and the pending
// desktop login handed from the callback to the polling client.
//
// # Design
//
// Entries live under "<prefix>:<namespace>:<key>" with a Redis TTL. Expiry is
// enforced by Redis alone, so an expired entry is indistinguishable from one
// that never existed. Take uses GETDEL, which makes consumption atomic and
// one-time even when two callers race on the same key.
//
// # Architecture boundaries
//
// This package owns persistence and encoding of transient records. It does
// NOT generate state values, talk to identity providers, or decide flow
// outcomes; those belong to the oauth package.
//
// # What this package must NOT do
//
//   - Import the root package or any sibling internal package.
//   - Log stored values; they carry provider credentials.
package stores
