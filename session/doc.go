// Package session defines the durable refresh-token record and the store
// contract shared by every backend.
//
// # Lifecycle
//
// A record is created ACTIVE at login (family root) or at a rotation step
// (child). Rotation marks the parent ROTATED and never deletes it. Revocation
// and expiry are soft transitions; rows are removed only by the retention
// jobs once they are no longer ACTIVE and older than the retention window.
//
// # Architecture boundaries
//
// This package owns [Record], [Status], [MobileType] and the [Store] / [Tx]
// interfaces. Backends live in session/postgres and session/memory. Rotation
// policy (grace window, reuse detection) belongs to package refresh.
//
// # What this package must NOT do
//
//   - Import the root auth package, jwt, or refresh.
//   - Decide whether a presented token is acceptable.
package session
