// Package audit implements async event dispatching for session lifecycle
// transitions: issuance, rotation, reuse detection, revocation, social login
// and retention runs.
//
// # Components
//
//   - [Sink]: interface for event consumers (channel, JSON writer, slog, no-op).
//   - [Dispatcher]: buffered async relay with drop-if-full or block-if-full delivery.
//   - [Event]: structured audit record with timestamp, type, user, family, IP, metadata.
//
// Delivery is at-most-once. A dropped event is counted, never retried.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does not decide which
// events to emit; the Engine does.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on business logic.
//   - Import the root auth package or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
