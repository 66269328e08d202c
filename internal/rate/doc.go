// Package rate provides Redis-backed fixed-window throttles for the login poll
// and token reissue endpoints.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Keys:
//   - <prefix>:poll:<state>   per authorization attempt
//   - <prefix>:reissue:<ip>   per client address
//
// # What this package must NOT do
//
//   - Decide how a throttled request is reported (the Engine maps errors).
//   - Be imported outside this module.
package rate
