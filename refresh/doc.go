// Package refresh implements the refresh-token rotation state machine and the
// revocation operations on top of session.Store.
//
// # Rotation
//
// Every login starts a family rooted at one ACTIVE record. Presenting the
// ACTIVE record's token rotates it: the record becomes ROTATED and an ACTIVE
// child with reissueCount+1 joins the family. A ROTATED token presented again
// within the grace window is a benign retry (ErrDuplicateRequest). Outside the
// window it is treated as theft: the whole family is revoked in the same unit
// of work and ErrReuseDetected is returned.
//
// # Architecture boundaries
//
// This package owns the state machine and revocation. Cryptographic validity
// of the presented token is established by the caller through the jwt
// package before Reissue is reached.
//
// # What this package must NOT do
//
//   - Hold locks across calls; every operation is one Store.WithTx unit.
//   - Delete records. Retention is the only path to hard deletion.
package refresh
