// Package ledger implements the state-transition core of a permissioned
// repository: content-addressed objects, mutable named refs, a single
// configuration blob, and the access-control roles gating every mutation.
//
// The core is a pure in-memory state machine. It performs no I/O, holds no
// locks, and assumes an external execution environment that applies one call
// at a time and commits each call atomically. Every mutating operation either
// applies in full - including every element of a batch - or fails with zero
// state change and zero events.
//
// Objects and refs each expose two synchronized views of the same records:
// direct lookup by key and stable-order enumeration by position. Both are
// backed by a single ordered-map structure so the views cannot diverge.
package ledger
