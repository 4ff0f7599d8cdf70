package hashforest

import "github.com/cockroachdb/errors"

// ErrUnknownUTXO is returned when an operation names a UTXO the
// hashforest has no recorded path for.
var ErrUnknownUTXO = errors.New("hashforest: unknown utxo")

// ErrInvariantViolation marks a failure of a structural invariant: a
// leaf's stored hash didn't match what was read back from its claimed
// path, a path prefix mismatch during reindexing, or a missing
// HashTree at a height the borrow chain expected to already exist.
var ErrInvariantViolation = errors.New("hashforest: invariant violation")
