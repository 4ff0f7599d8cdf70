package accumulator

import "github.com/cockroachdb/errors"

// ErrProofMismatch is returned when a supplied proof does not fold up to
// the root currently held at its claimed height.
var ErrProofMismatch = errors.New("accumulator: proof does not match root")

// ErrUnknownUTXO names an operation on a UTXO the caller has no record
// of. The bare Accumulator never returns it itself since it has no
// notion of UTXO identity beyond the proof it is handed; the forest and
// hashforest packages return their own ErrUnknownUTXO values.
var ErrUnknownUTXO = errors.New("accumulator: unknown utxo")

// ErrInvariantViolation marks a failure of one of the structural
// invariants (height consistency, sibling-flag consistency, or the
// never-nil-after-settle bookkeeping rule). It indicates caller misuse
// or a bug in the accumulator itself; callers should treat it as fatal.
var ErrInvariantViolation = errors.New("accumulator: invariant violation")

// ErrDuplicateAdd names an Add for a UTXO identity already tracked by
// the caller. The bare Accumulator does not track identities and never
// returns it; the forest package returns its own ErrDuplicateAdd.
var ErrDuplicateAdd = errors.New("accumulator: utxo already present")
