package forest

import "github.com/cockroachdb/errors"

// ErrUnknownUTXO is returned when an operation names a UTXO the forest
// has no leaf for.
var ErrUnknownUTXO = errors.New("forest: unknown utxo")

// ErrInvariantViolation marks a failure of a structural invariant
// (a node lost its expected sibling, a twin pairing disagreed on
// parent, a root slot was found occupied when the climb assumed it
// empty, ...). It indicates caller misuse or a bug in the forest
// itself; callers should treat it as fatal.
var ErrInvariantViolation = errors.New("forest: invariant violation")

// ErrDuplicateAdd is returned when Add is called for a UTXO identity the
// forest already tracks.
var ErrDuplicateAdd = errors.New("forest: utxo already present")
