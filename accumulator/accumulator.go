// Package accumulator implements the stateless root-only half of the
// dynamic Merkle forest: a sparse array of tree roots indexed by
// height, with no knowledge of the leaves or internal nodes that
// justify them. Every mutation is driven by a proof supplied by the
// caller (typically a Forest or HashForest, which does hold the nodes).
package accumulator

import (
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/go-utreexo/utreexo/log"
	"github.com/go-utreexo/utreexo/metrics"
	"github.com/go-utreexo/utreexo/uhash"
)

var (
	addsTotal    = metrics.DefaultRegistry.Counter("accumulator_adds_total")
	deletesTotal = metrics.DefaultRegistry.Counter("accumulator_deletes_total")
	countGauge   = metrics.DefaultRegistry.Gauge("accumulator_count")
)

// ProofStep is one level of an inclusion proof: the sibling digest
// encountered at that height, and whether the hash being carried
// upward (not the sibling) is the left operand of the next combine.
type ProofStep struct {
	Sibling       uhash.Hash
	CurrentIsLeft bool
}

// Accumulator holds one root hash per occupied height. A height with no
// root present has no entry in the map at all; the set of occupied
// heights forms the binary representation of the number of leaves ever
// added minus removed net of cancellation, per the carry/borrow
// arithmetic implemented by Add and Delete.
type Accumulator struct {
	mu    sync.RWMutex
	roots map[int]uhash.Hash
	count int
	log   *log.Logger
}

// New returns an empty Accumulator.
func New(logger *log.Logger) *Accumulator {
	if logger == nil {
		logger = log.Default()
	}
	return &Accumulator{
		roots: make(map[int]uhash.Hash),
		log:   logger.Module("accumulator"),
	}
}

// Count returns the number of leaves currently represented.
func (a *Accumulator) Count() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.count
}

// Add inserts a new leaf hash, performing the ripple-carry merge with
// whatever roots already occupy height 0, 1, 2, ... until an empty
// height is reached.
func (a *Accumulator) Add(leaf uhash.Hash) {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := leaf
	h := 0
	for {
		r, ok := a.roots[h]
		if !ok {
			break
		}
		delete(a.roots, h)
		// the existing root is older; the carried-in value is always
		// attached as the right child.
		n = uhash.Combine(n, r, false)
		h++
	}
	a.roots[h] = n
	a.count++
	addsTotal.Inc()
	countGauge.Set(int64(a.count))
	a.log.Debug("add", "height", h, "count", a.count)
}

// Verify folds a leaf hash up through proof and checks the result
// against the root currently held at the resulting height. It returns
// ErrProofMismatch if the fold does not land on the recorded root, or
// if no root is recorded at that height at all.
func (a *Accumulator) Verify(leaf uhash.Hash, proof []ProofStep) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	n := leaf
	for _, step := range proof {
		n = uhash.Combine(n, step.Sibling, step.CurrentIsLeft)
	}
	r, ok := a.roots[len(proof)]
	if !ok || r != n {
		return errors.Wrapf(ErrProofMismatch, "height %d", len(proof))
	}
	return nil
}

// Delete removes a leaf identified by proof, running the mirror-image
// "borrow" chain of Add: climbing from height 0, each vacant height takes
// the proof's sibling at that level as its new root, until the first
// occupied height is reached; that root is moved into the deleted path's
// slot, combined with the remaining proof siblings, and the result
// becomes the root at the proof's full height.
//
// delete assumes the caller has already established, via Verify or
// equivalent, that proof is valid for leaf; it does not re-verify.
func (a *Accumulator) Delete(leaf uhash.Hash, proof []ProofStep) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var n uhash.Hash
	haveN := false
	h := 0
	for h < len(proof) {
		step := proof[h]
		if haveN {
			n = uhash.Combine(n, step.Sibling, step.CurrentIsLeft)
		} else {
			r, ok := a.roots[h]
			delete(a.roots, h)
			if !ok {
				a.roots[h] = step.Sibling
			} else {
				n = uhash.Combine(r, step.Sibling, step.CurrentIsLeft)
				haveN = true
			}
		}
		h++
	}
	if haveN {
		a.roots[h] = n
	} else {
		// Every height the proof touched was vacant and absorbed one of
		// the deleted leaf's siblings directly; the former root height
		// has nothing left to hold and becomes vacant itself.
		delete(a.roots, h)
	}
	a.count--
	deletesTotal.Inc()
	countGauge.Set(int64(a.count))
	a.log.Debug("delete", "height", h, "count", a.count)
	return nil
}

// Dump returns the dense slice of roots from height 0 through the
// highest occupied height, with nil standing in for an unoccupied
// height. The returned slice is a commitment to the full accumulator
// state.
func (a *Accumulator) Dump() []*uhash.Hash {
	a.mu.RLock()
	defer a.mu.RUnlock()

	maxH := -1
	for h := range a.roots {
		if h > maxH {
			maxH = h
		}
	}
	if maxH < 0 {
		return nil
	}
	out := make([]*uhash.Hash, maxH+1)
	for h := 0; h <= maxH; h++ {
		if r, ok := a.roots[h]; ok {
			v := r
			out[h] = &v
		}
	}
	return out
}
