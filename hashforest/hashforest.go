// Package hashforest implements the flat-array variant of the dynamic
// Merkle forest: rather than a graph of pointer-linked nodes, each
// occupied height owns one fixed-size HashTree holding every node of
// its perfect binary tree in a single contiguous buffer, addressed by
// '0'/'1' path strings instead of node pointers.
package hashforest

import (
	"strings"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/cockroachdb/errors"

	"github.com/go-utreexo/utreexo/log"
	"github.com/go-utreexo/utreexo/metrics"
	"github.com/go-utreexo/utreexo/uhash"
)

const filterBits = 1 << 20 // 128 KiB of bitset backing, ~20 bits of hash entropy

var (
	addsTotal    = metrics.DefaultRegistry.Counter("hashforest_adds_total")
	removesTotal = metrics.DefaultRegistry.Counter("hashforest_removes_total")
	countGauge   = metrics.DefaultRegistry.Gauge("hashforest_count")
)

// HashForest is a sparse array of HashTrees, one per occupied height,
// alongside the reverse index from leaf hash to its current path
// within that height's tree.
type HashForest struct {
	mu sync.RWMutex

	trees   map[int]*HashTree
	utxos   map[uhash.Hash]string
	counter int

	// membership is a cheap, never-false-negative pre-filter over every
	// hash this forest has ever indexed, consulted before the
	// authoritative utxos map lookup during reindexing walks.
	membership *bitset.BitSet

	log *log.Logger
}

// New returns an empty HashForest.
func New(logger *log.Logger) *HashForest {
	if logger == nil {
		logger = log.Default()
	}
	return &HashForest{
		trees:      make(map[int]*HashTree),
		utxos:      make(map[uhash.Hash]string),
		membership: bitset.New(filterBits),
		log:        logger.Module("hashforest"),
	}
}

// Count returns the number of leaves currently tracked.
func (f *HashForest) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.counter
}

func membershipIndex(h uhash.Hash) uint {
	var v uint
	for i := 0; i < 4; i++ {
		v = v<<8 | uint(h[i])
	}
	return v % filterBits
}

func (f *HashForest) mightContain(h uhash.Hash) bool {
	return f.membership.Test(membershipIndex(h))
}

func (f *HashForest) markContains(h uhash.Hash) {
	f.membership.Set(membershipIndex(h))
}

// getHashtree returns the HashTree for height h, allocating a blank one
// on first use.
func (f *HashForest) getHashtree(h int) *HashTree {
	t, ok := f.trees[h]
	if !ok {
		t = NewHashTree(h)
		f.trees[h] = t
	}
	return t
}

// decrementIndices strips prefix from the recorded path of every leaf
// found (via the authoritative utxos index) among r's slots, because
// those leaves have just been relocated to become r's own root-level
// content.
func (f *HashForest) decrementIndices(r *HashTree, prefix string) error {
	n := len(prefix)
	for _, l := range r.MaybeGetLeaves() {
		h := uhash.FromBytes(l)
		if !f.mightContain(h) {
			continue
		}
		s, ok := f.utxos[h]
		if !ok {
			continue
		}
		if len(s) < n || s[:n] != prefix {
			return errors.Wrapf(ErrInvariantViolation, "decrementIndices: prefix %q not found in path %q", prefix, s)
		}
		f.utxos[h] = s[n:]
	}
	return nil
}

// incrementIndices prepends prefix to the recorded path of every leaf
// found among r's slots, because r's own content is being relocated
// into a subtree rooted at prefix.
func (f *HashForest) incrementIndices(r *HashTree, prefix string) {
	for _, l := range r.MaybeGetLeaves() {
		h := uhash.FromBytes(l)
		if !f.mightContain(h) {
			continue
		}
		if s, ok := f.utxos[h]; ok {
			f.utxos[h] = prefix + s
		}
	}
}

// Add inserts utxo as a new leaf, ripple-merging it with whatever
// HashTrees already occupy height 0, 1, 2, ... like the pointer Forest's
// Add but folding whole flat buffers instead of single parent nodes.
// Unlike Forest.Add, the new leaf takes the leftmost slot and each older
// tree becomes a right subtree, so with two or more leaves the roots
// differ from the pointer Forest's for the same insertion order.
func (f *HashForest) Add(utxo []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	target := f.getHashtree(firstZeroBit(f.counter))
	leafHash := uhash.Leaf(utxo)
	s := strings.Repeat("0", target.Height())
	target.WriteTree(s, leafHash[:])
	f.utxos[leafHash] = s
	f.markContains(leafHash)

	for h := 0; h < target.Height(); h++ {
		r, ok := f.trees[h]
		if !ok {
			return errors.Wrapf(ErrInvariantViolation, "add: missing hashtree at height %d", h)
		}
		s = s[:len(s)-1]
		target.WriteTree(s+"1", r.GetData())
		target.UpdateRoot(s)
		f.incrementIndices(r, s+"1")
		r.Blank()
	}
	f.counter++
	addsTotal.Inc()
	countGauge.Set(int64(f.counter))
	f.log.Debug("add", "count", f.counter)
	return nil
}

// Remove deletes the leaf tracking utxo, ripple-borrowing through
// heights 0, 1, 2, ... until it reaches a non-empty HashTree to merge
// the surviving sibling subtree into; every lower height is left
// holding that sibling data directly (donated, not merged) until the
// first non-empty height is found.
func (f *HashForest) Remove(utxo []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	utxoHash := uhash.Leaf(utxo)
	s, ok := f.utxos[utxoHash]
	if !ok {
		return errors.Wrapf(ErrUnknownUTXO, "utxo %x", utxo)
	}
	delete(f.utxos, utxoHash)

	targetH := len(s)
	target, ok := f.trees[targetH]
	if !ok {
		return errors.Wrapf(ErrInvariantViolation, "remove: missing hashtree at height %d", targetH)
	}
	if got := uhash.FromBytes(target.ReadTree(s)); got != utxoHash {
		return errors.Wrap(ErrInvariantViolation, "remove: leaf hash mismatch at recorded path")
	}

	var n string
	haveN := false
	for h := 0; h < targetH; h++ {
		parent := s[:len(s)-1]
		isLeft := s[len(s)-1] == '0'

		if haveN {
			target.UpdateRoot(parent)
			n = parent
		} else {
			r, ok := f.trees[h]
			if !ok {
				return errors.Wrapf(ErrInvariantViolation, "remove: missing hashtree at height %d", h)
			}
			if r.IsEmpty() {
				sibling := parent
				if isLeft {
					sibling += "1"
				} else {
					sibling += "0"
				}
				data := target.ReadTree(sibling)
				r.WriteTree("", data)
				if err := f.decrementIndices(r, sibling); err != nil {
					return err
				}
			} else {
				target.WriteTree(s, r.GetData())
				target.UpdateRoot(parent)
				f.incrementIndices(r, s)
				n = parent
				haveN = true
				r.Blank()
			}
		}
		s = parent
	}

	if haveN {
		data := target.ReadTree(n)
		target.WriteTree("", data)
	} else {
		target.Blank()
	}
	f.counter--
	removesTotal.Inc()
	countGauge.Set(int64(f.counter))
	f.log.Debug("remove", "count", f.counter)
	return nil
}

// serializeOrSkip encodes a (txHash, index) pair, skipping the two
// historically forbidden transactions. ok is false if txHash is
// forbidden, in which case no mutation should be attempted.
func serializeOrSkip(txHash [uhash.Size]byte, index uint32) (data []byte, ok bool) {
	if uhash.ForbiddenTx(txHash) {
		return nil, false
	}
	return uhash.SerializeUTXO(txHash, index), true
}

// AddUTXO serializes (txHash, index) and adds it, silently skipping the
// two historically forbidden transactions.
func (f *HashForest) AddUTXO(txHash [uhash.Size]byte, index uint32) error {
	data, ok := serializeOrSkip(txHash, index)
	if !ok {
		return nil
	}
	return f.Add(data)
}

// RemoveUTXO serializes (txHash, index) and removes it, silently
// skipping the two historically forbidden transactions.
func (f *HashForest) RemoveUTXO(txHash [uhash.Size]byte, index uint32) error {
	data, ok := serializeOrSkip(txHash, index)
	if !ok {
		return nil
	}
	return f.Remove(data)
}

// Dump returns the root hash of every occupied height from 0 through
// the highest, with nil standing in for an unoccupied or blank height.
func (f *HashForest) Dump() []*uhash.Hash {
	f.mu.RLock()
	defer f.mu.RUnlock()

	maxH := -1
	for h, t := range f.trees {
		if h > maxH && !t.IsEmpty() {
			maxH = h
		}
	}
	if maxH < 0 {
		return nil
	}
	out := make([]*uhash.Hash, maxH+1)
	for h := 0; h <= maxH; h++ {
		t, ok := f.trees[h]
		if !ok || t.IsEmpty() {
			continue
		}
		v := t.GetRoot()
		out[h] = &v
	}
	return out
}
