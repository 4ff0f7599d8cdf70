// Package forest implements the pointer-based dynamic Merkle forest: a
// set of perfect binary trees, one root per occupied height, whose
// internal nodes are held in an arena and addressed by index rather
// than by pointer. Each node carries only a back-link to its parent and
// to its sibling — never explicit child pointers — so the only source
// of truth for "who is whose child" is the sibling back-link itself.
package forest

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/go-utreexo/utreexo/accumulator"
	"github.com/go-utreexo/utreexo/log"
	"github.com/go-utreexo/utreexo/metrics"
	"github.com/go-utreexo/utreexo/uhash"
)

var (
	addsTotal        = metrics.DefaultRegistry.Counter("forest_adds_total")
	removesTotal     = metrics.DefaultRegistry.Counter("forest_removes_total")
	batchDeleteTotal = metrics.DefaultRegistry.Counter("forest_batch_deletes_total")
	countGauge       = metrics.DefaultRegistry.Gauge("forest_count")
	arenaSizeGauge   = metrics.DefaultRegistry.Gauge("forest_arena_size")
)

const noIndex = -1

// node is an arena-allocated tree node: either a leaf (no children) or
// a parent (exactly two children, reachable only through their own
// sibling back-links — node itself stores no child references).
type node struct {
	hash    uhash.Hash
	parent  int32
	sibling int32
	// isLeft records whether this node is the left operand when its
	// hash is combined with its sibling's to produce the parent hash.
	isLeft bool
}

// UTXOSet is the identity-set type accepted by BatchDelete: an opaque
// collection of UTXO byte strings with set semantics.
type UTXOSet = mapset.Set[string]

// NewUTXOSet returns an empty UTXOSet.
func NewUTXOSet() UTXOSet { return mapset.NewThreadUnsafeSet[string]() }

// Forest is a pointer forest of perfect binary trees, indexed by the
// UTXO identity of each leaf.
type Forest struct {
	mu sync.RWMutex

	arena []node
	free  []int32

	roots map[int]int32       // height -> node index of the root at that height
	utxos map[string]int32    // utxo identity -> leaf node index
	count int

	log *log.Logger
}

// New returns an empty Forest.
func New(logger *log.Logger) *Forest {
	if logger == nil {
		logger = log.Default()
	}
	return &Forest{
		roots: make(map[int]int32),
		utxos: make(map[string]int32),
		log:   logger.Module("forest"),
	}
}

// Count returns the number of leaves currently tracked.
func (f *Forest) Count() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.count
}

func (f *Forest) alloc(n node) int32 {
	if len(f.free) > 0 {
		idx := f.free[len(f.free)-1]
		f.free = f.free[:len(f.free)-1]
		f.arena[idx] = n
		return idx
	}
	f.arena = append(f.arena, n)
	return int32(len(f.arena) - 1)
}

func (f *Forest) release(idx int32) {
	f.free = append(f.free, idx)
}

func (f *Forest) at(idx int32) *node { return &f.arena[idx] }

// newLeaf allocates a detached leaf node holding hash.
func (f *Forest) newLeaf(hash uhash.Hash) int32 {
	return f.alloc(node{hash: hash, parent: noIndex, sibling: noIndex})
}

// newParent allocates the parent of x and y, mirroring the reference
// combine convention: isLeft tells whether y (the node being attached)
// is the left child; the two children's sibling back-links are wired
// to each other and their isLeft flags set accordingly.
func (f *Forest) newParent(x, y int32, isLeft bool) int32 {
	if isLeft {
		x, y = y, x
	}
	xh, yh := f.at(x).hash, f.at(y).hash
	h := uhash.Combine(xh, yh, true)
	p := f.alloc(node{hash: h, parent: noIndex, sibling: noIndex})
	f.at(x).parent = p
	f.at(y).parent = p
	f.at(x).sibling = y
	f.at(x).isLeft = true
	f.at(y).sibling = x
	f.at(y).isLeft = false
	return p
}

// getLeaf returns the node index of the leaf tracking utxo, or
// ErrUnknownUTXO.
func (f *Forest) getLeaf(utxo []byte) (int32, error) {
	idx, ok := f.utxos[string(utxo)]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownUTXO, "utxo %x", utxo)
	}
	return idx, nil
}

// GetProof returns the inclusion proof for utxo: the sibling hash and
// this-node-is-left flag encountered at each height on the path from
// the leaf up to its root.
func (f *Forest) GetProof(utxo []byte) ([]accumulator.ProofStep, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	l, err := f.getLeaf(utxo)
	if err != nil {
		return nil, err
	}
	var proof []accumulator.ProofStep
	for f.at(l).parent != noIndex {
		n := f.at(l)
		s := f.at(n.sibling)
		proof = append(proof, accumulator.ProofStep{
			Sibling:       s.hash,
			CurrentIsLeft: n.isLeft,
		})
		l = n.parent
	}
	return proof, nil
}

// GetPos returns the position encoding of the leaf tracking utxo: the
// this-node-is-left bit at each height, OR'd together, plus a leading
// marker bit at the tree's height.
func (f *Forest) GetPos(utxo []byte) (uint64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	l, err := f.getLeaf(utxo)
	if err != nil {
		return 0, err
	}
	return f.getPosIdx(l), nil
}

func (f *Forest) getPosIdx(l int32) uint64 {
	var p uint64
	h := uint(0)
	for f.at(l).parent != noIndex {
		if f.at(l).isLeft {
			p |= 1 << h
		}
		h++
		l = f.at(l).parent
	}
	p += 1 << h
	return p
}

// Add inserts utxo as a new leaf, ripple-merging it with whatever roots
// already occupy height 0, 1, 2, ... until an empty height is found.
func (f *Forest) Add(utxo []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addLocked(utxo)
}

func (f *Forest) addLocked(utxo []byte) error {
	key := string(utxo)
	if _, exists := f.utxos[key]; exists {
		return errors.Wrapf(ErrDuplicateAdd, "utxo %x", utxo)
	}
	n := f.newLeaf(uhash.Leaf(utxo))
	f.utxos[key] = n
	h := 0
	for {
		r, ok := f.roots[h]
		if !ok {
			break
		}
		delete(f.roots, h)
		n = f.newParent(r, n, false)
		h++
	}
	f.roots[h] = n
	f.count++
	addsTotal.Inc()
	countGauge.Set(int64(f.count))
	arenaSizeGauge.Set(int64(len(f.arena)))
	f.log.Debug("add", "height", h, "count", f.count)
	return nil
}

// VerifyLeaf builds the proof for utxo and checks it against acc's
// current roots.
func (f *Forest) VerifyLeaf(acc *accumulator.Accumulator, utxo []byte) error {
	f.mu.RLock()
	l, err := f.getLeaf(utxo)
	if err != nil {
		f.mu.RUnlock()
		return err
	}
	leafHash := f.at(l).hash
	f.mu.RUnlock()

	proof, err := f.GetProof(utxo)
	if err != nil {
		return err
	}
	return acc.Verify(leafHash, proof)
}

// Remove deletes the single leaf tracking utxo, mirroring Add's
// ripple-carry with a borrow: climbing from height 0, each vacant height
// takes the deleted path's sibling at that level as its new root, until
// the first occupied height is reached; that root is moved into the
// deleted path's slot and rebuilt upward with the remaining siblings.
func (f *Forest) Remove(utxo []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.removeLocked(utxo)
}

func (f *Forest) removeLocked(utxo []byte) error {
	key := string(utxo)
	nIdx, ok := f.utxos[key]
	if !ok {
		return errors.Wrapf(ErrUnknownUTXO, "utxo %x", utxo)
	}

	var carry int32 = noIndex
	h := 0
	cur := nIdx
	for f.at(cur).parent != noIndex {
		n := f.at(cur)
		p := n.sibling
		isLeft := n.isLeft
		next := n.parent

		if carry != noIndex {
			carry = f.newParent(p, carry, isLeft)
		} else {
			r, ok := f.roots[h]
			if !ok {
				f.roots[h] = p
				f.at(p).parent = noIndex
			} else {
				delete(f.roots, h)
				carry = f.newParent(p, r, isLeft)
			}
		}
		f.release(cur)
		h++
		cur = next
	}
	if carry != noIndex {
		f.roots[h] = carry
	} else {
		// Every height the climb touched was vacant and absorbed one of
		// the deleted leaf's siblings directly; the former root height
		// has nothing left to hold and becomes vacant itself.
		delete(f.roots, h)
	}
	f.release(cur)
	f.count--
	delete(f.utxos, key)
	removesTotal.Inc()
	countGauge.Set(int64(f.count))
	f.log.Debug("remove", "height", h, "count", f.count)
	return nil
}

// Dump returns the dense slice of root hashes from height 0 through the
// highest occupied height, with nil standing in for an unoccupied
// height.
func (f *Forest) Dump() []*uhash.Hash {
	f.mu.RLock()
	defer f.mu.RUnlock()

	maxH := -1
	for h := range f.roots {
		if h > maxH {
			maxH = h
		}
	}
	if maxH < 0 {
		return nil
	}
	out := make([]*uhash.Hash, maxH+1)
	for h := 0; h <= maxH; h++ {
		if idx, ok := f.roots[h]; ok {
			v := f.at(idx).hash
			out[h] = &v
		}
	}
	return out
}

// --- batch deletion -------------------------------------------------

type deleteEntry struct {
	pos int64
	idx int32
}

// BatchDelete removes every UTXO in utxos in a single pass, level by
// level from height 0 upward, using the twins/swaps/root-promote/climb
// phases: twin leaves (siblings both slated for deletion) cancel their
// shared parent outright; the remaining entries at a level pair off and
// "swap" their surviving siblings into one slot, abandoning the other;
// a single leftover entry donates its sibling into the level's root (or
// becomes the new root if that height was empty); and finally every
// node whose child set changed has its hash recomputed and the
// recomputation climbs one level.
func (f *Forest) BatchDelete(utxos UTXOSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if utxos == nil || utxos.Cardinality() == 0 {
		return nil
	}

	var toDelete []deleteEntry
	maxH := 0
	utxos.Each(func(u string) bool {
		idx, ok := f.utxos[u]
		if !ok {
			return false
		}
		delete(f.utxos, u)
		pos := f.getPosIdx(idx)
		toDelete = append(toDelete, deleteEntry{pos: int64(pos), idx: idx})
		if bl := bitLen(pos); bl > maxH {
			maxH = bl
		}
		return false
	})
	if len(toDelete) == 0 {
		return nil
	}
	removed := len(toDelete)
	sort.Slice(toDelete, func(i, j int) bool { return toDelete[i].pos < toDelete[j].pos })

	touched := map[int32]struct{}{}

	for h := 0; h < maxH; h++ {
		if len(toDelete) == 0 {
			break
		}

		if r, ok := f.roots[h]; ok && toDelete[0].idx == r {
			delete(f.roots, h)
			toDelete = toDelete[1:]
		}

		var nextKeys []deleteEntry

		// 1. twins: adjacent entries that are each other's sibling
		// vanish together, taking their shared parent down with them.
		consumed := make([]bool, len(toDelete))
		for i := 0; i < len(toDelete)-1; i++ {
			if consumed[i] {
				continue
			}
			ki, ni := toDelete[i].pos, toDelete[i].idx
			kj, nj := toDelete[i+1].pos, toDelete[i+1].idx
			if kj == ki^1 {
				if f.at(ni).parent != f.at(nj).parent {
					return errors.Wrap(ErrInvariantViolation, "batch delete: twin parent mismatch")
				}
				consumed[i] = true
				consumed[i+1] = true
				nextKeys = append(nextKeys, deleteEntry{pos: ki >> 1, idx: f.at(ni).parent})
				f.release(ni)
				f.release(nj)
			}
		}
		filtered := toDelete[:0]
		for i, e := range toDelete {
			if !consumed[i] {
				filtered = append(filtered, e)
			}
		}
		toDelete = filtered

		// 2. swaps: remaining entries pair off; the survivor of pair j
		// is relocated into the slot vacated by pair i.
		consumed = make([]bool, len(toDelete))
		for i := 0; i+1 < len(toDelete); i += 2 {
			ki, ni := toDelete[i].pos, toDelete[i].idx
			kj, nj := toDelete[i+1].pos, toDelete[i+1].idx
			if kj == ki^1 {
				return errors.Wrap(ErrInvariantViolation, "batch delete: unexpected twin in swap phase")
			}
			if f.at(ni).parent == noIndex || f.at(nj).parent == noIndex {
				return errors.Wrap(ErrInvariantViolation, "batch delete: swap candidate missing parent")
			}
			si, bi := f.at(ni).sibling, f.at(ni).isLeft
			sj := f.at(nj).sibling

			f.at(sj).sibling = si
			f.at(sj).isLeft = bi
			f.at(si).sibling = sj
			f.at(si).isLeft = !bi
			f.at(sj).parent = f.at(si).parent
			touched[si] = struct{}{}

			consumed[i] = true
			consumed[i+1] = true
			nextKeys = append(nextKeys, deleteEntry{pos: kj >> 1, idx: f.at(nj).parent})
			f.release(ni)
			f.release(nj)
		}
		filtered = toDelete[:0]
		for i, e := range toDelete {
			if !consumed[i] {
				filtered = append(filtered, e)
			}
		}
		toDelete = filtered

		// 3. root-promote: a single leftover entry donates its sibling
		// either into the (now-empty) root slot at this height, or
		// merges it with whatever root already sits there.
		if len(toDelete) > 0 {
			if len(toDelete) != 1 {
				return errors.Wrap(ErrInvariantViolation, "batch delete: more than one leftover entry")
			}
			ki, ni := toDelete[0].pos, toDelete[0].idx
			si, b := f.at(ni).sibling, f.at(ni).isLeft

			if r, ok := f.roots[h]; ok {
				if f.at(r).parent != noIndex {
					return errors.Wrap(ErrInvariantViolation, "batch delete: root has a parent")
				}
				delete(f.roots, h)
				f.at(r).parent = f.at(si).parent
				f.at(r).sibling = si
				f.at(r).isLeft = b
				f.at(si).sibling = r
				f.at(si).isLeft = !b
				touched[si] = struct{}{}
			} else {
				f.at(si).parent = noIndex
				f.roots[h] = si
				nextKeys = append(nextKeys, deleteEntry{pos: ki >> 1, idx: f.at(ni).parent})
			}
			f.release(ni)
			toDelete = nil
		}

		// 4. climb: every touched node's hash is recomputed from its
		// (possibly new) sibling, and its parent becomes touched for
		// the next level up.
		nextTouched := map[int32]struct{}{}
		for ni := range touched {
			if f.at(ni).parent == noIndex {
				continue
			}
			si := f.at(ni).sibling
			x := uhash.Combine(f.at(si).hash, f.at(ni).hash, true)
			p := f.at(ni).parent
			f.at(p).hash = x
			nextTouched[p] = struct{}{}
		}
		touched = nextTouched

		sort.Slice(nextKeys, func(i, j int) bool { return nextKeys[i].pos < nextKeys[j].pos })
		toDelete = nextKeys
	}

	f.count -= removed
	batchDeleteTotal.Add(int64(removed))
	countGauge.Set(int64(f.count))
	f.log.Debug("batch delete", "removed", removed, "count", f.count)
	return nil
}

func bitLen(v uint64) int {
	n := 0
	for v > 0 {
		n++
		v >>= 1
	}
	return n
}
