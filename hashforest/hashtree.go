package hashforest

import (
	"github.com/go-utreexo/utreexo/uhash"
)

// treeSize returns the number of hash slots in a perfect binary tree of
// height h, including every internal node and the root: 2^(h+1) - 1.
func treeSize(h int) int {
	return (1 << uint(h+1)) - 1
}

// firstZeroBit returns the index of the lowest unset bit of n, i.e. the
// number of consecutive trailing 1 bits.
func firstZeroBit(n int) int {
	i := 0
	for n&1 == 1 {
		n >>= 1
		i++
	}
	return i
}

// HashTree is a flat array holding every node of one perfect binary
// tree of a fixed height, indexed by the "heap order" position implied
// by a '0'/'1' path string: the root occupies the last slot, and a
// subtree named by path s occupies the slots computed by offset(s).
type HashTree struct {
	h    int
	size int
	data []byte
}

// NewHashTree allocates a blank HashTree of height h.
func NewHashTree(h int) *HashTree {
	size := treeSize(h)
	return &HashTree{h: h, size: size, data: make([]byte, size*uhash.Size)}
}

// Height returns the tree's height.
func (t *HashTree) Height() int { return t.h }

func (t *HashTree) read(pos, n int) []byte {
	out := make([]byte, n*uhash.Size)
	copy(out, t.data[pos*uhash.Size:(pos+n)*uhash.Size])
	return out
}

func (t *HashTree) write(pos int, data []byte) {
	copy(t.data[pos*uhash.Size:], data)
}

// GetData returns a copy of the tree's entire backing buffer.
func (t *HashTree) GetData() []byte { return t.read(0, t.size) }

// GetHash returns the hash stored at flat index.
func (t *HashTree) GetHash(index int) uhash.Hash {
	return uhash.FromBytes(t.read(index, 1))
}

// SetHash stores h at flat index.
func (t *HashTree) SetHash(index int, h uhash.Hash) {
	t.write(index, h[:])
}

// GetRoot returns the tree's root hash.
func (t *HashTree) GetRoot() uhash.Hash { return t.GetHash(t.size - 1) }

// SetRoot overwrites the tree's root hash.
func (t *HashTree) SetRoot(h uhash.Hash) { t.SetHash(t.size-1, h) }

// Blank clears the tree by zeroing its root, marking it available for
// reuse; the remaining buffer is left as-is until next written.
func (t *HashTree) Blank() { t.SetRoot(uhash.Zero) }

// IsEmpty reports whether the tree's root is the zero sentinel.
func (t *HashTree) IsEmpty() bool { return t.GetRoot() == uhash.Zero }

// getOffset computes the flat-array offset and slot count of the
// subtree named by path s, where s is a prefix of '0'/'1' characters
// read from the root downward (root = "").
func (t *HashTree) getOffset(s string) (offset, size int) {
	size = treeSize(t.h - len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '1' {
			offset += treeSize(t.h - 1 - i)
		}
	}
	return offset, size
}

// WriteTree overwrites the subtree named by s with data, which must be
// exactly size(s)*uhash.Size bytes.
func (t *HashTree) WriteTree(s string, data []byte) {
	offset, size := t.getOffset(s)
	if len(data) != size*uhash.Size {
		panic("hashforest: WriteTree size mismatch")
	}
	t.write(offset, data)
}

// ReadTree returns a copy of the subtree named by s.
func (t *HashTree) ReadTree(s string) []byte {
	offset, size := t.getOffset(s)
	return t.read(offset, size)
}

// ReadRoot returns the root hash of the subtree named by s.
func (t *HashTree) ReadRoot(s string) uhash.Hash {
	offset, size := t.getOffset(s)
	return uhash.FromBytes(t.read(offset+size-1, 1))
}

// WriteRoot overwrites the root hash of the subtree named by s.
func (t *HashTree) WriteRoot(s string, h uhash.Hash) {
	offset, size := t.getOffset(s)
	t.write(offset+size-1, h[:])
}

// UpdateRoot recomputes the root of the subtree named by s from its two
// children's current roots.
func (t *HashTree) UpdateRoot(s string) {
	r1 := t.ReadRoot(s + "0")
	r2 := t.ReadRoot(s + "1")
	t.WriteRoot(s, uhash.Pair(r1, r2))
}

// GetLeaves recursively enumerates every leaf hash in path order.
func (t *HashTree) GetLeaves(s string) [][]byte {
	if len(s) == t.h {
		return [][]byte{t.ReadTree(s)}
	}
	l1 := t.GetLeaves(s + "0")
	l2 := t.GetLeaves(s + "1")
	return append(l1, l2...)
}

// MaybeGetLeaves yields every leaf-sized slot of the tree's buffer in
// flat storage order, regardless of whether that slot is a genuine leaf
// of the subtree currently rooted here. It is a cheap linear scan used
// only by callers (decrementIndices/incrementIndices) that already
// cross-check each candidate against an authoritative index.
func (t *HashTree) MaybeGetLeaves() [][]byte {
	out := make([][]byte, 0, t.size)
	for i := 0; i < t.size; i++ {
		out = append(out, t.read(i, 1))
	}
	return out
}
