// Package uhash provides the concrete hash oracle and UTXO identity
// encoding shared by the accumulator, forest, and hashforest packages.
package uhash

import (
	"encoding/binary"

	"golang.org/x/crypto/blake2b"
)

// Size is the width in bytes of every hash produced and consumed by this
// package.
const Size = 32

// Hash is a fixed-width Blake2b-256 digest.
type Hash [Size]byte

// Zero is the sentinel hash used to mark a blank HashTree slot.
var Zero Hash

// IsZero reports whether h is the zero sentinel.
func (h Hash) IsZero() bool { return h == Zero }

// Bytes returns a freshly allocated copy of h's underlying bytes.
func (h Hash) Bytes() []byte {
	b := make([]byte, Size)
	copy(b, h[:])
	return b
}

// String returns the lowercase hex encoding of h, matching the teacher
// corpus's preference for hex-rendered digests in logs and error text.
func (h Hash) String() string {
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 2*Size)
	for i, b := range h {
		out[2*i] = hexdigits[b>>4]
		out[2*i+1] = hexdigits[b&0xf]
	}
	return string(out)
}

// FromBytes copies b into a Hash. It panics if b is not exactly Size
// bytes long, mirroring the reference implementation's assertion that a
// hash read off the wire is always exactly 32 bytes.
func FromBytes(b []byte) Hash {
	if len(b) != Size {
		panic("uhash: invalid hash length")
	}
	var h Hash
	copy(h[:], b)
	return h
}

// sum returns the Blake2b-256 digest of x||y.
func sum(x, y []byte) Hash {
	d, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for an oversized key, and we never
		// pass one.
		panic(err)
	}
	d.Write(x)
	d.Write(y)
	return FromBytes(d.Sum(nil))
}

// Leaf hashes a raw UTXO identity into a leaf digest.
func Leaf(utxo []byte) Hash {
	return sum(utxo, nil)
}

// Pair hashes x directly concatenated with y, with no left/right
// reordering. This is the plain two-argument form used when combining
// two already-positioned subtree roots (the left child's root, then
// the right child's), as opposed to Combine's caller-supplied ordering.
func Pair(x, y Hash) Hash {
	return sum(x[:], y[:])
}

// Combine folds a node with its sibling into their parent's digest. The
// concatenation order follows the accumulator's convention: the
// argument that is NOT on the left is hashed second. Equivalently, if
// currentIsLeft is true the result is Hash(current‖sibling), otherwise
// Hash(sibling‖current).
func Combine(current, sibling Hash, currentIsLeft bool) Hash {
	if currentIsLeft {
		return sum(current[:], sibling[:])
	}
	return sum(sibling[:], current[:])
}

// UTXOSize is the byte width of a serialized UTXO identity: a reversed
// 32-byte transaction hash followed by a big-endian uint32 output index.
const UTXOSize = Size + 4

// SerializeUTXO encodes a (txHash, index) pair into the opaque byte
// string the accumulator treats as a UTXO identity. txHash is expected
// in wire (little-endian) order, as received from a transaction index,
// and is byte-reversed into the identity string.
func SerializeUTXO(txHash [Size]byte, index uint32) []byte {
	out := make([]byte, UTXOSize)
	for i := 0; i < Size; i++ {
		out[i] = txHash[Size-1-i]
	}
	binary.BigEndian.PutUint32(out[Size:], index)
	return out
}

// forbidden holds the two historical duplicate-coinbase transaction
// hashes, stored already byte-reversed so ForbiddenTx can compare
// directly against a little-endian wire hash with no per-call reversal.
var forbidden = [2]Hash{
	reverse(mustHex("d5d27987d2a3dfc724e359870c6644b40e497bdc0589a033220fe15429d88599")),
	reverse(mustHex("e3bf3d07d4b0375638d5f1db5255fe07ba2c4cb067cd81b84ee974b6585fb468")),
}

func mustHex(s string) Hash {
	if len(s) != 2*Size {
		panic("uhash: bad forbidden hash literal")
	}
	var h Hash
	for i := 0; i < Size; i++ {
		h[i] = hexByte(s[2*i])<<4 | hexByte(s[2*i+1])
	}
	return h
}

func hexByte(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		panic("uhash: bad hex digit")
	}
}

func reverse(h Hash) Hash {
	var out Hash
	for i := 0; i < Size; i++ {
		out[i] = h[Size-1-i]
	}
	return out
}

// ForbiddenTx reports whether txHash (in wire, little-endian order, the
// same order expected by SerializeUTXO) names one of the two
// transactions excluded from every accumulator operation.
func ForbiddenTx(txHash [Size]byte) bool {
	h := Hash(txHash)
	return h == forbidden[0] || h == forbidden[1]
}
