package forest

import (
	"testing"

	"github.com/go-utreexo/utreexo/accumulator"
	"github.com/go-utreexo/utreexo/uhash"
)

func utxo(b byte) []byte { return []byte{b, 'u', 't', 'x', 'o'} }

// foldProof combines leaf up through proof and returns the resulting
// root-height hash, mirroring what accumulator.Verify does internally.
func foldProof(leaf uhash.Hash, proof []accumulator.ProofStep) uhash.Hash {
	n := leaf
	for _, s := range proof {
		n = uhash.Combine(n, s.Sibling, s.CurrentIsLeft)
	}
	return n
}

func TestForestAddSingleLeaf(t *testing.T) {
	f := New(nil)
	if err := f.Add(utxo(1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if f.Count() != 1 {
		t.Fatalf("count = %d, want 1", f.Count())
	}
	dump := f.Dump()
	if len(dump) != 1 || dump[0] == nil {
		t.Fatalf("dump = %v, want single occupied root", dump)
	}
}

func TestForestGetProofRoundTrip(t *testing.T) {
	f := New(nil)
	for i := byte(1); i <= 4; i++ {
		if err := f.Add(utxo(i)); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
	}
	for i := byte(1); i <= 4; i++ {
		proof, err := f.GetProof(utxo(i))
		if err != nil {
			t.Fatalf("GetProof(%d): %v", i, err)
		}
		leaf := uhash.Leaf(utxo(i))
		got := foldProof(leaf, proof)

		dump := f.Dump()
		if len(proof) >= len(dump) || dump[len(proof)] == nil || *dump[len(proof)] != got {
			t.Fatalf("leaf %d: proof does not fold to the recorded root at height %d", i, len(proof))
		}
	}
}

func TestForestRemoveSingleLeaf(t *testing.T) {
	f := New(nil)
	f.Add(utxo(1))
	f.Add(utxo(2))

	if err := f.Remove(utxo(1)); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if f.Count() != 1 {
		t.Fatalf("count = %d, want 1", f.Count())
	}
	dump := f.Dump()
	if len(dump) != 1 || dump[0] == nil || *dump[0] != uhash.Leaf(utxo(2)) {
		t.Fatalf("after removing leaf 1, height 0 should hold leaf 2 alone, got %v", dump)
	}
}

func TestForestRemoveUnknownUTXO(t *testing.T) {
	f := New(nil)
	f.Add(utxo(1))
	if err := f.Remove(utxo(99)); err == nil {
		t.Fatal("expected ErrUnknownUTXO")
	}
}

func TestForestAddDuplicateRejected(t *testing.T) {
	f := New(nil)
	if err := f.Add(utxo(1)); err != nil {
		t.Fatal(err)
	}
	if err := f.Add(utxo(1)); err == nil {
		t.Fatal("expected ErrDuplicateAdd")
	}
}

// TestForestBatchDeleteSwapPhase exercises the swap phase of batch
// deletion: with four leaves A,B,C,D merged into one height-2 tree,
// deleting the two "inner" leaves B and C (which are not siblings of
// each other) forces a swap, relocating A to become D's new sibling
// and promoting their shared parent to the tree's sole remaining root.
func TestForestBatchDeleteSwapPhase(t *testing.T) {
	f := New(nil)
	a, b, c, d := utxo('A'), utxo('B'), utxo('C'), utxo('D')
	for _, u := range []([]byte){a, b, c, d} {
		if err := f.Add(u); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	toDelete := NewUTXOSet()
	toDelete.Add(string(b))
	toDelete.Add(string(c))

	if err := f.BatchDelete(toDelete); err != nil {
		t.Fatalf("BatchDelete: %v", err)
	}
	if f.Count() != 2 {
		t.Fatalf("count = %d, want 2", f.Count())
	}

	dump := f.Dump()
	if len(dump) != 2 || dump[0] != nil || dump[1] == nil {
		t.Fatalf("dump = %v, want only height 1 occupied", dump)
	}

	want := uhash.Pair(uhash.Leaf(a), uhash.Leaf(d))
	if *dump[1] != want {
		t.Fatalf("surviving root = %x, want Hash(A||D) = %x", dump[1][:], want[:])
	}

	// A and D should still produce valid single-step proofs against the
	// surviving root.
	for _, u := range []([]byte){a, d} {
		proof, err := f.GetProof(u)
		if err != nil {
			t.Fatalf("GetProof after batch delete: %v", err)
		}
		if len(proof) != 1 {
			t.Fatalf("proof length = %d, want 1", len(proof))
		}
	}

	if _, err := f.GetProof(b); err == nil {
		t.Fatal("expected ErrUnknownUTXO for a batch-deleted leaf")
	}
}

func TestForestBatchDeleteEmptySetIsNoop(t *testing.T) {
	f := New(nil)
	f.Add(utxo(1))
	if err := f.BatchDelete(NewUTXOSet()); err != nil {
		t.Fatalf("BatchDelete(empty): %v", err)
	}
	if f.Count() != 1 {
		t.Fatalf("count = %d, want 1", f.Count())
	}
}

func TestForestGetPosOrdering(t *testing.T) {
	f := New(nil)
	a, b := utxo('A'), utxo('B')
	f.Add(a)
	f.Add(b)

	pa, err := f.GetPos(a)
	if err != nil {
		t.Fatal(err)
	}
	pb, err := f.GetPos(b)
	if err != nil {
		t.Fatal(err)
	}
	if pa == pb {
		t.Fatal("distinct leaves must not share a position")
	}
}
