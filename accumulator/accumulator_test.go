package accumulator

import (
	"testing"

	"github.com/go-utreexo/utreexo/uhash"
)

func leafHash(b byte) uhash.Hash {
	var h uhash.Hash
	h[0] = b
	return uhash.Leaf(h[:])
}

func TestAddSingleLeafBecomesHeightZeroRoot(t *testing.T) {
	a := New(nil)
	l := leafHash(1)
	a.Add(l)

	dump := a.Dump()
	if len(dump) != 1 {
		t.Fatalf("dump length = %d, want 1", len(dump))
	}
	if dump[0] == nil || *dump[0] != l {
		t.Fatalf("root at height 0 = %v, want leaf hash", dump[0])
	}
	if a.Count() != 1 {
		t.Fatalf("count = %d, want 1", a.Count())
	}
}

func TestAddTwoLeavesMergesToHeightOne(t *testing.T) {
	a := New(nil)
	a.Add(leafHash(1))
	a.Add(leafHash(2))

	dump := a.Dump()
	if len(dump) != 2 {
		t.Fatalf("dump length = %d, want 2", len(dump))
	}
	if dump[0] != nil {
		t.Fatalf("height 0 should be vacant after merge, got %v", dump[0])
	}
	if dump[1] == nil {
		t.Fatal("height 1 should hold the merged root")
	}
}

func TestAddThreeLeavesPopcountMatchesInvariant(t *testing.T) {
	a := New(nil)
	for i := byte(1); i <= 3; i++ {
		a.Add(leafHash(i))
	}
	dump := a.Dump()
	occupied := 0
	for _, r := range dump {
		if r != nil {
			occupied++
		}
	}
	if occupied != 2 { // 3 = 0b11, popcount 2
		t.Fatalf("occupied heights = %d, want 2 (popcount of 3)", occupied)
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	a := New(nil)
	l0 := leafHash(1)
	l1 := leafHash(2)

	// Manually build the proof for l0 after adding l0 then l1: l0's
	// sibling is l1, and l0 is the left operand (existing root stays
	// left of a freshly arriving leaf, mirroring Forest.Add).
	a.Add(l0)
	a.Add(l1)

	proof := []ProofStep{{Sibling: l1, CurrentIsLeft: true}}
	if err := a.Verify(l0, proof); err != nil {
		t.Fatalf("Verify(l0) failed: %v", err)
	}

	proofWrong := []ProofStep{{Sibling: l1, CurrentIsLeft: false}}
	if err := a.Verify(l0, proofWrong); err == nil {
		t.Fatal("Verify with flipped orientation should fail")
	}
}

func TestVerifyUnknownHeightFails(t *testing.T) {
	a := New(nil)
	a.Add(leafHash(1))
	if err := a.Verify(leafHash(1), []ProofStep{{Sibling: leafHash(2), CurrentIsLeft: true}}); err == nil {
		t.Fatal("expected ErrProofMismatch for a height with no root")
	}
}

func TestDeleteInvertsAdd(t *testing.T) {
	a := New(nil)
	l0, l1 := leafHash(1), leafHash(2)
	a.Add(l0)
	a.Add(l1)

	proof := []ProofStep{{Sibling: l1, CurrentIsLeft: true}}
	if err := a.Delete(l0, proof); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if a.Count() != 1 {
		t.Fatalf("count after delete = %d, want 1", a.Count())
	}

	dump := a.Dump()
	if len(dump) != 1 || dump[0] == nil || *dump[0] != l1 {
		t.Fatalf("after deleting l0, height 0 should hold l1 alone, got %v", dump)
	}
}

func TestDeleteThenVerifyRemainingLeaf(t *testing.T) {
	a := New(nil)
	l0, l1 := leafHash(1), leafHash(2)
	a.Add(l0)
	a.Add(l1)
	if err := a.Delete(l0, []ProofStep{{Sibling: l1, CurrentIsLeft: true}}); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := a.Verify(l1, nil); err != nil {
		t.Fatalf("l1 should verify against the now-lone height-0 root: %v", err)
	}
}
