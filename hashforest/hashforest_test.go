package hashforest

import (
	"testing"

	"github.com/go-utreexo/utreexo/uhash"
)

func utxo(b byte) []byte { return []byte{b, 'h', 'f', 'u', 't', 'x', 'o'} }

func TestHashTreeOffsets(t *testing.T) {
	tr := NewHashTree(2)
	if tr.Height() != 2 {
		t.Fatalf("height = %d, want 2", tr.Height())
	}
	// height-2 tree has 7 slots: root + two height-1 subtrees (3 each).
	if treeSize(2) != 7 {
		t.Fatalf("treeSize(2) = %d, want 7", treeSize(2))
	}
	off, size := tr.getOffset("0")
	if size != 3 {
		t.Fatalf("subtree \"0\" size = %d, want 3", size)
	}
	if off != 0 {
		t.Fatalf("subtree \"0\" offset = %d, want 0", off)
	}
	off, size = tr.getOffset("1")
	if off != 3 || size != 3 {
		t.Fatalf("subtree \"1\" offset/size = %d/%d, want 3/3", off, size)
	}
}

func TestHashTreeUpdateRootCombinesChildren(t *testing.T) {
	tr := NewHashTree(1)
	l0 := uhash.Leaf(utxo(0))
	l1 := uhash.Leaf(utxo(1))
	tr.WriteTree("0", l0[:])
	tr.WriteTree("1", l1[:])
	tr.UpdateRoot("")
	want := uhash.Pair(l0, l1)
	if tr.GetRoot() != want {
		t.Fatalf("root = %x, want Hash(l0||l1) = %x", tr.GetRoot(), want)
	}
}

func TestHashTreeBlankAndIsEmpty(t *testing.T) {
	tr := NewHashTree(0)
	if !tr.IsEmpty() {
		t.Fatal("fresh tree should be empty")
	}
	l := uhash.Leaf(utxo(0))
	tr.SetRoot(l)
	if tr.IsEmpty() {
		t.Fatal("tree with a written root should not be empty")
	}
	tr.Blank()
	if !tr.IsEmpty() {
		t.Fatal("blanked tree should be empty again")
	}
}

func TestHashForestAddSingleLeaf(t *testing.T) {
	f := New(nil)
	if err := f.Add(utxo(1)); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if f.Count() != 1 {
		t.Fatalf("count = %d, want 1", f.Count())
	}
	dump := f.Dump()
	if len(dump) != 1 || dump[0] == nil || *dump[0] != uhash.Leaf(utxo(1)) {
		t.Fatalf("dump = %v, want single leaf root", dump)
	}
}

func TestHashForestAddMergesAtHeightOne(t *testing.T) {
	f := New(nil)
	l0 := uhash.Leaf(utxo(1))
	l1 := uhash.Leaf(utxo(2))
	f.Add(utxo(1))
	f.Add(utxo(2))

	if f.Count() != 2 {
		t.Fatalf("count = %d, want 2", f.Count())
	}
	dump := f.Dump()
	if len(dump) != 2 || dump[0] != nil || dump[1] == nil {
		t.Fatalf("dump = %v, want only height 1 occupied", dump)
	}
	// The second leaf lands at path "0" of the height-1 tree and the
	// first leaf's lone slot is relocated under path "1".
	want := uhash.Pair(l1, l0)
	if *dump[1] != want {
		t.Fatalf("root = %x, want %x", dump[1][:], want[:])
	}
}

func TestHashForestRemoveRestoresPriorState(t *testing.T) {
	f := New(nil)
	f.Add(utxo(1))
	f.Add(utxo(2))

	if err := f.Remove(utxo(2)); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if f.Count() != 1 {
		t.Fatalf("count = %d, want 1", f.Count())
	}
	dump := f.Dump()
	if len(dump) != 1 || dump[0] == nil || *dump[0] != uhash.Leaf(utxo(1)) {
		t.Fatalf("after removing the second leaf, height 0 should hold the first alone, got %v", dump)
	}
}

func TestHashForestRemoveUnknownUTXO(t *testing.T) {
	f := New(nil)
	f.Add(utxo(1))
	if err := f.Remove(utxo(99)); err == nil {
		t.Fatal("expected ErrUnknownUTXO")
	}
}

func TestHashForestAddUTXORoundTrip(t *testing.T) {
	f := New(nil)
	var txHash [uhash.Size]byte
	txHash[0] = 0x42
	if err := f.AddUTXO(txHash, 7); err != nil {
		t.Fatalf("AddUTXO: %v", err)
	}
	if f.Count() != 1 {
		t.Fatalf("count = %d, want 1 for a non-forbidden tx", f.Count())
	}
	if err := f.RemoveUTXO(txHash, 7); err != nil {
		t.Fatalf("RemoveUTXO: %v", err)
	}
	if f.Count() != 0 {
		t.Fatalf("count = %d, want 0 after RemoveUTXO", f.Count())
	}
}

func TestHashForestThreeLeavesRippleThroughHeights(t *testing.T) {
	f := New(nil)
	for i := byte(1); i <= 3; i++ {
		if err := f.Add(utxo(i)); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
	}
	if f.Count() != 3 {
		t.Fatalf("count = %d, want 3", f.Count())
	}
	dump := f.Dump()
	occupied := 0
	for _, r := range dump {
		if r != nil {
			occupied++
		}
	}
	if occupied != 2 { // 3 = 0b11, popcount 2: heights 0 and 1 occupied
		t.Fatalf("occupied heights = %d, want 2", occupied)
	}
	if dump[0] == nil || *dump[0] != uhash.Leaf(utxo(3)) {
		t.Fatalf("height 0 should hold the third leaf alone, got %v", dump[0])
	}
}
