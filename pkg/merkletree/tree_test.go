package merkletree

import (
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
)

func leafAt(i int) [32]byte {
	return [32]byte(crypto.Keccak256([]byte{byte(i), byte(i >> 8)}))
}

func TestEmptyTreeRootMatchesZeroHash(t *testing.T) {
	tree := New()
	if tree.Root() != ZeroHashes[Depth] {
		t.Errorf("empty tree root mismatch: got %x, want %x", tree.Root(), ZeroHashes[Depth])
	}
	if tree.Count() != 0 {
		t.Errorf("count mismatch: got %d, want 0", tree.Count())
	}
}

func TestIngestSingleLeaf(t *testing.T) {
	tree := New()
	leaf := leafAt(0)
	if err := tree.Ingest(leaf); err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if tree.Count() != 1 {
		t.Errorf("count mismatch: got %d, want 1", tree.Count())
	}

	want := leaf
	for i := 0; i < Depth; i++ {
		want = hashPair(want, ZeroHashes[i])
	}
	if tree.Root() != want {
		t.Errorf("single leaf root mismatch: got %x, want %x", tree.Root(), want)
	}
}

func TestIngestTwoLeaves(t *testing.T) {
	tree := New()
	leaf1, leaf2 := leafAt(0), leafAt(1)
	if err := tree.Ingest(leaf1); err != nil {
		t.Fatalf("ingest leaf1: %v", err)
	}
	if err := tree.Ingest(leaf2); err != nil {
		t.Fatalf("ingest leaf2: %v", err)
	}

	want := hashPair(leaf1, leaf2)
	for i := 1; i < Depth; i++ {
		want = hashPair(want, ZeroHashes[i])
	}
	if tree.Root() != want {
		t.Errorf("two leaf root mismatch: got %x, want %x", tree.Root(), want)
	}
}

func TestProveAndVerifyRoundTrip(t *testing.T) {
	tree := New()
	const n = 37
	leaves := make([][32]byte, n)
	for i := 0; i < n; i++ {
		leaves[i] = leafAt(i)
		if err := tree.Ingest(leaves[i]); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}

	root := tree.Root()
	for _, idx := range []int{0, 1, 17, 35, 36} {
		proof, err := tree.Prove(uint32(idx), uint64(n))
		if err != nil {
			t.Fatalf("prove %d: %v", idx, err)
		}
		if !Verify(leaves[idx], proof, uint32(idx), root) {
			t.Errorf("proof for leaf %d did not verify", idx)
		}
	}
}

func TestProveRejectsOutOfRangeIndex(t *testing.T) {
	tree := New()
	if err := tree.Ingest(leafAt(0)); err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if _, err := tree.Prove(5, 1); err == nil {
		t.Error("expected error proving an index beyond tree count")
	}
}

func TestVerifyRejectsWrongLeaf(t *testing.T) {
	tree := New()
	leaf1, leaf2 := leafAt(0), leafAt(1)
	if err := tree.Ingest(leaf1); err != nil {
		t.Fatalf("ingest leaf1: %v", err)
	}
	if err := tree.Ingest(leaf2); err != nil {
		t.Fatalf("ingest leaf2: %v", err)
	}

	proof, err := tree.Prove(0, 2)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if Verify(leaf2, proof, 0, tree.Root()) {
		t.Error("proof verified against the wrong leaf")
	}
}

func TestHistoricalProofAgainstSmallerTreeCount(t *testing.T) {
	tree := New()
	const n = 5
	leaves := make([][32]byte, n)
	for i := 0; i < n; i++ {
		leaves[i] = leafAt(i)
		if err := tree.Ingest(leaves[i]); err != nil {
			t.Fatalf("ingest %d: %v", i, err)
		}
	}

	// Rebuild the root as it stood after only the first 3 leaves, by
	// replaying an independent tree, and check a proof against that
	// historical count verifies against that historical root.
	historical := New()
	for i := 0; i < 3; i++ {
		if err := historical.Ingest(leaves[i]); err != nil {
			t.Fatalf("historical ingest %d: %v", i, err)
		}
	}

	proof, err := tree.Prove(1, 3)
	if err != nil {
		t.Fatalf("prove: %v", err)
	}
	if !Verify(leaves[1], proof, 1, historical.Root()) {
		t.Error("historical proof did not verify against the historical root")
	}
}
