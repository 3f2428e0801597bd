package treebuilder

import (
	"testing"

	"github.com/nexusbridge/relayer/pkg/domain"
	"github.com/nexusbridge/relayer/pkg/logstore"
	"github.com/nexusbridge/relayer/pkg/merkletree"
)

type memKV struct {
	data map[string][]byte
}

func newMemKV() *memKV {
	return &memKV{data: make(map[string][]byte)}
}

func (m *memKV) Get(key []byte) ([]byte, error) {
	return m.data[string(key)], nil
}

func (m *memKV) Set(key, value []byte) error {
	m.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func seedMessages(t *testing.T, store *logstore.Store, origin uint32, n int) []domain.Message {
	t.Helper()
	msgs := make([]domain.Message, n)
	for i := 0; i < n; i++ {
		m := domain.Message{
			Version:     1,
			Nonce:       uint32(i),
			Origin:      origin,
			Destination: 2,
			Body:        []byte{byte(i)},
		}
		msgs[i] = m
		if err := store.SaveMessage(origin, uint32(i), domain.RawCommittedMessage{
			LeafIndex: uint64(i),
			Raw:       m.CanonicalBytes(),
		}); err != nil {
			t.Fatalf("seed message %d: %v", i, err)
		}
	}
	return msgs
}

func TestUpdateToIndexIngestsInOrder(t *testing.T) {
	store := logstore.New(newMemKV())
	seedMessages(t, store, 1, 5)

	builder, err := New(1, store)
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}

	if err := builder.UpdateToIndex(4); err != nil {
		t.Fatalf("update to index: %v", err)
	}
	if builder.Count() != 5 {
		t.Errorf("count mismatch: got %d, want 5", builder.Count())
	}
}

func TestUpdateToIndexReportsGap(t *testing.T) {
	store := logstore.New(newMemKV())
	seedMessages(t, store, 1, 2)
	// Nonce 2 is intentionally missing.

	builder, err := New(1, store)
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}

	err = builder.UpdateToIndex(2)
	if err == nil {
		t.Fatal("expected an error for a gap in the message sequence")
	}
}

func TestProofMatchesDirectTreeRoot(t *testing.T) {
	store := logstore.New(newMemKV())
	msgs := seedMessages(t, store, 1, 10)

	builder, err := New(1, store)
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}

	const treeCount = 8
	proof, err := builder.Proof(3, treeCount)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}

	root, err := builder.RootAt(treeCount)
	if err != nil {
		t.Fatalf("root at: %v", err)
	}

	leaf := msgs[3].ID()
	if !merkletree.Verify(leaf, proof, 3, root) {
		t.Error("proof did not verify against the cached root")
	}
}

func TestGetProofMatchesCheckpointRoot(t *testing.T) {
	store := logstore.New(newMemKV())
	msgs := seedMessages(t, store, 1, 10)

	builder, err := New(1, store)
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}

	const checkpointIndex = 7 // tree count 8
	if err := builder.UpdateToIndex(checkpointIndex); err != nil {
		t.Fatalf("update to index: %v", err)
	}
	root, err := builder.RootAt(checkpointIndex + 1)
	if err != nil {
		t.Fatalf("root at: %v", err)
	}

	checkpoint := domain.CheckpointWithMessageID{
		Checkpoint: domain.Checkpoint{Root: root, Index: checkpointIndex},
	}

	cp, ok, err := builder.GetProof(3, checkpoint)
	if err != nil {
		t.Fatalf("get proof: %v", err)
	}
	if !ok {
		t.Fatal("expected a proof for a checkpoint whose root matches the tree")
	}
	if !merkletree.Verify(msgs[3].ID(), cp.Proof, 3, root) {
		t.Error("returned proof did not verify")
	}
}

func TestGetProofMismatchedRootReturnsNotOK(t *testing.T) {
	store := logstore.New(newMemKV())
	seedMessages(t, store, 1, 10)

	builder, err := New(1, store)
	if err != nil {
		t.Fatalf("new builder: %v", err)
	}

	var wrongRoot [32]byte
	wrongRoot[0] = 0xFF
	checkpoint := domain.CheckpointWithMessageID{
		Checkpoint: domain.Checkpoint{Root: wrongRoot, Index: 7},
	}

	_, ok, err := builder.GetProof(3, checkpoint)
	if err != nil {
		t.Fatalf("get proof: %v", err)
	}
	if ok {
		t.Error("expected no proof for a checkpoint whose root doesn't match")
	}
}
