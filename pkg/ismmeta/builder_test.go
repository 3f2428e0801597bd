package ismmeta

import (
	"context"
	"crypto/ecdsa"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/nexusbridge/relayer/pkg/chainclient"
	"github.com/nexusbridge/relayer/pkg/checkpoint"
	"github.com/nexusbridge/relayer/pkg/domain"
	"github.com/nexusbridge/relayer/pkg/treebuilder"
)

func mustKey(t *testing.T) (*ecdsa.PrivateKey, [20]byte) {
	t.Helper()
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key, [20]byte(crypto.PubkeyToAddress(key.PublicKey))
}

func signCheckpoint(t *testing.T, key *ecdsa.PrivateKey, value domain.CheckpointWithMessageID) domain.SignedCheckpoint {
	t.Helper()
	digest := crypto.Keccak256(value.CanonicalBytes())
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("sign checkpoint: %v", err)
	}
	var signature domain.ECDSASignature
	copy(signature.R[:], sig[0:32])
	copy(signature.S[:], sig[32:64])
	signature.V = sig[64]
	return domain.SignedCheckpoint{Value: value, Signature: signature}
}

type fakeIsmReader struct {
	moduleType chainclient.IsmModuleType
	validators [][20]byte
	threshold  uint8
}

func (f fakeIsmReader) ModuleType(ctx context.Context, ism [32]byte) (chainclient.IsmModuleType, error) {
	return f.moduleType, nil
}

func (f fakeIsmReader) ValidatorsAndThreshold(ctx context.Context, ism [32]byte, message domain.Message) ([][20]byte, uint8, error) {
	return f.validators, f.threshold, nil
}

func (f fakeIsmReader) Route(ctx context.Context, ism [32]byte, message domain.Message) ([32]byte, error) {
	return [32]byte{}, nil
}

type fakeAnnounceReader struct {
	locations map[[20]byte][]string
}

func (f fakeAnnounceReader) GetAnnouncedStorageLocations(ctx context.Context, validators [][20]byte) ([][]string, error) {
	out := make([][]string, len(validators))
	for i, v := range validators {
		out[i] = f.locations[v]
	}
	return out, nil
}

type fakeTree struct {
	count uint64
	proof treebuilder.CheckpointProof
	root  [32]byte
}

func (f fakeTree) Count() uint64 { return f.count }

func (f fakeTree) GetProof(nonce uint32, checkpoint domain.CheckpointWithMessageID) (treebuilder.CheckpointProof, bool, error) {
	if checkpoint.Root != f.root {
		return treebuilder.CheckpointProof{}, false, nil
	}
	return f.proof, true, nil
}

func TestBuildMessageIdMultisigMetadata(t *testing.T) {
	ctx := context.Background()
	messageID := [32]byte{0x09}
	root := [32]byte{0x42}
	const checkpointIndex = 4

	validators := make([][20]byte, 2)
	locations := map[[20]byte][]string{}
	for i := 0; i < 2; i++ {
		key, addr := mustKey(t)
		validators[i] = addr
		dir := t.TempDir()
		syncer, err := checkpoint.NewLocalSyncer(dir)
		if err != nil {
			t.Fatalf("new local syncer: %v", err)
		}
		value := domain.CheckpointWithMessageID{
			Checkpoint: domain.Checkpoint{Root: root, Index: checkpointIndex},
			MessageID:  &messageID,
		}
		if err := syncer.WriteCheckpoint(ctx, signCheckpoint(t, key, value)); err != nil {
			t.Fatalf("write checkpoint: %v", err)
		}
		locations[addr] = []string{"file://" + dir}
	}

	ism := fakeIsmReader{moduleType: chainclient.IsmMessageIdMultisig, validators: validators, threshold: 2}
	announce := fakeAnnounceReader{locations: locations}
	tree := fakeTree{count: checkpointIndex + 1, root: root}

	builder := New(1, [32]byte{0xAB}, tree, ism, announce, true)

	message := domain.Message{Origin: 1, Nonce: 3, Destination: 2}
	metadata, ok, err := builder.Build(ctx, message, [32]byte{0xCD})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !ok {
		t.Fatal("expected metadata to be built")
	}
	wantLen := mailboxWidth + rootWidth + indexWidth + 2*signatureWidth
	if len(metadata) != wantLen {
		t.Errorf("metadata length = %d, want %d", len(metadata), wantLen)
	}
}

func TestBuildReturnsNotOKWithoutQuorum(t *testing.T) {
	ctx := context.Background()
	validators := make([][20]byte, 2)
	locations := map[[20]byte][]string{}
	for i := 0; i < 2; i++ {
		_, addr := mustKey(t)
		validators[i] = addr
		dir := t.TempDir()
		// No checkpoints written: every syncer resolves but has nothing.
		locations[addr] = []string{"file://" + dir}
	}

	ism := fakeIsmReader{moduleType: chainclient.IsmMessageIdMultisig, validators: validators, threshold: 2}
	announce := fakeAnnounceReader{locations: locations}
	tree := fakeTree{count: 5, root: [32]byte{0x01}}

	builder := New(1, [32]byte{0xAB}, tree, ism, announce, true)

	_, ok, err := builder.Build(ctx, domain.Message{Origin: 1, Nonce: 3}, [32]byte{0xCD})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if ok {
		t.Error("expected no metadata when no validator has published a checkpoint")
	}
}

func TestBuildRejectsLocalSyncersWhenDisallowed(t *testing.T) {
	ctx := context.Background()
	_, addr := mustKey(t)
	dir := t.TempDir()

	ism := fakeIsmReader{moduleType: chainclient.IsmMessageIdMultisig, validators: [][20]byte{addr}, threshold: 1}
	announce := fakeAnnounceReader{locations: map[[20]byte][]string{addr: {"file://" + dir}}}
	tree := fakeTree{count: 5, root: [32]byte{0x01}}

	builder := New(1, [32]byte{0xAB}, tree, ism, announce, false)

	_, ok, err := builder.Build(ctx, domain.Message{Origin: 1, Nonce: 3}, [32]byte{0xCD})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if ok {
		t.Error("expected no metadata when local syncers are disallowed and no other location exists")
	}
}
