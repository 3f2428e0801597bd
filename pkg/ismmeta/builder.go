// Package ismmeta builds the per-destination ISM metadata byte string a
// message needs before submission: it reads the destination ISM's
// module type and validator set, locates each validator's checkpoint
// store through the origin's ValidatorAnnounce, asks a multisig syncer
// for a quorum checkpoint covering the message, obtains the matching
// inclusion proof from the origin's merkle tree builder, and encodes
// the flat fixed-width token layout the destination ISM expects. This
// generalizes the teacher's chained builder-pattern proof assembly in
// pkg/anchor_proof/builder.go (construct the pieces, then flatten them
// into one byte string) from a single fixed anchor-proof shape to one
// encoding per ISM module type.
package ismmeta

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"

	"github.com/nexusbridge/relayer/pkg/chainclient"
	"github.com/nexusbridge/relayer/pkg/checkpoint"
	"github.com/nexusbridge/relayer/pkg/domain"
	"github.com/nexusbridge/relayer/pkg/merkletree"
	"github.com/nexusbridge/relayer/pkg/treebuilder"
)

// TreeBuilder is the subset of *treebuilder.Builder this package needs.
type TreeBuilder interface {
	Count() uint64
	GetProof(nonce uint32, checkpoint domain.CheckpointWithMessageID) (treebuilder.CheckpointProof, bool, error)
}

// Builder assembles ISM metadata for messages dispatched from one
// origin domain, for destinations whose ISM it has been pointed at.
type Builder struct {
	origin          uint32
	tree            TreeBuilder
	ismReader       chainclient.IsmReader
	announceReader  chainclient.ValidatorAnnounceReader
	allowLocalStore bool
	mailboxAddress  [32]byte
	logger          *log.Logger
}

// New returns a Builder for messages dispatched from origin, whose
// canonical merkle tree hook address is mailboxAddress. allowLocalStore
// permits resolving validator-announced file:// locations, which
// should only be set in local development and testing.
func New(origin uint32, mailboxAddress [32]byte, tree TreeBuilder, ismReader chainclient.IsmReader, announceReader chainclient.ValidatorAnnounceReader, allowLocalStore bool) *Builder {
	return &Builder{
		origin:          origin,
		tree:            tree,
		ismReader:       ismReader,
		announceReader:  announceReader,
		allowLocalStore: allowLocalStore,
		mailboxAddress:  mailboxAddress,
		logger:          log.New(log.Writer(), "[ismmeta] ", log.LstdFlags),
	}
}

// Build assembles the metadata bytes for message against recipientIsm,
// returning ok=false when any step in the chain (quorum, proof) isn't
// available yet — the caller should treat that as NotReady and retry.
func (b *Builder) Build(ctx context.Context, message domain.Message, recipientIsm [32]byte) (metadata []byte, ok bool, err error) {
	moduleType, err := b.ismReader.ModuleType(ctx, recipientIsm)
	if err != nil {
		return nil, false, fmt.Errorf("ismmeta: module type: %w", err)
	}

	switch moduleType {
	case chainclient.IsmLegacyMultisig, chainclient.IsmMerkleRootMultisig, chainclient.IsmMessageIdMultisig:
		return b.buildMultisig(ctx, message, recipientIsm, moduleType)
	default:
		return nil, false, fmt.Errorf("ismmeta: unsupported module type %s for recipient ism %x", moduleType, recipientIsm)
	}
}

func (b *Builder) buildMultisig(ctx context.Context, message domain.Message, recipientIsm [32]byte, moduleType chainclient.IsmModuleType) ([]byte, bool, error) {
	validators, threshold, err := b.ismReader.ValidatorsAndThreshold(ctx, recipientIsm, message)
	if err != nil {
		return nil, false, fmt.Errorf("ismmeta: validators and threshold: %w", err)
	}
	if len(validators) == 0 || threshold == 0 {
		return nil, false, nil
	}

	locations, err := b.announceReader.GetAnnouncedStorageLocations(ctx, validators)
	if err != nil {
		return nil, false, fmt.Errorf("ismmeta: announced storage locations: %w", err)
	}

	syncers := make(map[[20]byte]checkpoint.Syncer, len(validators))
	for i, validator := range validators {
		if i >= len(locations) || len(locations[i]) == 0 {
			continue
		}
		syncer, err := b.resolveFirstWorking(ctx, locations[i])
		if err != nil {
			b.logger.Printf("validator %x: no usable checkpoint syncer: %v", validator, err)
			continue
		}
		syncers[validator] = syncer
	}
	if len(syncers) == 0 {
		return nil, false, nil
	}

	multisig := checkpoint.NewMultisigSyncer(syncers)

	highestKnownNonce := uint32(b.tree.Count())
	if highestKnownNonce == 0 {
		return nil, false, nil
	}
	quorum, ok := multisig.FetchCheckpointInRange(ctx, validators, threshold, message.Nonce, highestKnownNonce-1)
	if !ok {
		return nil, false, nil
	}

	proof, ok, err := b.tree.GetProof(message.Nonce, quorum.Checkpoint)
	if err != nil {
		return nil, false, fmt.Errorf("ismmeta: get proof: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	switch moduleType {
	case chainclient.IsmLegacyMultisig:
		return EncodeLegacyMultisig(quorum, proof.Proof, b.mailboxAddress, threshold, validators), true, nil
	case chainclient.IsmMerkleRootMultisig:
		return EncodeMerkleRootMultisig(quorum, proof.Proof, b.mailboxAddress), true, nil
	default:
		return EncodeMessageIdMultisig(quorum, b.mailboxAddress), true, nil
	}
}

// resolveFirstWorking tries each announced location in order, returning
// the first one checkpoint.ResolveSyncer accepts.
func (b *Builder) resolveFirstWorking(ctx context.Context, locations []string) (checkpoint.Syncer, error) {
	var lastErr error
	for _, loc := range locations {
		syncer, err := checkpoint.ResolveSyncer(ctx, loc, b.allowLocalStore)
		if err != nil {
			lastErr = err
			continue
		}
		return syncer, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no announced locations")
	}
	return nil, lastErr
}

// Token widths per spec: root/mailbox 32 bytes, index u32 big-endian
// (4 bytes), threshold/validator-address/signature as below.
const (
	rootWidth      = 32
	indexWidth     = 4
	mailboxWidth   = 32
	thresholdWidth = 1
	addressWidth   = 20
	signatureWidth = 65
)

// EncodeLegacyMultisig lays out tokens as
// [root, index, origin_mailbox, merkle_proof, threshold, signatures, validators].
func EncodeLegacyMultisig(quorum domain.MultisigCheckpoint, proof [merkletree.Depth][32]byte, mailbox [32]byte, threshold uint8, validators [][20]byte) []byte {
	buf := make([]byte, 0, rootWidth+indexWidth+mailboxWidth+merkletree.Depth*32+thresholdWidth+len(quorum.Signatures)*signatureWidth+len(validators)*addressWidth)
	buf = append(buf, quorum.Checkpoint.Root[:]...)
	buf = appendUint32(buf, quorum.Checkpoint.Index)
	buf = append(buf, mailbox[:]...)
	for _, node := range proof {
		buf = append(buf, node[:]...)
	}
	buf = append(buf, threshold)
	for _, sig := range quorum.Signatures {
		buf = append(buf, sig.Signature.Bytes()...)
	}
	for _, v := range validators {
		buf = append(buf, v[:]...)
	}
	return buf
}

// EncodeMerkleRootMultisig lays out tokens as
// [origin_mailbox, root, index, merkle_proof, signatures] — no
// validator set, since the destination ISM re-derives it on-chain.
func EncodeMerkleRootMultisig(quorum domain.MultisigCheckpoint, proof [merkletree.Depth][32]byte, mailbox [32]byte) []byte {
	buf := make([]byte, 0, mailboxWidth+rootWidth+indexWidth+merkletree.Depth*32+len(quorum.Signatures)*signatureWidth)
	buf = append(buf, mailbox[:]...)
	buf = append(buf, quorum.Checkpoint.Root[:]...)
	buf = appendUint32(buf, quorum.Checkpoint.Index)
	for _, node := range proof {
		buf = append(buf, node[:]...)
	}
	for _, sig := range quorum.Signatures {
		buf = append(buf, sig.Signature.Bytes()...)
	}
	return buf
}

// EncodeMessageIdMultisig lays out tokens as
// [origin_mailbox, root, index, signatures] — no inclusion proof, since
// the destination ISM checks the signed message ID directly.
func EncodeMessageIdMultisig(quorum domain.MultisigCheckpoint, mailbox [32]byte) []byte {
	buf := make([]byte, 0, mailboxWidth+rootWidth+indexWidth+len(quorum.Signatures)*signatureWidth)
	buf = append(buf, mailbox[:]...)
	buf = append(buf, quorum.Checkpoint.Root[:]...)
	buf = appendUint32(buf, quorum.Checkpoint.Index)
	for _, sig := range quorum.Signatures {
		buf = append(buf, sig.Signature.Bytes()...)
	}
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}
