// Package treebuilder advances an origin's incremental merkle tree to
// a target leaf index by pulling missing messages out of the log
// store, and caches the root produced at each leaf count it reaches so
// repeated proof requests against the same historical checkpoint don't
// replay ingestion.
package treebuilder

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/nexusbridge/relayer/pkg/domain"
	"github.com/nexusbridge/relayer/pkg/logstore"
	"github.com/nexusbridge/relayer/pkg/merkletree"
	"github.com/nexusbridge/relayer/pkg/relayererrors"
)

// CheckpointProof is the inclusion proof a metadata builder attaches to
// a message, tied to the exact (root, index) the checkpoint claims.
type CheckpointProof struct {
	Proof     [merkletree.Depth][32]byte
	TreeCount uint64
}

// MessageSource loads a dispatched message by its nonce on a single
// origin domain. *logstore.Store satisfies this directly.
type MessageSource interface {
	LoadMessage(origin, nonce uint32) (domain.RawCommittedMessage, error)
}

// rootCacheSize bounds how many historical (leaf count -> root) entries the
// builder keeps before evicting the least recently used.
const rootCacheSize = 4096

// Builder maintains one origin domain's incremental merkle tree and
// serves proofs against any index it has already reached.
type Builder struct {
	origin uint32
	source MessageSource

	mu   sync.Mutex
	tree *merkletree.Tree

	roots *lru.Cache[uint64, [32]byte]
}

// New returns a Builder for origin, reading missing messages from source.
func New(origin uint32, source MessageSource) (*Builder, error) {
	roots, err := lru.New[uint64, [32]byte](rootCacheSize)
	if err != nil {
		return nil, fmt.Errorf("treebuilder: allocate root cache: %w", err)
	}
	return &Builder{
		origin: origin,
		source: source,
		tree:   merkletree.New(),
		roots:  roots,
	}, nil
}

// Count returns the number of leaves ingested so far.
func (b *Builder) Count() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tree.Count()
}

// UpdateToIndex ensures the tree has ingested every message with nonce
// in [Count(), targetIndex]. It returns a *relayererrors.MessageNotFoundError
// if the log store is missing one of those nonces, since the on-chain
// tree already committed it and the builder cannot skip ahead.
func (b *Builder) UpdateToIndex(targetIndex uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.tree.Count() <= uint64(targetIndex) {
		nonce := uint32(b.tree.Count())
		msg, err := b.source.LoadMessage(b.origin, nonce)
		if err != nil {
			if err == relayererrors.ErrNotFound {
				return &relayererrors.MessageNotFoundError{Nonce: nonce}
			}
			return fmt.Errorf("treebuilder: load message nonce %d: %w", nonce, err)
		}

		leafHash, err := leafFromRaw(msg.Raw)
		if err != nil {
			return fmt.Errorf("treebuilder: decode message nonce %d: %w", nonce, err)
		}

		if err := b.tree.Ingest(leafHash); err != nil {
			return fmt.Errorf("treebuilder: ingest nonce %d: %w", nonce, err)
		}
		b.roots.Add(b.tree.Count(), b.tree.Root())
	}
	return nil
}

// leafFromRaw recomputes a message's merkle leaf (its canonical ID)
// from its stored wire bytes.
func leafFromRaw(raw []byte) ([32]byte, error) {
	msg, err := domain.DecodeMessage(raw)
	if err != nil {
		return [32]byte{}, err
	}
	return msg.ID(), nil
}

// RootAt returns the root as of exactly count leaves, serving cached
// values before falling back to recomputation. count must not exceed
// the tree's current Count().
func (b *Builder) RootAt(count uint64) ([32]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if root, ok := b.roots.Get(count); ok {
		return root, nil
	}
	if count > b.tree.Count() {
		return [32]byte{}, fmt.Errorf("treebuilder: root requested for count %d beyond current count %d", count, b.tree.Count())
	}
	if count == b.tree.Count() {
		root := b.tree.Root()
		b.roots.Add(count, root)
		return root, nil
	}
	return [32]byte{}, fmt.Errorf("treebuilder: root for historical count %d not cached and tree has advanced past it", count)
}

// Proof returns a merkle proof for nonce against the tree as of
// treeCount leaves, advancing the tree first if necessary.
func (b *Builder) Proof(nonce uint32, treeCount uint64) ([merkletree.Depth][32]byte, error) {
	if treeCount == 0 {
		return [merkletree.Depth][32]byte{}, fmt.Errorf("treebuilder: treeCount must be positive")
	}
	if err := b.UpdateToIndex(uint32(treeCount - 1)); err != nil {
		return [merkletree.Depth][32]byte{}, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tree.Prove(nonce, treeCount)
}

// GetProof returns a checkpoint-bound inclusion proof: it first
// advances the tree to checkpoint.Index, then only returns a proof if
// the tree's root at that count still matches what the checkpoint
// claims. A mismatch means the checkpoint describes a different tree
// state than what this builder has reconstructed (e.g. it's watching
// the wrong merkle hook), and the caller (the metadata builder) should
// treat the message as not-yet-provable rather than fail outright.
func (b *Builder) GetProof(nonce uint32, checkpoint domain.CheckpointWithMessageID) (CheckpointProof, bool, error) {
	targetCount := uint64(checkpoint.Index) + 1
	if err := b.UpdateToIndex(checkpoint.Index); err != nil {
		return CheckpointProof{}, false, err
	}

	root, err := b.RootAt(targetCount)
	if err != nil {
		return CheckpointProof{}, false, err
	}
	if root != checkpoint.Root {
		return CheckpointProof{}, false, nil
	}

	proof, err := b.Proof(nonce, targetCount)
	if err != nil {
		return CheckpointProof{}, false, err
	}
	return CheckpointProof{Proof: proof, TreeCount: targetCount}, true, nil
}
