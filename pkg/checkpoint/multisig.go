package checkpoint

import (
	"bytes"
	"context"
	"log"
	"sort"

	"github.com/nexusbridge/relayer/pkg/domain"
)

// MultisigSyncer maps a validator's 20-byte address to the Syncer that
// reads and writes its checkpoints and announcement.
type MultisigSyncer struct {
	syncers map[[20]byte]Syncer
	logger  *log.Logger
}

// NewMultisigSyncer builds a MultisigSyncer from a validator -> Syncer
// map, typically constructed by resolving each validator's announced
// storage location.
func NewMultisigSyncer(syncers map[[20]byte]Syncer) *MultisigSyncer {
	return &MultisigSyncer{
		syncers: syncers,
		logger:  log.New(log.Writer(), "[MultisigCheckpointSyncer] ", log.LstdFlags),
	}
}

// FetchCheckpointInRange walks indices from maxIndex down to minIndex;
// at each index it probes every validator's syncer, groups the
// responses that agree on (root, index, message_id), and returns the
// first group that reaches threshold matching signatures. A syncer
// that errors, or returns no checkpoint at that index, is skipped —
// it never aborts the scan.
func (m *MultisigSyncer) FetchCheckpointInRange(
	ctx context.Context,
	validators [][20]byte,
	threshold uint8,
	minIndex, maxIndex uint32,
) (domain.MultisigCheckpoint, bool) {
	for index := maxIndex; ; index-- {
		if result, ok := m.quorumAt(ctx, validators, threshold, index); ok {
			return result, true
		}
		if index == minIndex {
			break
		}
	}
	return domain.MultisigCheckpoint{}, false
}

// agreementKey groups signed checkpoints by the fields every
// participant must share for the set to count toward quorum.
type agreementKey struct {
	root      [32]byte
	index     uint32
	messageID [32]byte
	hasID     bool
}

func keyFor(c domain.CheckpointWithMessageID) agreementKey {
	k := agreementKey{root: c.Root, index: c.Index}
	if c.MessageID != nil {
		k.hasID = true
		k.messageID = *c.MessageID
	}
	return k
}

func (m *MultisigSyncer) quorumAt(ctx context.Context, validators [][20]byte, threshold uint8, index uint32) (domain.MultisigCheckpoint, bool) {
	groups := make(map[agreementKey][]domain.SignedCheckpoint)

	for _, validator := range validators {
		syncer, ok := m.syncers[validator]
		if !ok {
			continue
		}
		signed, found, err := syncer.FetchCheckpoint(ctx, index)
		if err != nil {
			m.logger.Printf("validator %x: fetch checkpoint at index %d failed: %v", validator, index, err)
			continue
		}
		if !found {
			continue
		}
		signer, err := signed.RecoverSigner()
		if err != nil {
			m.logger.Printf("validator %x: could not recover signer at index %d: %v", validator, index, err)
			continue
		}
		if signer != validator {
			m.logger.Printf("validator %x: signature recovered to %x at index %d", validator, signer, index)
			continue
		}
		key := keyFor(signed.Value)
		groups[key] = append(groups[key], signed)
	}

	type candidate struct {
		key        agreementKey
		signatures []domain.SignedCheckpoint
	}

	var candidates []candidate
	for key, signatures := range groups {
		if uint8(len(signatures)) < threshold {
			continue
		}
		sorted := append([]domain.SignedCheckpoint(nil), signatures...)
		sort.Slice(sorted, func(i, j int) bool {
			ai, _ := sorted[i].RecoverSigner()
			aj, _ := sorted[j].RecoverSigner()
			return bytes.Compare(ai[:], aj[:]) < 0
		})
		candidates = append(candidates, candidate{key: key, signatures: sorted})
	}
	if len(candidates) == 0 {
		return domain.MultisigCheckpoint{}, false
	}

	// Map iteration order is random; when more than one group reaches
	// threshold independently, prefer the larger group, then break ties
	// by the lowest signer address so the winner is reproducible.
	sort.Slice(candidates, func(i, j int) bool {
		if len(candidates[i].signatures) != len(candidates[j].signatures) {
			return len(candidates[i].signatures) > len(candidates[j].signatures)
		}
		ai, _ := candidates[i].signatures[0].RecoverSigner()
		aj, _ := candidates[j].signatures[0].RecoverSigner()
		return bytes.Compare(ai[:], aj[:]) < 0
	})

	winner := candidates[0]
	return domain.MultisigCheckpoint{
		Checkpoint: domain.CheckpointWithMessageID{
			Checkpoint: domain.Checkpoint{Root: winner.key.root, Index: winner.key.index},
			MessageID:  messageIDFromKey(winner.key),
		},
		Signatures: winner.signatures[:threshold],
	}, true
}

func messageIDFromKey(k agreementKey) *[32]byte {
	if !k.hasID {
		return nil
	}
	id := k.messageID
	return &id
}
