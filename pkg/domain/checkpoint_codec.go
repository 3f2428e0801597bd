package domain

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// CanonicalBytes encodes the fields validators actually sign over:
// merkle tree address, mailbox domain, root, index, and — when
// present — the message ID. This mirrors Message.CanonicalBytes in
// being a fixed, order-sensitive big-endian layout.
func (c CheckpointWithMessageID) CanonicalBytes() []byte {
	size := 32 + 4 + 32 + 4
	if c.MessageID != nil {
		size += 32
	}
	buf := make([]byte, size)
	i := 0
	copy(buf[i:i+32], c.MerkleTreeAddress[:])
	i += 32
	binary.BigEndian.PutUint32(buf[i:], c.MailboxDomain)
	i += 4
	copy(buf[i:i+32], c.Root[:])
	i += 32
	binary.BigEndian.PutUint32(buf[i:], c.Index)
	i += 4
	if c.MessageID != nil {
		copy(buf[i:i+32], c.MessageID[:])
	}
	return buf
}

// RecoverSigner recovers the 20-byte address that produced Signature
// over Value's canonical bytes.
func (s SignedCheckpoint) RecoverSigner() ([20]byte, error) {
	digest := crypto.Keccak256(s.Value.CanonicalBytes())
	pub, err := crypto.SigToPub(digest, s.Signature.Bytes())
	if err != nil {
		return [20]byte{}, fmt.Errorf("domain: recover checkpoint signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
