// Package domain holds the chain-agnostic entities shared by every
// relayer component: domains, messages, checkpoints and the on-wire
// encodings that tie them together.
package domain

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// Protocol identifies the family of chain technology behind a Domain.
type Protocol string

const (
	ProtocolEthereum Protocol = "ethereum"
	ProtocolCosmos   Protocol = "cosmos"
	ProtocolSolana   Protocol = "solana"
	ProtocolStarknet Protocol = "starknet"
)

// Domain identifies one chain the relayer watches or delivers to.
//
// (ID, Protocol) is assumed stable for the lifetime of a relayer run.
type Domain struct {
	ID       uint32
	Name     string
	Protocol Protocol
}

func (d Domain) String() string {
	return fmt.Sprintf("%s(%d)", d.Name, d.ID)
}

// Message is a single cross-chain dispatch. Nonce is scoped to Origin and
// strictly increasing; it also doubles as the message's merkle leaf index.
type Message struct {
	Version     uint8
	Nonce       uint32
	Origin      uint32
	Sender      [32]byte
	Destination uint32
	Recipient   [32]byte
	Body        []byte
}

// CanonicalBytes encodes the message into the wire format every chain
// client and ISM agrees on:
//
//	version:u8 || nonce:u32 || origin:u32 || sender:32 ||
//	destination:u32 || recipient:32 || body
func (m Message) CanonicalBytes() []byte {
	buf := make([]byte, 1+4+4+32+4+32+len(m.Body))
	i := 0
	buf[i] = m.Version
	i++
	binary.BigEndian.PutUint32(buf[i:], m.Nonce)
	i += 4
	binary.BigEndian.PutUint32(buf[i:], m.Origin)
	i += 4
	copy(buf[i:i+32], m.Sender[:])
	i += 32
	binary.BigEndian.PutUint32(buf[i:], m.Destination)
	i += 4
	copy(buf[i:i+32], m.Recipient[:])
	i += 32
	copy(buf[i:], m.Body)
	return buf
}

// ID returns the message's canonical identity: keccak256 of its
// canonical byte encoding. This value is also the merkle leaf.
func (m Message) ID() [32]byte {
	return [32]byte(crypto.Keccak256(m.CanonicalBytes()))
}

// DecodeMessage reverses CanonicalBytes.
func DecodeMessage(buf []byte) (Message, error) {
	const headerLen = 1 + 4 + 4 + 32 + 4 + 32
	if len(buf) < headerLen {
		return Message{}, fmt.Errorf("domain: truncated message: %d bytes", len(buf))
	}
	var m Message
	i := 0
	m.Version = buf[i]
	i++
	m.Nonce = binary.BigEndian.Uint32(buf[i:])
	i += 4
	m.Origin = binary.BigEndian.Uint32(buf[i:])
	i += 4
	copy(m.Sender[:], buf[i:i+32])
	i += 32
	m.Destination = binary.BigEndian.Uint32(buf[i:])
	i += 4
	copy(m.Recipient[:], buf[i:i+32])
	i += 32
	m.Body = append([]byte(nil), buf[i:]...)
	return m, nil
}

// RawCommittedMessage pairs an encoded Message with the leaf index it
// was ingested at on the origin's merkle tree.
type RawCommittedMessage struct {
	LeafIndex uint64
	Raw       []byte
}

// LogMeta identifies exactly where an on-chain log was emitted, used to
// dedupe and order logs fetched from overlapping ranges.
type LogMeta struct {
	Address          [20]byte
	BlockNumber      uint64
	BlockHash        [32]byte
	TransactionID    [32]byte
	TransactionIndex uint32
	LogIndex         uint32
}

// Less orders two LogMeta values by (block_number, tx_index, log_index),
// the order the indexer must return logs in within a single range.
func (m LogMeta) Less(o LogMeta) bool {
	if m.BlockNumber != o.BlockNumber {
		return m.BlockNumber < o.BlockNumber
	}
	if m.TransactionIndex != o.TransactionIndex {
		return m.TransactionIndex < o.TransactionIndex
	}
	return m.LogIndex < o.LogIndex
}

// Checkpoint is a validator's claim about an origin's merkle tree state.
type Checkpoint struct {
	MerkleTreeAddress [32]byte
	MailboxDomain     uint32
	Root              [32]byte
	Index             uint32
}

// CheckpointWithMessageID adds an optional message identity to a
// Checkpoint. A nil MessageID marks a legacy (index-only) checkpoint,
// resolving the spec's open ambiguity about field presence.
type CheckpointWithMessageID struct {
	Checkpoint
	MessageID *[32]byte
}

// SignedCheckpoint pairs checkpoint bytes with an ECDSA signature. The
// signing validator's address is recovered from the signature, never
// carried alongside it, so a forged address can't be substituted.
type SignedCheckpoint struct {
	Value     CheckpointWithMessageID
	Signature ECDSASignature
}

// ECDSASignature is the (r, s, v) triple produced by go-ethereum/crypto.Sign.
type ECDSASignature struct {
	R [32]byte
	S [32]byte
	V uint8
}

// Bytes returns the 65-byte recoverable signature go-ethereum expects.
func (s ECDSASignature) Bytes() []byte {
	out := make([]byte, 65)
	copy(out[0:32], s.R[:])
	copy(out[32:64], s.S[:])
	out[64] = s.V
	return out
}

// MultisigCheckpoint is a checkpoint accompanied by at least `threshold`
// signatures, all over the identical (root, index, message_id).
type MultisigCheckpoint struct {
	Checkpoint CheckpointWithMessageID
	Signatures []SignedCheckpoint
}

// InterchainGasPayment is a single payment towards delivering a message.
type InterchainGasPayment struct {
	MessageID [32]byte
	Payment   BigUint
	GasAmount BigUint
}

// GasExpenditure records gas actually spent attempting delivery.
type GasExpenditure struct {
	TokensUsed BigUint
	GasUsed    BigUint
}

// Announcement is a validator's advertisement of where it publishes
// signed checkpoints.
type Announcement struct {
	Validator         [20]byte
	StorageLocations  []string
	MailboxDomain     uint32
}
