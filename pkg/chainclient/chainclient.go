// Package chainclient specifies the trait contracts every per-chain
// RPC implementation must satisfy. The implementations themselves
// (EVM, Cosmos, Solana, Starknet RPC clients) are external
// collaborators; this package only fixes the shape the rest of the
// relayer programs against, mirroring the pluggable
// platform-abstraction shape of pkg/chain/strategy.ChainExecutionStrategy
// generalized from "anchor workflow" to "mailbox dispatch/deliver".
package chainclient

import (
	"context"

	"github.com/nexusbridge/relayer/pkg/domain"
)

// IsmModuleType identifies which metadata format a destination ISM
// expects.
type IsmModuleType int

const (
	IsmUnused IsmModuleType = iota
	IsmRouting
	IsmLegacyMultisig
	IsmMerkleRootMultisig
	IsmMessageIdMultisig
	IsmAggregation
)

func (t IsmModuleType) String() string {
	switch t {
	case IsmRouting:
		return "routing"
	case IsmLegacyMultisig:
		return "legacy-multisig"
	case IsmMerkleRootMultisig:
		return "merkle-root-multisig"
	case IsmMessageIdMultisig:
		return "message-id-multisig"
	case IsmAggregation:
		return "aggregation"
	default:
		return "unused"
	}
}

// TxReceipt is the outcome of a submitted transaction, narrowed to
// what the submitter's Validate step needs.
type TxReceipt struct {
	TxHash  [32]byte
	Success bool
	GasUsed uint64
}

// Mailbox is the destination-side contract handle the serial submitter
// drives: it reports delivery status and executes message processing.
type Mailbox interface {
	Domain() uint32

	// Delivered reports whether messageID has already been processed,
	// which makes submission idempotent.
	Delivered(ctx context.Context, messageID [32]byte) (bool, error)

	// Process submits message with ism metadata for on-chain delivery.
	Process(ctx context.Context, message domain.Message, metadata []byte) (TxReceipt, error)

	// EstimateGas returns the gas a Process call for this message and
	// metadata is expected to consume.
	EstimateGas(ctx context.Context, message domain.Message, metadata []byte) (uint64, error)

	// RecipientIsmAddress returns the ISM address message.Recipient
	// currently delegates verification to.
	RecipientIsmAddress(ctx context.Context, recipient [32]byte) ([32]byte, error)
}

// IsmReader is a destination ISM handle: it reports its module type and
// the validator set/threshold it currently enforces for a message.
type IsmReader interface {
	ModuleType(ctx context.Context, ism [32]byte) (IsmModuleType, error)

	// ValidatorsAndThreshold returns the multisig set an ISM enforces
	// for message. Only meaningful for the multisig module types.
	ValidatorsAndThreshold(ctx context.Context, ism [32]byte, message domain.Message) ([][20]byte, uint8, error)

	// Route returns, for a routing ISM, the sub-ISM message
	// should be checked against.
	Route(ctx context.Context, ism [32]byte, message domain.Message) ([32]byte, error)
}

// ValidatorAnnounceReader reads an origin's ValidatorAnnounce contract,
// resolving validators to the storage locations where they publish
// signed checkpoints.
type ValidatorAnnounceReader interface {
	GetAnnouncedStorageLocations(ctx context.Context, validators [][20]byte) ([][]string, error)
}

// GasOracle converts a destination gas estimate into an equivalent
// token amount on the origin, for the OnChainFeeQuoting gas policy.
type GasOracle interface {
	Quote(ctx context.Context, destination uint32, gasAmount uint64) (domain.BigUint, error)
}

// Indexer is the per-event-type log source the contract sync component
// drives. T is the decoded event payload type (e.g. a dispatched
// message or a gas payment).
type Indexer[T any] interface {
	FetchLogsInRange(ctx context.Context, fromBlock, toBlock uint64) ([]IndexedLog[T], error)

	// GetFinalizedBlockNumber returns the chain tip minus the
	// configured reorg buffer.
	GetFinalizedBlockNumber(ctx context.Context) (uint64, error)

	// FetchLogsByTxHash supports receipt-driven refetch: given a
	// transaction hash observed elsewhere, return any matching events
	// it emitted.
	FetchLogsByTxHash(ctx context.Context, txHash [32]byte) ([]IndexedLog[T], error)
}

// SequenceIndexer additionally reports the on-chain sequence length for
// events that are strictly ordered (dispatched messages).
type SequenceIndexer[T any] interface {
	Indexer[T]

	// LatestSequenceCountAndTip returns the current on-chain sequence
	// length (nil if the contract has never emitted one) and the
	// finalized tip.
	LatestSequenceCountAndTip(ctx context.Context) (count *uint32, tip uint64, err error)
}

// IndexedLog pairs a decoded event with the log metadata it was found
// at, the unit contract-sync cursors operate on.
type IndexedLog[T any] struct {
	Event T
	Meta  domain.LogMeta
}
