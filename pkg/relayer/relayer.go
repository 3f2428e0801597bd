// Package relayer wires every other package into one running agent
// (spec component J): per-origin contract sync and message processing,
// per-destination serial submission, all sharing one log store and
// joint lifecycle. This generalizes the teacher's single-process
// validatorNode.Start(ctx) assembly in main.go from one fixed chain
// pair to an arbitrary origin/destination mesh, replacing its ad hoc
// goroutine+signal wiring with golang.org/x/sync/errgroup's joint
// cancellation scope.
package relayer

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/nexusbridge/relayer/pkg/chainclient"
	"github.com/nexusbridge/relayer/pkg/chainmetrics"
	"github.com/nexusbridge/relayer/pkg/contractsync"
	"github.com/nexusbridge/relayer/pkg/domain"
	"github.com/nexusbridge/relayer/pkg/gaspolicy"
	"github.com/nexusbridge/relayer/pkg/ismmeta"
	"github.com/nexusbridge/relayer/pkg/logstore"
	"github.com/nexusbridge/relayer/pkg/matchinglist"
	"github.com/nexusbridge/relayer/pkg/processor"
	"github.com/nexusbridge/relayer/pkg/relayererrors"
	"github.com/nexusbridge/relayer/pkg/submitter"
	"github.com/nexusbridge/relayer/pkg/treebuilder"
)

// ChainConfig collects one domain's chain-specific collaborators. A
// domain that only ever originates messages can leave the
// destination-only fields (Mailbox, IsmReader) unset; a domain that
// only ever receives can leave the origin-only fields
// (DispatchIndexer, GasIndexer, AnnounceReader) unset.
type ChainConfig struct {
	Domain         domain.Domain
	MailboxAddress [32]byte

	// Origin-side collaborators.
	DispatchIndexer chainclient.SequenceIndexer[domain.Message]
	GasIndexer      chainclient.Indexer[domain.InterchainGasPayment]
	AnnounceReader  chainclient.ValidatorAnnounceReader

	// Destination-side collaborators.
	Mailbox   chainclient.Mailbox
	IsmReader chainclient.IsmReader

	// GasOracle is consulted by an OnChainFeeQuoting gas policy that
	// targets this domain as a destination. Left nil for chains no
	// configured policy quotes against.
	GasOracle chainclient.GasOracle
}

// Config collects a Relayer's construction parameters.
type Config struct {
	Store   *logstore.Store
	Metrics chainmetrics.Metrics
	Chains  map[uint32]ChainConfig

	Whitelist    matchinglist.List
	Blacklist    matchinglist.List
	NoncesToSkip processor.NoncesToSkip

	// GasPaymentEnforcement maps a destination domain to the policy
	// chain guarding submission to it. A destination absent from this
	// map never approves any message.
	GasPaymentEnforcement map[uint32]*gaspolicy.Enforcer

	// TransactionGasLimit optionally caps the gas a single delivery
	// transaction to a destination may request.
	TransactionGasLimit map[uint32]*uint64

	AllowLocalCheckpointSyncers bool
	ChunkSize                   uint64
}

// originAgent bundles one origin domain's tree, processor and contract
// sync loops.
type originAgent struct {
	domain       uint32
	tree         *treebuilder.Builder
	processor    *processor.Processor
	dispatchSync *contractsync.Sync[domain.Message]
	gasSync      *contractsync.Sync[domain.InterchainGasPayment]
}

// Relayer owns every per-origin and per-destination component and runs
// them under one joint cancellation scope.
type Relayer struct {
	store   *logstore.Store
	metrics chainmetrics.Metrics
	logger  *log.Logger

	origins     []*originAgent
	submitters  []*submitter.Submitter
	destQueues  map[uint32]*processor.Queue
}

// New assembles a Relayer from cfg: one MessageContext and metadata
// builder per (origin, destination) pair that actually appears in
// cfg.Chains, one Queue and Submitter per destination, and one
// Processor plus pair of contract-sync loops per origin.
func New(cfg Config) (*Relayer, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("relayer: store is required")
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = chainmetrics.Noop{}
	}
	chunkSize := cfg.ChunkSize
	if chunkSize == 0 {
		chunkSize = 1000
	}

	r := &Relayer{
		store:      cfg.Store,
		metrics:    metrics,
		logger:     log.New(log.Writer(), "[relayer] ", log.LstdFlags),
		destQueues: make(map[uint32]*processor.Queue),
	}

	trees := make(map[uint32]*treebuilder.Builder, len(cfg.Chains))
	for id := range cfg.Chains {
		tree, err := treebuilder.New(id, cfg.Store)
		if err != nil {
			return nil, fmt.Errorf("relayer: tree builder for domain %d: %w", id, err)
		}
		trees[id] = tree
	}

	// One destination queue + submitter for every chain that can
	// receive (has a Mailbox configured).
	for id, chain := range cfg.Chains {
		if chain.Mailbox == nil {
			continue
		}
		queue := processor.NewQueue()
		r.destQueues[id] = queue
		r.submitters = append(r.submitters, submitter.New(submitter.Config{
			Destination: id,
			Incoming:    queue,
			Store:       cfg.Store,
			Metrics:     metrics,
		}))
	}

	for id, chain := range cfg.Chains {
		if chain.DispatchIndexer == nil {
			continue
		}

		contexts := make(map[uint32]*processor.MessageContext)
		for destID, destChain := range cfg.Chains {
			if _, ok := r.destQueues[destID]; !ok {
				continue
			}
			builder := ismmeta.New(id, chain.MailboxAddress, trees[id], destChain.IsmReader, chain.AnnounceReader, cfg.AllowLocalCheckpointSyncers)
			enforcer := cfg.GasPaymentEnforcement[destID]
			if enforcer == nil {
				enforcer = gaspolicy.NewEnforcer()
			}
			contexts[destID] = &processor.MessageContext{
				Destination:         destID,
				Mailbox:             destChain.Mailbox,
				MetadataBuilder:     builder,
				GasEnforcer:         enforcer,
				TransactionGasLimit: cfg.TransactionGasLimit[destID],
			}
		}

		proc := processor.New(processor.Config{
			Origin:       id,
			Store:        cfg.Store,
			Tree:         trees[id],
			Whitelist:    cfg.Whitelist,
			Blacklist:    cfg.Blacklist,
			NoncesToSkip: cfg.NoncesToSkip,
			Destinations: r.destQueues,
			Contexts:     contexts,
			Metrics:      metrics,
		})

		dispatchSync, err := newDispatchSync(id, chunkSize, cfg.Store, chain.DispatchIndexer)
		if err != nil {
			return nil, fmt.Errorf("relayer: dispatch sync for domain %d: %w", id, err)
		}

		var gasSync *contractsync.Sync[domain.InterchainGasPayment]
		if chain.GasIndexer != nil {
			gasSync, err = newGasSync(id, chunkSize, cfg.Store, chain.GasIndexer)
			if err != nil {
				return nil, fmt.Errorf("relayer: gas sync for domain %d: %w", id, err)
			}
		}

		r.origins = append(r.origins, &originAgent{
			domain:       id,
			tree:         trees[id],
			processor:    proc,
			dispatchSync: dispatchSync,
			gasSync:      gasSync,
		})
	}

	return r, nil
}

// Run spawns every component's loop into one joint scope and blocks
// until ctx is cancelled or any component returns a non-nil error, at
// which point the rest are cancelled and the first error is returned.
func (r *Relayer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, s := range r.submitters {
		s := s
		g.Go(func() error {
			if err := s.Run(ctx); err != nil {
				return fmt.Errorf("relayer: submitter: %w", err)
			}
			return nil
		})
	}

	for _, o := range r.origins {
		o := o
		g.Go(func() error {
			if err := o.processor.Run(ctx); err != nil {
				return fmt.Errorf("relayer: processor domain %d: %w", o.domain, err)
			}
			return nil
		})
		g.Go(func() error {
			o.dispatchSync.Start(ctx)
			<-ctx.Done()
			o.dispatchSync.Stop()
			return nil
		})
		if o.gasSync != nil {
			g.Go(func() error {
				o.gasSync.Start(ctx)
				<-ctx.Done()
				o.gasSync.Stop()
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		if relayererrors.IsCritical(err) {
			r.logger.Printf("critical failure, shutting down: %v", err)
		}
		return err
	}
	return nil
}

// newDispatchSync builds the forward/backward sequence-aware cursor
// for one origin's dispatched-message stream, seeding it from whatever
// nonces the log store already holds so a restart resumes instead of
// re-indexing from genesis.
func newDispatchSync(origin uint32, chunkSize uint64, store *logstore.Store, indexer chainclient.SequenceIndexer[domain.Message]) (*contractsync.Sync[domain.Message], error) {
	lastSeq, lastBlock, err := seedDispatchCursor(store, origin)
	if err != nil {
		return nil, err
	}

	fetchTip := func(ctx context.Context) (uint64, error) {
		return indexer.GetFinalizedBlockNumber(ctx)
	}
	cursor := contractsync.NewForwardBackwardSequenceAwareCursor(chunkSize, lastSeq, lastBlock, fetchTip)

	persist := func(ctx context.Context, logs []chainclient.IndexedLog[domain.Message]) ([]uint32, error) {
		sequences := make([]uint32, 0, len(logs))
		for _, l := range logs {
			msg := l.Event
			raw := domain.RawCommittedMessage{LeafIndex: uint64(msg.Nonce), Raw: msg.CanonicalBytes()}
			if err := store.SaveMessage(origin, msg.Nonce, raw); err != nil {
				return nil, fmt.Errorf("save message origin %d nonce %d: %w", origin, msg.Nonce, err)
			}
			if err := store.IndexMessageID(origin, msg.Nonce, msg.ID(), l.Meta.BlockNumber); err != nil {
				return nil, fmt.Errorf("index message id origin %d nonce %d: %w", origin, msg.Nonce, err)
			}
			sequences = append(sequences, msg.Nonce)
		}
		return sequences, nil
	}

	label := fmt.Sprintf("dispatch/%d", origin)
	return contractsync.NewSync[domain.Message](label, cursor, indexer, persist), nil
}

// newGasSync builds the rate-limited watermark cursor for one origin's
// gas-payment stream.
func newGasSync(origin uint32, chunkSize uint64, store *logstore.Store, indexer chainclient.Indexer[domain.InterchainGasPayment]) (*contractsync.Sync[domain.InterchainGasPayment], error) {
	startBlock, err := store.HighWatermark(origin)
	if err != nil {
		return nil, fmt.Errorf("load high watermark for domain %d: %w", origin, err)
	}

	fetchTip := func(ctx context.Context) (uint64, error) {
		return indexer.GetFinalizedBlockNumber(ctx)
	}
	persistWatermark := func(watermark uint64) error {
		return store.SaveHighWatermark(origin, uint32(watermark))
	}
	cursor := contractsync.NewRateLimitedWatermarkCursor(chunkSize, uint64(startBlock), fetchTip, persistWatermark)

	persist := func(ctx context.Context, logs []chainclient.IndexedLog[domain.InterchainGasPayment]) ([]uint32, error) {
		for _, l := range logs {
			if err := store.AddGasPayment(l.Event.MessageID, l.Event); err != nil {
				return nil, fmt.Errorf("add gas payment: %w", err)
			}
		}
		return nil, nil
	}

	label := fmt.Sprintf("gas-payment/%d", origin)
	return contractsync.NewSync[domain.InterchainGasPayment](label, cursor, indexer, persist), nil
}

// seedDispatchCursor reconstructs the sequence-aware cursor's starting
// point by scanning the log store for the run of contiguous nonces
// already recorded for origin, starting at 0. It returns the next
// nonce expected (the length of that run) and the block of the last
// nonce in it, the way the merkle tree builder itself
// replays from the log store rather than trusting in-memory state
// across restarts.
func seedDispatchCursor(store *logstore.Store, origin uint32) (lastSeq uint32, lastBlock uint64, err error) {
	var nonce uint32
	for {
		if _, loadErr := store.LoadMessage(origin, nonce); loadErr != nil {
			if loadErr == relayererrors.ErrNotFound {
				break
			}
			return 0, 0, fmt.Errorf("seed dispatch cursor: load message nonce %d: %w", nonce, loadErr)
		}
		nonce++
	}
	if nonce == 0 {
		return 0, 0, nil
	}
	block, blockErr := store.DispatchedBlockByNonce(origin, nonce-1)
	if blockErr != nil && blockErr != relayererrors.ErrNotFound {
		return 0, 0, fmt.Errorf("seed dispatch cursor: dispatched block for nonce %d: %w", nonce-1, blockErr)
	}
	return nonce, block, nil
}
