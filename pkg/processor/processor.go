// Package processor scans each origin's persisted dispatch log in
// nonce order, applies whitelist/blacklist/self-destination/unknown-
// destination/explicit-skip filters, advances that origin's merkle
// tree builder to cover the message, and hands surviving messages to
// the matching destination's send queue. One Processor runs per
// origin domain, the way pkg/anchor/event_watcher.go runs one watcher
// per chain connection, but driven by a persisted cursor over the log
// store instead of a live RPC poll.
package processor

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nexusbridge/relayer/pkg/chainclient"
	"github.com/nexusbridge/relayer/pkg/chainmetrics"
	"github.com/nexusbridge/relayer/pkg/domain"
	"github.com/nexusbridge/relayer/pkg/gaspolicy"
	"github.com/nexusbridge/relayer/pkg/ismmeta"
	"github.com/nexusbridge/relayer/pkg/logstore"
	"github.com/nexusbridge/relayer/pkg/matchinglist"
	"github.com/nexusbridge/relayer/pkg/relayererrors"
)

// MessageContext is the immutable, per-(origin,destination) collection
// of collaborators a PendingMessage needs to travel from the processor
// through the submitter to delivery: the destination mailbox handle,
// this message's metadata builder, the gas-payment enforcer guarding
// submission, and an optional hard cap on the gas a single delivery
// transaction may request.
type MessageContext struct {
	Destination         uint32
	Mailbox             chainclient.Mailbox
	MetadataBuilder     *ismmeta.Builder
	GasEnforcer         *gaspolicy.Enforcer
	TransactionGasLimit *uint64
}

// PendingMessage is a dispatched message routed to one destination,
// carrying everything the submitter's prepare/submit/validate cycle
// needs besides the shared MessageContext.
type PendingMessage struct {
	Message    domain.Message
	MessageID  [32]byte
	Context    *MessageContext
	RetryCount uint32
}

// Store is the subset of *logstore.Store the processor reads and
// writes, narrowed for testability.
type Store interface {
	LoadMessage(origin, nonce uint32) (domain.RawCommittedMessage, error)
	IsProcessed(origin, nonce uint32) (bool, error)
	LoadDeliveryState(messageID [32]byte) (logstore.DeliveryState, error)
}

// TreeBuilder is the subset of *treebuilder.Builder the processor
// drives as the tree's single writer.
type TreeBuilder interface {
	UpdateToIndex(targetIndex uint32) error
}

// NoncesToSkip is an explicit, externally configured exception list:
// origin domain -> nonce -> skip. It exists so an operator can work
// around a known-bad message without the relayer silently special-casing
// any particular domain or nonce in code.
type NoncesToSkip map[uint32]map[uint32]bool

func (n NoncesToSkip) contains(origin, nonce uint32) bool {
	if n == nil {
		return false
	}
	return n[origin][nonce]
}

// Processor is the per-origin message-selection loop described above.
type Processor struct {
	origin       uint32
	store        Store
	tree         TreeBuilder
	whitelist    matchinglist.List
	blacklist    matchinglist.List
	noncesToSkip NoncesToSkip
	destinations map[uint32]*Queue
	contexts     map[uint32]*MessageContext
	retryDelay   time.Duration
	metrics      chainmetrics.Metrics
	logger       *log.Logger

	cursor uint32
}

// Config collects a Processor's construction parameters. Contexts maps
// a destination domain to the MessageContext every PendingMessage
// bound for it carries; Destinations maps the same domain to the
// queue it's sent on. Every key in Destinations should have a matching
// entry in Contexts.
type Config struct {
	Origin       uint32
	Store        Store
	Tree         TreeBuilder
	Whitelist    matchinglist.List
	Blacklist    matchinglist.List
	NoncesToSkip NoncesToSkip
	Destinations map[uint32]*Queue
	Contexts     map[uint32]*MessageContext
	RetryDelay   time.Duration
	Metrics      chainmetrics.Metrics
}

// New builds a Processor from cfg, starting its cursor at 0.
func New(cfg Config) *Processor {
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = chainmetrics.Noop{}
	}
	return &Processor{
		origin:       cfg.Origin,
		store:        cfg.Store,
		tree:         cfg.Tree,
		whitelist:    cfg.Whitelist,
		blacklist:    cfg.Blacklist,
		noncesToSkip: cfg.NoncesToSkip,
		destinations: cfg.Destinations,
		contexts:     cfg.Contexts,
		retryDelay:   retryDelay,
		metrics:      metrics,
		logger:       log.New(log.Writer(), fmt.Sprintf("[processor:%d] ", cfg.Origin), log.LstdFlags),
	}
}

// Cursor reports the next nonce the processor will inspect.
func (p *Processor) Cursor() uint32 {
	return p.cursor
}

// Run drives the main loop until ctx is cancelled, sleeping retryDelay
// whenever the next nonce hasn't been dispatched yet.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		advanced, err := p.Step(ctx)
		if err != nil {
			return err
		}
		if !advanced {
			select {
			case <-time.After(p.retryDelay):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Step runs one iteration of the main loop: it returns advanced=false
// only when message_by_nonce[cursor] doesn't exist yet, in which case
// the cursor does not move. Every other outcome — already processed,
// filtered out, or successfully queued — advances the cursor by one.
func (p *Processor) Step(ctx context.Context) (advanced bool, err error) {
	nonce := p.cursor

	raw, err := p.store.LoadMessage(p.origin, nonce)
	if err != nil {
		if err == relayererrors.ErrNotFound {
			return false, nil
		}
		return false, fmt.Errorf("processor: load message nonce %d: %w", nonce, err)
	}

	processed, err := p.store.IsProcessed(p.origin, nonce)
	if err != nil {
		return false, fmt.Errorf("processor: is processed nonce %d: %w", nonce, err)
	}
	if processed {
		p.cursor++
		return true, nil
	}

	message, err := domain.DecodeMessage(raw.Raw)
	if err != nil {
		return false, fmt.Errorf("processor: decode message nonce %d: %w", nonce, err)
	}

	if reason, skip := p.filter(message); skip {
		p.logger.Printf("nonce %d: skipped (%s)", nonce, reason)
		p.metrics.IncMessagesSkipped(p.origin, reason)
		p.cursor++
		return true, nil
	}

	if err := p.tree.UpdateToIndex(nonce); err != nil {
		return false, fmt.Errorf("processor: update tree to index %d: %w", nonce, err)
	}

	messageID := message.ID()
	delivery, err := p.store.LoadDeliveryState(messageID)
	if err != nil {
		return false, fmt.Errorf("processor: load delivery state for nonce %d: %w", nonce, err)
	}

	destQueue := p.destinations[message.Destination]
	destQueue.Send(&PendingMessage{
		Message:    message,
		MessageID:  messageID,
		Context:    p.contextFor(message.Destination),
		RetryCount: delivery.Attempts,
	})
	p.metrics.IncMessagesProcessed(p.origin, message.Destination)

	p.cursor++
	return true, nil
}

func (p *Processor) contextFor(destination uint32) *MessageContext {
	return p.contexts[destination]
}

// filter applies, in order, the whitelist, blacklist, self-destination,
// unknown-destination and explicit-skip rules from spec §4.H step 4.
func (p *Processor) filter(message domain.Message) (reason string, skip bool) {
	if !p.whitelist.MatchesAsWhitelist(message) {
		return "not in whitelist", true
	}
	if p.blacklist.MatchesAsBlacklist(message) {
		return "in blacklist", true
	}
	if message.Destination == p.origin {
		return "self-destination", true
	}
	if _, ok := p.destinations[message.Destination]; !ok {
		return "unknown destination", true
	}
	if p.noncesToSkip.contains(p.origin, message.Nonce) {
		return "explicit nonce skip", true
	}
	return "", false
}
