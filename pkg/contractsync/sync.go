package contractsync

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/nexusbridge/relayer/pkg/chainclient"
)

// Persist stores a batch of already-sorted, deduplicated logs and
// reports, for sequence-aware cursors, the sequence number of each log
// in the same order. Cursors that ignore sequencing (the rate-limited
// watermark cursor) get a nil/ignored return.
type Persist[T any] func(ctx context.Context, logs []chainclient.IndexedLog[T]) (sequences []uint32, err error)

// Sync drives one Cursor against one chainclient.Indexer, persisting
// whatever logs each queried range turns up and feeding the result
// back to the cursor so it can advance or detect gaps. It is the one
// sync loop every contract-sync instance runs, whether watching
// dispatched messages (ForwardBackwardSequenceAwareCursor) or gas
// payments (RateLimitedWatermarkCursor) — mirroring the single
// poll-loop shape of the teacher's event watcher, generalized from a
// fixed event set to a cursor-driven one.
type Sync[T any] struct {
	label   string
	cursor  Cursor
	indexer chainclient.Indexer[T]
	persist Persist[T]
	logger  *log.Logger

	receiptsMu sync.Mutex
	receipts   [][32]byte

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSync wires a cursor, indexer and persistence callback into a
// runnable loop. label identifies the event stream in log output
// (e.g. "dispatch/ethereum-1" or "gas-payment/cosmos-2").
func NewSync[T any](label string, cursor Cursor, indexer chainclient.Indexer[T], persist Persist[T]) *Sync[T] {
	return &Sync[T]{
		label:   label,
		cursor:  cursor,
		indexer: indexer,
		persist: persist,
		logger:  log.New(log.Writer(), fmt.Sprintf("[contractsync %s] ", label), log.LstdFlags),
	}
}

// NotifyReceipt enqueues a transaction hash observed elsewhere (e.g. by
// the serial submitter confirming a related transaction) for immediate,
// out-of-band log recovery. It does not advance or otherwise disturb
// the cursor: the loop still reaches those logs on its own schedule,
// this only shortens the latency until they are persisted.
func (s *Sync[T]) NotifyReceipt(txHash [32]byte) {
	s.receiptsMu.Lock()
	s.receipts = append(s.receipts, txHash)
	s.receiptsMu.Unlock()
}

func (s *Sync[T]) drainReceipts(ctx context.Context) {
	s.receiptsMu.Lock()
	pending := s.receipts
	s.receipts = nil
	s.receiptsMu.Unlock()

	for _, txHash := range pending {
		logs, err := s.indexer.FetchLogsByTxHash(ctx, txHash)
		if err != nil {
			s.logger.Printf("receipt refetch %x: %v", txHash, err)
			continue
		}
		if len(logs) == 0 {
			continue
		}
		if _, err := s.persist(ctx, logs); err != nil {
			s.logger.Printf("receipt persist %x: %v", txHash, err)
		}
	}
}

// Start runs the loop in a background goroutine until ctx is canceled
// or Stop is called.
func (s *Sync[T]) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
}

// Stop cancels the loop and waits for it to exit.
func (s *Sync[T]) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sync[T]) run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		s.drainReceipts(ctx)

		if err := s.step(ctx); err != nil {
			s.logger.Printf("step: %v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}
	}
}

// step runs a single NextAction/query-or-sleep/Update cycle. It is
// exported to tests as the Step method so cursor behavior can be
// driven deterministically without a background goroutine.
func (s *Sync[T]) step(ctx context.Context) error {
	action, err := s.cursor.NextAction(ctx)
	if err != nil {
		return fmt.Errorf("contractsync: next action: %w", err)
	}

	switch action.Kind {
	case ActionSleep:
		select {
		case <-ctx.Done():
		case <-time.After(action.Sleep):
		}
		return nil
	case ActionQuery:
		return s.query(ctx, action.Range)
	default:
		return fmt.Errorf("contractsync: unknown action kind %d", action.Kind)
	}
}

// Step runs one iteration of the loop synchronously, for tests that
// need to observe cursor state between steps.
func (s *Sync[T]) Step(ctx context.Context) error {
	return s.step(ctx)
}

func (s *Sync[T]) query(ctx context.Context, rng BlockRange) error {
	logs, err := s.indexer.FetchLogsInRange(ctx, rng.From, rng.To)
	if err != nil {
		return fmt.Errorf("contractsync: fetch logs [%d,%d]: %w", rng.From, rng.To, err)
	}

	logs = dedupeAndSort(logs)

	sequences, err := s.persist(ctx, logs)
	if err != nil {
		return fmt.Errorf("contractsync: persist logs [%d,%d]: %w", rng.From, rng.To, err)
	}

	if err := s.cursor.Update(ctx, rng, sequences); err != nil {
		return fmt.Errorf("contractsync: cursor update [%d,%d]: %w", rng.From, rng.To, err)
	}
	return nil
}

// dedupeAndSort removes logs sharing an identical (block, tx, log
// index) location within one fetched batch and orders the remainder
// per LogMeta.Less. Logs that a later, overlapping query returns again
// are not filtered here.
func dedupeAndSort[T any](logs []chainclient.IndexedLog[T]) []chainclient.IndexedLog[T] {
	type key struct {
		block, logIdx uint64
		txID          [32]byte
	}
	seen := make(map[key]bool, len(logs))
	out := make([]chainclient.IndexedLog[T], 0, len(logs))
	for _, l := range logs {
		k := key{block: l.Meta.BlockNumber, logIdx: uint64(l.Meta.LogIndex), txID: l.Meta.TransactionID}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Meta.Less(out[j].Meta) })
	return out
}
