// Package contractsync turns on-chain logs into a local,
// monotonically-consistent sequence of persisted events (spec
// component C): a generic sync loop driven by one of two cursor
// strategies — a rate-limited watermark cursor for unordered events,
// and a forward/backward sequence-aware cursor for strictly-ordered
// dispatched messages — plus gap detection and reorg-safe block
// ranging.
package contractsync

import (
	"context"
	"time"
)

// BlockRange is an inclusive [From, To] block range to query.
type BlockRange struct {
	From uint64
	To   uint64
}

// ActionKind distinguishes what a cursor wants the sync loop to do next.
type ActionKind int

const (
	ActionQuery ActionKind = iota
	ActionSleep
)

// Action is the cursor's instruction to the sync loop: either query a
// block range or sleep for a duration before asking again.
type Action struct {
	Kind  ActionKind
	Range BlockRange
	Sleep time.Duration
}

// Cursor is the shared contract both cursor strategies implement.
type Cursor interface {
	// NextAction decides what the sync loop should do next.
	NextAction(ctx context.Context) (Action, error)

	// Update reports the logs found in range (already deduped and
	// sorted by the sync loop) so the cursor can advance its watermark
	// and validate sequence continuity. sequences carries each log's
	// sequence number in encounter order, for cursors that validate
	// contiguity; cursors that don't care about sequencing ignore it.
	Update(ctx context.Context, queried BlockRange, sequences []uint32) error
}

// Clock is injected so cursor tests can control elapsed time without
// sleeping.
type Clock func() time.Time
