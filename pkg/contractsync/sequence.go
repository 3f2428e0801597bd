package contractsync

import (
	"context"
	"fmt"
	"sort"
)

// validity classifies a queried range's returned sequence numbers
// against what the cursor expected.
type validity int

const (
	validityEmpty validity = iota
	validityValid
	validityInvalid
)

// pendingQuery records what a cursor asked for, so Update can tell
// which sub-cursor (or finding-missing probe) produced the result.
type pendingQuery struct {
	source  string // "forward", "backward", "finding-missing"
	rng     BlockRange
	wantSeq uint32 // expected first sequence for forward/finding-missing
}

// ForwardBackwardSequenceAwareCursor drives strictly-sequenced event
// streams (dispatched messages): a forward sub-cursor extends from the
// highest indexed sequence toward the chain tip, while a backward
// sub-cursor fills in history below the run's starting point down to
// sequence 0. A gap detected by the forward cursor switches it into a
// finding-missing mode that re-queries progressively wider backward
// windows until the gap closes.
type ForwardBackwardSequenceAwareCursor struct {
	chunkSize uint64
	fetchTip  TipFetcher

	tip uint64

	forwardNextBlock uint64
	forwardNextSeq   uint32

	backwardBlock uint64
	backwardDone  bool

	findingMissing    bool
	missingFromSeq    uint32
	missingWindowMult uint64
	missingAnchor     uint64 // block the widening window retreats from

	pending *pendingQuery
}

// NewForwardBackwardSequenceAwareCursor seeds both sub-cursors:
// forward expects lastIndexedSequence as its next sequence and starts
// querying at lastIndexedBlock (callers pass the count of sequences
// already indexed, not the last one's value); backward starts at the
// same block and marches down to sequence 0 unless lastIndexedSequence
// is already 0, in which case there is nothing to backfill.
func NewForwardBackwardSequenceAwareCursor(
	chunkSize uint64,
	lastIndexedSequence uint32,
	lastIndexedBlock uint64,
	fetchTip TipFetcher,
) *ForwardBackwardSequenceAwareCursor {
	return &ForwardBackwardSequenceAwareCursor{
		chunkSize:        chunkSize,
		fetchTip:         fetchTip,
		forwardNextBlock: lastIndexedBlock,
		forwardNextSeq:   lastIndexedSequence,
		backwardBlock:    lastIndexedBlock,
		backwardDone:     lastIndexedSequence == 0,
	}
}

func (c *ForwardBackwardSequenceAwareCursor) NextAction(ctx context.Context) (Action, error) {
	if c.fetchTip != nil {
		tip, err := c.fetchTip(ctx)
		if err != nil {
			return Action{}, fmt.Errorf("contractsync: refresh tip: %w", err)
		}
		c.tip = tip
	}

	if c.findingMissing {
		window := c.chunkSize * c.missingWindowMult
		from := uint64(0)
		if c.missingAnchor > window {
			from = c.missingAnchor - window
		}
		c.pending = &pendingQuery{source: "finding-missing", rng: BlockRange{From: from, To: c.missingAnchor}, wantSeq: c.missingFromSeq}
		return Action{Kind: ActionQuery, Range: c.pending.rng}, nil
	}

	if c.tip == 0 || c.forwardNextBlock+c.chunkSize < c.tip || c.forwardNextBlock <= c.tip {
		to := c.forwardNextBlock + c.chunkSize
		if c.tip > 0 && to > c.tip {
			to = c.tip
		}
		if to < c.forwardNextBlock {
			to = c.forwardNextBlock
		}
		c.pending = &pendingQuery{source: "forward", rng: BlockRange{From: c.forwardNextBlock, To: to}, wantSeq: c.forwardNextSeq}
		return Action{Kind: ActionQuery, Range: c.pending.rng}, nil
	}

	if !c.backwardDone {
		from := uint64(0)
		if c.backwardBlock > c.chunkSize {
			from = c.backwardBlock - c.chunkSize
		}
		to := c.backwardBlock
		if to > 0 {
			to--
		}
		c.pending = &pendingQuery{source: "backward", rng: BlockRange{From: from, To: to}}
		return Action{Kind: ActionQuery, Range: c.pending.rng}, nil
	}

	return Action{Kind: ActionSleep, Sleep: tipRefreshInterval}, nil
}

func (c *ForwardBackwardSequenceAwareCursor) Update(ctx context.Context, queried BlockRange, sequences []uint32) error {
	if c.pending == nil {
		return fmt.Errorf("contractsync: update called with no pending query")
	}
	pending := c.pending
	c.pending = nil

	sorted := append([]uint32(nil), sequences...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	switch pending.source {
	case "forward":
		v := classify(sorted, pending.wantSeq)
		switch v {
		case validityEmpty:
			c.forwardNextBlock = queried.To + 1
		case validityValid:
			c.forwardNextBlock = queried.To + 1
			c.forwardNextSeq = pending.wantSeq + uint32(len(sorted))
		case validityInvalid:
			c.findingMissing = true
			c.missingFromSeq = pending.wantSeq
			c.missingAnchor = queried.To
			c.missingWindowMult = 1
		}
	case "finding-missing":
		v := classify(sorted, pending.wantSeq)
		if v == validityValid {
			c.findingMissing = false
			c.forwardNextBlock = pending.rng.To + 1
			c.forwardNextSeq = pending.wantSeq + uint32(len(sorted))
		} else {
			c.missingWindowMult *= 2
		}
	case "backward":
		if queried.From == 0 {
			c.backwardDone = true
		} else {
			c.backwardBlock = queried.From
		}
	}
	return nil
}

// classify reports whether sorted sequence numbers are empty, a
// contiguous continuation of wantSeq, or contain a gap/out-of-order
// entry.
func classify(sorted []uint32, wantSeq uint32) validity {
	if len(sorted) == 0 {
		return validityEmpty
	}
	expect := wantSeq
	for _, s := range sorted {
		if s != expect {
			return validityInvalid
		}
		expect++
	}
	return validityValid
}
