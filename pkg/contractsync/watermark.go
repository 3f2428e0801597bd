package contractsync

import (
	"context"
	"fmt"
	"time"
)

// tipRefreshInterval is how often the watermark cursor re-checks the
// finalized chain tip once it has caught up.
const tipRefreshInterval = 30 * time.Second

// TipFetcher returns the chain's current finalized block number.
type TipFetcher func(ctx context.Context) (uint64, error)

// WatermarkPersister persists the conservative high watermark after
// every successful update, so a restart resumes slightly behind rather
// than re-trusting an un-flushed in-memory cursor.
type WatermarkPersister func(watermark uint64) error

// RateLimitedWatermarkCursor drives unordered, un-sequenced event
// streams (gas payments): it advances a simple block watermark in
// fixed-size chunks and re-polls the tip at a bounded rate so several
// cursors can share one rate-limited RPC budget.
type RateLimitedWatermarkCursor struct {
	chunkSize uint64
	startBlock uint64
	nextBlock  uint64
	tip        uint64

	lastTipUpdate time.Time
	clock         Clock
	fetchTip      TipFetcher
	persist       WatermarkPersister
}

// NewRateLimitedWatermarkCursor seeds a cursor starting at startBlock.
func NewRateLimitedWatermarkCursor(
	chunkSize, startBlock uint64,
	fetchTip TipFetcher,
	persist WatermarkPersister,
) *RateLimitedWatermarkCursor {
	return &RateLimitedWatermarkCursor{
		chunkSize:  chunkSize,
		startBlock: startBlock,
		nextBlock:  startBlock,
		clock:      time.Now,
		fetchTip:   fetchTip,
		persist:    persist,
	}
}

func (c *RateLimitedWatermarkCursor) refreshTip(ctx context.Context) error {
	tip, err := c.fetchTip(ctx)
	if err != nil {
		return fmt.Errorf("contractsync: refresh tip: %w", err)
	}
	c.tip = tip
	c.lastTipUpdate = c.clock()
	return nil
}

func (c *RateLimitedWatermarkCursor) NextAction(ctx context.Context) (Action, error) {
	if c.lastTipUpdate.IsZero() {
		if err := c.refreshTip(ctx); err != nil {
			return Action{}, err
		}
	}

	if c.nextBlock < c.tip {
		end := c.nextBlock + c.chunkSize
		if end > c.tip {
			end = c.tip
		}
		return Action{Kind: ActionQuery, Range: BlockRange{From: c.nextBlock, To: end}}, nil
	}

	elapsed := c.clock().Sub(c.lastTipUpdate)
	if elapsed < tipRefreshInterval {
		return Action{Kind: ActionSleep, Sleep: tipRefreshInterval - elapsed}, nil
	}

	if err := c.refreshTip(ctx); err != nil {
		return Action{}, err
	}
	if c.nextBlock >= c.tip {
		return Action{Kind: ActionSleep, Sleep: tipRefreshInterval}, nil
	}
	end := c.tip
	if end > c.nextBlock+c.chunkSize {
		end = c.nextBlock + c.chunkSize
	}
	return Action{Kind: ActionQuery, Range: BlockRange{From: c.nextBlock, To: end}}, nil
}

func (c *RateLimitedWatermarkCursor) Update(ctx context.Context, queried BlockRange, sequences []uint32) error {
	watermark := c.startBlock
	if c.nextBlock > c.chunkSize && c.nextBlock-c.chunkSize > watermark {
		watermark = c.nextBlock - c.chunkSize
	}
	if c.persist != nil {
		if err := c.persist(watermark); err != nil {
			return fmt.Errorf("contractsync: persist watermark: %w", err)
		}
	}

	c.nextBlock = queried.To + 1
	return c.refreshTip(ctx)
}
