package submitter

import (
	"context"
	"time"
)

// PendingOperation is the tagged-variant-in-spirit interface §9 calls
// for in place of a trait-object hierarchy: today MessageOperation is the
// only implementation, but Kind() leaves room for a future operation
// kind without touching the submitter's loop.
type PendingOperation interface {
	Kind() string

	// Phase reports which state-machine step runs next.
	Phase() Phase
	SetPhase(Phase)

	// NextAttemptAfter is when this operation becomes eligible again;
	// the zero Time means immediately, and sorts first in the priority
	// queue by construction.
	NextAttemptAfter() time.Time
	SetNextAttemptAfter(time.Time)

	// SortKey breaks ties between operations with the same
	// NextAttemptAfter — the spec orders PendingMessage ties by
	// origin-nonce ascending.
	SortKey() uint32

	Prepare(ctx context.Context) (Outcome, error)
	Submit(ctx context.Context) (Outcome, error)
	Validate(ctx context.Context) (Outcome, error)

	// OnComplete is called once, right before the operation is dropped
	// from the queue for good (delivered, or given up on).
	OnComplete()
}
