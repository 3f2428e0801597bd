package submitter

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nexusbridge/relayer/pkg/chainmetrics"
	"github.com/nexusbridge/relayer/pkg/gaspolicy"
	"github.com/nexusbridge/relayer/pkg/logstore"
	"github.com/nexusbridge/relayer/pkg/processor"
)

// maxValidateChecks bounds how many times Validate re-reads the
// destination's delivered-set before giving up on the submitted
// transaction and falling back to Prepare. Below this, a not-yet-final
// transaction is indistinguishable from a lost one, so Validate treats
// every miss as NotReady until the budget is spent.
const maxValidateChecks = 3

// MessageOperation is the sole PendingOperation variant today: a
// message routed to one destination, carrying the prepare/submit/
// validate cycle's working state (built metadata, approved gas limit,
// submitted tx hash) alongside the processor.PendingMessage it wraps.
type MessageOperation struct {
	msg     *processor.PendingMessage
	store   *logstore.Store
	clock   func() time.Time
	metrics chainmetrics.Metrics

	validateDelay time.Duration
	createdAt     time.Time

	phase            Phase
	nextAttemptAfter time.Time
	validateChecks   int

	metadata []byte
	gasLimit uint64

	logger *log.Logger
}

// NewMessageOperation wraps msg as a PendingOperation, starting at the
// Prepare phase with a retry count seeded from store (so a restart
// reconstructs the equivalent backoff, per scenario S5). metrics may be
// nil, in which case observations are discarded.
func NewMessageOperation(msg *processor.PendingMessage, store *logstore.Store, validateDelay time.Duration, clock func() time.Time, metrics chainmetrics.Metrics) *MessageOperation {
	if clock == nil {
		clock = time.Now
	}
	if metrics == nil {
		metrics = chainmetrics.Noop{}
	}
	op := &MessageOperation{
		msg:           msg,
		store:         store,
		clock:         clock,
		metrics:       metrics,
		validateDelay: validateDelay,
		createdAt:     clock(),
		phase:         PhasePrepare,
		logger:        log.New(log.Writer(), fmt.Sprintf("[submitter:op origin=%d dest=%d nonce=%d] ", msg.Message.Origin, msg.Message.Destination, msg.Message.Nonce), log.LstdFlags),
	}
	op.nextAttemptAfter = clock().Add(CalculateBackoff(msg.RetryCount))
	return op
}

func (op *MessageOperation) Kind() string                        { return "message" }
func (op *MessageOperation) Phase() Phase                        { return op.phase }
func (op *MessageOperation) SetPhase(p Phase)                     { op.phase = p }
func (op *MessageOperation) NextAttemptAfter() time.Time          { return op.nextAttemptAfter }
func (op *MessageOperation) SetNextAttemptAfter(t time.Time)      { op.nextAttemptAfter = t }
func (op *MessageOperation) SortKey() uint32                      { return op.msg.Message.Nonce }
func (op *MessageOperation) MessageID() [32]byte                  { return op.msg.MessageID }
func (op *MessageOperation) Message() *processor.PendingMessage   { return op.msg }

// backoffFor computes and persists the next backoff after a retryable
// failure, incrementing the message's retry count in the log store so
// the schedule survives a restart.
func (op *MessageOperation) backoffFor(reason string) error {
	op.msg.RetryCount++
	wait := CalculateBackoff(op.msg.RetryCount)
	op.nextAttemptAfter = op.clock().Add(wait)
	state, err := op.store.LoadDeliveryState(op.msg.MessageID)
	if err != nil {
		return fmt.Errorf("submitter: load delivery state: %w", err)
	}
	state.Status = logstore.DeliveryPending
	state.Attempts = op.msg.RetryCount
	state.NextAttempt = op.nextAttemptAfter
	state.LastError = reason
	if err := op.store.SaveDeliveryState(op.msg.MessageID, state); err != nil {
		return fmt.Errorf("submitter: save delivery state: %w", err)
	}
	return nil
}

// OnComplete records the full prepare-to-completion latency when the
// operation leaves the queue for good, successfully delivered or not.
func (op *MessageOperation) OnComplete() {
	op.metrics.ObserveSubmissionLatency(op.msg.Message.Destination, op.clock().Sub(op.createdAt))
}

// Prepare implements §4.I's idempotent prepare step: delivered check,
// gas-payment approval, metadata assembly, and a final gas-estimate
// check against both the ISM's approved cap and any configured
// transaction gas limit.
func (op *MessageOperation) Prepare(ctx context.Context) (Outcome, error) {
	mctx := op.msg.Context

	delivered, err := mctx.Mailbox.Delivered(ctx, op.msg.MessageID)
	if err != nil {
		return OutcomeRetry, op.backoffFor(fmt.Sprintf("prepare: delivered check: %v", err))
	}
	if delivered {
		return OutcomeAlreadyDelivered, nil
	}

	prelimGas, err := mctx.Mailbox.EstimateGas(ctx, op.msg.Message, nil)
	if err != nil {
		op.logger.Printf("preliminary gas estimate failed, will retry: %v", err)
		return OutcomeNotReady, op.backoffFor("prepare: preliminary gas estimate failed")
	}

	approvedLimit, payable, err := mctx.GasEnforcer.MessageMeetsGasPaymentRequirement(ctx, op.msg.Message, gaspolicy.TxCostEstimate{GasLimit: prelimGas})
	if err != nil {
		return OutcomeRetry, op.backoffFor(fmt.Sprintf("prepare: gas enforcer: %v", err))
	}
	if !payable {
		return OutcomeNotReady, op.backoffFor("prepare: payment requirement not met")
	}

	ismAddr, err := mctx.Mailbox.RecipientIsmAddress(ctx, op.msg.Message.Recipient)
	if err != nil {
		return OutcomeRetry, op.backoffFor(fmt.Sprintf("prepare: recipient ism: %v", err))
	}

	metadata, ok, err := mctx.MetadataBuilder.Build(ctx, op.msg.Message, ismAddr)
	if err != nil {
		return OutcomeRetry, op.backoffFor(fmt.Sprintf("prepare: metadata build: %v", err))
	}
	if !ok {
		return OutcomeNotReady, op.backoffFor("prepare: metadata not yet available")
	}

	finalGas, err := mctx.Mailbox.EstimateGas(ctx, op.msg.Message, metadata)
	if err != nil {
		return OutcomeNotReady, op.backoffFor("prepare: final gas estimate failed")
	}
	if finalGas > approvedLimit {
		return OutcomeNotReady, op.backoffFor("prepare: estimate exceeds ISM-approved gas cap")
	}
	if mctx.TransactionGasLimit != nil && finalGas > *mctx.TransactionGasLimit {
		return OutcomeNotReady, op.backoffFor("prepare: estimate exceeds configured transaction gas limit")
	}

	op.metadata = metadata
	op.gasLimit = finalGas
	return OutcomeReady, nil
}

// Submit calls the destination mailbox's process entrypoint and
// classifies the outcome by receipt status.
func (op *MessageOperation) Submit(ctx context.Context) (Outcome, error) {
	mctx := op.msg.Context

	receipt, err := mctx.Mailbox.Process(ctx, op.msg.Message, op.metadata)
	if err != nil {
		return OutcomeRetry, op.backoffFor(fmt.Sprintf("submit: %v", err))
	}
	if !receipt.Success {
		return OutcomeRetry, op.backoffFor(fmt.Sprintf("submit: reverted, tx %x", receipt.TxHash))
	}

	state, loadErr := op.store.LoadDeliveryState(op.msg.MessageID)
	if loadErr != nil {
		return 0, fmt.Errorf("submitter: load delivery state after submit: %w", loadErr)
	}
	state.Status = logstore.DeliverySubmitted
	state.LastTxHash = receipt.TxHash
	if err := op.store.SaveDeliveryState(op.msg.MessageID, state); err != nil {
		return 0, fmt.Errorf("submitter: save delivery state after submit: %w", err)
	}

	op.nextAttemptAfter = op.clock().Add(op.validateDelay)
	op.validateChecks = 0
	return OutcomeSuccess, nil
}

// Validate re-reads the destination's delivered-set. A miss within
// maxValidateChecks attempts is treated as "not yet final" rather than
// lost, since finality takes several block confirmations to settle.
func (op *MessageOperation) Validate(ctx context.Context) (Outcome, error) {
	mctx := op.msg.Context

	delivered, err := mctx.Mailbox.Delivered(ctx, op.msg.MessageID)
	if err != nil {
		return OutcomeRetry, op.backoffFor(fmt.Sprintf("validate: delivered check: %v", err))
	}
	if delivered {
		state, loadErr := op.store.LoadDeliveryState(op.msg.MessageID)
		if loadErr != nil {
			return 0, fmt.Errorf("submitter: load delivery state on confirm: %w", loadErr)
		}
		state.Status = logstore.DeliveryConfirmed
		if err := op.store.SaveDeliveryState(op.msg.MessageID, state); err != nil {
			return 0, fmt.Errorf("submitter: save delivery state on confirm: %w", err)
		}
		if err := op.store.MarkProcessed(op.msg.Message.Origin, op.msg.Message.Nonce); err != nil {
			return 0, fmt.Errorf("submitter: mark processed on confirm: %w", err)
		}
		return OutcomeValid, nil
	}

	op.validateChecks++
	if op.validateChecks >= maxValidateChecks {
		op.validateChecks = 0
		op.logger.Printf("submitted tx not confirmed after %d checks, re-preparing", maxValidateChecks)
		state, loadErr := op.store.LoadDeliveryState(op.msg.MessageID)
		if loadErr != nil {
			return 0, fmt.Errorf("submitter: load delivery state on invalid: %w", loadErr)
		}
		state.Status = logstore.DeliveryPending
		if err := op.store.SaveDeliveryState(op.msg.MessageID, state); err != nil {
			return 0, fmt.Errorf("submitter: save delivery state on invalid: %w", err)
		}
		op.nextAttemptAfter = op.clock()
		return OutcomeInvalid, nil
	}
	op.nextAttemptAfter = op.clock().Add(op.validateDelay)
	return OutcomeNotReady, nil
}
