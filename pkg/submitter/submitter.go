package submitter

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/nexusbridge/relayer/pkg/chainmetrics"
	"github.com/nexusbridge/relayer/pkg/logstore"
	"github.com/nexusbridge/relayer/pkg/processor"
	"github.com/nexusbridge/relayer/pkg/relayererrors"
)

// defaultValidateDelay is how long Submit waits before its first
// Validate check, standing in for the spec's chain-specific
// finality_blocks count converted to wall-clock time (the concrete
// conversion is a chain-client concern, out of scope per §1).
const defaultValidateDelay = 5 * time.Second

// Config collects a Submitter's construction parameters.
type Config struct {
	Destination   uint32
	Incoming      *processor.Queue
	Store         *logstore.Store
	Metrics       chainmetrics.Metrics
	ValidateDelay time.Duration
	// Clock is overridable for deterministic tests; defaults to time.Now.
	Clock func() time.Time
}

// Submitter runs the single-threaded-per-destination event loop from
// §4.I: drain newly arrived messages into a priority queue, pop the
// earliest-eligible operation, and drive it through prepare/submit/
// validate until it is delivered or permanently dropped.
type Submitter struct {
	destination   uint32
	incoming      *processor.Queue
	store         *logstore.Store
	metrics       chainmetrics.Metrics
	validateDelay time.Duration
	clock         func() time.Time
	logger        *log.Logger

	queue *priorityQueue
}

// New builds a Submitter from cfg.
func New(cfg Config) *Submitter {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = chainmetrics.Noop{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	validateDelay := cfg.ValidateDelay
	if validateDelay <= 0 {
		validateDelay = defaultValidateDelay
	}
	return &Submitter{
		destination:   cfg.Destination,
		incoming:      cfg.Incoming,
		store:         cfg.Store,
		metrics:       metrics,
		validateDelay: validateDelay,
		clock:         clock,
		logger:        log.New(log.Writer(), fmt.Sprintf("[submitter:%d] ", cfg.Destination), log.LstdFlags),
		queue:         newPriorityQueue(),
	}
}

// QueueLen reports the submitter's current pending-operation count.
func (s *Submitter) QueueLen() int {
	return s.queue.Len()
}

// Run drives the event loop until ctx is cancelled or a critical
// failure surfaces, which it returns so agent assembly can cancel
// sibling tasks.
func (s *Submitter) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		s.drain()
		s.metrics.SetQueueLength(s.destination, s.queue.Len())

		if s.queue.Len() == 0 {
			select {
			case <-s.incoming.Notify():
				continue
			case <-ctx.Done():
				return nil
			}
		}

		op, ok := s.queue.popReady()
		if !ok {
			continue
		}

		now := s.clock()
		if wait := op.NextAttemptAfter().Sub(now); wait > 0 {
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil
			}
			s.queue.push(op)
			continue
		}

		if err := s.step(ctx, op); err != nil {
			if relayererrors.IsCritical(err) {
				s.metrics.IncCriticalFailure("submitter")
				return err
			}
			s.logger.Printf("operation %s: %v", op.Kind(), err)
		}
	}
}

// drain moves every message currently buffered in the incoming queue
// into the priority queue, without blocking.
func (s *Submitter) drain() {
	for {
		msg, ok := s.incoming.TryReceive()
		if !ok {
			return
		}
		op := NewMessageOperation(msg, s.store, s.validateDelay, s.clock, s.metrics)
		s.queue.push(op)
	}
}

// step runs exactly one phase of op's state machine, then either
// drops it, re-enqueues it, or — on a successful Prepare — falls
// through into Submit within the same tick, matching §4.I's
// "Ready -> fall through to Submit" transition.
func (s *Submitter) step(ctx context.Context, op PendingOperation) error {
	switch op.Phase() {
	case PhasePrepare:
		outcome, err := op.Prepare(ctx)
		if err != nil {
			return err
		}
		switch outcome {
		case OutcomeAlreadyDelivered:
			s.metrics.IncDelivered(s.destination)
			op.OnComplete()
			return nil
		case OutcomeReady:
			op.SetPhase(PhaseSubmit)
			return s.step(ctx, op)
		case OutcomeDoNotRetry:
			s.metrics.IncDropped(s.destination, "do-not-retry")
			op.OnComplete()
			return nil
		case OutcomeCriticalFailure:
			return relayererrors.NewCritical("submitter", fmt.Errorf("prepare critical failure for %s", op.Kind()))
		default: // NotReady, Retry
			s.queue.push(op)
			return nil
		}

	case PhaseSubmit:
		outcome, err := op.Submit(ctx)
		if err != nil {
			return err
		}
		switch outcome {
		case OutcomeSuccess:
			op.SetPhase(PhaseValidate)
			s.queue.push(op)
			return nil
		case OutcomeDoNotRetry:
			s.metrics.IncDropped(s.destination, "do-not-retry")
			op.OnComplete()
			return nil
		case OutcomeCriticalFailure:
			return relayererrors.NewCritical("submitter", fmt.Errorf("submit critical failure for %s", op.Kind()))
		default: // Retry
			s.queue.push(op)
			return nil
		}

	case PhaseValidate:
		outcome, err := op.Validate(ctx)
		if err != nil {
			return err
		}
		switch outcome {
		case OutcomeValid:
			s.metrics.IncDelivered(s.destination)
			op.OnComplete()
			return nil
		case OutcomeInvalid:
			op.SetPhase(PhasePrepare)
			s.queue.push(op)
			return nil
		case OutcomeCriticalFailure:
			return relayererrors.NewCritical("submitter", fmt.Errorf("validate critical failure for %s", op.Kind()))
		default: // Retry, NotReady
			s.queue.push(op)
			return nil
		}

	default:
		return fmt.Errorf("submitter: unknown phase %v", op.Phase())
	}
}
