// Package submitter drives, one instance per destination domain, the
// prepare/submit/validate state machine spec §4.I describes over the
// pending operations a message processor hands it: a priority queue
// ordered by next-eligible-attempt time, a piecewise backoff schedule
// whose retry count is persisted by message ID, and idempotent drops once a destination mailbox
// reports a message already delivered. This generalizes the teacher's
// timer/channel-driven scheduler in pkg/batch/scheduler.go and the
// queue-draining loop in pkg/batch/processor.go from a single fixed
// batch-anchoring workflow to an arbitrary PendingOperation, so a
// future operation kind besides PendingMessage only needs a new
// implementation of the interface, not a new loop.
package submitter

// Outcome is the closed set of results every PendingOperation phase can
// return, per §4.I's state transition table. Not every outcome is valid
// from every phase (e.g. Valid only comes out of Validate); the
// Submitter interprets each phase's outcome independently.
type Outcome int

const (
	// OutcomeReady means Prepare succeeded; the submitter immediately
	// advances to Submit within the same tick ("fall through to Submit").
	OutcomeReady Outcome = iota
	// OutcomeNotReady means the operation cannot proceed yet (quorum
	// missing, payment short, estimate over cap); back off and retry
	// Prepare.
	OutcomeNotReady
	// OutcomeAlreadyDelivered means Prepare's idempotence check found
	// the message already delivered; drop without submitting.
	OutcomeAlreadyDelivered
	// OutcomeSuccess means Submit's transaction was accepted; advance to
	// Validate after a short delay.
	OutcomeSuccess
	// OutcomeValid means Validate confirmed delivery; mark processed and
	// drop.
	OutcomeValid
	// OutcomeInvalid means Validate could not confirm delivery after
	// enough attempts that the submitted transaction is presumed lost;
	// clear submitted state and re-enqueue for Prepare.
	OutcomeInvalid
	// OutcomeRetry means a transient failure occurred; back off and
	// retry the same phase.
	OutcomeRetry
	// OutcomeDoNotRetry means the operation failed in a way retrying
	// cannot fix (self-origin, permanently reverted); drop it.
	OutcomeDoNotRetry
	// OutcomeCriticalFailure means an unrecoverable invariant breach was
	// detected; the owning task must abort.
	OutcomeCriticalFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeReady:
		return "ready"
	case OutcomeNotReady:
		return "not-ready"
	case OutcomeAlreadyDelivered:
		return "already-delivered"
	case OutcomeSuccess:
		return "success"
	case OutcomeValid:
		return "valid"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeRetry:
		return "retry"
	case OutcomeDoNotRetry:
		return "do-not-retry"
	case OutcomeCriticalFailure:
		return "critical-failure"
	default:
		return "unknown"
	}
}

// Phase identifies which state-machine step a PendingOperation is
// currently waiting to run.
type Phase int

const (
	PhasePrepare Phase = iota
	PhaseSubmit
	PhaseValidate
)

func (p Phase) String() string {
	switch p {
	case PhasePrepare:
		return "prepare"
	case PhaseSubmit:
		return "submit"
	case PhaseValidate:
		return "validate"
	default:
		return "unknown"
	}
}
