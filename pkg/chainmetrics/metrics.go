// Package chainmetrics defines the metrics surface every relayer
// component is handed as an injected dependency, never a package
// global (per spec §9's "no hidden global state"). Prometheus wiring
// itself — the HTTP handler, scrape endpoint, registry lifecycle — is
// explicitly out of scope (§1); this package only fixes the interface
// components call and ships two implementations: Noop and the
// Prometheus-backed Prom.
package chainmetrics

import "time"

// Metrics is the narrow set of observations the relayer's components
// make. A component that doesn't care about metrics can be handed Noop.
type Metrics interface {
	// IncMessagesProcessed counts one message the processor has emitted
	// to a destination queue for the given origin->destination pair.
	IncMessagesProcessed(origin, destination uint32)

	// IncMessagesSkipped counts one message the processor filtered out,
	// tagged by the reason (whitelist, blacklist, self, unknown-dest,
	// explicit-skip).
	IncMessagesSkipped(origin uint32, reason string)

	// ObserveSubmissionLatency records, for a destination, how long an
	// operation spent from its creation until it left the submitter's
	// queue for good, delivered or dropped.
	ObserveSubmissionLatency(destination uint32, d time.Duration)

	// IncDelivered counts one message confirmed delivered to destination.
	IncDelivered(destination uint32)

	// IncDropped counts one operation dropped without delivery, tagged
	// by the reason (the submitter reports "do-not-retry").
	IncDropped(destination uint32, reason string)

	// SetQueueLength reports a destination submitter's current queue
	// depth, for backpressure visibility.
	SetQueueLength(destination uint32, length int)

	// IncCriticalFailure counts an invariant breach that aborted a task,
	// tagged by the component that raised it.
	IncCriticalFailure(component string)
}

// Noop implements Metrics by discarding every observation; it is the
// default for tests and for callers that have not wired a collector.
type Noop struct{}

func (Noop) IncMessagesProcessed(origin, destination uint32)     {}
func (Noop) IncMessagesSkipped(origin uint32, reason string)      {}
func (Noop) ObserveSubmissionLatency(destination uint32, d time.Duration) {}
func (Noop) IncDelivered(destination uint32)                      {}
func (Noop) IncDropped(destination uint32, reason string)         {}
func (Noop) SetQueueLength(destination uint32, length int)        {}
func (Noop) IncCriticalFailure(component string)                  {}
