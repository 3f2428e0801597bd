package chainmetrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Prom is a prometheus/client_golang-backed Metrics implementation,
// grounded on the collector-variable style of
// runner-app/internal/metrics/metrics.go in the retrieved corpus
// (one CounterVec/HistogramVec/GaugeVec per observation, labeled
// rather than one series per domain) but registered against a private
// *prometheus.Registry passed in by the caller instead of the global
// DefaultRegisterer, so that running several relayer instances in one
// process never collides on metric names.
type Prom struct {
	messagesProcessed *prometheus.CounterVec
	messagesSkipped   *prometheus.CounterVec
	submissionLatency *prometheus.HistogramVec
	delivered         *prometheus.CounterVec
	dropped           *prometheus.CounterVec
	queueLength       *prometheus.GaugeVec
	criticalFailures  *prometheus.CounterVec
}

// NewProm registers a fresh set of collectors against reg and returns
// the Metrics implementation backed by them.
func NewProm(reg prometheus.Registerer) (*Prom, error) {
	p := &Prom{
		messagesProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relayer_messages_processed_total",
			Help: "Messages the processor has emitted to a destination queue, by origin and destination domain.",
		}, []string{"origin", "destination"}),
		messagesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relayer_messages_skipped_total",
			Help: "Messages filtered out by the processor, by origin domain and skip reason.",
		}, []string{"origin", "reason"}),
		submissionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relayer_submission_latency_seconds",
			Help:    "Time from operation creation until it leaves the submitter queue, delivered or dropped, by destination domain.",
			Buckets: prometheus.DefBuckets,
		}, []string{"destination"}),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relayer_messages_delivered_total",
			Help: "Messages confirmed delivered, by destination domain.",
		}, []string{"destination"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relayer_operations_dropped_total",
			Help: "Operations dropped without delivery, by destination domain and reason.",
		}, []string{"destination", "reason"}),
		queueLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relayer_submitter_queue_length",
			Help: "Current pending-operation queue depth, by destination domain.",
		}, []string{"destination"}),
		criticalFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relayer_critical_failures_total",
			Help: "Critical failures that aborted a task, by component.",
		}, []string{"component"}),
	}

	collectors := []prometheus.Collector{
		p.messagesProcessed, p.messagesSkipped, p.submissionLatency,
		p.delivered, p.dropped, p.queueLength, p.criticalFailures,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("chainmetrics: register collector: %w", err)
		}
	}
	return p, nil
}

func domainLabel(d uint32) string { return fmt.Sprintf("%d", d) }

func (p *Prom) IncMessagesProcessed(origin, destination uint32) {
	p.messagesProcessed.WithLabelValues(domainLabel(origin), domainLabel(destination)).Inc()
}

func (p *Prom) IncMessagesSkipped(origin uint32, reason string) {
	p.messagesSkipped.WithLabelValues(domainLabel(origin), reason).Inc()
}

func (p *Prom) ObserveSubmissionLatency(destination uint32, d time.Duration) {
	p.submissionLatency.WithLabelValues(domainLabel(destination)).Observe(d.Seconds())
}

func (p *Prom) IncDelivered(destination uint32) {
	p.delivered.WithLabelValues(domainLabel(destination)).Inc()
}

func (p *Prom) IncDropped(destination uint32, reason string) {
	p.dropped.WithLabelValues(domainLabel(destination), reason).Inc()
}

func (p *Prom) SetQueueLength(destination uint32, length int) {
	p.queueLength.WithLabelValues(domainLabel(destination)).Set(float64(length))
}

func (p *Prom) IncCriticalFailure(component string) {
	p.criticalFailures.WithLabelValues(component).Inc()
}
