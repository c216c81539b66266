// Package gcmetrics exposes Prometheus instrumentation for a running
// nonmoving.Collector: queue depth, URS flush counts, live words marked
// and flush latency, per SPEC_FULL.md's ambient-stack section.
package gcmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collector vectors registered against one
// prometheus.Registerer. Construct once per process with NewMetrics and
// pass down to the call sites in cmd/marksim (or any other embedder)
// that drive a nonmoving.Collector.
type Metrics struct {
	MarkQueueDepth   prometheus.Gauge
	URSFlushTotal     prometheus.Counter
	URSFlushBytes     prometheus.Counter
	MarkedWordsTotal  prometheus.Counter
	FlushDuration     prometheus.Histogram
	MarkCycleDuration prometheus.Histogram
	EpochGauge        prometheus.Gauge
	StaticClaimsTotal prometheus.Counter
	StackContention   prometheus.Counter
}

// NewMetrics constructs and registers every collector gauge/counter
// against reg. Passing prometheus.NewRegistry() (rather than the global
// DefaultRegisterer) keeps repeated test construction from panicking on
// duplicate registration, matching the pattern the retrieved pack's
// aistore/grafana-agent manifests use for per-component registries.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MarkQueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nonmoving",
			Subsystem: "mark",
			Name:      "queue_depth",
			Help:      "Number of entries currently buffered in the collector's own mark queue.",
		}),
		URSFlushTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nonmoving",
			Subsystem: "urs",
			Name:      "flush_total",
			Help:      "Number of worker update-remembered-set flushes performed.",
		}),
		URSFlushBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nonmoving",
			Subsystem: "urs",
			Name:      "flush_entries_total",
			Help:      "Total mark queue entries transferred from worker URS blocks to the global list.",
		}),
		MarkedWordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nonmoving",
			Subsystem: "mark",
			Name:      "live_words_total",
			Help:      "Cumulative live words credited to segment mark cells.",
		}),
		FlushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nonmoving",
			Subsystem: "sync",
			Name:      "flush_seconds",
			Help:      "Wall-clock time spent in one begin_flush/finish_flush round.",
			Buckets:   prometheus.DefBuckets,
		}),
		MarkCycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nonmoving",
			Subsystem: "mark",
			Name:      "cycle_seconds",
			Help:      "Wall-clock time spent draining the mark queue to empty, per pass.",
			Buckets:   prometheus.DefBuckets,
		}),
		EpochGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "nonmoving",
			Subsystem: "mark",
			Name:      "epoch",
			Help:      "Current mark epoch.",
		}),
		StaticClaimsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nonmoving",
			Subsystem: "mark",
			Name:      "static_claims_total",
			Help:      "Number of winning CAS claims on static closure link fields.",
		}),
		StackContention: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "nonmoving",
			Subsystem: "mark",
			Name:      "stack_claim_contended_total",
			Help:      "Number of PushStack calls that lost the stack-marking claim race.",
		}),
	}
	reg.MustRegister(
		m.MarkQueueDepth,
		m.URSFlushTotal,
		m.URSFlushBytes,
		m.MarkedWordsTotal,
		m.FlushDuration,
		m.MarkCycleDuration,
		m.EpochGauge,
		m.StaticClaimsTotal,
		m.StackContention,
	)
	return m
}
