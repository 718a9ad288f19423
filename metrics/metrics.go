// Package metrics wraps prometheus.Registerer for the intake pipeline,
// following the teacher's metrics/metrics.go: a thin struct holding the
// registerer, plus per-component collector sets registered once at
// platform construction.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics provides the intake pipeline's Prometheus collectors.
type Metrics struct {
	Registry prometheus.Registerer

	EventsProcessed *prometheus.CounterVec
	EventsDropped   *prometheus.CounterVec
	QueueDepth      *prometheus.GaugeVec
	StageLatency    *prometheus.HistogramVec

	NonAncientWindowMin     prometheus.Gauge
	LatestConsensusRound    prometheus.Gauge
	LatestDurableSequence   prometheus.Gauge
	LatestStreamSequence    prometheus.Gauge
}

// New creates and registers the pipeline's collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Registry: reg,
		EventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consensus",
			Subsystem: "intake",
			Name:      "events_processed_total",
			Help:      "Events emitted downstream by each stage.",
		}, []string{"stage"}),
		EventsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consensus",
			Subsystem: "intake",
			Name:      "events_dropped_total",
			Help:      "Events dropped by each stage, by reason.",
		}, []string{"stage", "reason"}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "consensus",
			Subsystem: "intake",
			Name:      "queue_depth",
			Help:      "Current input queue depth for each stage.",
		}, []string{"stage"}),
		StageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "consensus",
			Subsystem: "intake",
			Name:      "stage_latency_seconds",
			Help:      "Per-item handler latency for each stage.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"stage"}),
		NonAncientWindowMin: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consensus",
			Subsystem: "window",
			Name:      "min_non_ancient",
			Help:      "Current non-ancient window minimum value.",
		}),
		LatestConsensusRound: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consensus",
			Subsystem: "round",
			Name:      "latest",
			Help:      "Most recently emitted consensus round number.",
		}),
		LatestDurableSequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consensus",
			Subsystem: "pces",
			Name:      "latest_durable_sequence",
			Help:      "Highest PCES stream sequence number known durable.",
		}),
		LatestStreamSequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "consensus",
			Subsystem: "pces",
			Name:      "latest_stream_sequence",
			Help:      "Highest PCES stream sequence number assigned.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.EventsProcessed, m.EventsDropped, m.QueueDepth, m.StageLatency,
		m.NonAncientWindowMin, m.LatestConsensusRound,
		m.LatestDurableSequence, m.LatestStreamSequence,
	} {
		_ = m.Registry.Register(c)
	}

	return m
}

// NewForTesting returns a Metrics backed by a fresh, private registry —
// safe to construct repeatedly within a test binary without
// "duplicate metrics collector registration" panics.
func NewForTesting() *Metrics {
	return New(prometheus.NewRegistry())
}
