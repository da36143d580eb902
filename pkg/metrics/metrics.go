// Package metrics exposes the pipeline's Prometheus instrumentation. One
// Metrics value is built at startup against a registry and shared by the
// orchestrator and the API layer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fathomsearch/fathom/pkg/models"
)

// Metrics bundles every collector the pipeline reports to.
type Metrics struct {
	QueriesTotal    *prometheus.CounterVec
	QueryDuration   *prometheus.HistogramVec
	TTFT            prometheus.Histogram
	SLAMisses       *prometheus.CounterVec
	PartialAnswers  prometheus.Counter
	ActiveQueries   prometheus.Gauge
	LaneLatency     *prometheus.HistogramVec
	LaneOutcomes    *prometheus.CounterVec
	FusedDocuments  prometheus.Histogram
	StreamEvents    *prometheus.CounterVec
	AuditWriteFails prometheus.Counter
}

// New builds and registers the collectors. Pass prometheus.DefaultRegisterer
// in production; tests use a fresh registry for isolation.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fathom_queries_total",
			Help: "Queries accepted, by classified mode.",
		}, []string{"mode"}),
		QueryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fathom_query_duration_seconds",
			Help:    "End-to-end query latency, by mode.",
			Buckets: []float64{0.25, 0.5, 1, 2, 3, 5, 7, 10, 15},
		}, []string{"mode"}),
		TTFT: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fathom_ttft_seconds",
			Help:    "Time to first streamed event.",
			Buckets: []float64{0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3},
		}),
		SLAMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fathom_sla_misses_total",
			Help: "Queries that missed their mode deadline, by mode.",
		}, []string{"mode"}),
		PartialAnswers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fathom_partial_answers_total",
			Help: "Answers produced with one or more failed or timed-out lanes.",
		}),
		ActiveQueries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fathom_active_queries",
			Help: "Queries currently in flight.",
		}),
		LaneLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fathom_lane_latency_seconds",
			Help:    "Per-lane execution latency.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3},
		}, []string{"lane"}),
		LaneOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fathom_lane_outcomes_total",
			Help: "Lane terminal statuses.",
		}, []string{"lane", "status"}),
		FusedDocuments: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fathom_fused_documents",
			Help:    "Fused list size after dedup.",
			Buckets: []float64{0, 1, 5, 10, 20, 50, 100},
		}),
		StreamEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fathom_stream_events_total",
			Help: "Stream envelope events emitted, by type.",
		}, []string{"type"}),
		AuditWriteFails: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fathom_audit_write_failures_total",
			Help: "Audit records that could not be persisted.",
		}),
	}
	reg.MustRegister(
		m.QueriesTotal, m.QueryDuration, m.TTFT, m.SLAMisses, m.PartialAnswers,
		m.ActiveQueries, m.LaneLatency, m.LaneOutcomes, m.FusedDocuments,
		m.StreamEvents, m.AuditWriteFails,
	)
	return m
}

// ObserveLane records one lane outcome.
func (m *Metrics) ObserveLane(result models.LaneResult) {
	m.LaneLatency.WithLabelValues(string(result.LaneID)).Observe(result.Latency.Seconds())
	m.LaneOutcomes.WithLabelValues(string(result.LaneID), string(result.Status)).Inc()
}

// ObserveQuery records the terminal accounting for one query.
func (m *Metrics) ObserveQuery(mode models.Mode, total, ttft time.Duration, underSLA, partial bool) {
	m.QueryDuration.WithLabelValues(string(mode)).Observe(total.Seconds())
	if ttft > 0 {
		m.TTFT.Observe(ttft.Seconds())
	}
	if !underSLA {
		m.SLAMisses.WithLabelValues(string(mode)).Inc()
	}
	if partial {
		m.PartialAnswers.Inc()
	}
}
