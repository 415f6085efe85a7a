// Package metrics exposes Prometheus instrumentation for the replay
// pipeline: throughput, consistency accuracy, and worker failures.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ReplayMetrics is the registry of counters/gauges for one replay run.
type ReplayMetrics struct {
	registry *prometheus.Registry

	TicksReplayed     *prometheus.CounterVec
	RowsWritten       *prometheus.CounterVec
	ConsistencyRatio  *prometheus.GaugeVec
	WorkerFailures    *prometheus.CounterVec
	DayDuration       *prometheus.HistogramVec
	ConsistencyChecks *prometheus.CounterVec
}

// New builds a ReplayMetrics with all series registered against a fresh
// registry.
func New() *ReplayMetrics {
	m := &ReplayMetrics{registry: prometheus.NewRegistry()}

	m.TicksReplayed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replay_ticks_total",
		Help: "Grid ticks replayed per instrument.",
	}, []string{"instrument"})

	m.RowsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replay_rows_written_total",
		Help: "Output CSV rows written per instrument.",
	}, []string{"instrument"})

	m.ConsistencyRatio = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "replay_consistency_ratio",
		Help: "Daily ConsistencyChecker accuracy per instrument.",
	}, []string{"instrument", "date"})

	m.WorkerFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replay_worker_failures_total",
		Help: "ReplayWorker failures per instrument.",
	}, []string{"instrument"})

	m.DayDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "replay_day_duration_seconds",
		Help:    "Wall-clock time to replay one day across all instruments.",
		Buckets: prometheus.DefBuckets,
	}, []string{"date"})

	m.ConsistencyChecks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "replay_consistency_checks_total",
		Help: "ConsistencyChecker invocations per instrument, by outcome.",
	}, []string{"instrument", "outcome"})

	m.registry.MustRegister(m.TicksReplayed, m.RowsWritten, m.ConsistencyRatio, m.WorkerFailures, m.DayDuration, m.ConsistencyChecks)
	return m
}

// Registry returns the underlying prometheus.Registry, for wiring an
// /metrics HTTP handler.
func (m *ReplayMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordDayResult records one instrument's daily outcome.
func (m *ReplayMetrics) RecordDayResult(instrument, date string, rows int, accuracy float64, consistent, total int, failed bool) {
	if failed {
		m.WorkerFailures.WithLabelValues(instrument).Inc()
		return
	}
	m.RowsWritten.WithLabelValues(instrument).Add(float64(rows))
	m.TicksReplayed.WithLabelValues(instrument).Add(float64(rows))
	if total > 0 {
		m.ConsistencyRatio.WithLabelValues(instrument, date).Set(accuracy)
		m.ConsistencyChecks.WithLabelValues(instrument, "consistent").Add(float64(consistent))
		m.ConsistencyChecks.WithLabelValues(instrument, "inconsistent").Add(float64(total - consistent))
	}
}

var (
	defaultOnce sync.Once
	defaultM    *ReplayMetrics
)

// Default returns a process-wide singleton, created on first use.
func Default() *ReplayMetrics {
	defaultOnce.Do(func() { defaultM = New() })
	return defaultM
}
