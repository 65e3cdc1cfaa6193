// Package metrics holds the Prometheus counters for ingestion and enrichment
// runs. A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a set of counters registered on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	linesRead      *prometheus.CounterVec
	rowsInserted   *prometheus.CounterVec
	linesSkipped   *prometheus.CounterVec
	keysResolved   *prometheus.CounterVec
	batchesFailed  *prometheus.CounterVec
	cacheDecisions *prometheus.CounterVec
}

// New creates and registers the counters.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		linesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pathwaydb", Subsystem: "ingest", Name: "lines_total",
			Help: "Feed lines read, by dataset.",
		}, []string{"dataset"}),
		rowsInserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pathwaydb", Subsystem: "ingest", Name: "rows_inserted_total",
			Help: "Annotation rows inserted, by dataset.",
		}, []string{"dataset"}),
		linesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pathwaydb", Subsystem: "ingest", Name: "lines_skipped_total",
			Help: "Feed lines not stored, by dataset and reason.",
		}, []string{"dataset", "reason"}),
		keysResolved: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pathwaydb", Subsystem: "enrich", Name: "keys_resolved_total",
			Help: "Target names resolved, by tier.",
		}, []string{"tier"}),
		batchesFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pathwaydb", Subsystem: "enrich", Name: "batches_failed_total",
			Help: "Remote lookup batches that failed and were skipped, by tier.",
		}, []string{"tier"}),
		cacheDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pathwaydb", Subsystem: "cache", Name: "resolutions_total",
			Help: "Cache resolutions, by dataset and provenance.",
		}, []string{"dataset", "provenance"}),
	}
	m.Registry.MustRegister(m.linesRead, m.rowsInserted, m.linesSkipped,
		m.keysResolved, m.batchesFailed, m.cacheDecisions)
	return m
}

func (m *Metrics) LinesRead(dataset string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.linesRead.WithLabelValues(dataset).Add(float64(n))
}

func (m *Metrics) RowsInserted(dataset string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.rowsInserted.WithLabelValues(dataset).Add(float64(n))
}

// LinesSkipped records lines dropped for reason ("comment", "malformed", "filtered").
func (m *Metrics) LinesSkipped(dataset, reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.linesSkipped.WithLabelValues(dataset, reason).Add(float64(n))
}

func (m *Metrics) KeysResolved(tier string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.keysResolved.WithLabelValues(tier).Add(float64(n))
}

func (m *Metrics) BatchFailed(tier string) {
	if m == nil {
		return
	}
	m.batchesFailed.WithLabelValues(tier).Inc()
}

func (m *Metrics) CacheResolved(dataset, provenance string) {
	if m == nil {
		return
	}
	m.cacheDecisions.WithLabelValues(dataset, provenance).Inc()
}

// WriteFile dumps the registry in text exposition format to path.
func (m *Metrics) WriteFile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
