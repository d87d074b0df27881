// Package metrics records per-run pipeline metrics in a private Prometheus
// registry. The auditor is a batch job, so metrics are exported by writing
// the registry to a node_exporter textfile rather than serving /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/crimson-sun/auditor/internal/model"
)

// Run statuses recorded on auditor_runs_total.
const (
	StatusProcessed     = "processed"
	StatusNoEventsFound = "no_events_found"
	StatusSourceError   = "source_error"
	StatusNormalizeErr  = "normalization_error"
	StatusSinkError     = "sink_error"
)

// Metrics provides observability for pipeline runs. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	Runs            *prometheus.CounterVec
	Events          prometheus.Counter
	DroppedRecords  prometheus.Counter
	ClassifiedTotal *prometheus.CounterVec
	LastRun         prometheus.Gauge
	RunDuration     prometheus.Histogram
}

// New creates a Metrics instance with all metrics registered on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		Runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_runs_total",
			Help: "Pipeline runs by outcome",
		}, []string{"status"}),

		Events: f.NewCounter(prometheus.CounterOpts{
			Name: "auditor_events_total",
			Help: "Normalized events processed",
		}),

		DroppedRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "auditor_dropped_records_total",
			Help: "Malformed records discarded during normalization",
		}),

		ClassifiedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "auditor_classified_events_total",
			Help: "Events matched per classification tag",
		}, []string{"tag"}),

		LastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "auditor_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run",
		}),

		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "auditor_run_duration_seconds",
			Help:    "Wall time of a pipeline run, fetch included",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
	}
}

// Registry exposes the underlying registry, mainly for tests and exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveRun records a finished run: its outcome, event volume, drops and
// per-tag classification counts.
func (m *Metrics) ObserveRun(summary model.SummaryRecord, dropped int, finished time.Time, took time.Duration) {
	if m == nil {
		return
	}
	status := StatusProcessed
	if summary.Status == model.StatusNoEventsFound {
		status = StatusNoEventsFound
	}
	m.Runs.WithLabelValues(status).Inc()
	m.Events.Add(float64(summary.TotalEvents))
	m.DroppedRecords.Add(float64(dropped))
	m.ClassifiedTotal.WithLabelValues(string(model.TagFailedLogin)).Add(float64(summary.FailedLogins))
	m.ClassifiedTotal.WithLabelValues(string(model.TagUnauthorizedAccess)).Add(float64(summary.UnauthorizedAccess))
	m.ClassifiedTotal.WithLabelValues(string(model.TagSuspiciousActivity)).Add(float64(summary.SuspiciousActivities))
	m.LastRun.Set(float64(finished.Unix()))
	m.RunDuration.Observe(took.Seconds())
}

// ObserveFailure records an aborted run under status.
func (m *Metrics) ObserveFailure(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.Runs.WithLabelValues(status).Inc()
	m.RunDuration.Observe(took.Seconds())
}

// WriteTextfile writes the registry in the text exposition format to path,
// atomically, for the node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}
