// Package metrics provides Prometheus metrics for the versioning engine
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for RVC.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	SnapshotsTotal     *prometheus.CounterVec
	SuppressedTotal    *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
	VersioningDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{}

	m.SnapshotsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rvc_snapshots_written_total",
			Help: "Total number of snapshots written",
		},
		[]string{"record_type", "trigger"},
	)

	m.SuppressedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rvc_saves_suppressed_total",
			Help: "Updates that changed no versioned field and produced no snapshot",
		},
		[]string{"record_type"},
	)

	m.ErrorsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rvc_versioning_errors_total",
			Help: "Versioning errors surfaced to callers, by error class",
		},
		[]string{"record_type", "code"},
	)

	m.VersioningDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "rvc_versioning_duration_seconds",
			Help:    "Time spent allocating and persisting a snapshot",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"trigger"},
	)

	return m
}

// ObserveSnapshot records a written snapshot
func (m *Metrics) ObserveSnapshot(recordType, trigger string, d time.Duration) {
	if m == nil {
		return
	}
	m.SnapshotsTotal.WithLabelValues(recordType, trigger).Inc()
	m.VersioningDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

// ObserveSuppressed records an update that produced no snapshot
func (m *Metrics) ObserveSuppressed(recordType string) {
	if m == nil {
		return
	}
	m.SuppressedTotal.WithLabelValues(recordType).Inc()
}

// ObserveError records a versioning error by class code
func (m *Metrics) ObserveError(recordType, code string) {
	if m == nil {
		return
	}
	if code == "" {
		code = "unknown"
	}
	m.ErrorsTotal.WithLabelValues(recordType, code).Inc()
}
