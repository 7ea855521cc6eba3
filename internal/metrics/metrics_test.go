package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Observe(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSnapshot("users", "insert", time.Millisecond)
	m.ObserveSnapshot("users", "insert", time.Millisecond)
	m.ObserveSuppressed("comments")
	m.ObserveError("users", "")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SnapshotsTotal.WithLabelValues("users", "insert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SuppressedTotal.WithLabelValues("comments")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("users", "unknown")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSnapshot("users", "insert", time.Second)
		m.ObserveSuppressed("users")
		m.ObserveError("users", "E_STORAGE")
	})
}
