package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsRecordsCounters(t *testing.T) {
	m := NewMetrics()

	m.RecordSwallowed("session", "record_session")
	m.RecordSwallowed("session", "record_session")
	m.RecordEscalation("time")
	m.RecordEscalationAction("notify", "completed")
	m.RecordRequest("/health/live", "GET", 200, 5*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.swallowedErrors.WithLabelValues("session", "record_session")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.escalations.WithLabelValues("time")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.escalationAction.WithLabelValues("notify", "completed")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["admin_ops_http_requests_total"])
	assert.True(t, names["admin_ops_swallowed_errors_total"])
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordSwallowed("x", "y")
		m.RecordSessionEvent("renewed")
		m.RecordEscalationPass("ok")
	})
	assert.Nil(t, m.Registry())
}
