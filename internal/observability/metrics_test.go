package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestMetrics_NilReceiverIsSafe(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.RecordRequest("/x", "GET", 200, time.Millisecond)
		m.RecordError("/x", "GET", "NOT_FOUND")
		m.RecordAdmission("ASSIGNED")
		m.RecordReclaim("sweep")
		m.RecordSweep(time.Second, 3, 1)
		m.RecordSweepSkipped("in_flight")
	})
	require.Nil(t, m.Registry())
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics()

	m.RecordAdmission("ASSIGNED")
	m.RecordAdmission("ASSIGNED")
	m.RecordAdmission("CAPACITY_EXCEEDED")
	m.RecordReclaim("sweep")
	m.RecordSweep(250*time.Millisecond, 4, 2)
	m.RecordSweepSkipped("in_flight")

	require.Equal(t, 2.0, testutil.ToFloat64(m.admissions.WithLabelValues("ASSIGNED")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.admissions.WithLabelValues("CAPACITY_EXCEEDED")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.reclaims.WithLabelValues("sweep")))
	require.Equal(t, 2.0, testutil.ToFloat64(m.sweepFailures))
	require.Equal(t, 4.0, testutil.ToFloat64(m.expiredGauge))
	require.Equal(t, 1.0, testutil.ToFloat64(m.sweepSkipped.WithLabelValues("in_flight")))

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
