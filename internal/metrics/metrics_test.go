package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/discourse/ddns-sd/internal/testutils"
)

func TestNewRegistersDistinctMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	old := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = reg
	defer func() { prometheus.DefaultRegisterer = old }()

	m := New("deadbeef")
	m.StartTimestamp.Set(1700000000)
	m.BackendErrorsTotal.WithLabelValues("cloud-dns", "transient").Inc()
	m.RecordsTotal.WithLabelValues("cloud-dns", "A").Set(3)
	m.DockerRequestDuration.WithLabelValues("GET", "200").Observe(0.05)

	require.Equal(t, float64(1700000000), testutil.ToFloat64(m.StartTimestamp))
	require.Equal(t, float64(1), testutil.ToFloat64(m.BackendErrorsTotal.WithLabelValues("cloud-dns", "transient")))
	require.Equal(t, float64(3), testutil.ToFloat64(m.RecordsTotal.WithLabelValues("cloud-dns", "A")))
	require.NotNil(t, m.DockerRequestDuration.WithLabelValues("GET", "200"))

	m.RecordsTotal.WithLabelValues("sql-dns", "A").Set(2)
	testutils.TestHelperVerifyMetricsGaugeVectorWithLabels(t, 5, *m.RecordsTotal, map[string]string{"type": "A"})
}
