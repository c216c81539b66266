package gcmetrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistersEveryCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.MarkQueueDepth.Set(4)
	m.URSFlushTotal.Inc()

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
	require.Len(t, families, 9)

	var sawDepth, sawFlush bool
	for _, fam := range families {
		switch fam.GetName() {
		case "nonmoving_mark_queue_depth":
			sawDepth = true
			require.Len(t, fam.Metric, 1)
			require.Equal(t, 4.0, fam.Metric[0].GetGauge().GetValue())
		case "nonmoving_urs_flush_total":
			sawFlush = true
			require.Equal(t, 1.0, fam.Metric[0].GetCounter().GetValue())
		}
	}
	require.True(t, sawDepth)
	require.True(t, sawFlush)
}

func TestNewMetricsPanicsOnDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(reg)
	require.Panics(t, func() { NewMetrics(reg) })
}
