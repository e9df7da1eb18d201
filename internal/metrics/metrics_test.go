package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagetrail/bookcore/internal/apperr"
)

func gaugeValue(t *testing.T, vec *prometheus.GaugeVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, vec.WithLabelValues(labels...).Write(m))
	return m.GetGauge().GetValue()
}

func TestRecordProviderLatencyTracksPercentiles(t *testing.T) {
	m := New(nil)
	for i := 1; i <= 100; i++ {
		m.RecordProviderLatency("primary", int64(i))
	}
	assert.Len(t, m.latency.byProvider["primary"], 100)
	assert.Greater(t, gaugeValue(t, m.providerLatency, "primary", "p99"), gaugeValue(t, m.providerLatency, "primary", "p50"))
}

func TestRecordBreakerStateSetsOnlyActiveState(t *testing.T) {
	m := New(nil)
	m.RecordBreakerState("primary", gobreaker.StateClosed, gobreaker.StateOpen)

	assert.Equal(t, 1.0, gaugeValue(t, m.breakerState, "primary", gobreaker.StateOpen.String()))
	assert.Equal(t, 0.0, gaugeValue(t, m.breakerState, "primary", gobreaker.StateClosed.String()))
	assert.Equal(t, 0.0, gaugeValue(t, m.breakerState, "primary", gobreaker.StateHalfOpen.String()))
}

func TestRecordProviderErrorAndIngestionCountersDoNotPanic(t *testing.T) {
	m := New(nil)
	m.RecordProviderError("primary", apperr.KindProviderTransient)
	m.RecordCacheHit("l1")
	m.RecordCacheMiss()
	m.RecordDegraded()
	m.RecordIngestionDuplicate("isbn13")
	m.RecordIngestionCreated()
}
