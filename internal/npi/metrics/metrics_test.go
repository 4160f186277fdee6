package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordCacheLookup("memory", "hit")
		m.RecordTierError("redis", "get")
		m.ObserveRegistryLatency("found", time.Second)
		m.IncrementOutcome("validated", "registry")
		m.ObserveBatchSize(3)
		m.AddExpiredRowsDeleted(2)
	})
}

func TestCounters(t *testing.T) {
	m := NewWithRegisterer(prometheus.NewRegistry())

	m.RecordCacheLookup("memory", "hit")
	m.RecordCacheLookup("memory", "hit")
	m.RecordCacheLookup("redis", "unavailable")
	m.IncrementOutcome("invalid", "format")
	m.AddExpiredRowsDeleted(4)
	m.AddExpiredRowsDeleted(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("memory", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheLookups.WithLabelValues("redis", "unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Outcomes.WithLabelValues("invalid", "format")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.ExpiredRowsDeleted))
}
