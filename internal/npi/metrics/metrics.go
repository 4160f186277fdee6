package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for NPI validation and its cache tiers.
// All methods are safe to call on a nil receiver.
type Metrics struct {
	// Cache lookups by tier and result ("hit", "miss", "unavailable")
	CacheLookups *prometheus.CounterVec

	// Tier failures by tier and operation ("get", "set", "delete", "cleanup")
	TierErrors *prometheus.CounterVec

	// Registry lookup latency by outcome ("found", "not_found", "rate_limited", "timeout", "api")
	RegistryLatency *prometheus.HistogramVec

	// Validation outcomes by status and source ("format", "cache", "registry", "batch_error")
	Outcomes *prometheus.CounterVec

	// Number of identifiers per batch request
	BatchSize prometheus.Histogram

	// Rows removed by durable-tier cleanup
	ExpiredRowsDeleted prometheus.Counter
}

// New creates a Metrics instance registered with the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the collectors with reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not panic.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "npi_cache_lookups_total",
			Help: "Cache lookups by tier and result",
		}, []string{"tier", "result"}),

		TierErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "npi_cache_tier_errors_total",
			Help: "Cache tier failures that were degraded to a miss or swallowed",
		}, []string{"tier", "op"}),

		RegistryLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "npi_registry_lookup_duration_seconds",
			Help:    "Duration of registry lookups by outcome",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),

		Outcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "npi_validation_outcomes_total",
			Help: "Validation results by status and where they came from",
		}, []string{"status", "source"}),

		BatchSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "npi_batch_size",
			Help:    "Number of identifiers submitted per batch",
			Buckets: []float64{1, 2, 5, 10, 25, 50, 100},
		}),

		ExpiredRowsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "npi_cache_expired_rows_deleted_total",
			Help: "Expired rows removed from the durable cache tier",
		}),
	}
}

// RecordCacheLookup records a tier lookup result.
func (m *Metrics) RecordCacheLookup(tier, result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(tier, result).Inc()
	}
}

// RecordTierError records a swallowed tier failure.
func (m *Metrics) RecordTierError(tier, op string) {
	if m != nil {
		m.TierErrors.WithLabelValues(tier, op).Inc()
	}
}

// ObserveRegistryLatency records the duration of a registry lookup.
func (m *Metrics) ObserveRegistryLatency(outcome string, d time.Duration) {
	if m != nil {
		m.RegistryLatency.WithLabelValues(outcome).Observe(d.Seconds())
	}
}

// IncrementOutcome records a validation result.
func (m *Metrics) IncrementOutcome(status, source string) {
	if m != nil {
		m.Outcomes.WithLabelValues(status, source).Inc()
	}
}

// ObserveBatchSize records how many identifiers a batch carried.
func (m *Metrics) ObserveBatchSize(n int) {
	if m != nil {
		m.BatchSize.Observe(float64(n))
	}
}

// AddExpiredRowsDeleted records a cleanup pass.
func (m *Metrics) AddExpiredRowsDeleted(n int64) {
	if m != nil && n > 0 {
		m.ExpiredRowsDeleted.Add(float64(n))
	}
}
