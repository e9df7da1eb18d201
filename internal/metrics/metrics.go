// Package metrics registers the contractual Prometheus metrics for search,
// caching, the circuit breaker and ingestion in a single Metrics struct,
// following the teacher's metrics.go pattern of collectors built
// unconditionally around an (possibly nil) *prometheus.Registry.
package metrics

import (
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sony/gobreaker/v2"

	"github.com/pagetrail/bookcore/internal/apperr"
)

const namespace = "bookcore"

// NewRegistry builds a *prometheus.Registry with the standard Go runtime,
// process, and build-info collectors already registered, the same baseline
// the teacher's NewMetrics sets up before any domain metric is added.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewBuildInfoCollector(),
	)
	return reg
}

// quantiles is the fixed set of percentiles search.provider.latency_ms
// reports, matching the contractual "p50|p95|p99" label values exactly
// (rather than Prometheus's own numeric "quantile" label) since the metric
// name's label enumeration is part of the contract.
var quantiles = []struct {
	label string
	p     float64
}{
	{"p50", 0.50},
	{"p95", 0.95},
	{"p99", 0.99},
}

// latencySamples keeps a bounded ring of recent latencies per provider so
// percentiles can be recomputed on every observation, the same rolling-data
// idiom as breaker.rollingWindow.
type latencySamples struct {
	mu         sync.Mutex
	byProvider map[string][]float64
}

const latencyRingSize = 256

func (s *latencySamples) observe(provider string, ms float64) []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.byProvider == nil {
		s.byProvider = make(map[string][]float64)
	}
	buf := append(s.byProvider[provider], ms)
	if len(buf) > latencyRingSize {
		buf = buf[len(buf)-latencyRingSize:]
	}
	s.byProvider[provider] = buf

	sorted := make([]float64, len(buf))
	copy(sorted, buf)
	sort.Float64s(sorted)
	return sorted
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}

// Metrics bundles every contractual metric behind thin recording methods.
type Metrics struct {
	providerLatency *prometheus.GaugeVec
	providerErrors  *prometheus.CounterVec
	cacheHit        *prometheus.CounterVec
	cacheMiss       prometheus.Counter
	breakerState    *prometheus.GaugeVec
	degraded        prometheus.Counter
	ingestDuplicate *prometheus.CounterVec
	ingestCreated   prometheus.Counter
	cacheL1Degraded prometheus.Gauge

	latency latencySamples
}

// New builds Metrics, registering every collector against reg. reg may be
// nil, in which case the vectors still work but nothing is exposed for
// scraping — used by tests that don't care about the registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		providerLatency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "provider_latency_ms",
			Help:      "Provider search latency percentiles in milliseconds.",
		}, []string{"provider", "quantile"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "provider_errors_total",
			Help:      "Provider search errors by kind.",
		}, []string{"provider", "kind"}),
		cacheHit: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "cache_hit_total",
			Help:      "Cache hits by layer.",
		}, []string{"layer"}),
		cacheMiss: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "cache_miss_total",
			Help:      "Cache misses across all layers.",
		}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "breaker_state",
			Help:      "Circuit breaker state (1 = active) by provider and state.",
		}, []string{"provider", "state"}),
		degraded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "degraded_total",
			Help:      "Searches served in a degraded state (fallback provider or stale cache).",
		}),
		ingestDuplicate: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "duplicate_total",
			Help:      "Ingestion attempts short-circuited as duplicates, by match type.",
		}, []string{"matchType"}),
		ingestCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "created_total",
			Help:      "Ingestion attempts that created a new book.",
		}),
		cacheL1Degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "search",
			Name:      "cache_l1_degraded",
			Help:      "Whether the L1 cache is currently unavailable (1) or healthy (0).",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.providerLatency, m.providerErrors, m.cacheHit, m.cacheMiss,
			m.breakerState, m.degraded, m.ingestDuplicate, m.ingestCreated,
			m.cacheL1Degraded,
		)
	}
	return m
}

// RecordProviderLatency updates the rolling p50/p95/p99 gauges for provider.
func (m *Metrics) RecordProviderLatency(provider string, ms int64) {
	sorted := m.latency.observe(provider, float64(ms))
	for _, q := range quantiles {
		m.providerLatency.WithLabelValues(provider, q.label).Set(percentile(sorted, q.p))
	}
}

// RecordProviderError counts a provider failure by its apperr.Kind.
func (m *Metrics) RecordProviderError(provider string, kind apperr.Kind) {
	m.providerErrors.WithLabelValues(provider, kind.String()).Inc()
}

// RecordCacheHit counts a hit served from layer ("l1" or "l2").
func (m *Metrics) RecordCacheHit(layer string) {
	m.cacheHit.WithLabelValues(layer).Inc()
}

// RecordCacheMiss counts a full cache miss.
func (m *Metrics) RecordCacheMiss() {
	m.cacheMiss.Inc()
}

// breakerStates lists every state search.breaker.state tracks, so a
// transition can zero out the states the provider just left.
var breakerStates = []gobreaker.State{gobreaker.StateClosed, gobreaker.StateOpen, gobreaker.StateHalfOpen}

// RecordBreakerState is meant to be registered via breaker.OnStateChange.
func (m *Metrics) RecordBreakerState(provider string, _, to gobreaker.State) {
	for _, s := range breakerStates {
		v := 0.0
		if s == to {
			v = 1.0
		}
		m.breakerState.WithLabelValues(provider, s.String()).Set(v)
	}
}

// RecordDegraded counts a search response served degraded (fallback
// provider or stale cache).
func (m *Metrics) RecordDegraded() {
	m.degraded.Inc()
}

// RecordCacheL1Degraded is meant to be registered via
// cache.Manager.OnDegradedChange; it tracks L1 availability outside the
// contractual metric set as an operational signal.
func (m *Metrics) RecordCacheL1Degraded(degraded bool) {
	v := 0.0
	if degraded {
		v = 1.0
	}
	m.cacheL1Degraded.Set(v)
}

// RecordIngestionDuplicate counts a short-circuited ingestion by match type.
func (m *Metrics) RecordIngestionDuplicate(matchType string) {
	m.ingestDuplicate.WithLabelValues(matchType).Inc()
}

// RecordIngestionCreated counts an ingestion that created a new book.
func (m *Metrics) RecordIngestionCreated() {
	m.ingestCreated.Inc()
}
