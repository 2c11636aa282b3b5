package tracker

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Tracker tracks usage statistics per provider. Counters are kept both as
// atomics (for the /api/stats snapshot) and as Prometheus series.
type Tracker struct {
	mu      sync.RWMutex
	stats   map[string]*ProviderStats
	metrics *Metrics
}

// ProviderStats holds metrics for a specific provider.
// Fields are accessed atomically.
type ProviderStats struct {
	CacheHits   int64
	CacheMisses int64
	APISuccess  int64
	APIFailures int64
}

// Metrics holds the Prometheus collectors.
type Metrics struct {
	CacheLookups *prometheus.CounterVec // labels: provider, result={hit,miss}
	APIRequests  *prometheus.CounterVec // labels: provider, outcome={success,failure}
	Prefetches   *prometheus.CounterVec // labels: outcome={ok,not_found,transient,dropped}
	GridSamples  prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fossiljourney",
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by provider and result.",
		}, []string{"provider", "result"}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fossiljourney",
			Name:      "api_requests_total",
			Help:      "Upstream API requests by provider and outcome.",
		}, []string{"provider", "outcome"}),
		Prefetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fossiljourney",
			Name:      "prefetches_total",
			Help:      "Prefetch tasks by outcome.",
		}, []string{"outcome"}),
		GridSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "fossiljourney",
			Name:      "grid_samples",
			Help:      "Samples currently held by the in-memory grid store.",
		}),
	}
}

// New creates a Tracker registered on the default Prometheus registry.
func New() *Tracker {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a Tracker registered on the given registry.
// Tests pass a fresh registry to avoid duplicate-registration panics.
func NewWithRegistry(reg prometheus.Registerer) *Tracker {
	m := newMetrics()
	if reg != nil {
		reg.MustRegister(m.CacheLookups, m.APIRequests, m.Prefetches, m.GridSamples)
	}
	return &Tracker{
		stats:   make(map[string]*ProviderStats),
		metrics: m,
	}
}

// getStats returns the stats object for a provider, creating it if needed.
func (t *Tracker) getStats(provider string) *ProviderStats {
	t.mu.RLock()
	s, ok := t.stats[provider]
	t.mu.RUnlock()
	if ok {
		return s
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Double check
	if s, ok = t.stats[provider]; ok {
		return s
	}
	s = &ProviderStats{}
	t.stats[provider] = s
	return s
}

// TrackCacheHit increments the cache hit counter.
func (t *Tracker) TrackCacheHit(provider string) {
	atomic.AddInt64(&t.getStats(provider).CacheHits, 1)
	t.metrics.CacheLookups.WithLabelValues(provider, "hit").Inc()
}

func (t *Tracker) TrackCacheMiss(provider string) {
	atomic.AddInt64(&t.getStats(provider).CacheMisses, 1)
	t.metrics.CacheLookups.WithLabelValues(provider, "miss").Inc()
}

func (t *Tracker) TrackAPISuccess(provider string) {
	atomic.AddInt64(&t.getStats(provider).APISuccess, 1)
	t.metrics.APIRequests.WithLabelValues(provider, "success").Inc()
}

func (t *Tracker) TrackAPIFailure(provider string) {
	atomic.AddInt64(&t.getStats(provider).APIFailures, 1)
	t.metrics.APIRequests.WithLabelValues(provider, "failure").Inc()
}

// TrackPrefetch records a prefetch task outcome: ok, not_found,
// transient or dropped.
func (t *Tracker) TrackPrefetch(outcome string) {
	t.metrics.Prefetches.WithLabelValues(outcome).Inc()
}

// SetGridSize mirrors the in-memory grid store size into the gauge.
func (t *Tracker) SetGridSize(n int) {
	t.metrics.GridSamples.Set(float64(n))
}

// Snapshot returns a copy of the current per-provider stats.
func (t *Tracker) Snapshot() map[string]ProviderStats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	result := make(map[string]ProviderStats)
	for k, v := range t.stats {
		result[k] = ProviderStats{
			CacheHits:   atomic.LoadInt64(&v.CacheHits),
			CacheMisses: atomic.LoadInt64(&v.CacheMisses),
			APISuccess:  atomic.LoadInt64(&v.APISuccess),
			APIFailures: atomic.LoadInt64(&v.APIFailures),
		}
	}
	return result
}
