// Package metrics exposes prometheus counters for the persistence pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the counters recorded across the subsystem. All fields are
// safe for concurrent use. A nil *Metrics is valid: every record method is
// a no-op on nil, so components can be wired without metrics.
type Metrics struct {
	registry *prometheus.Registry

	appends           prometheus.Counter
	dedupDrops        prometheus.Counter
	compressions      prometheus.Counter
	recoveryFallbacks prometheus.Counter
	cacheHits         prometheus.Counter
	cacheMisses       prometheus.Counter
}

// New creates a Metrics with its own registry (no global state).
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		appends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessionlog_appends_total",
			Help: "Messages appended to session logs.",
		}),
		dedupDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessionlog_dedup_drops_total",
			Help: "Messages dropped as duplicates.",
		}),
		compressions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessionlog_compressions_total",
			Help: "Summary compressions performed during recovery.",
		}),
		recoveryFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessionlog_recovery_fallbacks_total",
			Help: "Recovery degradations: failed compressions and stale summary pointers.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessionlog_cache_hits_total",
			Help: "Message cache hits.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sessionlog_cache_misses_total",
			Help: "Message cache misses.",
		}),
	}
	reg.MustRegister(
		m.appends,
		m.dedupDrops,
		m.compressions,
		m.recoveryFallbacks,
		m.cacheHits,
		m.cacheMisses,
	)
	return m
}

// Handler returns the HTTP handler serving the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordAppend counts one persisted message.
func (m *Metrics) RecordAppend() {
	if m != nil {
		m.appends.Inc()
	}
}

// RecordDedupDrop counts one duplicate dropped before persistence.
func (m *Metrics) RecordDedupDrop() {
	if m != nil {
		m.dedupDrops.Inc()
	}
}

// RecordCompression counts one successful summary compression.
func (m *Metrics) RecordCompression() {
	if m != nil {
		m.compressions.Inc()
	}
}

// RecordRecoveryFallback counts one degraded recovery path.
func (m *Metrics) RecordRecoveryFallback() {
	if m != nil {
		m.recoveryFallbacks.Inc()
	}
}

// RecordCacheHit counts one cache hit.
func (m *Metrics) RecordCacheHit() {
	if m != nil {
		m.cacheHits.Inc()
	}
}

// RecordCacheMiss counts one cache miss.
func (m *Metrics) RecordCacheMiss() {
	if m != nil {
		m.cacheMisses.Inc()
	}
}
