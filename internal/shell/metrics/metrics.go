// Package metrics exposes Prometheus instrumentation for the cache bot.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// Metrics
// =============================================================================

// Metrics holds the instrument set shared across the service.
type Metrics struct {
	registry *prometheus.Registry

	// ChatRequests counts chat requests by outcome.
	ChatRequests *prometheus.CounterVec

	// ChatDuration observes end-to-end chat latency in seconds.
	ChatDuration prometheus.Histogram

	// CacheRefreshes counts cache refreshes by trigger.
	CacheRefreshes *prometheus.CounterVec

	// CacheExtensions counts TTL extensions by outcome.
	CacheExtensions *prometheus.CounterVec

	// RateLimitRetries counts generation attempts retried after a 429.
	RateLimitRetries prometheus.Counter

	// ToolInvocations counts colleague-help tool invocations.
	ToolInvocations prometheus.Counter
}

// New creates the metric set on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: registry,
		ChatRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cachebot",
			Name:      "chat_requests_total",
			Help:      "Chat requests by outcome.",
		}, []string{"status"}),
		ChatDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cachebot",
			Name:      "chat_duration_seconds",
			Help:      "End-to-end chat request latency.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40},
		}),
		CacheRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cachebot",
			Name:      "cache_refreshes_total",
			Help:      "Context cache refreshes by trigger.",
		}, []string{"trigger"}),
		CacheExtensions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cachebot",
			Name:      "cache_extensions_total",
			Help:      "Context cache TTL extensions by outcome.",
		}, []string{"outcome"}),
		RateLimitRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cachebot",
			Name:      "rate_limit_retries_total",
			Help:      "Generation attempts retried after a rate limit.",
		}),
		ToolInvocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "cachebot",
			Name:      "tool_invocations_total",
			Help:      "Colleague-help tool invocations requested by the model.",
		}),
	}

	registry.MustRegister(
		m.ChatRequests,
		m.ChatDuration,
		m.CacheRefreshes,
		m.CacheExtensions,
		m.RateLimitRetries,
		m.ToolInvocations,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
