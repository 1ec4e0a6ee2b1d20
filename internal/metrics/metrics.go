// Package metrics exposes the storefront Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	gatewayRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Total number of gateway requests issued.",
		},
		[]string{"method", "table", "status"},
	)

	gatewayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Duration of gateway requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "table"},
	)

	realtimeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Total number of realtime change events dispatched.",
		},
		[]string{"table", "type"},
	)

	pollerTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "orders",
			Name:      "poll_ticks_total",
			Help:      "Total number of order status poll attempts.",
		},
		[]string{"outcome"},
	)

	catalogRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "catalog",
			Name:      "refreshes_total",
			Help:      "Total number of catalog cache refreshes.",
		},
		[]string{"outcome"},
	)
)

func init() {
	Registry.MustRegister(
		gatewayRequests,
		gatewayDuration,
		realtimeEvents,
		pollerTicks,
		catalogRefreshes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveGatewayRequest records one gateway request.
func ObserveGatewayRequest(method, table, status string, d time.Duration) {
	gatewayRequests.WithLabelValues(method, table, status).Inc()
	gatewayDuration.WithLabelValues(method, table).Observe(d.Seconds())
}

// ObserveRealtimeEvent records one dispatched change event.
func ObserveRealtimeEvent(table, eventType string) {
	realtimeEvents.WithLabelValues(table, eventType).Inc()
}

// ObservePollTick records one order status poll attempt.
func ObservePollTick(outcome string) {
	pollerTicks.WithLabelValues(outcome).Inc()
}

// ObserveCatalogRefresh records one catalog refresh attempt.
func ObserveCatalogRefresh(outcome string) {
	catalogRefreshes.WithLabelValues(outcome).Inc()
}

// Handler serves the registry over HTTP.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
