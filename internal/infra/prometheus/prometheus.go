package prometheus

import (
	"fmt"
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sifan077/analytics-service/config"
)

const (
	readHeaderTimeout = 5 * time.Second
	writeTimeout      = 10 * time.Second
	defaultPort       = 9090
	namespace         = "analytics"
)

// Metrics holds the service's collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prom.Registry

	eventsIngested      prom.Counter
	counterFailures     prom.Counter
	cacheRequests       *prom.CounterVec
	aggregationDuration prom.Histogram
	httpRequests        *prom.CounterVec
	httpDuration        *prom.HistogramVec
}

// NewMetrics creates the collectors and registers them, plus the Go runtime
// and process collectors, on registry.
func NewMetrics(registry *prom.Registry) *Metrics {
	m := &Metrics{
		registry: registry,
		eventsIngested: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "events_ingested_total",
			Help:      "Events durably stored by the ingestion endpoint.",
		}),
		counterFailures: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "counter_failures_total",
			Help:      "Real-time counter increments that failed after the event was stored.",
		}),
		cacheRequests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_cache_requests_total",
			Help:      "Dashboard cache lookups by result.",
		}, []string{"result"}),
		aggregationDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "aggregation_duration_seconds",
			Help:      "Time spent computing a dashboard from the event store.",
			Buckets:   prom.DefBuckets,
		}),
		httpRequests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route.",
			Buckets:   prom.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.eventsIngested,
		m.counterFailures,
		m.cacheRequests,
		m.aggregationDuration,
		m.httpRequests,
		m.httpDuration,
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prom.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) EventIngested() {
	if m == nil {
		return
	}
	m.eventsIngested.Inc()
}

func (m *Metrics) CounterFailed() {
	if m == nil {
		return
	}
	m.counterFailures.Inc()
}

// CacheLookup records a dashboard cache hit or miss.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheRequests.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveAggregation(d time.Duration) {
	if m == nil {
		return
	}
	m.aggregationDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, fmt.Sprint(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// NewServer builds a basic HTTP server that exposes /metrics for Prometheus scraping.
func NewServer(cfg config.PrometheusConfig, registry *prom.Registry) *http.Server {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}
}
