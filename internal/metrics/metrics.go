// Package metrics provides the Prometheus collectors for the routing core.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Namespace prefixes every metric name.
const Namespace = "storefront"

// Metrics holds Prometheus metric collectors. A nil *Metrics is valid and
// records nothing, which keeps tests and tools free of registries.
type Metrics struct {
	registry prometheus.Gatherer

	cacheLookups    *prometheus.CounterVec
	cacheKeys       prometheus.Gauge
	warmups         *prometheus.CounterVec
	warmupDuration  prometheus.Histogram
	routerDecisions *prometheus.CounterVec
	dnsChecks       *prometheus.CounterVec
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry creates the collectors on the given registerer. The gatherer
// backs the /metrics handler.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: gatherer,
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "tenant_cache",
			Name:      "lookups_total",
			Help:      "Existence cache lookups by key kind and result",
		}, []string{"kind", "result"}),
		cacheKeys: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "tenant_cache",
			Name:      "keys",
			Help:      "Number of routing keys held by the existence cache",
		}),
		warmups: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "tenant_cache",
			Name:      "warmups_total",
			Help:      "Cache warmup runs by result",
		}, []string{"result"}),
		warmupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "tenant_cache",
			Name:      "warmup_duration_seconds",
			Help:      "Cache warmup latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		routerDecisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "router",
			Name:      "decisions_total",
			Help:      "Host routing decisions by mode and cache result",
		}, []string{"mode", "cached"}),
		dnsChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "domain_verification",
			Name:      "dns_checks_total",
			Help:      "DNS TXT checks by outcome",
		}, []string{"reason"}),
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),
	}
}

// CacheLookup records a cache lookup for a key kind ("subdomain" or "custom_domain").
func (m *Metrics) CacheLookup(kind string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(kind, result).Inc()
}

// CacheSize records the number of keys in the cache.
func (m *Metrics) CacheSize(n int) {
	if m == nil {
		return
	}
	m.cacheKeys.Set(float64(n))
}

// Warmup records a warmup run.
func (m *Metrics) Warmup(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.warmups.WithLabelValues(result).Inc()
	m.warmupDuration.Observe(d.Seconds())
}

// RouterDecision records a host routing decision.
func (m *Metrics) RouterDecision(mode string, cached bool) {
	if m == nil {
		return
	}
	m.routerDecisions.WithLabelValues(mode, strconv.FormatBool(cached)).Inc()
}

// DNSCheck records a DNS TXT check outcome.
func (m *Metrics) DNSCheck(reason string) {
	if m == nil {
		return
	}
	m.dnsChecks.WithLabelValues(reason).Inc()
}

// Middleware records request counts and latency labelled by the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.requestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.requestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
