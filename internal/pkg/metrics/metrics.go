// Package metrics holds the process-wide Prometheus metrics and the
// registry-injected explorer collector.
package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

const namespace = "bus2hike"

var (
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "http", Name: "requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "http", Name: "request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 15},
	}, []string{"method", "route"})

	httpResponseBytes = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "http", Name: "response_size_bytes",
		Help:    "HTTP response body size.",
		Buckets: prometheus.ExponentialBuckets(128, 4, 8),
	}, []string{"method", "route"})

	// BackendRequestDuration times calls to the trails API by endpoint.
	BackendRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "backend", Name: "request_duration_seconds",
		Help:    "Trails API call latency.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	// BackendErrors counts failed trails API calls by endpoint and kind
	// (transport, timeout, status, decode).
	BackendErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "backend", Name: "errors_total",
		Help: "Failed trails API calls.",
	}, []string{"endpoint", "kind"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "ws", Name: "active_connections",
		Help: "Open WebSocket state feeds.",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "cache", Name: "hits_total",
		Help: "Stop cache hits by key family.",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "cache", Name: "misses_total",
		Help: "Stop cache misses by key family.",
	}, []string{"operation"})

	dbPoolConns = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "db", Name: "pool_connections",
		Help: "PostGIS pool connections by state (total, acquired, idle).",
	}, []string{"state"})
)

// Middleware records count, latency and size of every request, labelled
// by the matched route so path parameters do not explode cardinality.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		if route == "" || route == "/" {
			route = c.Path()
		}
		method := c.Method()

		httpRequests.WithLabelValues(method, route, strconv.Itoa(c.Response().StatusCode())).Inc()
		httpLatency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		httpResponseBytes.WithLabelValues(method, route).Observe(float64(len(c.Response().Body())))
		return err
	}
}

// Handler serves the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	serve := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		serve(c.Context())
		return nil
	}
}

// PoolStat is the subset of *pgxpool.Stat reported as gauges.
type PoolStat interface {
	TotalConns() int32
	AcquiredConns() int32
	IdleConns() int32
}

// UpdateDBPoolMetrics copies a pool snapshot into the connection gauges.
func UpdateDBPoolMetrics(stat PoolStat) {
	dbPoolConns.WithLabelValues("total").Set(float64(stat.TotalConns()))
	dbPoolConns.WithLabelValues("acquired").Set(float64(stat.AcquiredConns()))
	dbPoolConns.WithLabelValues("idle").Set(float64(stat.IdleConns()))
}
