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

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forestlens",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "forestlens",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "forestlens",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Upstream metrics
	UpstreamRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forestlens",
		Subsystem: "upstream",
		Name:      "requests_total",
		Help:      "Total upstream GFW calls by API family and outcome",
	}, []string{"family", "outcome"})

	UpstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "forestlens",
		Subsystem: "upstream",
		Name:      "request_duration_seconds",
		Help:      "Upstream GFW call latency",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"family"})

	GeostoreAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forestlens",
		Subsystem: "geostore",
		Name:      "attempts_total",
		Help:      "Geostore creation attempts by endpoint variant and outcome",
	}, []string{"variant", "outcome"})

	DatasetResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forestlens",
		Subsystem: "aggregation",
		Name:      "dataset_results_total",
		Help:      "Dataset fetches by dataset and outcome (present or missing)",
	}, []string{"dataset", "outcome"})

	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "forestlens",
		Subsystem: "upstream",
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state per API family (0=closed, 1=half-open, 2=open)",
	}, []string{"family"})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forestlens",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"tier"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forestlens",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"tier"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "forestlens",
		Subsystem: "events",
		Name:      "published_total",
		Help:      "Analysis-completed events by outcome",
	}, []string{"outcome"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "forestlens",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})
)

// Middleware records request count, latency and response size per route
// pattern. Requests that matched no route share the "unmatched" label so
// arbitrary paths never become series.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		method := c.Method()
		route := routeLabel(c)
		status := strconv.Itoa(c.Response().StatusCode())

		httpRequestsTotal.WithLabelValues(method, route, status).Inc()
		httpRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
		httpResponseSize.WithLabelValues(method, route).Observe(float64(len(c.Response().Body())))
		return err
	}
}

func routeLabel(c *fiber.Ctx) string {
	p := c.Route().Path
	if p == "" || (p == "/" && c.Path() != "/") {
		return "unmatched"
	}
	return p
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
	return func(c *fiber.Ctx) error {
		handler(c.Context())
		return nil
	}
}
