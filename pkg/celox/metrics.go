package celox

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the server's Prometheus collectors. Instances register
// against an injected Registerer, so tests and multi-server processes can
// keep separate registries instead of sharing package-level state.
//
// Requests are labeled by method and status only: the parser hands the
// framework raw request targets, and labeling by target would let any
// client mint unbounded label cardinality. Body sizes come from the
// dispatch path's owned buffers (Context.Body and the buffered response),
// which the streaming transport has already bounded.
type Metrics struct {
	requestsTotal *prometheus.CounterVec
	duration      *prometheus.HistogramVec
	inFlight      prometheus.Gauge
	requestSize   prometheus.Histogram
	responseSize  prometheus.Histogram
	handlerErrors prometheus.Counter
}

// NewMetrics creates and registers the server collectors under namespace.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	factory := promauto.With(reg)
	sizeBuckets := prometheus.ExponentialBuckets(64, 4, 8) // 64B .. ~1MiB

	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Requests dispatched, by lowercased wire method and status",
			},
			[]string{"method", "status"},
		),
		duration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of the downstream handler chain, response flush excluded",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Requests currently inside the handler chain",
			},
		),
		requestSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_body_bytes",
				Help:      "Request body size as accumulated by the transport",
				Buckets:   sizeBuckets,
			},
		),
		responseSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_response_body_bytes",
				Help:      "Buffered response body size at flush time",
				Buckets:   sizeBuckets,
			},
		),
		handlerErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_handler_errors_total",
				Help:      "Errors returned by the handler chain before the error handler ran",
			},
		),
	}
}

// Middleware returns the instrumentation middleware for these collectors.
// skipPaths lists request paths excluded from collection (e.g. /metrics).
func (m *Metrics) Middleware(skipPaths ...string) Middleware {
	skip := make(map[string]bool, len(skipPaths))
	for _, path := range skipPaths {
		skip[path] = true
	}

	return func(next Handler) Handler {
		return HandlerFunc(func(ctx *Context) error {
			if skip[ctx.Path()] {
				return next.Serve(ctx)
			}

			m.inFlight.Inc()
			m.requestSize.Observe(float64(len(ctx.Body())))
			start := time.Now()

			err := next.Serve(ctx)

			m.inFlight.Dec()
			m.duration.WithLabelValues(ctx.Method()).Observe(time.Since(start).Seconds())
			m.requestsTotal.WithLabelValues(ctx.Method(), strconv.Itoa(ctx.Status())).Inc()
			if body := ctx.ResponseBody(); body != nil {
				m.responseSize.Observe(float64(body.Len()))
			}
			if err != nil {
				m.handlerErrors.Inc()
			}

			return err
		})
	}
}

var (
	defaultMetricsOnce sync.Once
	defaultMetrics     *Metrics
)

// Prometheus returns a middleware backed by process-wide collectors on
// the default registry, registered once no matter how many routers mount
// it. The /metrics path is skipped.
func Prometheus() Middleware {
	defaultMetricsOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer, "celox")
	})
	return defaultMetrics.Middleware("/metrics")
}
