package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	RequestsCollectorName = "analysis_http_requests_total"
	LatencyCollectorName  = "analysis_http_request_duration_milliseconds"
	InFlightCollectorName = "analysis_http_requests_in_flight"

	// unmatchedRoute labels requests no route matched, so scanners cannot blow up label cardinality.
	unmatchedRoute = "unmatched"
)

var defaultLatencyBuckets = []float64{5, 25, 100, 300, 1000, 5000}

// Middleware counts the pipeline API requests by route pattern and times them.
type Middleware struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	inFlight prometheus.Gauge
}

type MiddlewareOption func(o *middlewareOptions)

type middlewareOptions struct {
	buckets []float64
}

// WithLatencyBuckets overrides the latency histogram buckets, in milliseconds.
func WithLatencyBuckets(buckets ...float64) MiddlewareOption {
	return func(o *middlewareOptions) {
		if len(buckets) > 0 {
			o.buckets = buckets
		}
	}
}

// NewMiddleware returns the middleware; name becomes the "server" constant label.
func NewMiddleware(name string, opts ...MiddlewareOption) *Middleware {
	o := &middlewareOptions{buckets: defaultLatencyBuckets}
	for _, opt := range opts {
		opt(o)
	}
	labels := prometheus.Labels{"server": name}

	return &Middleware{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        RequestsCollectorName,
			Help:        "Analysis API requests by status code, method and route.",
			ConstLabels: labels,
		}, []string{"code", "method", "route"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        LatencyCollectorName,
			Help:        "Time spent serving analysis API requests by status code, method and route.",
			ConstLabels: labels,
			Buckets:     o.buckets,
		}, []string{"code", "method", "route"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        InFlightCollectorName,
			Help:        "Analysis API requests being served.",
			ConstLabels: labels,
		}),
	}
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.inFlight.Inc()
		defer m.inFlight.Dec()

		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := unmatchedRoute
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		code := strconv.Itoa(ww.Status())
		m.requests.WithLabelValues(code, r.Method, route).Inc()
		m.latency.WithLabelValues(code, r.Method, route).Observe(float64(time.Since(start).Milliseconds()))
	})
}

// Collectors returns the collectors for a custom registry.
func (m *Middleware) Collectors() []prometheus.Collector {
	return []prometheus.Collector{m.requests, m.latency, m.inFlight}
}

// MustRegisterDefault registers the collectors with the default registerer. It panics when
// called twice in the same process.
func (m *Middleware) MustRegisterDefault() {
	prometheus.MustRegister(m.Collectors()...)
}
