package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Histogram bucket definitions.
var (
	httpDurationBuckets    = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	backendDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	bodySizeBuckets        = []float64{100, 1024, 10240, 102400, 1048576}
)

// Metrics holds all Prometheus metric instruments for the proxy.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal     *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	HTTPRequestSizeBytes  *prometheus.HistogramVec
	HTTPResponseSizeBytes *prometheus.HistogramVec

	// Proxy metrics
	ValidationFailuresTotal *prometheus.CounterVec

	// Composite workflow metrics
	SagaStartsTotal       *prometheus.CounterVec
	SagaCompletionsTotal  *prometheus.CounterVec
	SagaStepDuration      *prometheus.HistogramVec
	SagaCompensationsTotal *prometheus.CounterVec

	// Backend invocation metrics
	BackendRequestsTotal       *prometheus.CounterVec
	BackendRequestDuration     *prometheus.HistogramVec
	BackendCircuitBreakerState prometheus.Gauge
}

// InitMetrics creates and registers all Prometheus metric instruments.
func InitMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		// HTTP
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gestri_http_requests_total",
			Help: "Total number of HTTP requests.",
		}, []string{"method", "path_pattern", "status"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gestri_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: httpDurationBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPRequestSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gestri_http_request_size_bytes",
			Help:    "HTTP request body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),
		HTTPResponseSizeBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gestri_http_response_size_bytes",
			Help:    "HTTP response body size in bytes.",
			Buckets: bodySizeBuckets,
		}, []string{"method", "path_pattern"}),

		// Proxy
		ValidationFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gestri_validation_failures_total",
			Help: "Total number of payload validation failures rejected before forwarding.",
		}, []string{"resource"}),

		// Composite workflows
		SagaStartsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gestri_saga_starts_total",
			Help: "Total number of composite workflow starts.",
		}, []string{"workflow"}),
		SagaCompletionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gestri_saga_completions_total",
			Help: "Total number of composite workflow completions.",
		}, []string{"workflow", "outcome"}),
		SagaStepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gestri_saga_step_duration_seconds",
			Help:    "Composite workflow step duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"workflow", "step"}),
		SagaCompensationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gestri_saga_compensations_total",
			Help: "Total number of compensation actions executed.",
		}, []string{"workflow", "step", "outcome"}),

		// Backend
		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gestri_backend_requests_total",
			Help: "Total number of backend requests.",
		}, []string{"method", "resource", "status"}),
		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gestri_backend_request_duration_seconds",
			Help:    "Backend request duration in seconds.",
			Buckets: backendDurationBuckets,
		}, []string{"resource"}),
		BackendCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gestri_backend_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open).",
		}),
	}

	reg.MustRegister(
		// HTTP
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestSizeBytes,
		m.HTTPResponseSizeBytes,
		// Proxy
		m.ValidationFailuresTotal,
		// Composite workflows
		m.SagaStartsTotal,
		m.SagaCompletionsTotal,
		m.SagaStepDuration,
		m.SagaCompensationsTotal,
		// Backend
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendCircuitBreakerState,
	)

	return m
}

// --- Recording helpers ---

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(method, pathPattern string, status int, duration time.Duration, reqSize, respSize int) {
	statusStr := strconv.Itoa(status)
	m.HTTPRequestsTotal.WithLabelValues(method, pathPattern, statusStr).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, pathPattern).Observe(duration.Seconds())
	m.HTTPRequestSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(reqSize))
	m.HTTPResponseSizeBytes.WithLabelValues(method, pathPattern).Observe(float64(respSize))
}

// RecordValidationFailure records a payload validation rejection.
func (m *Metrics) RecordValidationFailure(resource string) {
	m.ValidationFailuresTotal.WithLabelValues(resource).Inc()
}

// RecordSagaStart records a composite workflow start.
func (m *Metrics) RecordSagaStart(workflow string) {
	m.SagaStartsTotal.WithLabelValues(workflow).Inc()
}

// RecordSagaCompletion records a composite workflow completion.
func (m *Metrics) RecordSagaCompletion(workflow, outcome string) {
	m.SagaCompletionsTotal.WithLabelValues(workflow, outcome).Inc()
}

// RecordSagaStepDuration records the duration of a composite workflow step.
func (m *Metrics) RecordSagaStepDuration(workflow, step string, duration time.Duration) {
	m.SagaStepDuration.WithLabelValues(workflow, step).Observe(duration.Seconds())
}

// RecordSagaCompensation records a compensation action and its outcome.
func (m *Metrics) RecordSagaCompensation(workflow, step, outcome string) {
	m.SagaCompensationsTotal.WithLabelValues(workflow, step, outcome).Inc()
}

// RecordBackendRequest records a backend request.
func (m *Metrics) RecordBackendRequest(method, resource string, status int, duration time.Duration) {
	m.BackendRequestsTotal.WithLabelValues(method, resource, strconv.Itoa(status)).Inc()
	m.BackendRequestDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// SetCircuitBreakerState sets the circuit breaker state gauge.
// State: 0=closed, 1=half-open, 2=open.
func (m *Metrics) SetCircuitBreakerState(state float64) {
	m.BackendCircuitBreakerState.Set(state)
}

// --- HTTP Middleware ---

// MetricsMiddleware returns HTTP middleware that records request metrics using
// chi's route pattern (not the actual URL path) to avoid label cardinality
// explosion.
func (m *Metrics) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &metricsResponseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(sw, r)

		duration := time.Since(start)
		pathPattern := routePattern(r)
		reqSize := 0
		if r.ContentLength > 0 {
			reqSize = int(r.ContentLength)
		}

		m.RecordHTTPRequest(r.Method, pathPattern, sw.status, duration, reqSize, sw.bytes)
	})
}

// Handler returns the Prometheus HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// routePattern extracts chi's route pattern from the request context.
// Falls back to the raw URL path if no pattern is found.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path
	}
	pattern := strings.Join(rctx.RoutePatterns, "")
	// chi route patterns have trailing /*, remove it.
	pattern = strings.TrimSuffix(pattern, "/*")
	if pattern == "" {
		return r.URL.Path
	}
	return pattern
}

// metricsResponseWriter wraps http.ResponseWriter to capture status and bytes.
type metricsResponseWriter struct {
	http.ResponseWriter
	status  int
	bytes   int
	written bool
}

func (w *metricsResponseWriter) WriteHeader(code int) {
	if !w.written {
		w.status = code
		w.written = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *metricsResponseWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
