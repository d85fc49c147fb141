// Package metrics exposes Prometheus collectors for the HTTP API, the
// automation surface and the job processor.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	xerrors "DealPilot/internal/errors"
	"DealPilot/internal/task"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "dealpilot"

var latencyBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Registry owns a private Prometheus registry and the collectors recorded into it.
type Registry struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpErrors   *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	surfaceCalls   *prometheus.CounterVec
	surfaceLatency *prometheus.HistogramVec

	jobs        *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

// New builds a Registry with collectors under namespace.
func New(namespace string) *Registry {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}
	r := &Registry{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests processed.",
		}, []string{"handler", "method", "code"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_request_errors_total",
			Help:      "Total number of HTTP requests that resulted in a server error.",
		}, []string{"handler", "method"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   latencyBuckets,
		}, []string{"handler", "method"}),
		surfaceCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "surface_calls_total",
			Help:      "Automation surface goals grouped by platform, action and error code.",
		}, []string{"platform", "action", "code"}),
		surfaceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "surface_call_duration_seconds",
			Help:      "Automation surface goal duration in seconds.",
			Buckets:   latencyBuckets,
		}, []string{"platform", "action"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Jobs that reached a terminal status.",
		}, []string{"persona", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "job_duration_seconds",
			Help:      "Wall time of a single job attempt.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"persona"}),
	}
	r.registry.MustRegister(
		r.httpRequests, r.httpErrors, r.httpLatency,
		r.surfaceCalls, r.surfaceLatency,
		r.jobs, r.jobDuration,
	)
	return r
}

// Prometheus returns the underlying registry.
func (r *Registry) Prometheus() *prometheus.Registry {
	return r.registry
}

// ObserveHTTPRequest records metrics about an HTTP request lifecycle.
func (r *Registry) ObserveHTTPRequest(handler, method string, status int, duration time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(handler, method, strconv.Itoa(status)).Inc()
	if status >= http.StatusInternalServerError {
		r.httpErrors.WithLabelValues(handler, method).Inc()
	}
	r.httpLatency.WithLabelValues(handler, method).Observe(duration.Seconds())
}

// ObserveSurfaceCall records one platform goal.
func (r *Registry) ObserveSurfaceCall(platform, action string, took time.Duration, err error) {
	if r == nil {
		return
	}
	code := "ok"
	if err != nil {
		code = string(xerrors.CodeOf(err))
	}
	r.surfaceCalls.WithLabelValues(platform, action, code).Inc()
	r.surfaceLatency.WithLabelValues(platform, action).Observe(took.Seconds())
}

// ObserveJob records a finished job attempt.
func (r *Registry) ObserveJob(persona string, status task.Status, took time.Duration) {
	if r == nil {
		return
	}
	r.jobs.WithLabelValues(persona, string(status)).Inc()
	r.jobDuration.WithLabelValues(persona).Observe(took.Seconds())
}

// Handler exposes the metrics in Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Middleware records request metrics under the given handler label.
func (r *Registry) Middleware(handler string, next http.Handler) http.Handler {
	if r == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		r.ObserveHTTPRequest(handler, req.Method, rec.status, time.Since(started))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Hijack passes websocket upgrades through to the wrapped writer.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}
