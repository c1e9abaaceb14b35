// Package metrics provides Prometheus instrumentation for upbridge.
//
// It pre-defines the HTTP, callback-dispatch, upload, and worker-pool metrics
// the service emits and exposes them on a private registry.
//
// Wire it up once in the HTTP kernel:
//
//	r.Use(metrics.Middleware())
//	r.Get("/metrics", "metrics", metrics.Handler())
//
// Then scrape http://localhost:8080/metrics from Prometheus.
package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "upbridge"

// ─────────────────────────────────────────────
// HTTP metrics
// ─────────────────────────────────────────────

var (
	// RequestDuration tracks how long each HTTP request takes,
	// broken down by method, route path, and status code.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RequestTotal counts all HTTP requests.
	RequestTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	// RequestInFlight tracks how many requests are currently being served.
	RequestInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being served.",
	})
)

// ─────────────────────────────────────────────
// Callback metrics
// ─────────────────────────────────────────────

var (
	// CallbackDispatches counts dispatches per event, mode and outcome.
	// Outcomes: completed | stopped (sync), resolved | rejected | failed (chained).
	CallbackDispatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "callback",
			Name:      "dispatches_total",
			Help:      "Total callback dispatches by event, mode and outcome.",
		},
		[]string{"event", "mode", "outcome"},
	)

	// CallbackDuration tracks how long a dispatch takes end to end, including
	// time spent waiting on chained promises.
	CallbackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "callback",
			Name:      "dispatch_duration_seconds",
			Help:      "Duration of callback dispatches in seconds.",
			Buckets:   []float64{.0001, .001, .01, .05, .1, .5, 1, 5},
		},
		[]string{"event", "mode"},
	)
)

// ─────────────────────────────────────────────
// Upload metrics
// ─────────────────────────────────────────────

var (
	// UploadsTotal counts uploads reaching a terminal status.
	UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "finished_total",
			Help:      "Uploads that reached a terminal status.",
		},
		[]string{"status"}, // "upload successful" | "upload failed" | "rejected" | "canceled" | "deleted"
	)

	// UploadBytes tracks the size of stored uploads.
	UploadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "upload",
		Name:      "size_bytes",
		Help:      "Size of stored uploads in bytes.",
		Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
	})

	// UploadDuration tracks time spent writing a blob to its disk.
	UploadDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "duration_seconds",
			Help:      "Duration of blob writes in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"disk"},
	)

	// PoolTasks counts worker-pool submissions by result.
	PoolTasks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workerpool",
			Name:      "tasks_total",
			Help:      "Worker pool task submissions by result.",
		},
		[]string{"result"}, // "accepted" | "full" | "closed" | "panicked"
	)
)

// ─────────────────────────────────────────────
// Registry
// ─────────────────────────────────────────────

// DefaultRegistry is the Prometheus registry used by upbridge.
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(collectors.NewGoCollector())
	DefaultRegistry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	DefaultRegistry.MustRegister(
		RequestDuration,
		RequestTotal,
		RequestInFlight,
		CallbackDispatches,
		CallbackDuration,
		UploadsTotal,
		UploadBytes,
		UploadDuration,
		PoolTasks,
	)
}

// ─────────────────────────────────────────────
// HTTP middleware
// ─────────────────────────────────────────────

// responseRecorder wraps http.ResponseWriter to capture the status code.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *responseRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Flush keeps the SSE stream working behind this middleware.
func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Hijack keeps the websocket upgrade working behind this middleware.
func (r *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("metrics: %T does not support hijacking", r.ResponseWriter)
	}
	return h.Hijack()
}

// Middleware records duration, total and in-flight metrics for every request.
func Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			RequestInFlight.Inc()
			defer RequestInFlight.Dec()

			rr := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rr, r)

			// Label by route pattern so upload ids do not explode cardinality.
			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if p := rctx.RoutePattern(); p != "" {
					path = p
				}
			}
			status := strconv.Itoa(rr.status)
			RequestDuration.WithLabelValues(r.Method, path, status).Observe(time.Since(start).Seconds())
			RequestTotal.WithLabelValues(r.Method, path, status).Inc()
		})
	}
}

// Handler exposes the metrics page. Mount it on GET /metrics.
func Handler() http.HandlerFunc {
	h := promhttp.HandlerFor(DefaultRegistry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
	return h.ServeHTTP
}

// ─────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────

// RecordDispatch records one callback dispatch.
func RecordDispatch(event, mode, outcome string, start time.Time) {
	CallbackDispatches.WithLabelValues(event, mode, outcome).Inc()
	CallbackDuration.WithLabelValues(event, mode).Observe(time.Since(start).Seconds())
}

// RecordUpload records a blob write to disk.
func RecordUpload(disk string, size int64, start time.Time) {
	UploadBytes.Observe(float64(size))
	UploadDuration.WithLabelValues(disk).Observe(time.Since(start).Seconds())
}

// RecordFinished counts an upload reaching a terminal status.
func RecordFinished(status string) {
	UploadsTotal.WithLabelValues(status).Inc()
}
