package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: snapshot lookups by result (hit | miss | parse_error | error).
	SnapshotLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_lookups_total",
			Help: "Total number of snapshot lookups by result.",
		},
		[]string{"result"},
	)

	// Counter: snapshot writes by result (ok | error).
	SnapshotWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_writes_total",
			Help: "Total number of snapshot writes by result.",
		},
		[]string{"result"},
	)

	// Counter: live captures by result (ok | transport_error | error).
	SnapshotCapturesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "snapshot_captures_total",
			Help: "Total number of live captures by result.",
		},
		[]string{"result"},
	)

	// Counter: gateway error responses by code.
	GatewayErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_errors_total",
			Help: "Total number of gateway error responses by error code.",
		},
		[]string{"code"},
	)

	// Histogram: snapshot store latency in seconds.
	SnapshotStoreLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "snapshot_store_latency_seconds",
			Help:    "Snapshot store operation latency in seconds.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		},
		[]string{"op"},
	)

	// Histogram: gateway HTTP latency in seconds.
	GatewayLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_latency_seconds",
			Help:    "HTTP request latency for the gateway in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"path", "method", "status_code"},
	)
)

var registerOnce sync.Once

// Register is called once in main() to register metrics.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			SnapshotLookupsTotal,
			SnapshotWritesTotal,
			SnapshotCapturesTotal,
			GatewayErrorsTotal,
			SnapshotStoreLatencySeconds,
			GatewayLatencySeconds,
		)
	})
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures gateway latency for each HTTP request. Proxied paths
// are unbounded, so only the first path segment is used as the label.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// capture status code
		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		duration := time.Since(start).Seconds()

		GatewayLatencySeconds.
			WithLabelValues(pathLabel(r.URL.Path), r.Method, strconv.Itoa(rec.statusCode)).
			Observe(duration)
	})
}

func pathLabel(p string) string {
	if p == "" || p == "/" {
		return "/"
	}
	for i := 1; i < len(p); i++ {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return p
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush lets streamed live responses through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
