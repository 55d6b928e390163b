package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "chatvault",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatvault",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "chatvault",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	vaultUnlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatvault",
			Subsystem: "vault",
			Name:      "unlocks_total",
			Help:      "Total number of vault unlock attempts.",
		},
		[]string{"status"},
	)

	vaultUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatvault",
			Subsystem: "vault",
			Name:      "updates_total",
			Help:      "Total number of vault update operations by outcome.",
		},
		[]string{"outcome"},
	)

	cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "chatvault",
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Total number of session cache lookups.",
		},
		[]string{"result"},
	)

	deriveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "chatvault",
			Subsystem: "vault",
			Name:      "derive_duration_seconds",
			Help:      "Duration of key derivations including queue wait.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 8), // 50ms to ~6s
		},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		vaultUnlocks,
		vaultUpdates,
		cacheLookups,
		deriveDuration,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		path := canonicalPath(r.URL.Path)
		method := strings.ToUpper(r.Method)

		httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	})
}

// RecordUnlock counts an unlock attempt by result.
func RecordUnlock(status string) {
	vaultUnlocks.WithLabelValues(status).Inc()
}

// RecordUpdate counts a vault update by outcome.
func RecordUpdate(outcome string) {
	vaultUpdates.WithLabelValues(outcome).Inc()
}

// RecordCacheLookup counts a session cache lookup as a hit or a miss.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookups.WithLabelValues(result).Inc()
}

// RecordDerive observes a key derivation duration.
func RecordDerive(duration time.Duration) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	deriveDuration.Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func canonicalPath(raw string) string {
	if raw == "" || raw == "/" {
		return "/"
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	if len(parts) <= 2 {
		return "/" + strings.Join(parts, "/")
	}
	// Collapse ids so label cardinality stays bounded.
	return "/" + parts[0] + "/" + parts[1]
}
