package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP collectors.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ecowatch_ready",
		Help: "1 when the last readiness check passed.",
	})

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Domain collectors.
var (
	ReadingsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecowatch_readings_ingested_total",
			Help: "Sensor readings accepted, by sensor type.",
		},
		[]string{"type"},
	)

	ReadingSinkFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecowatch_reading_sink_failures_total",
			Help: "Readings that could not be written to a secondary sink.",
		},
		[]string{"sink"},
	)

	ActionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecowatch_action_transitions_total",
			Help: "Action status changes, by source and target status.",
		},
		[]string{"from", "to"},
	)

	AccessDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ecowatch_access_denials_total",
			Help: "Requests refused by the role policy.",
		},
		[]string{"entity", "op"},
	)
)

var initOnce sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
			ReadingsIngested, ReadingSinkFailures, ActionTransitions, AccessDenials,
		)
	})
}

// SetReady records the outcome of the latest readiness check.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records request count, latency and in-flight gauge per
// canonical path.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

var collections = map[string]bool{"users": true, "zones": true, "sensors": true, "actions": true}

var subresources = map[string]bool{"archive": true, "snapshot": true, "readings": true}

// CanonicalPath collapses entity ids so metric label cardinality stays
// bounded: /v1/zones/01H.../snapshot becomes /v1/zones/:id/snapshot.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	if len(parts) < 3 || parts[0] != "v1" || !collections[parts[1]] || parts[2] == "metrics" {
		return p
	}
	switch len(parts) {
	case 3:
		return "/v1/" + parts[1] + "/:id"
	case 4:
		if subresources[parts[3]] {
			return "/v1/" + parts[1] + "/:id/" + parts[3]
		}
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
