package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics shared by all endpoints.
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

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Engine metrics.
var (
	authzDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_decisions_total",
			Help: "Permission resolution verdicts by result and reason.",
		},
		[]string{"result", "reason"},
	)

	ndaTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "authz_nda_transitions_total",
			Help: "NDA workflow transitions by action.",
		},
		[]string{"action"},
	)

	sweepProcessed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "authz_sweep_expired_total",
		Help: "NDA requests transitioned to expired by the sweep.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		authzDecisions, ndaTransitions, sweepProcessed,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveDecision records one resolver verdict.
func ObserveDecision(granted bool, reason string) {
	result := "deny"
	if granted {
		result = "allow"
	}
	authzDecisions.WithLabelValues(result, reason).Inc()
}

// ObserveNdaTransition records one NDA workflow action.
func ObserveNdaTransition(action string) {
	ndaTransitions.WithLabelValues(action).Inc()
}

// ObserveSweep records n requests expired by one sweep run.
func ObserveSweep(n int) {
	sweepProcessed.Add(float64(n))
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metrics and logging.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
