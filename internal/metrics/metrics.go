package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Resolution metrics
	cacheLookups      *prometheus.CounterVec
	fetchAttempts     *prometheus.CounterVec
	fetchDuration     prometheus.Histogram
	resolutions       *prometheus.CounterVec
	batches           *prometheus.CounterVec
	batchDuration     prometheus.Histogram
	endpointSelection *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		httpRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.httpRequestsTotal)
	reg.MustRegister(r.httpRequestDuration)
	reg.MustRegister(r.httpRequestsInFlight)

	r.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricefeed_cache_lookups_total",
			Help: "Quote cache lookups by result",
		},
		[]string{"result"},
	)
	r.fetchAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricefeed_fetch_attempts_total",
			Help: "Live feed fetch attempts by outcome",
		},
		[]string{"outcome"},
	)
	r.fetchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricefeed_fetch_duration_seconds",
			Help:    "Live feed fetch attempt duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 7},
		},
	)
	r.resolutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricefeed_resolutions_total",
			Help: "Completed resolutions by quote source",
		},
		[]string{"source"},
	)
	r.batches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricefeed_batches_total",
			Help: "Batch resolutions by status",
		},
		[]string{"status"},
	)
	r.batchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pricefeed_batch_duration_seconds",
			Help:    "Batch resolution duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 4, 8},
		},
	)
	r.endpointSelection = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pricefeed_endpoint_selections_total",
			Help: "RPC endpoint handles built, by target",
		},
		[]string{"target"},
	)

	reg.MustRegister(r.cacheLookups)
	reg.MustRegister(r.fetchAttempts)
	reg.MustRegister(r.fetchDuration)
	reg.MustRegister(r.resolutions)
	reg.MustRegister(r.batches)
	reg.MustRegister(r.batchDuration)
	reg.MustRegister(r.endpointSelection)

	return r
}

// RecordRequest records metrics for an HTTP request.
func (r *Registry) RecordRequest(method, path string, status int, duration float64) {
	statusStr := statusToString(status)
	r.httpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
	r.httpRequestDuration.WithLabelValues(method, path).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.httpRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.httpRequestsInFlight.Dec()
}

// RecordCacheLookup records a cache hit or miss.
func (r *Registry) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheLookups.WithLabelValues(result).Inc()
}

// RecordAttempt records one live fetch attempt.
func (r *Registry) RecordAttempt(outcome string, duration time.Duration) {
	r.fetchAttempts.WithLabelValues(outcome).Inc()
	r.fetchDuration.Observe(duration.Seconds())
}

// RecordResolution records a completed resolution.
func (r *Registry) RecordResolution(source string) {
	r.resolutions.WithLabelValues(source).Inc()
}

// RecordBatch records a completed batch.
func (r *Registry) RecordBatch(status string, duration time.Duration) {
	r.batches.WithLabelValues(status).Inc()
	r.batchDuration.Observe(duration.Seconds())
}

// RecordEndpointSelected records a newly built endpoint handle.
func (r *Registry) RecordEndpointSelected(target string) {
	r.endpointSelection.WithLabelValues(target).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.Registry, promhttp.HandlerOpts{Registry: r.Registry})
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
