package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for timeline builds and the inspection server.
type Metrics struct {
	registry          *prometheus.Registry
	requestsTotal     prometheus.Counter
	errorsTotal       prometheus.Counter
	buildsTotal       *prometheus.CounterVec
	segmentsAdmitted  prometheus.Counter
	segmentsRejected  *prometheus.CounterVec
	probeFailures     prometheus.Counter
	timelineSegments  prometheus.Gauge
	timelineSpan      prometheus.Gauge
	activeOutputs     prometheus.Gauge
	validationSeconds prometheus.Histogram
}

// New creates and registers Prometheus metrics on a private registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timeline_http_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timeline_http_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	buildsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_builds_total",
		Help: "Timeline builds by result",
	}, []string{"result"})
	segmentsAdmitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timeline_segments_admitted_total",
		Help: "Segments admitted into a timeline",
	})
	segmentsRejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timeline_segments_rejected_total",
		Help: "Segments skipped as unusable, by reason",
	}, []string{"reason"})
	probeFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "timeline_probe_failures_total",
		Help: "Reference segments whose capabilities could not be derived",
	})
	timelineSegments := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timeline_segments",
		Help: "Segments held by the last built timeline",
	})
	timelineSpan := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timeline_span_seconds",
		Help: "Distance from the earliest begin to the latest end of the last built timeline",
	})
	activeOutputs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "timeline_active_outputs",
		Help: "Published outputs that are currently running",
	})
	validationSeconds := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timeline_segment_validation_seconds",
		Help:    "Time spent building and validating one segment graph",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		buildsTotal,
		segmentsAdmitted,
		segmentsRejected,
		probeFailures,
		timelineSegments,
		timelineSpan,
		activeOutputs,
		validationSeconds,
	)

	return &Metrics{
		registry:          registry,
		requestsTotal:     requestsTotal,
		errorsTotal:       errorsTotal,
		buildsTotal:       buildsTotal,
		segmentsAdmitted:  segmentsAdmitted,
		segmentsRejected:  segmentsRejected,
		probeFailures:     probeFailures,
		timelineSegments:  timelineSegments,
		timelineSpan:      timelineSpan,
		activeOutputs:     activeOutputs,
		validationSeconds: validationSeconds,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncBuilds counts one finished build with the given result ("ok" or "error").
func (m *Metrics) IncBuilds(result string) {
	m.buildsTotal.WithLabelValues(result).Inc()
}

// IncSegmentsAdmitted increments the admitted segments counter.
func (m *Metrics) IncSegmentsAdmitted() {
	m.segmentsAdmitted.Inc()
}

// IncSegmentsRejected counts one rejected segment.
func (m *Metrics) IncSegmentsRejected(reason string) {
	m.segmentsRejected.WithLabelValues(reason).Inc()
}

// IncProbeFailures increments the probe failure counter.
func (m *Metrics) IncProbeFailures() {
	m.probeFailures.Inc()
}

// SetTimeline records the size and span of the last built timeline.
func (m *Metrics) SetTimeline(segments int, span time.Duration) {
	m.timelineSegments.Set(float64(segments))
	m.timelineSpan.Set(span.Seconds())
}

// SetActiveOutputs sets the running outputs gauge.
func (m *Metrics) SetActiveOutputs(n int) {
	m.activeOutputs.Set(float64(n))
}

// ObserveValidation records how long one segment took to validate.
func (m *Metrics) ObserveValidation(d time.Duration) {
	m.validationSeconds.Observe(d.Seconds())
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active outputs).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}

// WriteTextfile dumps the registry in text format for the node_exporter
// textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
