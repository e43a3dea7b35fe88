package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the recorder service.
type Metrics struct {
	registry            *prometheus.Registry
	requestsTotal       prometheus.Counter
	errorsTotal         prometheus.Counter
	recordingsStarted   prometheus.Counter
	recordingsCompleted prometheus.Counter
	recordingFailures   *prometheus.CounterVec
	chunksTotal         prometheus.Counter
	chunkBytesTotal     prometheus.Counter
	chunksDroppedTotal  prometheus.Counter
	liveArtifacts       prometheus.Gauge
}

// New creates and registers Prometheus metrics for the recorder.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "screenrec_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "screenrec_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	recordingsStarted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "screenrec_recordings_started_total",
		Help: "Total number of recordings that reached the recording state",
	})
	recordingsCompleted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "screenrec_recordings_completed_total",
		Help: "Total number of recordings assembled into an artifact",
	})
	recordingFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "screenrec_recording_failures_total",
		Help: "Total number of capture or recorder failures by reason",
	}, []string{"reason"})
	chunksTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "screenrec_chunks_total",
		Help: "Total number of chunks appended to a recording",
	})
	chunkBytesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "screenrec_chunk_bytes_total",
		Help: "Total number of chunk bytes appended to a recording",
	})
	chunksDroppedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "screenrec_chunks_dropped_total",
		Help: "Total number of empty chunks dropped",
	})
	liveArtifacts := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "screenrec_live_artifacts",
		Help: "Number of artifact handles not yet released",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		recordingsStarted,
		recordingsCompleted,
		recordingFailures,
		chunksTotal,
		chunkBytesTotal,
		chunksDroppedTotal,
		liveArtifacts,
	)

	return &Metrics{
		registry:            registry,
		requestsTotal:       requestsTotal,
		errorsTotal:         errorsTotal,
		recordingsStarted:   recordingsStarted,
		recordingsCompleted: recordingsCompleted,
		recordingFailures:   recordingFailures,
		chunksTotal:         chunksTotal,
		chunkBytesTotal:     chunkBytesTotal,
		chunksDroppedTotal:  chunksDroppedTotal,
		liveArtifacts:       liveArtifacts,
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

func (m *Metrics) IncRecordingsStarted() {
	m.recordingsStarted.Inc()
}

func (m *Metrics) IncRecordingsCompleted() {
	m.recordingsCompleted.Inc()
}

// IncFailures counts one failure under its classified reason.
func (m *Metrics) IncFailures(reason string) {
	m.recordingFailures.WithLabelValues(reason).Inc()
}

// AddChunk records one appended chunk of n bytes.
func (m *Metrics) AddChunk(n int) {
	m.chunksTotal.Inc()
	m.chunkBytesTotal.Add(float64(n))
}

func (m *Metrics) IncChunksDropped() {
	m.chunksDroppedTotal.Inc()
}

// SetLiveArtifacts sets the live artifact handle gauge.
func (m *Metrics) SetLiveArtifacts(n int) {
	m.liveArtifacts.Set(float64(n))
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values.
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
