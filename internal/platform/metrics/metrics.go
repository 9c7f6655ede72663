package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the join service. It
// also implements join.Observer so engines report into it directly.
type Metrics struct {
	registry              *prometheus.Registry
	requestsTotal         prometheus.Counter
	errorsTotal           prometheus.Counter
	sessionsCreatedTotal  prometheus.Counter
	sessionsEndedTotal    prometheus.Counter
	activeSessions        prometheus.Gauge
	segmentsIngestedTotal prometheus.Counter
	bytesIngestedTotal    prometheus.Counter
	segmentsPlayedTotal   prometheus.Counter
	segmentsEvictedTotal  prometheus.Counter
	segmentsSkippedTotal  prometheus.Counter
	segmentsReloadedTotal prometheus.Counter
	playbackRate          prometheus.Histogram
}

// New creates and registers Prometheus metrics for the service.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vj_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vj_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		sessionsCreatedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vj_sessions_created_total",
			Help: "Total number of join sessions created",
		}),
		sessionsEndedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vj_sessions_ended_total",
			Help: "Total number of join sessions ended",
		}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vj_active_sessions",
			Help: "Number of join sessions that are not ended",
		}),
		segmentsIngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vj_segments_ingested_total",
			Help: "Total number of segments ingested",
		}),
		bytesIngestedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vj_bytes_ingested_total",
			Help: "Total payload bytes ingested",
		}),
		segmentsPlayedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vj_segments_played_total",
			Help: "Total number of segments whose playback started",
		}),
		segmentsEvictedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vj_segments_evicted_total",
			Help: "Total number of segments evicted and released",
		}),
		segmentsSkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vj_segments_skipped_total",
			Help: "Total number of segments skipped as missing or undecodable",
		}),
		segmentsReloadedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vj_segments_reloaded_total",
			Help: "Total number of segment reloads after a load or play failure",
		}),
		playbackRate: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vj_playback_rate",
			Help:    "Playback rate applied when a segment starts",
			Buckets: []float64{1, 2, 4, 8, 12, 16},
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.sessionsCreatedTotal,
		m.sessionsEndedTotal,
		m.activeSessions,
		m.segmentsIngestedTotal,
		m.bytesIngestedTotal,
		m.segmentsPlayedTotal,
		m.segmentsEvictedTotal,
		m.segmentsSkippedTotal,
		m.segmentsReloadedTotal,
		m.playbackRate,
	)

	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncSessionsCreated increments the sessions created counter.
func (m *Metrics) IncSessionsCreated() {
	m.sessionsCreatedTotal.Inc()
}

// IncSessionsEnded increments the sessions ended counter.
func (m *Metrics) IncSessionsEnded() {
	m.sessionsEndedTotal.Inc()
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// SegmentIngested implements join.Observer.
func (m *Metrics) SegmentIngested(bytes int) {
	m.segmentsIngestedTotal.Inc()
	m.bytesIngestedTotal.Add(float64(bytes))
}

// SegmentStarted implements join.Observer.
func (m *Metrics) SegmentStarted(_ int, rate float64) {
	m.segmentsPlayedTotal.Inc()
	m.playbackRate.Observe(rate)
}

// SegmentsEvicted implements join.Observer.
func (m *Metrics) SegmentsEvicted(n int) {
	m.segmentsEvictedTotal.Add(float64(n))
}

// SegmentSkipped implements join.Observer.
func (m *Metrics) SegmentSkipped(int) {
	m.segmentsSkippedTotal.Inc()
}

// SegmentReloaded implements join.Observer.
func (m *Metrics) SegmentReloaded(int) {
	m.segmentsReloadedTotal.Inc()
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
