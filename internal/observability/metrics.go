package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "video_assignment"

// Metrics exposes Prometheus collectors for requests, admissions and sweeps.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	requestCount    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errorCount      *prometheus.CounterVec
	admissions      *prometheus.CounterVec
	reclaims        *prometheus.CounterVec
	sweepFailures   prometheus.Counter
	sweepSkipped    *prometheus.CounterVec
	sweepDuration   prometheus.Histogram
	expiredGauge    prometheus.Gauge
}

// NewMetrics registers collectors on a dedicated registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "errors_total",
			Help:      "HTTP error responses by route, method and error code.",
		}, []string{"path", "method", "code"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "assignment",
			Name:      "admissions_total",
			Help:      "Assignment attempts by outcome (ASSIGNED or rejection code).",
		}, []string{"outcome"}),
		reclaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reclaim",
			Name:      "reclaimed_total",
			Help:      "Reclaimed videos by trigger (sweep, manual).",
		}, []string{"trigger"}),
		sweepFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reclaim",
			Name:      "item_failures_total",
			Help:      "Per-item reclaim failures during sweeps.",
		}),
		sweepSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reclaim",
			Name:      "passes_skipped_total",
			Help:      "Sweep passes skipped because another pass was in flight.",
		}, []string{"reason"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reclaim",
			Name:      "pass_duration_seconds",
			Help:      "Duration of sweep passes in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		expiredGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reclaim",
			Name:      "expired_assignments",
			Help:      "Expired assignments observed at the start of the last sweep pass.",
		}),
	}
	m.registry.MustRegister(
		m.requestCount,
		m.requestDuration,
		m.errorCount,
		m.admissions,
		m.reclaims,
		m.sweepFailures,
		m.sweepSkipped,
		m.sweepDuration,
		m.expiredGauge,
	)
	return m
}

// Registry returns the registry backing the collectors, for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordRequest increments counters for requests.
func (m *Metrics) RecordRequest(path, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestCount.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(duration.Seconds())
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errorCount.WithLabelValues(path, method, code).Inc()
}

// RecordAdmission counts an assignment attempt outcome.
func (m *Metrics) RecordAdmission(outcome string) {
	if m == nil {
		return
	}
	m.admissions.WithLabelValues(outcome).Inc()
}

// RecordReclaim counts a reclaimed video.
func (m *Metrics) RecordReclaim(trigger string) {
	if m == nil {
		return
	}
	m.reclaims.WithLabelValues(trigger).Inc()
}

// RecordSweep observes a finished sweep pass.
func (m *Metrics) RecordSweep(duration time.Duration, candidates, failures int) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
	m.expiredGauge.Set(float64(candidates))
	m.sweepFailures.Add(float64(failures))
}

// RecordSweepSkipped counts a pass that was not started.
func (m *Metrics) RecordSweepSkipped(reason string) {
	if m == nil {
		return
	}
	m.sweepSkipped.WithLabelValues(reason).Inc()
}
