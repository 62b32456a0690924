package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "carepulse"

var latencyBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10}

// SignalMetrics holds all Prometheus metrics for the signal core. A nil *SignalMetrics
// is valid and records nothing.
type SignalMetrics struct {
	SamplesTotal       *prometheus.CounterVec
	RateLimitDecisions *prometheus.CounterVec
	EvaluatorTicks     *prometheus.CounterVec
	EvaluatorDuration  prometheus.Histogram
	AlertsTriggered    *prometheus.CounterVec
	UrgentAlerts       *prometheus.CounterVec
	FanoutDelivered    *prometheus.CounterVec
	FanoutSubscribers  prometheus.Gauge
	JobsProcessed      *prometheus.CounterVec
	WALActive          prometheus.Gauge
	HTTPRequests       *prometheus.CounterVec
	HTTPLatency        *prometheus.HistogramVec
}

// NewSignalMetrics registers the metrics with reg. Tests pass a fresh registry.
func NewSignalMetrics(reg prometheus.Registerer) *SignalMetrics {
	f := promauto.With(reg)
	return &SignalMetrics{
		SamplesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "counter",
			Name:      "samples_total",
			Help:      "Metric samples recorded, by type family and outcome.",
		}, []string{"family", "status"}), // status: stored, error
		RateLimitDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "decisions_total",
			Help:      "Rate-limit decisions by scope and outcome.",
		}, []string{"scope", "outcome"}), // outcome: allowed, rejected, degraded
		EvaluatorTicks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "ticks_total",
			Help:      "Evaluator ticks by outcome.",
		}, []string{"outcome"}), // outcome: completed, skipped
		EvaluatorDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "tick_duration_seconds",
			Help:      "Duration of a full evaluator tick.",
			Buckets:   latencyBuckets,
		}),
		AlertsTriggered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluator",
			Name:      "alerts_triggered_total",
			Help:      "Active alerts created, by rule and severity.",
		}, []string{"rule", "severity"}),
		UrgentAlerts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "urgent",
			Name:      "alerts_total",
			Help:      "Urgent alerts created, by tier.",
		}, []string{"priority"}),
		FanoutDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "messages_total",
			Help:      "Messages handed to subscribers, by outcome.",
		}, []string{"outcome"}), // outcome: delivered, dropped
		FanoutSubscribers: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "fanout",
			Name:      "subscribers",
			Help:      "Currently attached subscribers.",
		}),
		JobsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "processed_total",
			Help:      "Jobs processed by type and outcome.",
		}, []string{"job_type", "outcome"}), // outcome: completed, retried, failed
		WALActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "counter",
			Name:      "wal_active_gauge",
			Help:      "1 while samples are being diverted to the write-ahead log.",
		}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_requests_total",
			Help:      "Count of processed HTTP requests.",
		}, []string{"method", "route", "status"}),
		HTTPLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "http_request_duration_seconds",
			Help:      "Latency distribution of HTTP handlers.",
			Buckets:   latencyBuckets,
		}, []string{"method", "route", "status"}),
	}
}

func (m *SignalMetrics) SampleRecorded(family string, err error) {
	if m == nil {
		return
	}
	status := "stored"
	if err != nil {
		status = "error"
	}
	m.SamplesTotal.WithLabelValues(family, status).Inc()
}

func (m *SignalMetrics) RateLimitDecision(scope, outcome string) {
	if m == nil {
		return
	}
	m.RateLimitDecisions.WithLabelValues(scope, outcome).Inc()
}

func (m *SignalMetrics) EvaluatorTick(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.EvaluatorTicks.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		m.EvaluatorDuration.Observe(d.Seconds())
	}
}

func (m *SignalMetrics) AlertTriggered(rule, severity string) {
	if m == nil {
		return
	}
	m.AlertsTriggered.WithLabelValues(rule, severity).Inc()
}

func (m *SignalMetrics) UrgentAlertCreated(priority string) {
	if m == nil {
		return
	}
	m.UrgentAlerts.WithLabelValues(priority).Inc()
}

func (m *SignalMetrics) FanoutResult(delivered, dropped int) {
	if m == nil {
		return
	}
	m.FanoutDelivered.WithLabelValues("delivered").Add(float64(delivered))
	m.FanoutDelivered.WithLabelValues("dropped").Add(float64(dropped))
}

func (m *SignalMetrics) SetSubscribers(n int) {
	if m == nil {
		return
	}
	m.FanoutSubscribers.Set(float64(n))
}

func (m *SignalMetrics) JobProcessed(jobType, outcome string) {
	if m == nil {
		return
	}
	m.JobsProcessed.WithLabelValues(jobType, outcome).Inc()
}

func (m *SignalMetrics) SetWALActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.WALActive.Set(1)
	} else {
		m.WALActive.Set(0)
	}
}

func (m *SignalMetrics) HTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	code := strconv.Itoa(status)
	m.HTTPRequests.WithLabelValues(method, route, code).Inc()
	m.HTTPLatency.WithLabelValues(method, route, code).Observe(d.Seconds())
}
