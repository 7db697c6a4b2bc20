package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "admin_ops"

// Metrics holds the Prometheus collectors of the service on a private registry.
type Metrics struct {
	registry         *prometheus.Registry
	requestCount     *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	errorCount       *prometheus.CounterVec
	swallowedErrors  *prometheus.CounterVec
	sessionEvents    *prometheus.CounterVec
	escalations      *prometheus.CounterVec
	escalationAction *prometheus.CounterVec
	escalationPasses *prometheus.CounterVec
}

// NewMetrics initializes the registry and collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by path, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errorCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_errors_total",
			Help:      "HTTP errors by path, method and error code.",
		}, []string{"path", "method", "code"}),
		swallowedErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "swallowed_errors_total",
			Help:      "Best-effort operations that failed and were not propagated.",
		}, []string{"component", "operation"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events emitted.",
		}, []string{"type"}),
		escalations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalations_created_total",
			Help:      "Escalations created by trigger type.",
		}, []string{"type"}),
		escalationAction: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalation_actions_total",
			Help:      "Escalation actions by type and outcome.",
		}, []string{"type", "status"}),
		escalationPasses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "escalation_passes_total",
			Help:      "Escalation scan passes by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestCount,
		m.requestDuration,
		m.errorCount,
		m.swallowedErrors,
		m.sessionEvents,
		m.escalations,
		m.escalationAction,
		m.escalationPasses,
	)
	return m
}

// Registry exposes the registry for the /metrics handler.
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

// RecordSwallowed counts a best-effort failure that was logged and dropped.
func (m *Metrics) RecordSwallowed(component, operation string) {
	if m == nil {
		return
	}
	m.swallowedErrors.WithLabelValues(component, operation).Inc()
}

// RecordSessionEvent counts an emitted session event.
func (m *Metrics) RecordSessionEvent(eventType string) {
	if m == nil {
		return
	}
	m.sessionEvents.WithLabelValues(eventType).Inc()
}

// RecordEscalation counts a created escalation.
func (m *Metrics) RecordEscalation(triggerType string) {
	if m == nil {
		return
	}
	m.escalations.WithLabelValues(triggerType).Inc()
}

// RecordEscalationAction counts an executed action by outcome.
func (m *Metrics) RecordEscalationAction(actionType, status string) {
	if m == nil {
		return
	}
	m.escalationAction.WithLabelValues(actionType, status).Inc()
}

// RecordEscalationPass counts a finished scan pass.
func (m *Metrics) RecordEscalationPass(outcome string) {
	if m == nil {
		return
	}
	m.escalationPasses.WithLabelValues(outcome).Inc()
}
