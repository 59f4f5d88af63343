package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the service exports. All recording methods
// are safe to call on a nil *Metrics so that components can run unmetered.
type Metrics struct {
	serviceName string
	registry    *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	// Kafka metrics
	KafkaEventsPublished *prometheus.CounterVec
	KafkaEventsConsumed  *prometheus.CounterVec
	KafkaPublishDuration *prometheus.HistogramVec

	// Outbox metrics
	OutboxPending   prometheus.Gauge
	OutboxPublished *prometheus.CounterVec
	OutboxRetries   *prometheus.CounterVec

	// Collaborator metrics
	CollaboratorCalls    *prometheus.CounterVec
	CollaboratorDuration *prometheus.HistogramVec

	// Destuffing workflow metrics
	DestuffOperations   *prometheus.CounterVec
	ResealRequired      prometheus.Counter
	CacheReconciles     *prometheus.CounterVec
	SessionDegradations prometheus.Counter

	// Circuit breaker metrics
	CircuitBreakerState *prometheus.GaugeVec
	CircuitBreakerTrips *prometheus.CounterVec
}

// Config holds metrics configuration
type Config struct {
	ServiceName string
	Namespace   string
}

// DefaultConfig returns default metrics configuration
func DefaultConfig(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		Namespace:   "wms",
	}
}

// New creates a new Metrics instance on a private registry
func New(config *Config) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	ns := config.Namespace
	m := &Metrics{serviceName: config.ServiceName, registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "http_requests_total", Help: "Total number of HTTP requests",
	}, []string{"service", "method", "path", "status"})
	m.HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"service", "method", "path"})
	m.HTTPRequestsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "http_requests_in_flight", Help: "Number of HTTP requests currently being processed",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.KafkaEventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "kafka_events_published_total", Help: "Total number of Kafka events published",
	}, []string{"service", "topic", "event_type", "status"})
	m.KafkaEventsConsumed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "kafka_events_consumed_total", Help: "Total number of Kafka events consumed",
	}, []string{"service", "topic", "event_type", "status"})
	m.KafkaPublishDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "kafka_publish_duration_seconds", Help: "Kafka publish duration in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	}, []string{"service", "topic"})

	m.OutboxPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: ns, Name: "outbox_pending_events", Help: "Unpublished outbox events seen on the last poll",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})
	m.OutboxPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "outbox_events_published_total", Help: "Outbox events relayed to Kafka",
	}, []string{"service", "event_type", "status"})
	m.OutboxRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "outbox_event_retries_total", Help: "Outbox publish retries",
	}, []string{"service", "event_type"})

	m.CollaboratorCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "collaborator_calls_total", Help: "Calls to upstream collaborator services",
	}, []string{"service", "collaborator", "operation", "status"})
	m.CollaboratorDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: ns, Name: "collaborator_call_duration_seconds", Help: "Collaborator call duration in seconds",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"service", "collaborator", "operation"})

	m.DestuffOperations = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "destuffing_operations_total", Help: "Destuffing workflow operations by outcome",
	}, []string{"service", "operation", "outcome"})
	m.ResealRequired = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "destuffing_reseal_required_total", Help: "Completion attempts rejected with a reseal requirement",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})
	m.CacheReconciles = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "destuffing_cache_reconciles_total", Help: "Container view reconciliations",
	}, []string{"service", "changed"})
	m.SessionDegradations = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: ns, Name: "destuffing_inspection_session_degraded_total", Help: "Destuff starts that proceeded without an inspection session",
		ConstLabels: prometheus.Labels{"service": config.ServiceName},
	})

	m.CircuitBreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: ns, Name: "circuit_breaker_state", Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
	}, []string{"service", "name"})
	m.CircuitBreakerTrips = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns, Name: "circuit_breaker_trips_total", Help: "Total number of circuit breaker trips",
	}, []string{"service", "name"})

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.KafkaEventsPublished,
		m.KafkaEventsConsumed,
		m.KafkaPublishDuration,
		m.OutboxPending,
		m.OutboxPublished,
		m.OutboxRetries,
		m.CollaboratorCalls,
		m.CollaboratorDuration,
		m.DestuffOperations,
		m.ResealRequired,
		m.CacheReconciles,
		m.SessionDegradations,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
	)

	return m
}

// Handler returns an HTTP handler for metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Registry returns the prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(m.serviceName, method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(m.serviceName, method, path).Observe(duration.Seconds())
}

// IncrementHTTPRequestsInFlight increments in-flight requests
func (m *Metrics) IncrementHTTPRequestsInFlight() {
	if m != nil {
		m.HTTPRequestsInFlight.Inc()
	}
}

// DecrementHTTPRequestsInFlight decrements in-flight requests
func (m *Metrics) DecrementHTTPRequestsInFlight() {
	if m != nil {
		m.HTTPRequestsInFlight.Dec()
	}
}

// RecordKafkaPublish records a Kafka publish event
func (m *Metrics) RecordKafkaPublish(topic, eventType string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.KafkaEventsPublished.WithLabelValues(m.serviceName, topic, eventType, statusLabel(success)).Inc()
	m.KafkaPublishDuration.WithLabelValues(m.serviceName, topic).Observe(duration.Seconds())
}

// RecordKafkaConsume records a Kafka consume event
func (m *Metrics) RecordKafkaConsume(topic, eventType string, success bool) {
	if m == nil {
		return
	}
	m.KafkaEventsConsumed.WithLabelValues(m.serviceName, topic, eventType, statusLabel(success)).Inc()
}

// SetOutboxPending sets the number of pending outbox events
func (m *Metrics) SetOutboxPending(count int) {
	if m != nil {
		m.OutboxPending.Set(float64(count))
	}
}

// RecordOutboxPublish records the outcome of relaying one outbox event
func (m *Metrics) RecordOutboxPublish(eventType string, success bool) {
	if m != nil {
		m.OutboxPublished.WithLabelValues(m.serviceName, eventType, statusLabel(success)).Inc()
	}
}

// RecordOutboxRetry records an outbox publish retry
func (m *Metrics) RecordOutboxRetry(eventType string) {
	if m != nil {
		m.OutboxRetries.WithLabelValues(m.serviceName, eventType).Inc()
	}
}

// RecordCollaboratorCall records one call to an upstream service
func (m *Metrics) RecordCollaboratorCall(collaborator, operation string, success bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.CollaboratorCalls.WithLabelValues(m.serviceName, collaborator, operation, statusLabel(success)).Inc()
	m.CollaboratorDuration.WithLabelValues(m.serviceName, collaborator, operation).Observe(duration.Seconds())
}

// RecordDestuffOperation records a workflow operation outcome
func (m *Metrics) RecordDestuffOperation(operation, outcome string) {
	if m != nil {
		m.DestuffOperations.WithLabelValues(m.serviceName, operation, outcome).Inc()
	}
}

// RecordResealRequired records a completion routed to reseal
func (m *Metrics) RecordResealRequired() {
	if m != nil {
		m.ResealRequired.Inc()
	}
}

// RecordCacheReconcile records a container view reconciliation
func (m *Metrics) RecordCacheReconcile(changed bool) {
	if m != nil {
		m.CacheReconciles.WithLabelValues(m.serviceName, strconv.FormatBool(changed)).Inc()
	}
}

// RecordSessionDegraded records a destuff start without an inspection session
func (m *Metrics) RecordSessionDegraded() {
	if m != nil {
		m.SessionDegradations.Inc()
	}
}

// SetCircuitBreakerState sets the circuit breaker state
func (m *Metrics) SetCircuitBreakerState(name string, state int) {
	if m != nil {
		m.CircuitBreakerState.WithLabelValues(m.serviceName, name).Set(float64(state))
	}
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *Metrics) RecordCircuitBreakerTrip(name string) {
	if m != nil {
		m.CircuitBreakerTrips.WithLabelValues(m.serviceName, name).Inc()
	}
}
