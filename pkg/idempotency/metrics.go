package idempotency

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes
const (
	OutcomeMiss         = "miss"
	OutcomeHit          = "hit"
	OutcomeMismatch     = "mismatch"
	OutcomeConcurrent   = "concurrent"
	OutcomeStorageError = "storage_error"
	OutcomeReleased     = "released"
)

// Metrics holds idempotency Prometheus metrics
type Metrics struct {
	Requests *prometheus.CounterVec
}

// NewMetrics registers the idempotency metrics on registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)
	return &Metrics{
		Requests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "idempotency_requests_total",
				Help: "Requests carrying an Idempotency-Key by outcome",
			},
			[]string{"service", "method", "outcome"},
		),
	}
}

func (m *Metrics) record(service, method, outcome string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(service, method, outcome).Inc()
}
