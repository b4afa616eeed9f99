package cachedrel

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts cached relation operations per model, field and
// operation ("add", "remove", "clear", "reload").
type Metrics struct {
	operations *prometheus.CounterVec
	failures   *prometheus.CounterVec
}

// NewMetrics creates the counters and registers them with reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ormfields_cached_relation_operations_total",
				Help: "Total number of cached many-to-many mutations",
			},
			[]string{"model", "field", "op"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ormfields_cached_relation_failures_total",
				Help: "Total number of cached many-to-many mutations that failed and left the cache untouched",
			},
			[]string{"model", "field", "op"},
		),
	}
}

func (m *Metrics) observe(model, field, op string, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(model, field, op).Inc()
	if err != nil {
		m.failures.WithLabelValues(model, field, op).Inc()
	}
}
