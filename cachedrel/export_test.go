package cachedrel

import "github.com/prometheus/client_golang/prometheus"

// Operations returns the operation counter of one label set.
func (m *Metrics) Operations(model, field, op string) prometheus.Counter {
	return m.operations.WithLabelValues(model, field, op)
}

// Failures returns the failure counter of one label set.
func (m *Metrics) Failures(model, field, op string) prometheus.Counter {
	return m.failures.WithLabelValues(model, field, op)
}
