package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the reservation core.
type BookingMetrics struct {
	operationsTotal     *prometheus.CounterVec
	operationDuration   *prometheus.HistogramVec
	invariantViolations *prometheus.CounterVec
	auditRuns           *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "operations_total",
			Help:      "Core operations by outcome (ok or error kind)",
		}, []string{"operation", "outcome"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "booking",
			Name:      "operation_duration_seconds",
			Help:      "Latency of core operations including lock wait",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		invariantViolations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "invariant_violations_total",
			Help:      "Slot/appointment invariant violations found by the auditor",
		}, []string{"kind"}),
		auditRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Name:      "audit_runs_total",
			Help:      "Invariant audit runs by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operationsTotal, m.operationDuration, m.invariantViolations, m.auditRuns)
	return m
}

func (m *BookingMetrics) ObserveOperation(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

func (m *BookingMetrics) ObserveViolation(kind string) {
	if m == nil {
		return
	}
	m.invariantViolations.WithLabelValues(kind).Inc()
}

func (m *BookingMetrics) ObserveAuditRun(result string) {
	if m == nil {
		return
	}
	m.auditRuns.WithLabelValues(result).Inc()
}
