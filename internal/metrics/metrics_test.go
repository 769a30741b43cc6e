package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveOperation("book_slot", "ok", 0.01)
	m.ObserveOperation("book_slot", "slot_unavailable", 0.02)
	m.ObserveOperation("book_slot", "slot_unavailable", 0.03)
	m.ObserveViolation("unavailable_without_appointment")
	m.ObserveAuditRun("clean")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("book_slot", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("book_slot", "slot_unavailable")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.invariantViolations.WithLabelValues("unavailable_without_appointment")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.auditRuns.WithLabelValues("clean")))
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveOperation("cancel", "ok", 0.1)
	m.ObserveViolation("overlap")
	m.ObserveAuditRun("error")
}
