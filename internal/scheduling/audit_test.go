package scheduling

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hackgods/doctor-slot-booking/internal/metrics"
)

func TestFindViolations(t *testing.T) {
	doctor := uuid.New()
	mk := func(start, end int, available bool) TimeSlot {
		return TimeSlot{ID: uuid.New(), DoctorID: doctor, Date: day(2025, 1, 10), StartTime: hm(start, 0), EndTime: hm(end, 0), IsAvailable: available}
	}

	healthyFree := mk(7, 8, true)
	healthyTaken := mk(8, 9, false)
	freeButBooked := mk(9, 10, true)
	takenButEmpty := mk(10, 11, false)
	doubleBooked := mk(11, 12, false)
	overlapA := mk(13, 15, true)
	overlapB := mk(14, 16, true)

	occupancy := []SlotOccupancy{
		{Slot: healthyFree},
		{Slot: healthyTaken, LiveAppointments: 1, TotalAppointments: 2},
		{Slot: freeButBooked, LiveAppointments: 1, TotalAppointments: 1},
		{Slot: takenButEmpty, TotalAppointments: 1},
		{Slot: doubleBooked, LiveAppointments: 2, TotalAppointments: 2},
		{Slot: overlapA},
		{Slot: overlapB},
	}

	got := map[string][]uuid.UUID{}
	for _, v := range findViolations(occupancy) {
		got[v.Kind] = append(got[v.Kind], v.SlotID)
	}

	assert.Equal(t, map[string][]uuid.UUID{
		ViolationAvailableWithLive:    {freeButBooked.ID},
		ViolationUnavailableNoLive:    {takenButEmpty.ID},
		ViolationMultipleLive:         {doubleBooked.ID},
		ViolationOverlappingAvailable: {overlapA.ID},
	}, got)
}

func TestAuditorCountsViolations(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	// Write an inconsistent row straight through the repository.
	slot := TimeSlot{ID: uuid.New(), DoctorID: uuid.New(), Date: day(2025, 1, 10), StartTime: hm(9, 0), EndTime: hm(9, 30)}
	require.NoError(t, repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertSlot(ctx, &slot)
	}))

	reg := prometheus.NewRegistry()
	m := metrics.NewBookingMetrics(reg)
	auditor := NewAuditor(repo, zaptest.NewLogger(t), m)

	report, err := auditor.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SlotsChecked)
	require.Len(t, report.Violations, 1)
	assert.Equal(t, ViolationUnavailableNoLive, report.Violations[0].Kind)
	assert.False(t, report.OK())

	n, err := testutil.GatherAndCount(reg, "booking_invariant_violations_total", "booking_audit_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// The auditor reports only.
	stored, err := repo.GetSlot(ctx, slot.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsAvailable)
}

func TestAuditorCleanAfterOperations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	slot := f.slot(t, f.doctor, day(2025, 1, 10), hm(9, 0), hm(9, 30))
	f.slot(t, f.doctor, day(2025, 1, 10), hm(9, 30), hm(10, 0))
	appt := f.book(t, f.patient, slot)
	_, err := f.core.ChangeStatus(ctx, f.doctor, appt.ID, StatusConfirmed)
	require.NoError(t, err)

	report, err := NewAuditor(f.repo, nil, nil).Run(ctx)
	require.NoError(t, err)
	assert.True(t, report.OK())
	assert.Equal(t, 2, report.SlotsChecked)
}
