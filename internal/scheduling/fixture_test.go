package scheduling

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/hackgods/doctor-slot-booking/internal/clock"
)

// Thursday 2025-01-09 08:00 UTC.
var fixedNow = time.Date(2025, 1, 9, 8, 0, 0, 0, time.UTC)

type fixture struct {
	repo  *MemoryRepository
	clock *clock.Mock
	core  *ReservationCore

	admin   Actor
	doctor  Actor
	doctor2 Actor
	patient Actor
	other   Actor
}

func newFixture(t *testing.T, locker SlotLocker) *fixture {
	t.Helper()

	repo := NewMemoryRepository()
	clk := clock.NewMock(fixedNow)
	core := NewReservationCore(Options{
		Repository: repo,
		Locker:     locker,
		Clock:      clk,
		Logger:     zaptest.NewLogger(t),
	})

	return &fixture{
		repo:    repo,
		clock:   clk,
		core:    core,
		admin:   Actor{UserID: uuid.New(), Role: RoleAdmin},
		doctor:  Actor{UserID: uuid.New(), Role: RoleDoctor},
		doctor2: Actor{UserID: uuid.New(), Role: RoleDoctor},
		patient: Actor{UserID: uuid.New(), Role: RolePatient},
		other:   Actor{UserID: uuid.New(), Role: RolePatient},
	}
}

func day(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func hm(h, m int) civil.Time {
	return civil.Time{Hour: h, Minute: m}
}

func (f *fixture) slot(t *testing.T, doctor Actor, date civil.Date, start, end civil.Time) *TimeSlot {
	t.Helper()
	s, err := f.core.CreateSlot(context.Background(), doctor, doctor.UserID, date, start, end)
	require.NoError(t, err)
	return s
}

func (f *fixture) book(t *testing.T, patient Actor, slot *TimeSlot) *Appointment {
	t.Helper()
	a, err := f.core.BookSlot(context.Background(), patient, BookingRequest{
		DoctorID:  slot.DoctorID,
		PatientID: patient.UserID,
		SlotID:    slot.ID,
	})
	require.NoError(t, err)
	return a
}

func (f *fixture) slotState(t *testing.T, id uuid.UUID) *TimeSlot {
	t.Helper()
	s, err := f.core.GetSlot(context.Background(), id)
	require.NoError(t, err)
	return s
}

// requireConsistent runs the auditor over the repository and fails on any
// violation.
func (f *fixture) requireConsistent(t *testing.T) {
	t.Helper()
	report, err := NewAuditor(f.repo, zaptest.NewLogger(t), nil).Run(context.Background())
	require.NoError(t, err)
	require.Empty(t, report.Violations)
}
