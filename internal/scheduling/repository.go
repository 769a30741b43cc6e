package scheduling

import (
	"context"
	"iter"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Repository contains all storage interactions needed by the stores.
//
// Every mutation happens inside WithTx. Implementations must make the writes
// performed by fn visible together or not at all, and must serialise
// transactions that lock the same slot, appointment or doctor-day.
type Repository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	// ListAvailableSlots yields available slots ordered by (date, start_time).
	ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, from civil.Date) iter.Seq2[TimeSlot, error]
	ListSlots(ctx context.Context, filter SlotFilter) ([]TimeSlot, error)
	DoctorsWithAvailability(ctx context.Context, from civil.Date) ([]uuid.UUID, error)

	GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)
	ListAppointments(ctx context.Context, filter AppointmentFilter) ([]AppointmentDetail, error)

	// Invariant audit
	SlotOccupancy(ctx context.Context) ([]SlotOccupancy, error)
}

// Tx is the transactional view used by the stores. Lock* methods take the
// row exclusively until the transaction ends.
type Tx interface {
	LockSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error)
	LockDoctorDay(ctx context.Context, doctorID uuid.UUID, date civil.Date) error
	ListDoctorSlotsOn(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]TimeSlot, error)
	InsertSlot(ctx context.Context, slot *TimeSlot) error
	UpdateSlotTimes(ctx context.Context, slot *TimeSlot) error
	// SetSlotAvailability reports whether the stored value changed.
	SetSlotAvailability(ctx context.Context, id uuid.UUID, available bool, at time.Time) (bool, error)
	DeleteSlot(ctx context.Context, id uuid.UUID) error
	CountSlotAppointments(ctx context.Context, slotID uuid.UUID) (int, error)

	LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error)
	AppointmentExists(ctx context.Context, doctorID, patientID, slotID uuid.UUID) (bool, error)
	InsertAppointment(ctx context.Context, appt *Appointment) error
	// UpdateAppointmentStatus only applies when the stored status equals from.
	UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, at time.Time) (*Appointment, error)
	DeleteAppointment(ctx context.Context, id uuid.UUID) error

	InsertEvent(ctx context.Context, ev EventLog) error
}
