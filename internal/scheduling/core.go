package scheduling

import (
	"context"
	"iter"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-slot-booking/internal/clock"
	"github.com/hackgods/doctor-slot-booking/internal/metrics"
)

// ReservationCore is the entry point for the request layer. It checks who is
// asking, then delegates to the stores, which own every state change.
type ReservationCore struct {
	Slots        *SlotStore
	Appointments *AppointmentStore
	clock        clock.Clock
}

type Options struct {
	Repository Repository
	Locker     SlotLocker
	Clock      clock.Clock
	Logger     *zap.Logger
	Metrics    *metrics.BookingMetrics
}

func NewReservationCore(opts Options) *ReservationCore {
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewSystem(nil)
	}
	slots := NewSlotStore(opts.Repository, clk, opts.Logger, opts.Metrics)
	return &ReservationCore{
		Slots:        slots,
		Appointments: NewAppointmentStore(opts.Repository, slots, opts.Locker, clk, opts.Logger, opts.Metrics),
		clock:        clk,
	}
}

// Today is the current date in the clock's location.
func (c *ReservationCore) Today() civil.Date {
	return civil.DateOf(c.clock.Now())
}

func (c *ReservationCore) BookSlot(ctx context.Context, actor Actor, req BookingRequest) (*Appointment, error) {
	if err := authorizeBooking(actor, req.PatientID); err != nil {
		return nil, err
	}
	return c.Appointments.Create(ctx, req)
}

func (c *ReservationCore) ChangeStatus(ctx context.Context, actor Actor, id uuid.UUID, status AppointmentStatus) (*Appointment, error) {
	return c.Appointments.ChangeStatus(ctx, id, status, actor)
}

func (c *ReservationCore) Cancel(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return c.Appointments.Cancel(ctx, id, actor)
}

func (c *ReservationCore) DeleteAppointment(ctx context.Context, actor Actor, id uuid.UUID) error {
	if err := authorizeAdmin(actor); err != nil {
		return err
	}
	return c.Appointments.Delete(ctx, id)
}

func (c *ReservationCore) GetAppointment(ctx context.Context, actor Actor, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := c.Appointments.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorizeParticipant(actor, &detail.Appointment); err != nil {
		return nil, err
	}
	return detail, nil
}

// ListAppointments scopes the filter to the actor. Only admins may look at
// other people's appointments.
func (c *ReservationCore) ListAppointments(ctx context.Context, actor Actor, filter AppointmentFilter) ([]AppointmentDetail, error) {
	scoped, err := scopeFilter(actor, filter)
	if err != nil {
		return nil, err
	}
	return c.Appointments.List(ctx, scoped)
}

// TodayAppointments lists the actor's appointments on today's date ordered
// by slot start. Doctors and patients only see live ones.
func (c *ReservationCore) TodayAppointments(ctx context.Context, actor Actor) ([]AppointmentDetail, error) {
	today := c.Today()
	filter := AppointmentFilter{SlotDate: &today, OrderBySlot: true}
	if actor.Role != RoleAdmin {
		filter.Statuses = []AppointmentStatus{StatusPending, StatusConfirmed}
	}
	return c.ListAppointments(ctx, actor, filter)
}

func (c *ReservationCore) AdminAppointments(ctx context.Context, actor Actor, filter AppointmentFilter) ([]AppointmentDetail, error) {
	if err := authorizeAdmin(actor); err != nil {
		return nil, err
	}
	return c.Appointments.List(ctx, filter)
}

func scopeFilter(actor Actor, filter AppointmentFilter) (AppointmentFilter, error) {
	switch actor.Role {
	case RoleAdmin:
		return filter, nil
	case RoleDoctor:
		id := actor.UserID
		filter.DoctorID = &id
		return filter, nil
	case RolePatient:
		id := actor.UserID
		filter.PatientID = &id
		return filter, nil
	default:
		return filter, ErrForbidden
	}
}

// Slot operations

func (c *ReservationCore) CreateSlot(ctx context.Context, actor Actor, doctorID uuid.UUID, date civil.Date, start, end civil.Time) (*TimeSlot, error) {
	if err := c.Slots.AuthorizeCreate(actor, doctorID); err != nil {
		return nil, err
	}
	return c.Slots.CreateSlot(ctx, doctorID, date, start, end)
}

func (c *ReservationCore) UpdateSlot(ctx context.Context, actor Actor, slotID uuid.UUID, date civil.Date, start, end civil.Time) (*TimeSlot, error) {
	if _, err := c.Slots.AuthorizeManage(ctx, actor, slotID); err != nil {
		return nil, err
	}
	return c.Slots.UpdateSlot(ctx, slotID, date, start, end)
}

func (c *ReservationCore) DeleteSlot(ctx context.Context, actor Actor, slotID uuid.UUID) error {
	if _, err := c.Slots.AuthorizeManage(ctx, actor, slotID); err != nil {
		return err
	}
	return c.Slots.Delete(ctx, slotID)
}

func (c *ReservationCore) GetSlot(ctx context.Context, slotID uuid.UUID) (*TimeSlot, error) {
	return c.Slots.Get(ctx, slotID)
}

// DoctorSlots lists a doctor's own slots. Admins may list any doctor's.
func (c *ReservationCore) DoctorSlots(ctx context.Context, actor Actor, doctorID uuid.UUID, filter SlotFilter) ([]TimeSlot, error) {
	if err := authorizeSlotWrite(actor, doctorID); err != nil {
		return nil, err
	}
	filter.DoctorID = &doctorID
	return c.Slots.List(ctx, filter)
}

func (c *ReservationCore) AdminSlots(ctx context.Context, actor Actor, filter SlotFilter) ([]TimeSlot, error) {
	if err := authorizeAdmin(actor); err != nil {
		return nil, err
	}
	return c.Slots.List(ctx, filter)
}

func (c *ReservationCore) AvailableSlots(ctx context.Context, doctorID uuid.UUID, from civil.Date) iter.Seq2[TimeSlot, error] {
	return c.Slots.ListAvailable(ctx, doctorID, from)
}

func (c *ReservationCore) AvailableDoctors(ctx context.Context) ([]uuid.UUID, error) {
	return c.Slots.DoctorsWithAvailability(ctx, c.Today())
}
