package scheduling

import (
	"cmp"
	"context"
	"iter"
	"maps"
	"slices"
	"sync"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// MemoryRepository keeps slots and appointments in process memory. A
// transaction works on a staged copy under the write lock and publishes it
// only when fn succeeds, so a failed operation leaves no partial writes.
type MemoryRepository struct {
	mu           sync.RWMutex
	slots        map[uuid.UUID]TimeSlot
	appointments map[uuid.UUID]Appointment
	events       []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		slots:        make(map[uuid.UUID]TimeSlot),
		appointments: make(map[uuid.UUID]Appointment),
	}
}

func (r *MemoryRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx := &memTx{
		slots:        maps.Clone(r.slots),
		appointments: maps.Clone(r.appointments),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	r.slots = tx.slots
	r.appointments = tx.appointments
	for i := range tx.events {
		tx.events[i].ID = int64(len(r.events) + 1)
		r.events = append(r.events, tx.events[i])
	}
	return nil
}

// Events returns a copy of the audit trail.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.events)
}

func (r *MemoryRepository) GetSlot(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, from civil.Date) iter.Seq2[TimeSlot, error] {
	available := true
	return func(yield func(TimeSlot, error) bool) {
		slots, _ := r.ListSlots(ctx, SlotFilter{DoctorID: &doctorID, Available: &available})
		for _, s := range slots {
			if s.Date.Before(from) {
				continue
			}
			if !yield(s, nil) {
				return
			}
		}
	}
}

func (r *MemoryRepository) ListSlots(_ context.Context, filter SlotFilter) ([]TimeSlot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []TimeSlot
	for _, s := range r.slots {
		if filter.DoctorID != nil && s.DoctorID != *filter.DoctorID {
			continue
		}
		if filter.Date != nil && s.Date != *filter.Date {
			continue
		}
		if filter.Available != nil && s.IsAvailable != *filter.Available {
			continue
		}
		result = append(result, s)
	}
	slices.SortFunc(result, compareSlots)
	return result, nil
}

func (r *MemoryRepository) DoctorsWithAvailability(_ context.Context, from civil.Date) ([]uuid.UUID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[uuid.UUID]struct{})
	for _, s := range r.slots {
		if s.IsAvailable && !s.Date.Before(from) {
			seen[s.DoctorID] = struct{}{}
		}
	}
	ids := slices.Collect(maps.Keys(seen))
	slices.SortFunc(ids, func(a, b uuid.UUID) int { return cmp.Compare(a.String(), b.String()) })
	return ids, nil
}

func (r *MemoryRepository) GetAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *MemoryRepository) GetAppointmentDetail(_ context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &AppointmentDetail{Appointment: a, Slot: r.slots[a.SlotID]}, nil
}

func (r *MemoryRepository) ListAppointments(_ context.Context, filter AppointmentFilter) ([]AppointmentDetail, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []AppointmentDetail
	for _, a := range r.appointments {
		if filter.DoctorID != nil && a.DoctorID != *filter.DoctorID {
			continue
		}
		if filter.PatientID != nil && a.PatientID != *filter.PatientID {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, a.Status) {
			continue
		}
		slot := r.slots[a.SlotID]
		if filter.SlotDate != nil && slot.Date != *filter.SlotDate {
			continue
		}
		result = append(result, AppointmentDetail{Appointment: a, Slot: slot})
	}

	if filter.OrderBySlot {
		slices.SortFunc(result, func(a, b AppointmentDetail) int { return compareSlots(a.Slot, b.Slot) })
	} else {
		slices.SortFunc(result, func(a, b AppointmentDetail) int { return b.CreatedAt.Compare(a.CreatedAt) })
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return nil, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (r *MemoryRepository) SlotOccupancy(_ context.Context) ([]SlotOccupancy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	bySlot := make(map[uuid.UUID]*SlotOccupancy, len(r.slots))
	result := make([]SlotOccupancy, 0, len(r.slots))
	for _, s := range r.slots {
		result = append(result, SlotOccupancy{Slot: s})
	}
	for i := range result {
		bySlot[result[i].Slot.ID] = &result[i]
	}
	for _, a := range r.appointments {
		o, ok := bySlot[a.SlotID]
		if !ok {
			continue
		}
		o.TotalAppointments++
		if a.Status.Live() {
			o.LiveAppointments++
		}
	}
	slices.SortFunc(result, func(a, b SlotOccupancy) int {
		if c := cmp.Compare(a.Slot.DoctorID.String(), b.Slot.DoctorID.String()); c != 0 {
			return c
		}
		return compareSlots(a.Slot, b.Slot)
	})
	return result, nil
}

func compareSlots(a, b TimeSlot) int {
	if c := a.Date.Compare(b.Date); c != 0 {
		return c
	}
	return a.StartTime.Compare(b.StartTime)
}

// memTx mutates the staged maps of one MemoryRepository transaction.
type memTx struct {
	slots        map[uuid.UUID]TimeSlot
	appointments map[uuid.UUID]Appointment
	events       []EventLog
}

func (t *memTx) LockSlot(_ context.Context, id uuid.UUID) (*TimeSlot, error) {
	s, ok := t.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

// LockDoctorDay is a no-op: the repository write lock already serialises
// transactions.
func (t *memTx) LockDoctorDay(context.Context, uuid.UUID, civil.Date) error {
	return nil
}

func (t *memTx) ListDoctorSlotsOn(_ context.Context, doctorID uuid.UUID, date civil.Date) ([]TimeSlot, error) {
	var result []TimeSlot
	for _, s := range t.slots {
		if s.DoctorID == doctorID && s.Date == date {
			result = append(result, s)
		}
	}
	slices.SortFunc(result, compareSlots)
	return result, nil
}

func (t *memTx) InsertSlot(_ context.Context, slot *TimeSlot) error {
	for _, s := range t.slots {
		if s.DoctorID == slot.DoctorID && s.sameInterval(*slot) {
			return ErrDuplicateSlot
		}
	}
	t.slots[slot.ID] = *slot
	return nil
}

func (t *memTx) UpdateSlotTimes(_ context.Context, slot *TimeSlot) error {
	cur, ok := t.slots[slot.ID]
	if !ok {
		return ErrSlotNotFound
	}
	for _, s := range t.slots {
		if s.ID != slot.ID && s.DoctorID == cur.DoctorID && s.sameInterval(*slot) {
			return ErrDuplicateSlot
		}
	}
	cur.Date = slot.Date
	cur.StartTime = slot.StartTime
	cur.EndTime = slot.EndTime
	cur.UpdatedAt = slot.UpdatedAt
	t.slots[slot.ID] = cur
	return nil
}

func (t *memTx) SetSlotAvailability(_ context.Context, id uuid.UUID, available bool, at time.Time) (bool, error) {
	s, ok := t.slots[id]
	if !ok {
		return false, ErrSlotNotFound
	}
	if s.IsAvailable == available {
		return false, nil
	}
	s.IsAvailable = available
	s.UpdatedAt = at
	t.slots[id] = s
	return true, nil
}

func (t *memTx) DeleteSlot(_ context.Context, id uuid.UUID) error {
	if _, ok := t.slots[id]; !ok {
		return ErrSlotNotFound
	}
	for _, a := range t.appointments {
		if a.SlotID == id {
			return ErrHasAppointment
		}
	}
	delete(t.slots, id)
	return nil
}

func (t *memTx) CountSlotAppointments(_ context.Context, slotID uuid.UUID) (int, error) {
	n := 0
	for _, a := range t.appointments {
		if a.SlotID == slotID {
			n++
		}
	}
	return n, nil
}

func (t *memTx) LockAppointment(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := t.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (t *memTx) AppointmentExists(_ context.Context, doctorID, patientID, slotID uuid.UUID) (bool, error) {
	for _, a := range t.appointments {
		if a.DoctorID == doctorID && a.PatientID == patientID && a.SlotID == slotID {
			return true, nil
		}
	}
	return false, nil
}

// InsertAppointment enforces the same uniqueness rules as the Postgres schema.
func (t *memTx) InsertAppointment(_ context.Context, appt *Appointment) error {
	if _, ok := t.slots[appt.SlotID]; !ok {
		return ErrSlotNotFound
	}
	if appt.DoctorID == appt.PatientID {
		return ErrSelfBooking
	}
	for _, a := range t.appointments {
		if a.SlotID != appt.SlotID {
			continue
		}
		if a.DoctorID == appt.DoctorID && a.PatientID == appt.PatientID {
			return ErrDuplicateBooking
		}
		if a.Status.Live() && appt.Status.Live() {
			return ErrSlotUnavailable
		}
	}
	t.appointments[appt.ID] = *appt
	return nil
}

func (t *memTx) UpdateAppointmentStatus(_ context.Context, id uuid.UUID, from, to AppointmentStatus, at time.Time) (*Appointment, error) {
	a, ok := t.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	a.UpdatedAt = at
	t.appointments[id] = a
	return &a, nil
}

func (t *memTx) DeleteAppointment(_ context.Context, id uuid.UUID) error {
	if _, ok := t.appointments[id]; !ok {
		return ErrAppointmentNotFound
	}
	delete(t.appointments, id)
	return nil
}

func (t *memTx) InsertEvent(_ context.Context, ev EventLog) error {
	t.events = append(t.events, ev)
	return nil
}
