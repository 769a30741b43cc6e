package scheduling

import (
	"errors"
)

var (
	// ErrNotFound matches both ErrSlotNotFound and ErrAppointmentNotFound.
	ErrNotFound = errors.New("not found")

	ErrSlotNotFound        = &notFoundError{msg: "time slot not found"}
	ErrAppointmentNotFound = &notFoundError{msg: "appointment not found"}

	ErrInvalidRange      = errors.New("start time must be before end time")
	ErrPastDate          = errors.New("cannot create time slot in the past")
	ErrOverlap           = errors.New("time slot overlaps with an existing slot")
	ErrDuplicateSlot     = errors.New("time slot already exists")
	ErrHasAppointment    = errors.New("time slot has an existing appointment")
	ErrSelfBooking       = errors.New("doctors cannot book appointments with themselves")
	ErrWrongDoctor       = errors.New("time slot does not belong to the selected doctor")
	ErrSlotUnavailable   = errors.New("time slot is already booked")
	ErrPastSlot          = errors.New("cannot book appointment in the past")
	ErrDuplicateBooking  = errors.New("appointment already exists for this doctor, patient and slot")
	ErrForbidden         = errors.New("action not permitted for this user")
	ErrIllegalTransition = errors.New("illegal appointment status transition")
	ErrTooLate           = errors.New("cannot cancel past appointments")
	ErrSlotBusy          = errors.New("time slot is currently being modified, please retry")
)

type notFoundError struct {
	msg string
}

func (e *notFoundError) Error() string { return e.msg }

func (e *notFoundError) Is(target error) bool { return target == ErrNotFound }

var errorKinds = []struct {
	err  error
	kind string
}{
	{ErrSlotNotFound, "slot_not_found"},
	{ErrAppointmentNotFound, "appointment_not_found"},
	{ErrInvalidRange, "invalid_range"},
	{ErrPastDate, "past_date"},
	{ErrOverlap, "overlap"},
	{ErrDuplicateSlot, "duplicate_slot"},
	{ErrHasAppointment, "has_appointment"},
	{ErrSelfBooking, "self_booking"},
	{ErrWrongDoctor, "wrong_doctor"},
	{ErrSlotUnavailable, "slot_unavailable"},
	{ErrPastSlot, "past_slot"},
	{ErrDuplicateBooking, "duplicate_booking"},
	{ErrForbidden, "forbidden"},
	{ErrIllegalTransition, "illegal_transition"},
	{ErrTooLate, "too_late"},
	{ErrSlotBusy, "slot_busy"},
}

// ErrorKind returns a stable label for err, "ok" for nil and "internal" for
// anything that is not one of the package's typed errors.
func ErrorKind(err error) string {
	if err == nil {
		return "ok"
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}
