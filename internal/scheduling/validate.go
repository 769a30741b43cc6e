package scheduling

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

// Validation is split into pure functions that take the candidate plus a
// read-only snapshot of the sibling state. Stores call them inside the
// transaction, right before the single write that commits the change.

func validateSlotShape(date civil.Date, start, end civil.Time, now time.Time) error {
	if !date.IsValid() || !start.IsValid() || !end.IsValid() {
		return fmt.Errorf("%w: invalid date or time", ErrInvalidRange)
	}
	if !start.Before(end) {
		return ErrInvalidRange
	}
	if date.Before(civil.DateOf(now)) {
		return ErrPastDate
	}
	return nil
}

// checkSlotConflicts scans the doctor's slots on the candidate's date. The slot
// identified by candidate.ID is skipped so updates do not collide with
// themselves.
func checkSlotConflicts(candidate TimeSlot, siblings []TimeSlot) error {
	for _, s := range siblings {
		if s.ID == candidate.ID || s.DoctorID != candidate.DoctorID {
			continue
		}
		if s.sameInterval(candidate) {
			return ErrDuplicateSlot
		}
	}
	for _, s := range siblings {
		if s.ID == candidate.ID || s.DoctorID != candidate.DoctorID {
			continue
		}
		if candidate.Overlaps(s) {
			return fmt.Errorf("%w: %s-%s", ErrOverlap, s.StartTime, s.EndTime)
		}
	}
	return nil
}

func validateBooking(req BookingRequest, slot *TimeSlot, now time.Time, duplicate bool) error {
	if req.DoctorID == req.PatientID {
		return ErrSelfBooking
	}
	if slot.DoctorID != req.DoctorID {
		return ErrWrongDoctor
	}
	if !slot.IsAvailable {
		return ErrSlotUnavailable
	}
	if !slot.StartsAt(now.Location()).After(now) {
		return ErrPastSlot
	}
	if duplicate {
		return ErrDuplicateBooking
	}
	return nil
}

var allowedTransitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCompleted, StatusCancelled},
	StatusCancelled: {},
	StatusCompleted: {},
}

// CanTransition reports whether from -> to is an edge of the status graph.
// Re-issuing the current status is not an edge.
func CanTransition(from, to AppointmentStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func validateTransition(from, to AppointmentStatus) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: cannot change status from %s to %s", ErrIllegalTransition, from, to)
	}
	return nil
}

func validateCancel(appt *Appointment, slot *TimeSlot, now time.Time) error {
	if !slot.StartsAt(now.Location()).After(now) {
		return ErrTooLate
	}
	if appt.Status != StatusPending && appt.Status != StatusConfirmed {
		return fmt.Errorf("%w: cannot cancel appointment with status %s", ErrIllegalTransition, appt.Status)
	}
	return nil
}

func canCancel(appt *Appointment, slot *TimeSlot, now time.Time) bool {
	return validateCancel(appt, slot, now) == nil
}

// Authorization checks run before any invariant check.

func authorizeSlotWrite(actor Actor, doctorID uuid.UUID) error {
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleDoctor:
		if actor.UserID == doctorID {
			return nil
		}
		return ErrForbidden
	case RolePatient:
		return ErrForbidden
	default:
		return ErrForbidden
	}
}

func authorizeBooking(actor Actor, patientID uuid.UUID) error {
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RolePatient:
		if actor.UserID == patientID {
			return nil
		}
		return ErrForbidden
	case RoleDoctor:
		return ErrForbidden
	default:
		return ErrForbidden
	}
}

func authorizeStatusChange(actor Actor, appt *Appointment) error {
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleDoctor:
		if actor.UserID == appt.DoctorID {
			return nil
		}
		return ErrForbidden
	case RolePatient:
		return ErrForbidden
	default:
		return ErrForbidden
	}
}

func authorizeParticipant(actor Actor, appt *Appointment) error {
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleDoctor:
		if actor.UserID == appt.DoctorID {
			return nil
		}
		return ErrForbidden
	case RolePatient:
		if actor.UserID == appt.PatientID {
			return nil
		}
		return ErrForbidden
	default:
		return ErrForbidden
	}
}

func authorizeAdmin(actor Actor) error {
	switch actor.Role {
	case RoleAdmin:
		return nil
	case RoleDoctor, RolePatient:
		return ErrForbidden
	default:
		return ErrForbidden
	}
}
