package scheduling

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

func ParseStatus(s string) (AppointmentStatus, error) {
	switch st := AppointmentStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return st, nil
	default:
		return "", fmt.Errorf("unknown appointment status %q", s)
	}
}

// Live reports whether an appointment in this status still holds its slot.
func (s AppointmentStatus) Live() bool {
	return s != StatusCancelled
}

// Role is the closed set of caller roles handed to the core by the request layer.
type Role int

const (
	RoleAdmin Role = iota + 1
	RoleDoctor
	RolePatient
)

func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleDoctor:
		return "doctor"
	case RolePatient:
		return "patient"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "doctor":
		return RoleDoctor, nil
	case "patient":
		return RolePatient, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// Actor is an authenticated caller.
type Actor struct {
	UserID uuid.UUID
	Role   Role
}

type TimeSlot struct {
	ID          uuid.UUID
	DoctorID    uuid.UUID
	Date        civil.Date
	StartTime   civil.Time
	EndTime     civil.Time
	IsAvailable bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StartsAt is the instant the slot begins, interpreted in loc.
func (s TimeSlot) StartsAt(loc *time.Location) time.Time {
	return civil.DateTime{Date: s.Date, Time: s.StartTime}.In(loc)
}

// Overlaps uses half-open intervals: touching slots do not overlap.
func (s TimeSlot) Overlaps(o TimeSlot) bool {
	return s.Date == o.Date &&
		s.StartTime.Before(o.EndTime) &&
		s.EndTime.After(o.StartTime)
}

func (s TimeSlot) sameInterval(o TimeSlot) bool {
	return s.Date == o.Date && s.StartTime == o.StartTime && s.EndTime == o.EndTime
}

type Appointment struct {
	ID        uuid.UUID
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	SlotID    uuid.UUID
	Status    AppointmentStatus
	Notes     string
	Symptoms  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AppointmentDetail is an appointment hydrated with its slot.
type AppointmentDetail struct {
	Appointment
	Slot      TimeSlot
	CanCancel bool
}

type BookingRequest struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	SlotID    uuid.UUID
	Notes     string
	Symptoms  string
}

type SlotFilter struct {
	DoctorID  *uuid.UUID
	Date      *civil.Date
	Available *bool
}

type AppointmentFilter struct {
	DoctorID  *uuid.UUID
	PatientID *uuid.UUID
	Statuses  []AppointmentStatus
	SlotDate  *civil.Date
	// OrderBySlot sorts by slot date and start time instead of newest first.
	OrderBySlot bool
	Limit       int
	Offset      int
}

// SlotOccupancy pairs a slot with the number of live appointments that reference it.
type SlotOccupancy struct {
	Slot              TimeSlot
	LiveAppointments  int
	TotalAppointments int
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	SlotID        *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
