package api

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/scheduling"
)

type CreateSlotRequest struct {
	// DoctorID is only honoured for admins; doctors create their own slots.
	DoctorID  string `json:"doctor_id,omitempty"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type UpdateSlotRequest struct {
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type BookRequest struct {
	DoctorID  string `json:"doctor_id"`
	SlotID    string `json:"slot_id"`
	PatientID string `json:"patient_id,omitempty"`
	Notes     string `json:"notes,omitempty"`
	Symptoms  string `json:"symptoms,omitempty"`
}

type ChangeStatusRequest struct {
	Status string `json:"status"`
}

type SlotResponse struct {
	ID          uuid.UUID  `json:"id"`
	DoctorID    uuid.UUID  `json:"doctor_id"`
	Date        civil.Date `json:"date"`
	StartTime   civil.Time `json:"start_time"`
	EndTime     civil.Time `json:"end_time"`
	IsAvailable bool       `json:"is_available"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type AppointmentResponse struct {
	ID        uuid.UUID     `json:"id"`
	DoctorID  uuid.UUID     `json:"doctor_id"`
	PatientID uuid.UUID     `json:"patient_id"`
	SlotID    uuid.UUID     `json:"slot_id"`
	Status    string        `json:"status"`
	Notes     string        `json:"notes,omitempty"`
	Symptoms  string        `json:"symptoms,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
	Slot      *SlotResponse `json:"slot,omitempty"`
	CanCancel *bool         `json:"can_cancel,omitempty"`
}

type DoctorsResponse struct {
	DoctorIDs []uuid.UUID `json:"doctor_ids"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toSlotResponse(s scheduling.TimeSlot) SlotResponse {
	return SlotResponse{
		ID:          s.ID,
		DoctorID:    s.DoctorID,
		Date:        s.Date,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		IsAvailable: s.IsAvailable,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}

func toSlotResponses(slots []scheduling.TimeSlot) []SlotResponse {
	out := make([]SlotResponse, 0, len(slots))
	for _, s := range slots {
		out = append(out, toSlotResponse(s))
	}
	return out
}

func toAppointmentResponse(a scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		DoctorID:  a.DoctorID,
		PatientID: a.PatientID,
		SlotID:    a.SlotID,
		Status:    string(a.Status),
		Notes:     a.Notes,
		Symptoms:  a.Symptoms,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

func toDetailResponse(d scheduling.AppointmentDetail) AppointmentResponse {
	resp := toAppointmentResponse(d.Appointment)
	slot := toSlotResponse(d.Slot)
	canCancel := d.CanCancel
	resp.Slot = &slot
	resp.CanCancel = &canCancel
	return resp
}

func toDetailResponses(items []scheduling.AppointmentDetail) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(items))
	for _, d := range items {
		out = append(out, toDetailResponse(d))
	}
	return out
}

func parseDate(s string) (civil.Date, error) {
	d, err := civil.ParseDate(s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("date must be YYYY-MM-DD")
	}
	return d, nil
}

// parseClock accepts HH:MM or HH:MM:SS.
func parseClock(s string) (civil.Time, error) {
	if len(s) == len("15:04") {
		s += ":00"
	}
	t, err := civil.ParseTime(s)
	if err != nil {
		return civil.Time{}, fmt.Errorf("time must be HH:MM or HH:MM:SS")
	}
	return t, nil
}

func parseInterval(date, start, end string) (civil.Date, civil.Time, civil.Time, error) {
	d, err := parseDate(date)
	if err != nil {
		return civil.Date{}, civil.Time{}, civil.Time{}, err
	}
	st, err := parseClock(start)
	if err != nil {
		return civil.Date{}, civil.Time{}, civil.Time{}, fmt.Errorf("start_time: %w", err)
	}
	et, err := parseClock(end)
	if err != nil {
		return civil.Date{}, civil.Time{}, civil.Time{}, fmt.Errorf("end_time: %w", err)
	}
	return d, st, et, nil
}
