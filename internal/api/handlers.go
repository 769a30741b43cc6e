package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/auth"
	"github.com/hackgods/doctor-slot-booking/internal/scheduling"
)

const maxListLimit = 200

func actorFrom(r *http.Request) scheduling.Actor {
	actor, _ := auth.ActorFromContext(r.Context())
	return actor
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

var errBadQuery = errors.New("bad query")

func optionalUUID(r *http.Request, key string) (*uuid.UUID, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	id, err := uuid.Parse(v)
	if err != nil {
		return nil, errBadQuery
	}
	return &id, nil
}

func optionalDate(r *http.Request, key string) (*civil.Date, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	d, err := parseDate(v)
	if err != nil {
		return nil, errBadQuery
	}
	return &d, nil
}

func optionalBool(r *http.Request, key string) (*bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return nil, errBadQuery
	}
	return &b, nil
}

func slotFilterFrom(r *http.Request) (scheduling.SlotFilter, error) {
	var (
		f   scheduling.SlotFilter
		err error
	)
	if f.DoctorID, err = optionalUUID(r, "doctor_id"); err != nil {
		return f, err
	}
	if f.Date, err = optionalDate(r, "date"); err != nil {
		return f, err
	}
	if f.Available, err = optionalBool(r, "is_available"); err != nil {
		return f, err
	}
	return f, nil
}

func appointmentFilterFrom(r *http.Request) (scheduling.AppointmentFilter, error) {
	var (
		f   scheduling.AppointmentFilter
		err error
	)
	q := r.URL.Query()
	if f.DoctorID, err = optionalUUID(r, "doctor_id"); err != nil {
		return f, err
	}
	if f.PatientID, err = optionalUUID(r, "patient_id"); err != nil {
		return f, err
	}
	if f.SlotDate, err = optionalDate(r, "date"); err != nil {
		return f, err
	}
	if v := q.Get("status"); v != "" {
		for _, part := range strings.Split(v, ",") {
			st, err := scheduling.ParseStatus(part)
			if err != nil {
				return f, errBadQuery
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errBadQuery
		}
		f.Limit = min(n, maxListLimit)
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, errBadQuery
		}
		f.Offset = n
	}
	return f, nil
}

// Slots

func createSlotHandler(core *scheduling.ReservationCore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateSlotRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		actor := actorFrom(r)
		doctorID := actor.UserID
		if req.DoctorID != "" {
			id, err := uuid.Parse(req.DoctorID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
				return
			}
			doctorID = id
		}

		date, start, end, err := parseInterval(req.Date, req.StartTime, req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		slot, err := core.CreateSlot(r.Context(), actor, doctorID, date, start, end)
		if err != nil {
			handleCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toSlotResponse(*slot))
	}
}

func mySlotsHandler(core *scheduling.ReservationCore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := slotFilterFrom(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", "doctor_id, date or is_available is malformed")
			return
		}

		actor := actorFrom(r)
		doctorID := actor.UserID
		if actor.Role == scheduling.RoleAdmin && filter.DoctorID != nil {
			doctorID = *filter.DoctorID
		}

		slots, err := core.DoctorSlots(r.Context(), actor, doctorID, filter)
		if err != nil {
			handleCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

func getSlotHandler(core *scheduling.ReservationCore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		slot, err := core.GetSlot(r.Context(), id)
		if err != nil {
			handleCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponse(*slot))
	}
}

func updateSlotHandler(core *scheduling.ReservationCore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req UpdateSlotRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		date, start, end, err := parseInterval(req.Date, req.StartTime, req.EndTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
			return
		}

		slot, err := core.UpdateSlot(r.Context(), actorFrom(r), id, date, start, end)
		if err != nil {
			handleCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponse(*slot))
	}
}

func deleteSlotHandler(core *scheduling.ReservationCore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		if err := core.DeleteSlot(r.Context(), actorFrom(r), id); err != nil {
			handleCoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func availableDoctorsHandler(core *scheduling.ReservationCore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ids, err := core.AvailableDoctors(r.Context())
		if err != nil {
			handleCoreError(w, err)
			return
		}
		if ids == nil {
			ids = []uuid.UUID{}
		}
		writeJSON(w, http.StatusOK, DoctorsResponse{DoctorIDs: ids})
	}
}

func doctorSlotsHandler(core *scheduling.ReservationCore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		from := core.Today()
		if v := r.URL.Query().Get("from"); v != "" {
			d, err := parseDate(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_query", err.Error())
				return
			}
			// Past days never have bookable slots.
			if d.After(from) {
				from = d
			}
		}

		out := []SlotResponse{}
		for slot, err := range core.AvailableSlots(r.Context(), doctorID, from) {
			if err != nil {
				handleCoreError(w, err)
				return
			}
			out = append(out, toSlotResponse(slot))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func adminSlotsHandler(core *scheduling.ReservationCore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := slotFilterFrom(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", "doctor_id, date or is_available is malformed")
			return
		}
		slots, err := core.AdminSlots(r.Context(), actorFrom(r), filter)
		if err != nil {
			handleCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toSlotResponses(slots))
	}
}

// Appointments

func bookHandler(core *scheduling.ReservationCore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BookRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		actor := actorFrom(r)
		patientID := actor.UserID
		if req.PatientID != "" {
			id, err := uuid.Parse(req.PatientID)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
				return
			}
			patientID = id
		}

		appt, err := core.BookSlot(r.Context(), actor, scheduling.BookingRequest{
			DoctorID:  doctorID,
			PatientID: patientID,
			SlotID:    slotID,
			Notes:     req.Notes,
			Symptoms:  req.Symptoms,
		})
		if err != nil {
			handleCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(*appt))
	}
}

func myAppointmentsHandler(core *scheduling.ReservationCore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := appointmentFilterFrom(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", "status, date, limit or offset is malformed")
			return
		}
		items, err := core.ListAppointments(r.Context(), actorFrom(r), filter)
		if err != nil {
			handleCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDetailResponses(items))
	}
}

func todayAppointmentsHandler(core *scheduling.ReservationCore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := core.TodayAppointments(r.Context(), actorFrom(r))
		if err != nil {
			handleCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDetailResponses(items))
	}
}

func getAppointmentHandler(core *scheduling.ReservationCore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		detail, err := core.GetAppointment(r.Context(), actorFrom(r), id)
		if err != nil {
			handleCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDetailResponse(*detail))
	}
}

func changeStatusHandler(core *scheduling.ReservationCore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req ChangeStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		status, err := scheduling.ParseStatus(req.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
			return
		}

		appt, err := core.ChangeStatus(r.Context(), actorFrom(r), id, status)
		if err != nil {
			handleCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func cancelHandler(core *scheduling.ReservationCore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		appt, err := core.Cancel(r.Context(), actorFrom(r), id)
		if err != nil {
			handleCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(*appt))
	}
}

func deleteAppointmentHandler(core *scheduling.ReservationCore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		if err := core.DeleteAppointment(r.Context(), actorFrom(r), id); err != nil {
			handleCoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func adminAppointmentsHandler(core *scheduling.ReservationCore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter, err := appointmentFilterFrom(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_query", "doctor_id, patient_id, status, date, limit or offset is malformed")
			return
		}
		items, err := core.AdminAppointments(r.Context(), actorFrom(r), filter)
		if err != nil {
			handleCoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toDetailResponses(items))
	}
}
