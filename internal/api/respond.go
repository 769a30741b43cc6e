package api

import (
	"encoding/json"
	"net/http"

	"github.com/hackgods/doctor-slot-booking/internal/scheduling"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

// statusForKind maps a core error kind onto an HTTP status.
func statusForKind(kind string) int {
	switch kind {
	case "invalid_range", "past_date", "self_booking", "wrong_doctor", "past_slot",
		"illegal_transition", "too_late":
		return http.StatusBadRequest
	case "overlap", "duplicate_slot", "slot_unavailable", "duplicate_booking",
		"has_appointment", "slot_busy":
		return http.StatusConflict
	case "forbidden":
		return http.StatusForbidden
	case "slot_not_found", "appointment_not_found":
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func handleCoreError(w http.ResponseWriter, err error) {
	kind := scheduling.ErrorKind(err)
	status := statusForKind(kind)
	if status == http.StatusInternalServerError {
		writeError(w, status, "internal_error", "internal server error")
		return
	}
	writeError(w, status, kind, err.Error())
}
