package scheduling

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventSlotCreated             = "SLOT_CREATED"
	EventSlotUpdated             = "SLOT_UPDATED"
	EventSlotDeleted             = "SLOT_DELETED"
	EventSlotAvailabilityChanged = "SLOT_AVAILABILITY_CHANGED"
	EventAppointmentCreated      = "APPOINTMENT_CREATED"
	EventAppointmentStatus       = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentCancelled    = "APPOINTMENT_CANCELLED"
	EventAppointmentDeleted      = "APPOINTMENT_DELETED"
)

// recordEvent appends to the audit trail inside the caller's transaction, so
// the event commits or rolls back together with the change it describes.
func recordEvent(ctx context.Context, tx Tx, eventType string, appointmentID, slotID *uuid.UUID, payload map[string]any, at time.Time) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: appointmentID,
		SlotID:        slotID,
		Payload:       data,
		CreatedAt:     at,
	}
	return tx.InsertEvent(ctx, ev)
}

func idPtr(id uuid.UUID) *uuid.UUID {
	return &id
}
