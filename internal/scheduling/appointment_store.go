package scheduling

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-slot-booking/internal/clock"
	"github.com/hackgods/doctor-slot-booking/internal/metrics"
	redisclient "github.com/hackgods/doctor-slot-booking/internal/redis"
)

// SlotLocker serialises claim and release work on one slot across processes.
type SlotLocker interface {
	WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error
}

// AppointmentStore owns Appointment entities. Every availability flip it
// performs goes through SlotStore.setAvailability in the same transaction as
// the appointment write.
type AppointmentStore struct {
	repo   Repository
	slots  *SlotStore
	locker SlotLocker
	clock  clock.Clock
	log    *zap.Logger
	obs    observer
}

// NewAppointmentStore wires the store. locker may be nil, in which case the
// repository transaction is the only serialisation point.
func NewAppointmentStore(repo Repository, slots *SlotStore, locker SlotLocker, clk clock.Clock, log *zap.Logger, m *metrics.BookingMetrics) *AppointmentStore {
	obs := newObserver(log, m)
	return &AppointmentStore{
		repo:   repo,
		slots:  slots,
		locker: locker,
		clock:  clk,
		log:    obs.log,
		obs:    obs,
	}
}

func (s *AppointmentStore) withSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	if s.locker == nil {
		return fn(ctx)
	}
	err := s.locker.WithSlotLock(ctx, slotID, fn)
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return fmt.Errorf("%w: %v", ErrSlotBusy, err)
	}
	return err
}

// Create claims the slot and inserts a pending appointment atomically.
func (s *AppointmentStore) Create(ctx context.Context, req BookingRequest) (*Appointment, error) {
	var created *Appointment
	attrs := []attribute.KeyValue{slotAttr(req.SlotID), doctorAttr(req.DoctorID)}

	err := s.obs.run(ctx, "create_appointment", attrs, func(ctx context.Context) error {
		return s.withSlotLock(ctx, req.SlotID, func(ctx context.Context) error {
			return s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
				slot, err := tx.LockSlot(ctx, req.SlotID)
				if err != nil {
					return err
				}

				dup, err := tx.AppointmentExists(ctx, req.DoctorID, req.PatientID, req.SlotID)
				if err != nil {
					return err
				}

				now := s.clock.Now()
				if err := validateBooking(req, slot, now, dup); err != nil {
					return err
				}

				appt := Appointment{
					ID:        uuid.New(),
					DoctorID:  req.DoctorID,
					PatientID: req.PatientID,
					SlotID:    req.SlotID,
					Status:    StatusPending,
					Notes:     req.Notes,
					Symptoms:  req.Symptoms,
					CreatedAt: now,
					UpdatedAt: now,
				}

				if err := s.slots.setAvailability(ctx, tx, req.SlotID, false, EventAppointmentCreated); err != nil {
					return err
				}
				if err := tx.InsertAppointment(ctx, &appt); err != nil {
					return err
				}
				if err := recordEvent(ctx, tx, EventAppointmentCreated, idPtr(appt.ID), idPtr(req.SlotID), map[string]any{
					"doctor_id":  req.DoctorID.String(),
					"patient_id": req.PatientID.String(),
					"status":     string(appt.Status),
				}, now); err != nil {
					return err
				}

				created = &appt
				return nil
			})
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment booked",
		zap.String("appointment_id", created.ID.String()),
		zap.String("slot_id", created.SlotID.String()),
		zap.String("doctor_id", created.DoctorID.String()),
		zap.String("patient_id", created.PatientID.String()),
	)
	return created, nil
}

// ChangeStatus moves an appointment along the status graph on behalf of the
// doctor of record or an admin. Entering cancelled releases the slot.
func (s *AppointmentStore) ChangeStatus(ctx context.Context, id uuid.UUID, newStatus AppointmentStatus, actor Actor) (*Appointment, error) {
	var updated *Appointment
	err := s.obs.run(ctx, "change_status", []attribute.KeyValue{appointmentAttr(id), attribute.String("status", string(newStatus))}, func(ctx context.Context) error {
		return s.mutate(ctx, id, func(ctx context.Context, tx Tx, appt *Appointment, _ *TimeSlot) error {
			if err := authorizeStatusChange(actor, appt); err != nil {
				return err
			}
			if err := validateTransition(appt.Status, newStatus); err != nil {
				return err
			}

			next, err := s.transition(ctx, tx, appt, newStatus, EventAppointmentStatus, actor)
			if err != nil {
				return err
			}
			updated = next
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment status changed",
		zap.String("appointment_id", id.String()),
		zap.String("status", string(updated.Status)),
		zap.String("actor_role", actor.Role.String()),
	)
	if updated.Status == StatusCancelled {
		s.log.Info("slot released", zap.String("slot_id", updated.SlotID.String()))
	}
	return updated, nil
}

// Cancel is the participant-facing path to cancelled. The slot must still be
// in the future and the appointment live.
func (s *AppointmentStore) Cancel(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	var cancelled *Appointment
	err := s.obs.run(ctx, "cancel", []attribute.KeyValue{appointmentAttr(id)}, func(ctx context.Context) error {
		return s.mutate(ctx, id, func(ctx context.Context, tx Tx, appt *Appointment, slot *TimeSlot) error {
			if err := authorizeParticipant(actor, appt); err != nil {
				return err
			}
			if err := validateCancel(appt, slot, s.clock.Now()); err != nil {
				return err
			}

			next, err := s.transition(ctx, tx, appt, StatusCancelled, EventAppointmentCancelled, actor)
			if err != nil {
				return err
			}
			cancelled = next
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("appointment cancelled",
		zap.String("appointment_id", id.String()),
		zap.String("actor_role", actor.Role.String()),
	)
	s.log.Info("slot released", zap.String("slot_id", cancelled.SlotID.String()))
	return cancelled, nil
}

// Delete hard-deletes the appointment. A live appointment releases its slot
// first; a cancelled one already did.
func (s *AppointmentStore) Delete(ctx context.Context, id uuid.UUID) error {
	var released *uuid.UUID
	err := s.obs.run(ctx, "delete_appointment", []attribute.KeyValue{appointmentAttr(id)}, func(ctx context.Context) error {
		return s.mutate(ctx, id, func(ctx context.Context, tx Tx, appt *Appointment, _ *TimeSlot) error {
			if appt.Status.Live() {
				if err := s.slots.setAvailability(ctx, tx, appt.SlotID, true, EventAppointmentDeleted); err != nil {
					return err
				}
				released = &appt.SlotID
			}
			if err := tx.DeleteAppointment(ctx, id); err != nil {
				return err
			}
			return recordEvent(ctx, tx, EventAppointmentDeleted, idPtr(id), idPtr(appt.SlotID), map[string]any{
				"status": string(appt.Status),
			}, s.clock.Now())
		})
	})
	if err != nil {
		return err
	}

	s.log.Info("appointment deleted", zap.String("appointment_id", id.String()))
	if released != nil {
		s.log.Info("slot released", zap.String("slot_id", released.String()))
	}
	return nil
}

func (s *AppointmentStore) Get(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetAppointmentDetail(ctx, id)
	if err != nil {
		return nil, err
	}
	detail.CanCancel = canCancel(&detail.Appointment, &detail.Slot, s.clock.Now())
	return detail, nil
}

func (s *AppointmentStore) List(ctx context.Context, filter AppointmentFilter) ([]AppointmentDetail, error) {
	items, err := s.repo.ListAppointments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	now := s.clock.Now()
	for i := range items {
		items[i].CanCancel = canCancel(&items[i].Appointment, &items[i].Slot, now)
	}
	return items, nil
}

// mutate resolves the appointment's slot, takes the slot lock, then re-reads
// both rows under the transaction. Slot rows are always locked before
// appointment rows.
func (s *AppointmentStore) mutate(ctx context.Context, id uuid.UUID, fn func(ctx context.Context, tx Tx, appt *Appointment, slot *TimeSlot) error) error {
	current, err := s.repo.GetAppointment(ctx, id)
	if err != nil {
		return err
	}

	return s.withSlotLock(ctx, current.SlotID, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			slot, err := tx.LockSlot(ctx, current.SlotID)
			if err != nil {
				return err
			}
			appt, err := tx.LockAppointment(ctx, id)
			if err != nil {
				return err
			}
			return fn(ctx, tx, appt, slot)
		})
	})
}

func (s *AppointmentStore) transition(ctx context.Context, tx Tx, appt *Appointment, to AppointmentStatus, eventType string, actor Actor) (*Appointment, error) {
	now := s.clock.Now()
	if to == StatusCancelled && appt.Status.Live() {
		if err := s.slots.setAvailability(ctx, tx, appt.SlotID, true, eventType); err != nil {
			return nil, err
		}
	}

	next, err := tx.UpdateAppointmentStatus(ctx, appt.ID, appt.Status, to, now)
	if err != nil {
		return nil, err
	}

	if err := recordEvent(ctx, tx, eventType, idPtr(appt.ID), idPtr(appt.SlotID), map[string]any{
		"from":       string(appt.Status),
		"to":         string(to),
		"actor_id":   actor.UserID.String(),
		"actor_role": actor.Role.String(),
	}, now); err != nil {
		return nil, err
	}
	return next, nil
}
