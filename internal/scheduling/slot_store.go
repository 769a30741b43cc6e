package scheduling

import (
	"context"
	"fmt"
	"iter"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-slot-booking/internal/clock"
	"github.com/hackgods/doctor-slot-booking/internal/metrics"
)

// SlotStore owns TimeSlot entities. setAvailability is the only code that
// writes is_available.
type SlotStore struct {
	repo  Repository
	clock clock.Clock
	log   *zap.Logger
	obs   observer
}

func NewSlotStore(repo Repository, clk clock.Clock, log *zap.Logger, m *metrics.BookingMetrics) *SlotStore {
	obs := newObserver(log, m)
	return &SlotStore{repo: repo, clock: clk, log: obs.log, obs: obs}
}

func (s *SlotStore) CreateSlot(ctx context.Context, doctorID uuid.UUID, date civil.Date, start, end civil.Time) (*TimeSlot, error) {
	var created *TimeSlot
	err := s.obs.run(ctx, "create_slot", []attribute.KeyValue{doctorAttr(doctorID)}, func(ctx context.Context) error {
		now := s.clock.Now()
		if err := validateSlotShape(date, start, end, now); err != nil {
			return err
		}

		candidate := TimeSlot{
			ID:          uuid.New(),
			DoctorID:    doctorID,
			Date:        date,
			StartTime:   start,
			EndTime:     end,
			IsAvailable: true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		return s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			if err := s.checkConflicts(ctx, tx, candidate); err != nil {
				return err
			}
			if err := tx.InsertSlot(ctx, &candidate); err != nil {
				return err
			}
			if err := recordEvent(ctx, tx, EventSlotCreated, nil, idPtr(candidate.ID), map[string]any{
				"doctor_id":  doctorID.String(),
				"date":       date.String(),
				"start_time": start.String(),
				"end_time":   end.String(),
			}, now); err != nil {
				return err
			}
			created = &candidate
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("slot created",
		zap.String("slot_id", created.ID.String()),
		zap.String("doctor_id", doctorID.String()),
		zap.String("date", date.String()),
		zap.String("start_time", start.String()),
		zap.String("end_time", end.String()),
	)
	return created, nil
}

// UpdateSlot moves a slot that no appointment references.
func (s *SlotStore) UpdateSlot(ctx context.Context, slotID uuid.UUID, date civil.Date, start, end civil.Time) (*TimeSlot, error) {
	var updated *TimeSlot
	err := s.obs.run(ctx, "update_slot", []attribute.KeyValue{slotAttr(slotID)}, func(ctx context.Context) error {
		now := s.clock.Now()
		if err := validateSlotShape(date, start, end, now); err != nil {
			return err
		}

		return s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			cur, err := tx.LockSlot(ctx, slotID)
			if err != nil {
				return err
			}
			n, err := tx.CountSlotAppointments(ctx, slotID)
			if err != nil {
				return err
			}
			if n > 0 {
				return ErrHasAppointment
			}

			candidate := *cur
			candidate.Date = date
			candidate.StartTime = start
			candidate.EndTime = end
			candidate.UpdatedAt = now

			if err := s.checkConflicts(ctx, tx, candidate); err != nil {
				return err
			}
			if err := tx.UpdateSlotTimes(ctx, &candidate); err != nil {
				return err
			}
			if err := recordEvent(ctx, tx, EventSlotUpdated, nil, idPtr(slotID), map[string]any{
				"date":       date.String(),
				"start_time": start.String(),
				"end_time":   end.String(),
			}, now); err != nil {
				return err
			}
			updated = &candidate
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *SlotStore) checkConflicts(ctx context.Context, tx Tx, candidate TimeSlot) error {
	if err := tx.LockDoctorDay(ctx, candidate.DoctorID, candidate.Date); err != nil {
		return err
	}
	siblings, err := tx.ListDoctorSlotsOn(ctx, candidate.DoctorID, candidate.Date)
	if err != nil {
		return err
	}
	return checkSlotConflicts(candidate, siblings)
}

// SetAvailability is idempotent: writing the current value is a no-op.
func (s *SlotStore) SetAvailability(ctx context.Context, slotID uuid.UUID, available bool) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
		return s.setAvailability(ctx, tx, slotID, available, "")
	})
}

// setAvailability runs inside the caller's transaction. reason names the
// appointment lifecycle event driving the flip.
func (s *SlotStore) setAvailability(ctx context.Context, tx Tx, slotID uuid.UUID, available bool, reason string) error {
	now := s.clock.Now()
	changed, err := tx.SetSlotAvailability(ctx, slotID, available, now)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	return recordEvent(ctx, tx, EventSlotAvailabilityChanged, nil, idPtr(slotID), map[string]any{
		"is_available": available,
		"reason":       reason,
	}, now)
}

func (s *SlotStore) Get(ctx context.Context, slotID uuid.UUID) (*TimeSlot, error) {
	return s.repo.GetSlot(ctx, slotID)
}

// ListAvailable lazily yields the doctor's available slots dated on or after
// from, ordered by (date, start_time). Availability read here may be stale;
// booking re-checks inside its transaction.
func (s *SlotStore) ListAvailable(ctx context.Context, doctorID uuid.UUID, from civil.Date) iter.Seq2[TimeSlot, error] {
	return s.repo.ListAvailableSlots(ctx, doctorID, from)
}

func (s *SlotStore) List(ctx context.Context, filter SlotFilter) ([]TimeSlot, error) {
	slots, err := s.repo.ListSlots(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return slots, nil
}

func (s *SlotStore) DoctorsWithAvailability(ctx context.Context, from civil.Date) ([]uuid.UUID, error) {
	ids, err := s.repo.DoctorsWithAvailability(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("list doctors with availability: %w", err)
	}
	return ids, nil
}

// Delete refuses while any appointment, cancelled ones included, references
// the slot.
func (s *SlotStore) Delete(ctx context.Context, slotID uuid.UUID) error {
	return s.obs.run(ctx, "delete_slot", []attribute.KeyValue{slotAttr(slotID)}, func(ctx context.Context) error {
		return s.repo.WithTx(ctx, func(ctx context.Context, tx Tx) error {
			slot, err := tx.LockSlot(ctx, slotID)
			if err != nil {
				return err
			}
			n, err := tx.CountSlotAppointments(ctx, slotID)
			if err != nil {
				return err
			}
			if n > 0 {
				return ErrHasAppointment
			}
			if err := tx.DeleteSlot(ctx, slotID); err != nil {
				return err
			}
			return recordEvent(ctx, tx, EventSlotDeleted, nil, idPtr(slotID), map[string]any{
				"doctor_id": slot.DoctorID.String(),
				"date":      slot.Date.String(),
			}, s.clock.Now())
		})
	})
}

// Slot ownership checks for the request layer.

func (s *SlotStore) AuthorizeCreate(actor Actor, doctorID uuid.UUID) error {
	return authorizeSlotWrite(actor, doctorID)
}

func (s *SlotStore) AuthorizeManage(ctx context.Context, actor Actor, slotID uuid.UUID) (*TimeSlot, error) {
	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return nil, err
	}
	if err := authorizeSlotWrite(actor, slot.DoctorID); err != nil {
		return nil, err
	}
	return slot, nil
}
