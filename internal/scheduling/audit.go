package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/doctor-slot-booking/internal/metrics"
)

const (
	ViolationAvailableWithLive    = "available_with_live_appointment"
	ViolationUnavailableNoLive    = "unavailable_without_live_appointment"
	ViolationMultipleLive         = "multiple_live_appointments"
	ViolationOverlappingAvailable = "overlapping_available_slots"
)

type Violation struct {
	Kind   string
	SlotID uuid.UUID
	// OtherSlotID is set for overlapping pairs.
	OtherSlotID *uuid.UUID
	Detail      string
}

type AuditReport struct {
	SlotsChecked int
	Violations   []Violation
}

func (r AuditReport) OK() bool {
	return len(r.Violations) == 0
}

// Auditor checks the slot/appointment invariants against stored state. It
// only reports; it never repairs availability.
type Auditor struct {
	repo    Repository
	log     *zap.Logger
	metrics *metrics.BookingMetrics
}

func NewAuditor(repo Repository, log *zap.Logger, m *metrics.BookingMetrics) *Auditor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Auditor{repo: repo, log: log, metrics: m}
}

func (a *Auditor) Run(ctx context.Context) (AuditReport, error) {
	ctx, span := tracer.Start(ctx, "scheduling.audit")
	defer span.End()

	occupancy, err := a.repo.SlotOccupancy(ctx)
	if err != nil {
		a.metrics.ObserveAuditRun("error")
		span.RecordError(err)
		return AuditReport{}, fmt.Errorf("load slot occupancy: %w", err)
	}

	report := AuditReport{
		SlotsChecked: len(occupancy),
		Violations:   findViolations(occupancy),
	}

	for _, v := range report.Violations {
		a.metrics.ObserveViolation(v.Kind)
		fields := []zap.Field{
			zap.String("kind", v.Kind),
			zap.String("slot_id", v.SlotID.String()),
			zap.String("detail", v.Detail),
		}
		if v.OtherSlotID != nil {
			fields = append(fields, zap.String("other_slot_id", v.OtherSlotID.String()))
		}
		a.log.Warn("invariant violation", fields...)
	}

	if report.OK() {
		a.metrics.ObserveAuditRun("clean")
	} else {
		a.metrics.ObserveAuditRun("violations")
	}
	a.log.Info("audit finished",
		zap.Int("slots_checked", report.SlotsChecked),
		zap.Int("violations", len(report.Violations)),
	)
	return report, nil
}

func findViolations(occupancy []SlotOccupancy) []Violation {
	var out []Violation
	available := make(map[dayKey][]TimeSlot)

	for _, o := range occupancy {
		s := o.Slot
		switch {
		case s.IsAvailable && o.LiveAppointments > 0:
			out = append(out, Violation{
				Kind:   ViolationAvailableWithLive,
				SlotID: s.ID,
				Detail: fmt.Sprintf("%d live appointment(s)", o.LiveAppointments),
			})
		case !s.IsAvailable && o.LiveAppointments == 0:
			out = append(out, Violation{
				Kind:   ViolationUnavailableNoLive,
				SlotID: s.ID,
				Detail: fmt.Sprintf("%d appointment(s), none live", o.TotalAppointments),
			})
		}
		if o.LiveAppointments > 1 {
			out = append(out, Violation{
				Kind:   ViolationMultipleLive,
				SlotID: s.ID,
				Detail: fmt.Sprintf("%d live appointments", o.LiveAppointments),
			})
		}
		if s.IsAvailable {
			k := dayKey{doctorID: s.DoctorID, date: s.Date.String()}
			available[k] = append(available[k], s)
		}
	}

	for _, slots := range available {
		for i := range slots {
			for j := i + 1; j < len(slots); j++ {
				if slots[i].Overlaps(slots[j]) {
					other := slots[j].ID
					out = append(out, Violation{
						Kind:        ViolationOverlappingAvailable,
						SlotID:      slots[i].ID,
						OtherSlotID: &other,
						Detail: fmt.Sprintf("%s %s-%s overlaps %s-%s", slots[i].Date,
							slots[i].StartTime, slots[i].EndTime, slots[j].StartTime, slots[j].EndTime),
					})
				}
			}
		}
	}
	return out
}

type dayKey struct {
	doctorID uuid.UUID
	date     string
}
