package scheduling

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxPool is the subset of *pgxpool.Pool the repository needs, so pgxmock
// pools can stand in for it in tests.
type pgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	pool pgxPool
}

func NewPgRepository(pool pgxPool) *PgRepository {
	return &PgRepository{pool: pool}
}

const (
	slotColumns        = `id, doctor_id, date, start_time, end_time, is_available, created_at, updated_at`
	slotColumnsS       = `s.id, s.doctor_id, s.date, s.start_time, s.end_time, s.is_available, s.created_at, s.updated_at`
	appointmentColumns = `id, doctor_id, patient_id, slot_id, status, notes, symptoms, created_at, updated_at`
	appointmentColsA   = `a.id, a.doctor_id, a.patient_id, a.slot_id, a.status, a.notes, a.symptoms, a.created_at, a.updated_at`
)

// Constraint names from migrations/0001_init.up.sql.
const (
	constraintSlotUnique        = "time_slots_doctor_date_times_key"
	constraintSlotRange         = "time_slots_range_chk"
	constraintLiveSlot          = "appointments_live_slot_key"
	constraintBookingTriple     = "appointments_doctor_patient_slot_key"
	constraintNoSelfBooking     = "appointments_no_self_booking"
	constraintAppointmentSlotFK = "appointments_slot_id_fkey"
)

// Helpers

func slotDest(s *TimeSlot) []any {
	return []any{
		&s.ID,
		&s.DoctorID,
		&s.Date,
		&s.StartTime,
		&s.EndTime,
		&s.IsAvailable,
		&s.CreatedAt,
		&s.UpdatedAt,
	}
}

func appointmentDest(a *Appointment) []any {
	return []any{
		&a.ID,
		&a.DoctorID,
		&a.PatientID,
		&a.SlotID,
		&a.Status,
		&a.Notes,
		&a.Symptoms,
		&a.CreatedAt,
		&a.UpdatedAt,
	}
}

func scanSlot(row pgx.Row) (*TimeSlot, error) {
	var s TimeSlot
	if err := row.Scan(slotDest(&s)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	if err := row.Scan(appointmentDest(&a)...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanAppointmentDetail(row pgx.Row) (*AppointmentDetail, error) {
	var d AppointmentDetail
	dest := append(appointmentDest(&d.Appointment), slotDest(&d.Slot)...)
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	return &d, nil
}

func collectSlots(rows pgx.Rows) ([]TimeSlot, error) {
	defer rows.Close()

	var result []TimeSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// translatePgError maps constraint violations onto the typed errors.
func translatePgError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.ConstraintName {
	case constraintSlotUnique:
		return ErrDuplicateSlot
	case constraintSlotRange:
		return ErrInvalidRange
	case constraintLiveSlot:
		return ErrSlotUnavailable
	case constraintBookingTriple:
		return ErrDuplicateBooking
	case constraintNoSelfBooking:
		return ErrSelfBooking
	case constraintAppointmentSlotFK:
		if pgErr.Code == "23503" {
			return ErrHasAppointment
		}
	}
	return err
}

// Interface methods

func (r *PgRepository) WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", translatePgError(err))
	}
	return nil
}

func (r *PgRepository) GetSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE id = $1
	`, id)
	return scanSlot(row)
}

func (r *PgRepository) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, from civil.Date) iter.Seq2[TimeSlot, error] {
	return func(yield func(TimeSlot, error) bool) {
		rows, err := r.pool.Query(ctx, `
			SELECT `+slotColumns+`
			FROM time_slots
			WHERE doctor_id = $1
			  AND is_available
			  AND date >= $2
			ORDER BY date, start_time
		`, doctorID, from.String())
		if err != nil {
			yield(TimeSlot{}, fmt.Errorf("list available slots: %w", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			s, err := scanSlot(rows)
			if err != nil {
				yield(TimeSlot{}, err)
				return
			}
			if !yield(*s, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(TimeSlot{}, err)
		}
	}
}

func (r *PgRepository) ListSlots(ctx context.Context, filter SlotFilter) ([]TimeSlot, error) {
	var (
		conds []string
		args  []any
	)
	if filter.DoctorID != nil {
		args = append(args, *filter.DoctorID)
		conds = append(conds, fmt.Sprintf("doctor_id = $%d", len(args)))
	}
	if filter.Date != nil {
		args = append(args, filter.Date.String())
		conds = append(conds, fmt.Sprintf("date = $%d", len(args)))
	}
	if filter.Available != nil {
		args = append(args, *filter.Available)
		conds = append(conds, fmt.Sprintf("is_available = $%d", len(args)))
	}

	query := `SELECT ` + slotColumns + ` FROM time_slots`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	query += ` ORDER BY date, start_time`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list slots: %w", err)
	}
	return collectSlots(rows)
}

func (r *PgRepository) DoctorsWithAvailability(ctx context.Context, from civil.Date) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT doctor_id
		FROM time_slots
		WHERE is_available
		  AND date >= $1
		ORDER BY doctor_id
	`, from.String())
	if err != nil {
		return nil, fmt.Errorf("list doctors with availability: %w", err)
	}
	defer rows.Close()

	var result []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		result = append(result, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetAppointmentDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColsA+`, `+slotColumnsS+`
		FROM appointments a
		JOIN time_slots s ON s.id = a.slot_id
		WHERE a.id = $1
	`, id)
	return scanAppointmentDetail(row)
}

func (r *PgRepository) ListAppointments(ctx context.Context, filter AppointmentFilter) ([]AppointmentDetail, error) {
	var (
		conds []string
		args  []any
	)
	if filter.DoctorID != nil {
		args = append(args, *filter.DoctorID)
		conds = append(conds, fmt.Sprintf("a.doctor_id = $%d", len(args)))
	}
	if filter.PatientID != nil {
		args = append(args, *filter.PatientID)
		conds = append(conds, fmt.Sprintf("a.patient_id = $%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		args = append(args, statuses)
		conds = append(conds, fmt.Sprintf("a.status = ANY($%d)", len(args)))
	}
	if filter.SlotDate != nil {
		args = append(args, filter.SlotDate.String())
		conds = append(conds, fmt.Sprintf("s.date = $%d", len(args)))
	}

	query := `SELECT ` + appointmentColsA + `, ` + slotColumnsS + `
		FROM appointments a
		JOIN time_slots s ON s.id = a.slot_id`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	if filter.OrderBySlot {
		query += ` ORDER BY s.date, s.start_time`
	} else {
		query += ` ORDER BY a.created_at DESC`
	}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		d, err := scanAppointmentDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PgRepository) SlotOccupancy(ctx context.Context) ([]SlotOccupancy, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+slotColumnsS+`,
		       COUNT(a.id) FILTER (WHERE a.status <> 'cancelled') AS live,
		       COUNT(a.id) AS total
		FROM time_slots s
		LEFT JOIN appointments a ON a.slot_id = s.id
		GROUP BY s.id
		ORDER BY s.doctor_id, s.date, s.start_time
	`)
	if err != nil {
		return nil, fmt.Errorf("load slot occupancy: %w", err)
	}
	defer rows.Close()

	var result []SlotOccupancy
	for rows.Next() {
		var (
			o           SlotOccupancy
			live, total int64
		)
		dest := append(slotDest(&o.Slot), &live, &total)
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		o.LiveAppointments = int(live)
		o.TotalAppointments = int(total)
		result = append(result, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// pgTx runs the transactional statements on a single pgx.Tx.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockSlot(ctx context.Context, id uuid.UUID) (*TimeSlot, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanSlot(row)
}

func (t *pgTx) LockDoctorDay(ctx context.Context, doctorID uuid.UUID, date civil.Date) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		doctorID.String()+"/"+date.String())
	if err != nil {
		return fmt.Errorf("lock doctor day: %w", err)
	}
	return nil
}

func (t *pgTx) ListDoctorSlotsOn(ctx context.Context, doctorID uuid.UUID, date civil.Date) ([]TimeSlot, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+slotColumns+`
		FROM time_slots
		WHERE doctor_id = $1
		  AND date = $2
		ORDER BY start_time
	`, doctorID, date.String())
	if err != nil {
		return nil, fmt.Errorf("list doctor slots: %w", err)
	}
	return collectSlots(rows)
}

func (t *pgTx) InsertSlot(ctx context.Context, slot *TimeSlot) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO time_slots (id, doctor_id, date, start_time, end_time, is_available, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, slot.ID, slot.DoctorID, slot.Date.String(), slot.StartTime.String(), slot.EndTime.String(),
		slot.IsAvailable, slot.CreatedAt, slot.UpdatedAt)
	if err != nil {
		return translatePgError(fmt.Errorf("insert slot: %w", err))
	}
	return nil
}

func (t *pgTx) UpdateSlotTimes(ctx context.Context, slot *TimeSlot) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE time_slots
		SET date = $2,
		    start_time = $3,
		    end_time = $4,
		    updated_at = $5
		WHERE id = $1
	`, slot.ID, slot.Date.String(), slot.StartTime.String(), slot.EndTime.String(), slot.UpdatedAt)
	if err != nil {
		return translatePgError(fmt.Errorf("update slot: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (t *pgTx) SetSlotAvailability(ctx context.Context, id uuid.UUID, available bool, at time.Time) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
		UPDATE time_slots
		SET is_available = $2,
		    updated_at = $3
		WHERE id = $1
		  AND is_available <> $2
	`, id, available, at)
	if err != nil {
		return false, fmt.Errorf("set slot availability: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return true, nil
	}

	var exists bool
	if err := t.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM time_slots WHERE id = $1)`, id).Scan(&exists); err != nil {
		return false, fmt.Errorf("check slot exists: %w", err)
	}
	if !exists {
		return false, ErrSlotNotFound
	}
	return false, nil
}

func (t *pgTx) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM time_slots WHERE id = $1`, id)
	if err != nil {
		return translatePgError(fmt.Errorf("delete slot: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return ErrSlotNotFound
	}
	return nil
}

func (t *pgTx) CountSlotAppointments(ctx context.Context, slotID uuid.UUID) (int, error) {
	var n int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM appointments WHERE slot_id = $1`, slotID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count slot appointments: %w", err)
	}
	return n, nil
}

func (t *pgTx) LockAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (t *pgTx) AppointmentExists(ctx context.Context, doctorID, patientID, slotID uuid.UUID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1 AND patient_id = $2 AND slot_id = $3
		)
	`, doctorID, patientID, slotID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check existing appointment: %w", err)
	}
	return exists, nil
}

func (t *pgTx) InsertAppointment(ctx context.Context, appt *Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments (id, doctor_id, patient_id, slot_id, status, notes, symptoms, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, appt.ID, appt.DoctorID, appt.PatientID, appt.SlotID, appt.Status, appt.Notes, appt.Symptoms,
		appt.CreatedAt, appt.UpdatedAt)
	if err != nil {
		return translatePgError(fmt.Errorf("insert appointment: %w", err))
	}
	return nil
}

func (t *pgTx) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus, at time.Time) (*Appointment, error) {
	row := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = $4
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from, at)
	return scanAppointment(row)
}

func (t *pgTx) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (t *pgTx) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointment_events (event_type, appointment_id, slot_id, payload, created_at)
		VALUES ($1, $2, $3, $4, COALESCE($5, now()))
	`, ev.EventType, ev.AppointmentID, ev.SlotID, ev.Payload, nullableTime(ev.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event log: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
