package scheduling

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestValidateSlotShape(t *testing.T) {
	tests := []struct {
		name       string
		date       civil.Date
		start, end civil.Time
		want       error
	}{
		{"valid future", day(2025, 1, 10), hm(9, 0), hm(9, 30), nil},
		{"today is allowed", day(2025, 1, 9), hm(7, 0), hm(7, 30), nil},
		{"start after end", day(2025, 1, 10), hm(10, 0), hm(9, 0), ErrInvalidRange},
		{"empty interval", day(2025, 1, 10), hm(10, 0), hm(10, 0), ErrInvalidRange},
		{"invalid time", day(2025, 1, 10), civil.Time{Hour: 25}, hm(10, 0), ErrInvalidRange},
		{"yesterday", day(2025, 1, 8), hm(9, 0), hm(9, 30), ErrPastDate},
		{"range checked before date", day(2025, 1, 8), hm(10, 0), hm(9, 0), ErrInvalidRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSlotShape(tt.date, tt.start, tt.end, fixedNow)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCheckSlotConflicts(t *testing.T) {
	doctor := uuid.New()
	existing := TimeSlot{ID: uuid.New(), DoctorID: doctor, Date: day(2025, 1, 10), StartTime: hm(9, 0), EndTime: hm(10, 0)}
	other := TimeSlot{ID: uuid.New(), DoctorID: uuid.New(), Date: day(2025, 1, 10), StartTime: hm(9, 0), EndTime: hm(10, 0)}
	siblings := []TimeSlot{existing, other}

	candidate := func(start, end civil.Time) TimeSlot {
		return TimeSlot{ID: uuid.New(), DoctorID: doctor, Date: day(2025, 1, 10), StartTime: start, EndTime: end}
	}

	tests := []struct {
		name      string
		candidate TimeSlot
		want      error
	}{
		{"adjacent before", candidate(hm(8, 0), hm(9, 0)), nil},
		{"adjacent after", candidate(hm(10, 0), hm(10, 30)), nil},
		{"inside", candidate(hm(9, 15), hm(9, 45)), ErrOverlap},
		{"covering", candidate(hm(8, 30), hm(10, 30)), ErrOverlap},
		{"exact duplicate", candidate(hm(9, 0), hm(10, 0)), ErrDuplicateSlot},
		{"self is excluded", existing, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := checkSlotConflicts(tt.candidate, siblings)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestValidateBookingOrder(t *testing.T) {
	doctor, patient := uuid.New(), uuid.New()
	future := &TimeSlot{ID: uuid.New(), DoctorID: doctor, Date: day(2025, 1, 10), StartTime: hm(9, 0), EndTime: hm(9, 30), IsAvailable: true}
	startsNow := &TimeSlot{ID: uuid.New(), DoctorID: doctor, Date: day(2025, 1, 9), StartTime: hm(8, 0), EndTime: hm(8, 30), IsAvailable: true}
	taken := *future
	taken.IsAvailable = false

	tests := []struct {
		name string
		req  BookingRequest
		slot *TimeSlot
		dup  bool
		want error
	}{
		{"ok", BookingRequest{DoctorID: doctor, PatientID: patient, SlotID: future.ID}, future, false, nil},
		{"self booking first", BookingRequest{DoctorID: doctor, PatientID: doctor, SlotID: future.ID}, &taken, true, ErrSelfBooking},
		{"wrong doctor", BookingRequest{DoctorID: uuid.New(), PatientID: patient, SlotID: future.ID}, &taken, false, ErrWrongDoctor},
		{"unavailable", BookingRequest{DoctorID: doctor, PatientID: patient, SlotID: future.ID}, &taken, true, ErrSlotUnavailable},
		{"start equal to now is past", BookingRequest{DoctorID: doctor, PatientID: patient, SlotID: startsNow.ID}, startsNow, false, ErrPastSlot},
		{"duplicate", BookingRequest{DoctorID: doctor, PatientID: patient, SlotID: future.ID}, future, true, ErrDuplicateBooking},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateBooking(tt.req, tt.slot, fixedNow, tt.dup)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCanTransition(t *testing.T) {
	all := []AppointmentStatus{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted}
	allowed := map[[2]AppointmentStatus]bool{
		{StatusPending, StatusConfirmed}:   true,
		{StatusPending, StatusCancelled}:   true,
		{StatusConfirmed, StatusCompleted}: true,
		{StatusConfirmed, StatusCancelled}: true,
	}

	for _, from := range all {
		for _, to := range all {
			got := CanTransition(from, to)
			assert.Equal(t, allowed[[2]AppointmentStatus{from, to}], got, "%s -> %s", from, to)
			if !got {
				assert.ErrorIs(t, validateTransition(from, to), ErrIllegalTransition)
			}
		}
	}
}

func TestValidateCancel(t *testing.T) {
	slot := &TimeSlot{Date: day(2025, 1, 10), StartTime: hm(9, 0), EndTime: hm(9, 30)}
	past := &TimeSlot{Date: day(2025, 1, 8), StartTime: hm(9, 0), EndTime: hm(9, 30)}

	assert.NoError(t, validateCancel(&Appointment{Status: StatusPending}, slot, fixedNow))
	assert.NoError(t, validateCancel(&Appointment{Status: StatusConfirmed}, slot, fixedNow))
	assert.ErrorIs(t, validateCancel(&Appointment{Status: StatusCompleted}, slot, fixedNow), ErrIllegalTransition)
	assert.ErrorIs(t, validateCancel(&Appointment{Status: StatusCancelled}, slot, fixedNow), ErrIllegalTransition)
	assert.ErrorIs(t, validateCancel(&Appointment{Status: StatusCompleted}, past, fixedNow), ErrTooLate)
}

func TestSlotStartUsesClockLocation(t *testing.T) {
	loc := time.FixedZone("CET", 3600)
	slot := &TimeSlot{Date: day(2025, 1, 9), StartTime: hm(9, 0), EndTime: hm(9, 30), IsAvailable: true}

	// 08:45 UTC is 09:45 CET: the slot has started in the clock's location.
	now := time.Date(2025, 1, 9, 8, 45, 0, 0, time.UTC).In(loc)
	req := BookingRequest{DoctorID: slot.DoctorID, PatientID: uuid.New()}
	assert.ErrorIs(t, validateBooking(req, slot, now, false), ErrPastSlot)
	assert.NoError(t, validateBooking(req, slot, now.In(time.UTC), false))
}

func TestAuthorization(t *testing.T) {
	doctor, patient := uuid.New(), uuid.New()
	appt := &Appointment{DoctorID: doctor, PatientID: patient}

	admin := Actor{UserID: uuid.New(), Role: RoleAdmin}
	ownDoctor := Actor{UserID: doctor, Role: RoleDoctor}
	otherDoctor := Actor{UserID: uuid.New(), Role: RoleDoctor}
	ownPatient := Actor{UserID: patient, Role: RolePatient}
	otherPatient := Actor{UserID: uuid.New(), Role: RolePatient}
	unknown := Actor{UserID: uuid.New()}

	t.Run("slot write", func(t *testing.T) {
		assert.NoError(t, authorizeSlotWrite(admin, doctor))
		assert.NoError(t, authorizeSlotWrite(ownDoctor, doctor))
		assert.ErrorIs(t, authorizeSlotWrite(otherDoctor, doctor), ErrForbidden)
		assert.ErrorIs(t, authorizeSlotWrite(ownPatient, doctor), ErrForbidden)
		assert.ErrorIs(t, authorizeSlotWrite(unknown, doctor), ErrForbidden)
	})

	t.Run("booking", func(t *testing.T) {
		assert.NoError(t, authorizeBooking(admin, patient))
		assert.NoError(t, authorizeBooking(ownPatient, patient))
		assert.ErrorIs(t, authorizeBooking(otherPatient, patient), ErrForbidden)
		assert.ErrorIs(t, authorizeBooking(ownDoctor, patient), ErrForbidden)
	})

	t.Run("status change", func(t *testing.T) {
		assert.NoError(t, authorizeStatusChange(admin, appt))
		assert.NoError(t, authorizeStatusChange(ownDoctor, appt))
		assert.ErrorIs(t, authorizeStatusChange(otherDoctor, appt), ErrForbidden)
		assert.ErrorIs(t, authorizeStatusChange(ownPatient, appt), ErrForbidden)
	})

	t.Run("participant", func(t *testing.T) {
		assert.NoError(t, authorizeParticipant(admin, appt))
		assert.NoError(t, authorizeParticipant(ownDoctor, appt))
		assert.NoError(t, authorizeParticipant(ownPatient, appt))
		assert.ErrorIs(t, authorizeParticipant(otherDoctor, appt), ErrForbidden)
		assert.ErrorIs(t, authorizeParticipant(otherPatient, appt), ErrForbidden)
	})

	t.Run("admin", func(t *testing.T) {
		assert.NoError(t, authorizeAdmin(admin))
		assert.ErrorIs(t, authorizeAdmin(ownDoctor), ErrForbidden)
		assert.ErrorIs(t, authorizeAdmin(ownPatient), ErrForbidden)
	})
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "ok", ErrorKind(nil))
	assert.Equal(t, "slot_not_found", ErrorKind(ErrSlotNotFound))
	assert.Equal(t, "appointment_not_found", ErrorKind(ErrAppointmentNotFound))
	assert.Equal(t, "overlap", ErrorKind(checkSlotConflicts(
		TimeSlot{ID: uuid.New(), Date: day(2025, 1, 10), StartTime: hm(9, 0), EndTime: hm(10, 0)},
		[]TimeSlot{{ID: uuid.New(), Date: day(2025, 1, 10), StartTime: hm(9, 30), EndTime: hm(11, 0)}},
	)))
	assert.Equal(t, "internal", ErrorKind(assert.AnError))
	assert.ErrorIs(t, ErrSlotNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrAppointmentNotFound, ErrNotFound)
}
