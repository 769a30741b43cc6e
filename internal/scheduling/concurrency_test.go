package scheduling

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/hackgods/doctor-slot-booking/internal/redis"
)

func newRedisLocker(t *testing.T, wait time.Duration) (SlotLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisclient.NewRedisSlotLocker(client, 5*time.Second, wait), mr
}

func raceBookings(t *testing.T, f *fixture, slot *TimeSlot, n int) (wins int, errs []error) {
	t.Helper()

	patients := make([]Actor, n)
	for i := range patients {
		patients[i] = Actor{UserID: uuid.New(), Role: RolePatient}
	}

	var (
		mu    sync.Mutex
		wg    sync.WaitGroup
		start = make(chan struct{})
	)
	for _, p := range patients {
		wg.Add(1)
		go func(p Actor) {
			defer wg.Done()
			<-start
			_, err := f.core.BookSlot(context.Background(), p, BookingRequest{
				DoctorID:  slot.DoctorID,
				PatientID: p.UserID,
				SlotID:    slot.ID,
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			errs = append(errs, err)
		}(p)
	}
	close(start)
	wg.Wait()
	return wins, errs
}

func TestConcurrentBookingExactlyOneWins(t *testing.T) {
	f := newFixture(t, nil)
	slot := f.slot(t, f.doctor, day(2025, 1, 10), hm(9, 0), hm(9, 30))

	wins, errs := raceBookings(t, f, slot, 25)
	assert.Equal(t, 1, wins)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	}
	f.requireConsistent(t)
}

func TestConcurrentBookingWithRedisLock(t *testing.T) {
	locker, mr := newRedisLocker(t, 5*time.Second)
	f := newFixture(t, locker)
	slot := f.slot(t, f.doctor, day(2025, 1, 10), hm(9, 0), hm(9, 30))

	wins, errs := raceBookings(t, f, slot, 10)
	assert.Equal(t, 1, wins)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrSlotUnavailable)
	}
	assert.False(t, mr.Exists(redisclient.SlotLockKey(slot.ID)), "lock released after every attempt")
	f.requireConsistent(t)
}

func TestHeldSlotLockSurfacesAsBusy(t *testing.T) {
	ctx := context.Background()
	locker, mr := newRedisLocker(t, 0)
	f := newFixture(t, locker)
	slot := f.slot(t, f.doctor, day(2025, 1, 10), hm(9, 0), hm(9, 30))

	require.NoError(t, mr.Set(redisclient.SlotLockKey(slot.ID), "someone-else"))

	_, err := f.core.BookSlot(ctx, f.patient, BookingRequest{DoctorID: f.doctor.UserID, PatientID: f.patient.UserID, SlotID: slot.ID})
	require.ErrorIs(t, err, ErrSlotBusy)
	assert.Equal(t, "slot_busy", ErrorKind(err))
	assert.True(t, f.slotState(t, slot.ID).IsAvailable)

	mr.Del(redisclient.SlotLockKey(slot.ID))
	f.book(t, f.patient, slot)
	f.requireConsistent(t)
}

func TestConcurrentCancelReleasesOnce(t *testing.T) {
	ctx := context.Background()
	locker, _ := newRedisLocker(t, 5*time.Second)
	f := newFixture(t, locker)
	slot := f.slot(t, f.doctor, day(2025, 1, 10), hm(9, 0), hm(9, 30))
	appt := f.book(t, f.patient, slot)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		oks  int
		errs []error
	)
	actors := []Actor{f.patient, f.doctor, f.admin, f.patient, f.doctor}
	for _, a := range actors {
		wg.Add(1)
		go func(a Actor) {
			defer wg.Done()
			_, err := f.core.Cancel(ctx, a, appt.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				oks++
				return
			}
			errs = append(errs, err)
		}(a)
	}
	wg.Wait()

	assert.Equal(t, 1, oks)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrIllegalTransition)
	}

	releases := 0
	for _, ev := range f.repo.Events() {
		if ev.EventType == EventSlotAvailabilityChanged {
			releases++
		}
	}
	assert.Equal(t, 2, releases, "one claim and one release")
	f.requireConsistent(t)
}

func TestConcurrentSlotCreationNeverOverlaps(t *testing.T) {
	f := newFixture(t, nil)

	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Every candidate overlaps its neighbours.
			start := hm(9, i*4)
			end := hm(9, i*4+10)
			_, _ = f.core.CreateSlot(context.Background(), f.doctor, f.doctor.UserID, day(2025, 1, 10), start, end)
		}(i)
	}
	wg.Wait()

	f.requireConsistent(t)
}
