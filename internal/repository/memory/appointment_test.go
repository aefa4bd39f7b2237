package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/errors"
)

func newAppointment(doctorID uuid.UUID, start time.Time, d time.Duration) *model.Appointment {
	return &model.Appointment{
		DoctorID:  doctorID,
		PatientID: uuid.New(),
		StartTime: start,
		EndTime:   start.Add(d),
		Title:     "checkup",
		Status:    model.AppointmentStatusScheduled,
	}
}

func TestAppointmentRepository_InsertIfNoOverlap(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository(time.Second)
	doctor := uuid.New()
	nine := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	first := newAppointment(doctor, nine, time.Hour)
	require.NoError(t, repo.InsertIfNoOverlap(ctx, first))
	assert.NotEqual(t, uuid.Nil, first.ID)
	assert.Equal(t, 1, first.Version)

	err := repo.InsertIfNoOverlap(ctx, newAppointment(doctor, nine.Add(30*time.Minute), time.Hour))
	assert.ErrorIs(t, err, errors.SlotConflict)

	require.NoError(t, repo.InsertIfNoOverlap(ctx, newAppointment(doctor, nine.Add(time.Hour), 30*time.Minute)))
	require.NoError(t, repo.InsertIfNoOverlap(ctx, newAppointment(uuid.New(), nine, time.Hour)))
}

func TestAppointmentRepository_FindByDoctorAndRangeOrdered(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository(time.Second)
	doctor := uuid.New()
	base := time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)

	for _, h := range []int{14, 9, 11} {
		require.NoError(t, repo.InsertIfNoOverlap(ctx, newAppointment(doctor, base.Add(time.Duration(h)*time.Hour), 30*time.Minute)))
	}
	require.NoError(t, repo.InsertIfNoOverlap(ctx, newAppointment(uuid.New(), base.Add(10*time.Hour), time.Hour)))

	got, err := repo.FindByDoctorAndRange(ctx, doctor, base, base.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 9, got[0].StartTime.Hour())
	assert.Equal(t, 11, got[1].StartTime.Hour())
	assert.Equal(t, 14, got[2].StartTime.Hour())

	// [9:30, 11:00) touches the 11:00 appointment without intersecting it.
	got, err = repo.FindByDoctorAndRange(ctx, doctor, base.Add(9*time.Hour+30*time.Minute), base.Add(11*time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 0)
}

func TestAppointmentRepository_UpdateExcludesSelfAndChecksVersion(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository(time.Second)
	doctor := uuid.New()
	nine := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	apt := newAppointment(doctor, nine, time.Hour)
	require.NoError(t, repo.InsertIfNoOverlap(ctx, apt))

	stale, err := repo.Get(ctx, apt.ID)
	require.NoError(t, err)

	// Shifting within its own window only overlaps itself.
	apt.StartTime = nine.Add(15 * time.Minute)
	apt.EndTime = apt.StartTime.Add(time.Hour)
	require.NoError(t, repo.Update(ctx, apt))
	assert.Equal(t, 2, apt.Version)

	stale.Status = model.AppointmentStatusCancelled
	err = repo.Update(ctx, stale)
	assert.ErrorIs(t, err, errors.SlotConflict)

	missing := newAppointment(doctor, nine, time.Hour)
	missing.ID = uuid.New()
	assert.ErrorIs(t, repo.Update(ctx, missing), errors.NotFound)
}

func TestAppointmentRepository_ConcurrentInsertsSingleWinner(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository(5 * time.Second)
	doctor := uuid.New()
	nine := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	const n = 32
	results := make(chan error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			offset := time.Duration(i%4) * 10 * time.Minute
			results <- repo.InsertIfNoOverlap(ctx, newAppointment(doctor, nine.Add(offset), time.Hour))
		}(i)
	}
	wg.Wait()
	close(results)

	var ok, conflicts int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.CodeOf(err) == errors.ErrSlotConflict:
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, conflicts)
}

func TestAppointmentRepository_LockTimeoutIsSlotConflict(t *testing.T) {
	repo := NewAppointmentRepository(20 * time.Millisecond).(*appointmentRepository)
	doctor := uuid.New()

	unlock, err := repo.doctors.Lock(context.Background(), doctor)
	require.NoError(t, err)
	defer unlock()

	err = repo.InsertIfNoOverlap(context.Background(), newAppointment(doctor, time.Now(), time.Hour))
	assert.ErrorIs(t, err, errors.SlotConflict)
	assert.Contains(t, err.Error(), "timed out")
}

func TestAppointmentRepository_CallerDeadlineIsSlotConflict(t *testing.T) {
	repo := NewAppointmentRepository(time.Minute).(*appointmentRepository)
	doctor := uuid.New()

	unlock, err := repo.doctors.Lock(context.Background(), doctor)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = repo.InsertIfNoOverlap(ctx, newAppointment(doctor, time.Now(), time.Hour))
	assert.ErrorIs(t, err, errors.SlotConflict)
	assert.Contains(t, err.Error(), "timed out waiting for doctor schedule")
}

func TestAppointmentRepository_CancelledCallerIsNotSlotConflict(t *testing.T) {
	repo := NewAppointmentRepository(time.Minute).(*appointmentRepository)
	doctor := uuid.New()

	unlock, err := repo.doctors.Lock(context.Background(), doctor)
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	err = repo.InsertIfNoOverlap(ctx, newAppointment(doctor, time.Now(), time.Hour))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAppointmentRepository_RejectsInvertedInterval(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository(time.Second)
	doctor := uuid.New()
	start := time.Date(2025, 1, 15, 9, 0, 0, 0, time.UTC)

	err := repo.InsertIfNoOverlap(ctx, newAppointment(doctor, start, -time.Hour))
	assert.ErrorIs(t, err, errors.InvalidInput)
	err = repo.InsertIfNoOverlap(ctx, newAppointment(doctor, start, 0))
	assert.ErrorIs(t, err, errors.InvalidInput)

	apt := newAppointment(doctor, start, time.Hour)
	require.NoError(t, repo.InsertIfNoOverlap(ctx, apt))
	apt.EndTime = apt.StartTime.Add(-time.Minute)
	assert.ErrorIs(t, repo.Update(ctx, apt), errors.InvalidInput)
}

func TestAppointmentRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewAppointmentRepository(time.Second)

	apt := newAppointment(uuid.New(), time.Now(), time.Hour)
	require.NoError(t, repo.InsertIfNoOverlap(ctx, apt))
	require.NoError(t, repo.Delete(ctx, apt.ID))

	_, err := repo.Get(ctx, apt.ID)
	assert.ErrorIs(t, err, errors.NotFound)
	assert.ErrorIs(t, repo.Delete(ctx, apt.ID), errors.NotFound)
}
