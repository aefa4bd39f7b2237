package memory

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/keylock"
)

type appointmentRepository struct {
	mu           sync.RWMutex
	appointments map[uuid.UUID]*model.Appointment
	doctors      *keylock.Map[uuid.UUID]
	lockTimeout  time.Duration
}

// NewAppointmentRepository returns an in-process store. Writes for one
// doctor are serialized by a per-doctor lock acquired within lockTimeout.
func NewAppointmentRepository(lockTimeout time.Duration) repository.AppointmentRepository {
	return &appointmentRepository{
		appointments: make(map[uuid.UUID]*model.Appointment),
		doctors:      keylock.New[uuid.UUID](),
		lockTimeout:  lockTimeout,
	}
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	apt, ok := r.appointments[id]
	if !ok {
		return nil, errors.NewNotFound("appointment", nil)
	}
	cp := *apt
	return &cp, nil
}

func (r *appointmentRepository) FindByDoctorAndRange(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]*model.Appointment, error) {
	return r.find(func(a *model.Appointment) bool {
		return a.DoctorID == doctorID && model.Overlaps(a.StartTime, a.EndTime, start, end)
	}), nil
}

func (r *appointmentRepository) FindByPatientAndRange(ctx context.Context, patientID uuid.UUID, start, end time.Time) ([]*model.Appointment, error) {
	return r.find(func(a *model.Appointment) bool {
		return a.PatientID == patientID && model.Overlaps(a.StartTime, a.EndTime, start, end)
	}), nil
}

func (r *appointmentRepository) InsertIfNoOverlap(ctx context.Context, appointment *model.Appointment) error {
	if err := checkTimeOrder(appointment); err != nil {
		return err
	}
	unlock, err := r.lockDoctor(ctx, appointment.DoctorID)
	if err != nil {
		return err
	}
	defer unlock()

	if r.hasConflict(appointment.DoctorID, appointment.StartTime, appointment.EndTime, uuid.Nil) {
		return errors.NewSlotConflict(nil)
	}

	now := time.Now().UTC()
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	appointment.CreatedAt = now
	appointment.UpdatedAt = now
	appointment.Version = 1

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.appointments[appointment.ID]; exists {
		return fmt.Errorf("appointment %s already exists", appointment.ID)
	}
	cp := *appointment
	r.appointments[cp.ID] = &cp
	return nil
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	if err := checkTimeOrder(appointment); err != nil {
		return err
	}
	unlock, err := r.lockDoctor(ctx, appointment.DoctorID)
	if err != nil {
		return err
	}
	defer unlock()

	r.mu.RLock()
	stored, ok := r.appointments[appointment.ID]
	var version int
	if ok {
		version = stored.Version
	}
	r.mu.RUnlock()

	if !ok {
		return errors.NewNotFound("appointment", nil)
	}
	if version != appointment.Version {
		return errors.NewSlotConflict(fmt.Errorf("appointment %s was modified concurrently", appointment.ID))
	}
	if appointment.Status.Active() &&
		r.hasConflict(appointment.DoctorID, appointment.StartTime, appointment.EndTime, appointment.ID) {
		return errors.NewSlotConflict(nil)
	}

	appointment.Version++
	appointment.UpdatedAt = time.Now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *appointment
	r.appointments[cp.ID] = &cp
	return nil
}

func (r *appointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.appointments[id]; !ok {
		return errors.NewNotFound("appointment", nil)
	}
	delete(r.appointments, id)
	return nil
}

func (r *appointmentRepository) lockDoctor(ctx context.Context, doctorID uuid.UUID) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, r.lockTimeout)
	defer cancel()

	unlock, err := r.doctors.Lock(lockCtx, doctorID)
	if err != nil {
		if stderrors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, errors.NewSlotConflict(fmt.Errorf("timed out waiting for doctor schedule: %w", err))
	}
	return unlock, nil
}

// checkTimeOrder mirrors the appointments_time_order table constraint.
func checkTimeOrder(appointment *model.Appointment) error {
	if !appointment.EndTime.After(appointment.StartTime) {
		return errors.NewInvalidInput("end_time must be after start_time", nil)
	}
	return nil
}

// hasConflict must be called with the doctor's lock held.
func (r *appointmentRepository) hasConflict(doctorID uuid.UUID, start, end time.Time, exclude uuid.UUID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, a := range r.appointments {
		if a.DoctorID == doctorID && a.ID != exclude && a.Conflicts(start, end) {
			return true
		}
	}
	return false
}

func (r *appointmentRepository) find(match func(*model.Appointment) bool) []*model.Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*model.Appointment, 0)
	for _, a := range r.appointments {
		if match(a) {
			cp := *a
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartTime.Before(result[j].StartTime)
	})
	return result
}
