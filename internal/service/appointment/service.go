package appointment

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

// UserDirectory resolves user ids to identities.
type UserDirectory interface {
	ResolveUser(ctx context.Context, id uuid.UUID) (*model.Identity, error)
}

// Notifier receives committed booking changes. Dispatch must not block on
// delivery and reports no errors.
type Notifier interface {
	Dispatch(ctx context.Context, event model.AppointmentEvent)
}

type Config struct {
	WorkingHours model.WorkingHours
	// MaxDuration caps a single appointment; zero means
	// model.MaxAppointmentDuration.
	MaxDuration time.Duration
}

// Service is the appointment scheduler. It is the only writer of
// appointment status and the only arbiter of overlap.
type Service struct {
	repo     repository.AppointmentRepository
	users    UserDirectory
	notifier Notifier
	cfg      Config
	logger   *logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

func NewService(
	repo repository.AppointmentRepository,
	users UserDirectory,
	notifier Notifier,
	cfg Config,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		repo:     repo,
		users:    users,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
	}
}

// WorkingHours returns the configured default availability window.
func (s *Service) WorkingHours() model.WorkingHours {
	return s.cfg.WorkingHours
}

// IsSlotAvailable reports whether no active appointment of the doctor
// overlaps [start, end). It has no side effects.
func (s *Service) IsSlotAvailable(ctx context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	if err := validateRange(start, end); err != nil {
		return false, err
	}
	if err := s.requireRole(ctx, doctorID, model.RoleDoctor); err != nil {
		return false, err
	}

	appointments, err := s.repo.FindByDoctorAndRange(ctx, doctorID, start, end)
	if err != nil {
		return false, storageError("find doctor appointments", err)
	}
	for _, apt := range appointments {
		if apt.Conflicts(start, end) {
			return false, nil
		}
	}
	return true, nil
}

// GetAppointmentsForDoctorInRange returns every appointment of the doctor,
// whatever its status, intersecting [start, end), ordered by start time.
func (s *Service) GetAppointmentsForDoctorInRange(ctx context.Context, actor model.Identity, doctorID uuid.UUID, start, end time.Time) ([]*model.Appointment, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	if err := authorizeDoctorListing(actor); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, doctorID, model.RoleDoctor); err != nil {
		return nil, err
	}

	appointments, err := s.repo.FindByDoctorAndRange(ctx, doctorID, start, end)
	if err != nil {
		return nil, storageError("find doctor appointments", err)
	}
	return appointments, nil
}

// AvailableSlots returns the free slots of the doctor on day's calendar
// date. The sequence is computed from one snapshot of the calendar and
// yields the same slots each time it is ranged over.
func (s *Service) AvailableSlots(ctx context.Context, doctorID uuid.UUID, day time.Time, hours model.WorkingHours) (iter.Seq[model.TimeSlot], error) {
	if err := hours.Validate(); err != nil {
		return nil, errors.NewInvalidInput(err.Error(), err)
	}
	if err := s.requireRole(ctx, doctorID, model.RoleDoctor); err != nil {
		return nil, err
	}

	window := hours.Window(day)
	appointments, err := s.repo.FindByDoctorAndRange(ctx, doctorID, window.Start, window.End)
	if err != nil {
		return nil, storageError("find doctor appointments", err)
	}
	return Slots(window, hours.SlotSize, busyIntervals(appointments)), nil
}

// CreateAppointment books [start, start+duration) for the doctor. The
// overlap check and the insert happen atomically in the repository; a lost
// race and a plainly taken slot both surface as SlotConflict.
func (s *Service) CreateAppointment(ctx context.Context, actor model.Identity, req model.CreateAppointmentRequest) (apt *model.Appointment, err error) {
	defer s.observe("create", s.now(), &err)

	title := strings.TrimSpace(req.Title)
	switch {
	case req.DoctorID == uuid.Nil:
		return nil, errors.NewInvalidInput("doctor_id is required", nil)
	case req.PatientID == uuid.Nil:
		return nil, errors.NewInvalidInput("patient_id is required", nil)
	case req.StartTime.IsZero():
		return nil, errors.NewInvalidInput("start_time is required", nil)
	case title == "":
		return nil, errors.NewInvalidInput("title is required", nil)
	}
	duration, err := s.duration(req.DurationMinutes)
	if err != nil {
		return nil, err
	}

	if err := authorizeCreate(actor, req.DoctorID, req.PatientID); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, req.DoctorID, model.RoleDoctor); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, req.PatientID, model.RolePatient); err != nil {
		return nil, err
	}

	start := req.StartTime.UTC()
	apt = &model.Appointment{
		DoctorID:  req.DoctorID,
		PatientID: req.PatientID,
		StartTime: start,
		EndTime:   start.Add(duration),
		Title:     title,
		Notes:     strings.TrimSpace(req.Notes),
		Status:    model.AppointmentStatusScheduled,
	}
	if err := s.repo.InsertIfNoOverlap(ctx, apt); err != nil {
		return nil, storageError("create appointment", err)
	}

	s.logger.Info("appointment booked",
		"appointment_id", apt.ID.String(),
		"doctor_id", apt.DoctorID.String(),
		"start_time", apt.StartTime)
	s.notify(ctx, model.AppointmentCreated, apt)
	return apt, nil
}

func (s *Service) GetAppointment(ctx context.Context, actor model.Identity, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, storageError("get appointment", err)
	}
	if err := authorizeRead(actor, apt); err != nil {
		return nil, err
	}
	return apt, nil
}

func (s *Service) ListAppointmentsForPatient(ctx context.Context, actor model.Identity, patientID uuid.UUID, start, end time.Time) ([]*model.Appointment, error) {
	if err := validateRange(start, end); err != nil {
		return nil, err
	}
	if err := authorizePatientListing(actor, patientID); err != nil {
		return nil, err
	}
	if err := s.requireRole(ctx, patientID, model.RolePatient); err != nil {
		return nil, err
	}

	appointments, err := s.repo.FindByPatientAndRange(ctx, patientID, start, end)
	if err != nil {
		return nil, storageError("find patient appointments", err)
	}
	return appointments, nil
}

// UpdateStatus moves the appointment one step along its state machine.
func (s *Service) UpdateStatus(ctx context.Context, actor model.Identity, id uuid.UUID, status model.AppointmentStatus) (apt *model.Appointment, err error) {
	defer s.observe("update_status", s.now(), &err)

	if !status.Valid() {
		return nil, errors.NewInvalidInput(fmt.Sprintf("unknown status %q", status), nil)
	}

	apt, err = s.repo.Get(ctx, id)
	if err != nil {
		return nil, storageError("get appointment", err)
	}
	if err := authorizeStatusChange(actor, apt, status); err != nil {
		return nil, err
	}
	if apt.Status == status {
		return nil, errors.NewInvalidInput(fmt.Sprintf("appointment is already %s", status), nil)
	}
	if !apt.Status.CanTransitionTo(status) {
		return nil, errors.NewInvalidInput(fmt.Sprintf("cannot change status from %s to %s", apt.Status, status), nil)
	}

	previous := apt.Status
	apt.Status = status
	if err := s.repo.Update(ctx, apt); err != nil {
		return nil, storageError("update appointment", err)
	}

	s.logger.Info("appointment status changed",
		"appointment_id", apt.ID.String(),
		"from", string(previous),
		"to", string(status))
	if status == model.AppointmentStatusCancelled {
		s.notify(ctx, model.AppointmentCancelled, apt)
	}
	return apt, nil
}

// Reschedule moves a scheduled appointment to [start, start+duration),
// re-checking overlap against the doctor's other appointments.
func (s *Service) Reschedule(ctx context.Context, actor model.Identity, id uuid.UUID, start time.Time, durationMinutes int) (apt *model.Appointment, err error) {
	defer s.observe("reschedule", s.now(), &err)

	if start.IsZero() {
		return nil, errors.NewInvalidInput("start_time is required", nil)
	}
	duration, err := s.duration(durationMinutes)
	if err != nil {
		return nil, err
	}

	apt, err = s.repo.Get(ctx, id)
	if err != nil {
		return nil, storageError("get appointment", err)
	}
	if err := authorizeParticipant(actor, apt); err != nil {
		return nil, err
	}
	if apt.Status != model.AppointmentStatusScheduled {
		return nil, errors.NewInvalidInput(fmt.Sprintf("cannot reschedule a %s appointment", apt.Status), nil)
	}

	apt.StartTime = start.UTC()
	apt.EndTime = apt.StartTime.Add(duration)
	if err := s.repo.Update(ctx, apt); err != nil {
		return nil, storageError("reschedule appointment", err)
	}

	s.logger.Info("appointment rescheduled",
		"appointment_id", apt.ID.String(),
		"start_time", apt.StartTime)
	s.notify(ctx, model.AppointmentRescheduled, apt)
	return apt, nil
}

// DeleteAppointment physically removes a cancelled appointment. Only
// admins may delete.
func (s *Service) DeleteAppointment(ctx context.Context, actor model.Identity, id uuid.UUID) (err error) {
	defer s.observe("delete", s.now(), &err)

	if !actor.IsAdmin() {
		return errors.NewUnauthorized("only admins can delete appointments", nil)
	}

	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return storageError("get appointment", err)
	}
	if apt.Status != model.AppointmentStatusCancelled {
		return errors.NewInvalidInput("can only delete cancelled appointments", nil)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return storageError("delete appointment", err)
	}

	s.logger.Info("appointment deleted", "appointment_id", id.String())
	return nil
}

func (s *Service) duration(minutes int) (time.Duration, error) {
	d, err := model.MinutesToDuration(minutes, s.cfg.MaxDuration)
	if err != nil {
		return 0, errors.NewInvalidInput("duration_minutes "+err.Error(), nil)
	}
	return d, nil
}

// requireRole fails with NotFound unless id names a user holding role.
func (s *Service) requireRole(ctx context.Context, id uuid.UUID, role model.Role) error {
	identity, err := s.users.ResolveUser(ctx, id)
	if err != nil {
		if errors.CodeOf(err) == errors.ErrNotFound {
			return errors.NewNotFound(string(role), err)
		}
		return storageError("resolve user", err)
	}
	if identity.Role != role {
		return errors.NewNotFound(string(role), fmt.Errorf("user %s has role %s", id, identity.Role))
	}
	return nil
}

func (s *Service) notify(ctx context.Context, eventType model.AppointmentEventType, apt *model.Appointment) {
	if s.notifier == nil {
		return
	}
	s.notifier.Dispatch(ctx, model.NewAppointmentEvent(eventType, apt, s.now()))
}

func (s *Service) observe(operation string, started time.Time, err *error) {
	if s.metrics == nil {
		return
	}
	outcome := "success"
	if *err != nil {
		outcome = errors.CodeOf(*err).String()
	}
	s.metrics.SchedulingOperations.WithLabelValues(operation, outcome).Inc()
	s.metrics.SchedulingLatency.WithLabelValues(operation).Observe(s.now().Sub(started).Seconds())
}

func validateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return errors.NewInvalidInput("start and end are required", nil)
	}
	if !start.Before(end) {
		return errors.NewInvalidInput("start must be before end", nil)
	}
	return nil
}

// storageError passes AppErrors through and wraps anything else as
// Internal.
func storageError(op string, err error) error {
	if _, ok := errors.As(err); ok {
		return err
	}
	return errors.NewInternal(fmt.Errorf("failed to %s: %w", op, err))
}
