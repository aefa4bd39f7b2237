package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// MaxAppointmentDuration bounds any appointment or slot length, whatever
// the configured limits.
const MaxAppointmentDuration = 24 * time.Hour

// MinutesToDuration converts a positive minute count no larger than limit
// without overflowing. A non-positive limit means MaxAppointmentDuration.
func MinutesToDuration(minutes int, limit time.Duration) (time.Duration, error) {
	if limit <= 0 || limit > MaxAppointmentDuration {
		limit = MaxAppointmentDuration
	}
	if minutes <= 0 {
		return 0, fmt.Errorf("must be positive")
	}
	if minutes > int(limit/time.Minute) {
		return 0, fmt.Errorf("cannot exceed %v", limit)
	}
	return time.Duration(minutes) * time.Minute, nil
}

type AppointmentStatus string

const (
	AppointmentStatusScheduled  AppointmentStatus = "scheduled"
	AppointmentStatusInProgress AppointmentStatus = "in_progress"
	AppointmentStatusCompleted  AppointmentStatus = "completed"
	AppointmentStatusCancelled  AppointmentStatus = "cancelled"
)

var appointmentTransitions = map[AppointmentStatus][]AppointmentStatus{
	AppointmentStatusScheduled:  {AppointmentStatusInProgress, AppointmentStatusCancelled},
	AppointmentStatusInProgress: {AppointmentStatusCompleted, AppointmentStatusCancelled},
}

func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusScheduled, AppointmentStatusInProgress,
		AppointmentStatusCompleted, AppointmentStatusCancelled:
		return true
	}
	return false
}

// Active statuses hold their interval on the doctor's calendar.
func (s AppointmentStatus) Active() bool {
	return s == AppointmentStatusScheduled || s == AppointmentStatusInProgress
}

func (s AppointmentStatus) Terminal() bool {
	return s == AppointmentStatusCompleted || s == AppointmentStatusCancelled
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s AppointmentStatus) CanTransitionTo(next AppointmentStatus) bool {
	for _, allowed := range appointmentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

type Appointment struct {
	Base
	DoctorID  uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	PatientID uuid.UUID         `db:"patient_id" json:"patient_id"`
	StartTime time.Time         `db:"start_time" json:"start_time"`
	EndTime   time.Time         `db:"end_time" json:"end_time"`
	Title     string            `db:"title" json:"title"`
	Notes     string            `db:"notes" json:"notes,omitempty"`
	Status    AppointmentStatus `db:"status" json:"status"`
	Version   int               `db:"version" json:"version"`
}

// Slot returns the appointment's [start, end) interval.
func (a *Appointment) Slot() TimeSlot {
	return TimeSlot{Start: a.StartTime, End: a.EndTime}
}

// Conflicts reports whether a blocks the interval [start, end).
func (a *Appointment) Conflicts(start, end time.Time) bool {
	return a.Status.Active() && Overlaps(a.StartTime, a.EndTime, start, end)
}

type CreateAppointmentRequest struct {
	DoctorID        uuid.UUID `json:"doctor_id" binding:"required"`
	PatientID       uuid.UUID `json:"patient_id" binding:"required"`
	StartTime       time.Time `json:"start_time" binding:"required"`
	DurationMinutes int       `json:"duration_minutes" binding:"required,gt=0"`
	Title           string    `json:"title" binding:"required,max=200"`
	Notes           string    `json:"notes" binding:"max=2000"`
}

type UpdateStatusRequest struct {
	Status AppointmentStatus `json:"status" binding:"required,oneof=scheduled in_progress completed cancelled"`
}

type RescheduleRequest struct {
	StartTime       time.Time `json:"start_time" binding:"required"`
	DurationMinutes int       `json:"duration_minutes" binding:"required,gt=0"`
}

type TimeSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

func (t TimeSlot) Duration() time.Duration {
	return t.End.Sub(t.Start)
}

func (t TimeSlot) Overlaps(other TimeSlot) bool {
	return Overlaps(t.Start, t.End, other.Start, other.End)
}

// Overlaps reports whether [s1, e1) and [s2, e2) intersect. Intervals that
// only touch at an endpoint do not overlap.
func Overlaps(s1, e1, s2, e2 time.Time) bool {
	return s1.Before(e2) && s2.Before(e1)
}

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return Clock{}, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

func (c Clock) minutes() int {
	return c.Hour*60 + c.Minute
}

// WorkingHours is the daily window slots are tiled across.
type WorkingHours struct {
	Start    Clock
	End      Clock
	SlotSize time.Duration
	Location *time.Location
}

func (w WorkingHours) Validate() error {
	if w.End.minutes() <= w.Start.minutes() {
		return fmt.Errorf("working hours end %s must be after start %s", w.End, w.Start)
	}
	if w.SlotSize <= 0 {
		return fmt.Errorf("slot size must be positive")
	}
	return nil
}

// Window returns the working interval on the calendar day of day, evaluated
// in the configured location.
func (w WorkingHours) Window(day time.Time) TimeSlot {
	loc := w.Location
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := day.In(loc).Date()
	return TimeSlot{
		Start: time.Date(y, m, d, w.Start.Hour, w.Start.Minute, 0, 0, loc),
		End:   time.Date(y, m, d, w.End.Hour, w.End.Minute, 0, 0, loc),
	}
}
