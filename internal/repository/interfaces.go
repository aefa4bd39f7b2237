package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
)

// All repository interfaces in one file. Implementations return
// pkg/errors AppErrors for NotFound and SlotConflict outcomes.
type (
	// AppointmentRepository owns appointment storage and enforces the
	// per-doctor no-overlap rule atomically with each write.
	AppointmentRepository interface {
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		// FindByDoctorAndRange returns the doctor's appointments of any status
		// intersecting [start, end), ordered by start time.
		FindByDoctorAndRange(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]*model.Appointment, error)
		FindByPatientAndRange(ctx context.Context, patientID uuid.UUID, start, end time.Time) ([]*model.Appointment, error)
		// InsertIfNoOverlap checks and inserts under the doctor's exclusion.
		InsertIfNoOverlap(ctx context.Context, appointment *model.Appointment) error
		// Update persists appointment if its stored version still matches,
		// re-checking overlap against the doctor's other appointments.
		Update(ctx context.Context, appointment *model.Appointment) error
		Delete(ctx context.Context, id uuid.UUID) error
	}

	UserRepository interface {
		Create(ctx context.Context, user *model.User) error
		Get(ctx context.Context, id uuid.UUID) (*model.User, error)
		GetByEmail(ctx context.Context, email string) (*model.User, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// GetPendingEvents claims up to limit pending events for processing.
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		MarkAsProcessed(ctx context.Context, id uuid.UUID) error
		MarkAsFailed(ctx context.Context, id uuid.UUID, errMsg string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
