package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/security"
)

const appointmentColumns = `
	id, doctor_id, patient_id, start_time, end_time, title, notes,
	status, version, created_at, updated_at`

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		if err = mapError(err); errors.CodeOf(err) == errors.ErrNotFound {
			return nil, errors.NewNotFound("appointment", err)
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	if err := r.openNotes(&appointment); err != nil {
		return nil, err
	}
	return &appointment, nil
}

func (r *appointmentRepository) FindByDoctorAndRange(ctx context.Context, doctorID uuid.UUID, start, end time.Time) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE doctor_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time`

	appointments := make([]*model.Appointment, 0)
	if err := r.db.SelectContext(ctx, &appointments, query, doctorID, start, end); err != nil {
		return nil, fmt.Errorf("failed to list doctor appointments: %w", mapError(err))
	}
	return r.openAll(appointments)
}

func (r *appointmentRepository) FindByPatientAndRange(ctx context.Context, patientID uuid.UUID, start, end time.Time) ([]*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE patient_id = $1 AND start_time < $3 AND end_time > $2
		ORDER BY start_time`

	appointments := make([]*model.Appointment, 0)
	if err := r.db.SelectContext(ctx, &appointments, query, patientID, start, end); err != nil {
		return nil, fmt.Errorf("failed to list patient appointments: %w", mapError(err))
	}
	return r.openAll(appointments)
}

func (r *appointmentRepository) InsertIfNoOverlap(ctx context.Context, appointment *model.Appointment) error {
	now := time.Now().UTC()
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	notes, err := security.SealString(r.notes, appointment.Notes)
	if err != nil {
		return fmt.Errorf("failed to seal notes: %w", err)
	}

	err = r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.lockDoctor(ctx, tx, appointment.DoctorID); err != nil {
			return err
		}
		if err := r.checkOverlap(ctx, tx, appointment.DoctorID, appointment.StartTime, appointment.EndTime, uuid.Nil); err != nil {
			return err
		}

		query := `
			INSERT INTO appointments (
				id, doctor_id, patient_id, start_time, end_time, title, notes,
				status, version, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1, $9, $9)
		`
		_, err := tx.ExecContext(ctx, query,
			appointment.ID,
			appointment.DoctorID,
			appointment.PatientID,
			appointment.StartTime,
			appointment.EndTime,
			appointment.Title,
			notes,
			appointment.Status,
			now,
		)
		return mapError(err)
	})
	if err != nil {
		return err
	}

	appointment.Version = 1
	appointment.CreatedAt = now
	appointment.UpdatedAt = now
	return nil
}

func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	now := time.Now().UTC()
	notes, err := security.SealString(r.notes, appointment.Notes)
	if err != nil {
		return fmt.Errorf("failed to seal notes: %w", err)
	}

	err = r.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := r.lockDoctor(ctx, tx, appointment.DoctorID); err != nil {
			return err
		}
		if appointment.Status.Active() {
			if err := r.checkOverlap(ctx, tx, appointment.DoctorID, appointment.StartTime, appointment.EndTime, appointment.ID); err != nil {
				return err
			}
		}

		query := `
			UPDATE appointments
			SET start_time = $1, end_time = $2, title = $3, notes = $4,
			    status = $5, version = version + 1, updated_at = $6
			WHERE id = $7 AND version = $8
		`
		result, err := tx.ExecContext(ctx, query,
			appointment.StartTime,
			appointment.EndTime,
			appointment.Title,
			notes,
			appointment.Status,
			now,
			appointment.ID,
			appointment.Version,
		)
		if err != nil {
			return mapError(err)
		}

		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rows == 0 {
			return r.missingOrStale(ctx, tx, appointment.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	appointment.Version++
	appointment.UpdatedAt = now
	return nil
}

func (r *appointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", mapError(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return errors.NewNotFound("appointment", nil)
	}
	return nil
}

// lockDoctor takes the doctor's advisory lock for the rest of tx. Waiting
// longer than lockTimeout (55P03) or past ctx's deadline (57014) is a slot
// conflict.
func (r *appointmentRepository) lockDoctor(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID) error {
	if r.lockTimeout > 0 {
		timeout := fmt.Sprintf("%dms", r.lockTimeout.Milliseconds())
		if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`, timeout); err != nil {
			return mapError(err)
		}
	}
	_, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, doctorID.String())
	return mapLockError(ctx, err)
}

func (r *appointmentRepository) checkOverlap(ctx context.Context, tx *sqlx.Tx, doctorID uuid.UUID, start, end time.Time, exclude uuid.UUID) error {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE doctor_id = $1
			  AND start_time < $3 AND end_time > $2
			  AND status IN ('scheduled', 'in_progress')
			  AND id <> $4
		)
	`
	var taken bool
	if err := tx.GetContext(ctx, &taken, query, doctorID, start, end, exclude); err != nil {
		return fmt.Errorf("failed to check overlap: %w", mapError(err))
	}
	if taken {
		return errors.NewSlotConflict(nil)
	}
	return nil
}

func (r *appointmentRepository) missingOrStale(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) error {
	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM appointments WHERE id = $1)`, id); err != nil {
		return mapError(err)
	}
	if !exists {
		return errors.NewNotFound("appointment", nil)
	}
	return errors.NewSlotConflict(fmt.Errorf("appointment %s was modified concurrently", id))
}

func (r *appointmentRepository) openNotes(appointment *model.Appointment) error {
	notes, err := security.OpenString(r.notes, appointment.Notes)
	if err != nil {
		return fmt.Errorf("failed to open notes of appointment %s: %w", appointment.ID, err)
	}
	appointment.Notes = notes
	return nil
}

func (r *appointmentRepository) openAll(appointments []*model.Appointment) ([]*model.Appointment, error) {
	for _, a := range appointments {
		if err := r.openNotes(a); err != nil {
			return nil, err
		}
	}
	return appointments, nil
}
