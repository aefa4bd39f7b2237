package postgres

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/jwalitptl/hospital-api/pkg/errors"
)

// Postgres SQLSTATE codes the repositories translate.
const (
	codeUniqueViolation      = "23505"
	codeCheckViolation       = "23514"
	codeQueryCanceled        = "57014"
	codeExclusionViolation   = "23P01"
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
)

// mapError turns driver errors into AppErrors. The exclusion constraint on
// appointments is the last line of defence against double booking, so its
// violation reads exactly like a conflict found by the pre-insert check.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errors.As(err); ok {
		return err
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NewNotFound("record", err)
	}

	var pqErr *pq.Error
	if !stderrors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case codeExclusionViolation, codeSerializationFailure:
		return errors.NewSlotConflict(err)
	case codeLockNotAvailable:
		return errors.NewSlotConflict(fmt.Errorf("timed out waiting for doctor schedule: %w", err))
	case codeUniqueViolation:
		return errors.NewInvalidInput(fmt.Sprintf("%s already exists", uniqueSubject(pqErr.Constraint)), err)
	case codeCheckViolation:
		return errors.NewInvalidInput(fmt.Sprintf("violates %s", pqErr.Constraint), err)
	}
	return err
}

// mapLockError is mapError for the doctor lock wait. A wait cut short by the
// caller's deadline is a timeout like lock_timeout; plain cancellation is not.
func mapLockError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(ctx.Err(), context.Canceled) {
		return err
	}
	var pqErr *pq.Error
	if stderrors.Is(err, context.DeadlineExceeded) ||
		(stderrors.As(err, &pqErr) && pqErr.Code == codeQueryCanceled) {
		return errors.NewSlotConflict(fmt.Errorf("timed out waiting for doctor schedule: %w", err))
	}
	return mapError(err)
}

func uniqueSubject(constraint string) string {
	switch constraint {
	case "users_email_key":
		return "email"
	case "appointments_pkey", "users_pkey", "outbox_events_pkey":
		return "id"
	}
	return "record"
}
