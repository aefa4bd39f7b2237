package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/errors"
)

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	user.Email = strings.ToLower(user.Email)
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt

	return r.WithTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO users (id, email, name, role, password_hash, created_at, updated_at)
			VALUES (:id, :email, :name, :role, :password_hash, :created_at, :updated_at)
		`
		_, err := tx.NamedExecContext(ctx, query, user)
		return mapError(err)
	})
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.getBy(ctx, "id", id)
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getBy(ctx, "email", strings.ToLower(email))
}

func (r *userRepository) getBy(ctx context.Context, column string, value interface{}) (*model.User, error) {
	query := fmt.Sprintf(`
		SELECT id, email, name, role, password_hash, created_at, updated_at
		FROM users WHERE %s = $1`, column)

	var user model.User
	if err := r.db.GetContext(ctx, &user, query, value); err != nil {
		if err = mapError(err); errors.CodeOf(err) == errors.ErrNotFound {
			return nil, errors.NewNotFound("user", err)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}
