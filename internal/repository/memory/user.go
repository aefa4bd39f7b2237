package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/pkg/errors"
)

type userRepository struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]*model.User
	byEmail map[string]uuid.UUID
}

func NewUserRepository() repository.UserRepository {
	return &userRepository{
		users:   make(map[uuid.UUID]*model.User),
		byEmail: make(map[string]uuid.UUID),
	}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	email := strings.ToLower(user.Email)
	if _, exists := r.byEmail[email]; exists {
		return errors.NewInvalidInput(fmt.Sprintf("email %s is already registered", user.Email), nil)
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt = now
	user.UpdatedAt = now

	cp := *user
	r.users[cp.ID] = &cp
	r.byEmail[email] = cp.ID
	return nil
}

func (r *userRepository) Get(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, errors.NewNotFound("user", nil)
	}
	cp := *u
	return &cp, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, errors.NewNotFound("user", nil)
	}
	cp := *r.users[id]
	return &cp, nil
}
