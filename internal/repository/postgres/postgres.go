package postgres

import (
	"time"

	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/pkg/security"
)

type appointmentRepository struct {
	BaseRepository
	lockTimeout time.Duration
	notes       security.Encryptor
}

type userRepository struct {
	BaseRepository
}

type outboxRepository struct {
	BaseRepository
}

// NewAppointmentRepository returns a store whose writes for one doctor are
// serialized by a transaction-scoped advisory lock. lockTimeout bounds the
// wait for that lock. A non-nil notes encryptor seals appointment notes at
// rest.
func NewAppointmentRepository(base BaseRepository, lockTimeout time.Duration, notes security.Encryptor) repository.AppointmentRepository {
	return &appointmentRepository{BaseRepository: base, lockTimeout: lockTimeout, notes: notes}
}

func NewUserRepository(base BaseRepository) repository.UserRepository {
	return &userRepository{base}
}

func NewOutboxRepository(base BaseRepository) repository.OutboxRepository {
	return &outboxRepository{base}
}
