package model

import (
	"github.com/google/uuid"
)

type Role string

// User roles
const (
	RoleAdmin   Role = "admin"
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleDoctor || r == RolePatient
}

// User represents a system user
type User struct {
	Base
	Email        string `json:"email" db:"email"`
	Name         string `json:"name" db:"name"`
	Role         Role   `json:"role" db:"role"`
	PasswordHash string `json:"-" db:"password_hash"`
}

// Identity is what the directory vouches for: a user id and its role. It is
// also the authenticated caller handed to the scheduler.
type Identity struct {
	ID   uuid.UUID `json:"id"`
	Role Role      `json:"role"`
}

func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Is reports whether the identity is the given user.
func (i Identity) Is(id uuid.UUID) bool {
	return i.ID == id
}
