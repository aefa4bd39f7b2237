package user

import (
	"context"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/pkg/auth"
	"github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/security"
)

const (
	identityCacheTTL     = 5 * time.Minute
	identityCacheCleanup = 10 * time.Minute
)

type Config struct {
	BcryptCost int
	Token      auth.Config
}

// Service is the user directory: sign-up, login and identity lookups for
// the scheduler.
type Service struct {
	repo       repository.UserRepository
	cfg        Config
	identities *cache.Cache
	logger     *logger.Logger
	now        func() time.Time
}

func NewService(repo repository.UserRepository, cfg Config, logger *logger.Logger) *Service {
	return &Service{
		repo:       repo,
		cfg:        cfg,
		identities: cache.New(identityCacheTTL, identityCacheCleanup),
		logger:     logger,
		now:        time.Now,
	}
}

// Register creates a user with a bcrypt hashed password.
func (s *Service) Register(ctx context.Context, email, name, password string, role model.Role) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)

	if _, err := mail.ParseAddress(email); err != nil {
		return nil, errors.NewInvalidInput("email must be a valid address", err)
	}
	if name == "" {
		return nil, errors.NewInvalidInput("name is required", nil)
	}
	if !role.Valid() {
		return nil, errors.NewInvalidInput(fmt.Sprintf("unknown role %q", role), nil)
	}

	hash, err := security.HashPassword(password, s.cfg.BcryptCost)
	if err != nil {
		if err == security.ErrPasswordTooShort {
			return nil, errors.NewInvalidInput(fmt.Sprintf("password must be at least %d characters", security.MinPasswordLen), err)
		}
		return nil, errors.NewInternal(err)
	}

	user := &model.User{
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to create user: %w", err))
	}

	s.logger.Info("user registered", "user_id", user.ID.String(), "role", string(role))
	return user, nil
}

// Login verifies credentials and issues an access token. Unknown emails
// and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, email, password string) (*model.TokenResponse, error) {
	user, err := s.repo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.CodeOf(err) == errors.ErrNotFound {
			return nil, errors.NewUnauthenticated("invalid credentials", nil)
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to look up user: %w", err))
	}

	if err := security.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, errors.NewUnauthenticated("invalid credentials", nil)
	}

	token, expiresAt, err := auth.IssueToken(s.cfg.Token, user.ID, string(user.Role), s.now())
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	return &model.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		User:        user,
	}, nil
}

// ResolveUser returns the identity behind id. Results are cached briefly;
// roles do not change after registration.
func (s *Service) ResolveUser(ctx context.Context, id uuid.UUID) (*model.Identity, error) {
	if cached, ok := s.identities.Get(id.String()); ok {
		identity := cached.(model.Identity)
		return &identity, nil
	}

	user, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.CodeOf(err) == errors.ErrNotFound {
			return nil, errors.NewNotFound("user", err)
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to resolve user: %w", err))
	}

	identity := model.Identity{ID: user.ID, Role: user.Role}
	s.identities.SetDefault(id.String(), identity)
	return &identity, nil
}

func (s *Service) GetUser(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := s.repo.Get(ctx, id)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInternal(fmt.Errorf("failed to get user: %w", err))
	}
	return user, nil
}

// Authenticate parses a bearer token into the caller's identity.
func (s *Service) Authenticate(token string) (*model.Identity, error) {
	claims, err := auth.ParseToken(s.cfg.Token, token)
	if err != nil {
		return nil, errors.NewUnauthenticated("invalid or expired token", err)
	}
	role := model.Role(claims.Role)
	if !role.Valid() {
		return nil, errors.NewUnauthenticated("invalid or expired token", nil)
	}
	return &model.Identity{ID: claims.UserID, Role: role}, nil
}
