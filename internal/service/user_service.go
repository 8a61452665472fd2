package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/folio/internal/auth"
	"github.com/spec-kit/folio/internal/domain"
	"github.com/spec-kit/folio/internal/events"
	"github.com/spec-kit/folio/internal/repository"
	apperrors "github.com/spec-kit/folio/pkg/util"
)

// UserService manages admin panel accounts.
type UserService struct {
	users      repository.UserRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	bcryptCost int
}

// NewUserService constructs the service.
func NewUserService(users repository.UserRepository, dispatcher events.Dispatcher, logger *zap.Logger, bcryptCost int) *UserService {
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, dispatcher: dispatcher, logger: logger, bcryptCost: bcryptCost}
}

// CreateUserInput carries the fields for a new account.
type CreateUserInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.Role
}

// CreateUser hashes the password and stores an active account.
func (s *UserService) CreateUser(ctx context.Context, actor *auth.Claims, in CreateUserInput) (*domain.User, error) {
	email := domain.NormalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperrors.NewValidationError("valid email required", map[string]any{"field": "email"})
	}
	role := in.Role.Normalize()
	if role == "" {
		role = domain.RoleContentManager
	}
	hash, err := auth.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return nil, apperrors.NewValidationError(err.Error(), map[string]any{"field": "password"})
		}
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, apperrors.NewConflict("email already registered", nil)
		}
		return nil, apperrors.NewInternalError(err)
	}
	s.publish(ctx, actor, events.EventUserCreated, user.ID, map[string]any{"role": user.Role})
	return user, nil
}

// ListUsers returns accounts matching the filter.
func (s *UserService) ListUsers(ctx context.Context, filter repository.UserFilter) ([]domain.User, error) {
	users, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return users, nil
}

// SetActive activates or deactivates an account. Deactivation takes effect on
// the account's next request, whatever tokens it holds.
func (s *UserService) SetActive(ctx context.Context, actor *auth.Claims, id string, active bool) error {
	if actor != nil && actor.UserID == id && !active {
		return apperrors.NewValidationError("cannot deactivate your own account", nil)
	}
	if err := s.users.SetActive(ctx, id, active); err != nil {
		return mapUserErr(err)
	}
	s.publish(ctx, actor, events.EventUserStatusChanged, id, events.UserStatusChangedPayload{Active: active})
	return nil
}

// SetRole changes an account's role. Tokens already issued keep the old role
// until they expire.
func (s *UserService) SetRole(ctx context.Context, actor *auth.Claims, id string, role domain.Role) error {
	role = role.Normalize()
	if role == "" {
		return apperrors.NewValidationError("role required", map[string]any{"field": "role"})
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return mapUserErr(err)
	}
	if err := s.users.SetRole(ctx, id, role); err != nil {
		return mapUserErr(err)
	}
	s.publish(ctx, actor, events.EventUserRoleChanged, id, events.UserRoleChangedPayload{OldRole: user.Role, NewRole: role})
	return nil
}

// BootstrapAdmin creates the configured admin account when it does not exist yet.
func (s *UserService) BootstrapAdmin(ctx context.Context, email, password string) error {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil
	}
	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return err
	}
	user, err := s.CreateUser(ctx, nil, CreateUserInput{Name: "Administrator", Email: email, Password: password, Role: domain.RoleAdmin})
	if err != nil {
		return err
	}
	s.logger.Info("bootstrap admin created", zap.String("user_id", user.ID), zap.String("email", user.Email))
	return nil
}

func (s *UserService) publish(ctx context.Context, actor *auth.Claims, typ events.EventType, subjectID string, payload interface{}) {
	event := events.Event{
		ID:        uuid.NewString(),
		Type:      typ,
		SubjectID: subjectID,
		Payload:   payload,
	}
	if actor != nil {
		event.Actor = events.Actor{UserID: actor.UserID, Email: actor.Email, Role: actor.Role}
	}
	event.Timestamp = time.Now().UTC()
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(typ)), zap.Error(err))
	}
}

func mapUserErr(err error) error {
	if errors.Is(err, repository.ErrUserNotFound) {
		return apperrors.NewNotFound("user", nil)
	}
	return apperrors.NewInternalError(err)
}
