package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/folio/internal/auth"
	"github.com/spec-kit/folio/internal/config"
	"github.com/spec-kit/folio/internal/domain"
	"github.com/spec-kit/folio/internal/events"
	"github.com/spec-kit/folio/internal/observability"
	"github.com/spec-kit/folio/internal/ratelimit"
	"github.com/spec-kit/folio/internal/repository"
	apperrors "github.com/spec-kit/folio/pkg/util"
)

// LoginResult is what a successful login hands to the transport layer.
type LoginResult struct {
	User      *domain.User
	Token     string
	ExpiresAt time.Time
}

// AuthService coordinates login, logout and password flows.
type AuthService struct {
	users      repository.UserRepository
	tokenMgr   *auth.TokenManager
	limiter    *ratelimit.LoginLimiter
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	bcryptCost int
	dummyHash  string
	now        func() time.Time
}

// AuthDependencies encapsulates collaborators of the auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	Limiter    *ratelimit.LoginLimiter
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
}

// NewAuthService builds the service.
func NewAuthService(cfg config.AuthConfig, deps AuthDependencies) (*AuthService, error) {
	tokenMgr, err := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL())
	if err != nil {
		return nil, err
	}
	// Unknown emails still pay for one bcrypt comparison.
	dummyHash, err := auth.HashPassword(uuid.NewString(), cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	dispatcher := deps.Dispatcher
	if dispatcher == nil {
		dispatcher = events.NewInMemoryDispatcher()
	}
	return &AuthService{
		users:      deps.UserRepo,
		tokenMgr:   tokenMgr,
		limiter:    deps.Limiter,
		dispatcher: dispatcher,
		metrics:    deps.Metrics,
		logger:     logger,
		bcryptCost: cfg.BcryptCost,
		dummyHash:  dummyHash,
		now:        time.Now,
	}, nil
}

// Login authenticates a user by email and password and issues a token.
func (s *AuthService) Login(ctx context.Context, email, password, ip string) (*LoginResult, error) {
	email = domain.NormalizeEmail(email)

	if err := s.limiter.Check(ctx, email); err != nil {
		if errors.Is(err, ratelimit.ErrRateLimited) {
			s.metrics.RecordLogin("rate_limited")
			return nil, apperrors.NewRateLimited(int(s.limiter.RetryAfter(ctx, email).Seconds()))
		}
		s.logger.Warn("login limiter unavailable; admitting attempt", zap.Error(err))
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperrors.NewInternalError(err)
		}
		_ = auth.ComparePassword(s.dummyHash, password)
		return nil, s.loginFailed(ctx, email, ip, "unknown_email", apperrors.NewInvalidCredentials())
	}
	if err := auth.ComparePassword(user.PasswordHash, password); err != nil {
		return nil, s.loginFailed(ctx, email, ip, "wrong_password", apperrors.NewInvalidCredentials())
	}
	if !user.IsActive {
		return nil, s.loginFailed(ctx, email, ip, "deactivated", apperrors.NewAccountDeactivated())
	}

	token, exp, err := s.tokenMgr.GenerateToken(user)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if err := s.limiter.Reset(ctx, email); err != nil {
		s.logger.Warn("reset login limiter", zap.Error(err))
	}

	s.metrics.RecordLogin("success")
	s.publish(ctx, events.Event{
		Type:      events.EventLoginSucceeded,
		SubjectID: user.ID,
		Actor:     events.Actor{UserID: user.ID, Email: user.Email, Role: user.Role},
	})
	return &LoginResult{User: user, Token: token, ExpiresAt: exp}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, email, ip, reason string, cause error) error {
	s.metrics.RecordLogin(reason)
	if _, err := s.limiter.RecordFailure(ctx, email); err != nil {
		s.logger.Warn("record failed login", zap.Error(err))
	}
	s.publish(ctx, events.Event{
		Type:    events.EventLoginFailed,
		Payload: events.LoginFailedPayload{Email: email, Reason: reason, IP: ip},
	})
	return cause
}

// Logout has no server-side state to drop; it records the event.
func (s *AuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	s.publish(ctx, events.Event{
		Type:      events.EventLogout,
		SubjectID: claims.UserID,
		Actor:     events.Actor{UserID: claims.UserID, Email: claims.Email, Role: claims.Role},
		Payload:   map[string]string{"jti": claims.ID},
	})
	return nil
}

// CurrentUser reads the caller's record from the store.
func (s *AuthService) CurrentUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperrors.NewUserNotFound()
		}
		return nil, apperrors.NewInternalError(err)
	}
	return user, nil
}

// ChangePassword verifies the current password before updating to a new hash.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	user, err := s.CurrentUser(ctx, userID)
	if err != nil {
		return err
	}
	if err := auth.ComparePassword(user.PasswordHash, currentPassword); err != nil {
		return apperrors.NewInvalidCredentials()
	}
	hash, err := auth.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) {
			return apperrors.NewValidationError(err.Error(), nil)
		}
		return apperrors.NewInternalError(err)
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return apperrors.NewInternalError(err)
	}
	s.publish(ctx, events.Event{
		Type:      events.EventPasswordChanged,
		SubjectID: user.ID,
		Actor:     events.Actor{UserID: user.ID, Email: user.Email, Role: user.Role},
	})
	return nil
}

// TokenManager exposes the underlying token manager for middleware usage.
func (s *AuthService) TokenManager() *auth.TokenManager {
	return s.tokenMgr
}

func (s *AuthService) publish(ctx context.Context, event events.Event) {
	event.ID = uuid.NewString()
	event.Timestamp = s.now().UTC()
	if err := s.dispatcher.Publish(ctx, event); err != nil {
		s.logger.Warn("event handler failed", zap.String("event_type", string(event.Type)), zap.Error(err))
	}
}
