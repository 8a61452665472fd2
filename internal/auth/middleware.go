package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/folio/internal/domain"
	"github.com/spec-kit/folio/internal/observability"
	"github.com/spec-kit/folio/internal/repository"
	apperrors "github.com/spec-kit/folio/pkg/util"
)

const claimsKey = "auth_claims"

// Policy names used in logs and metrics.
const (
	PolicyAuthenticate = "authenticate"
	PolicyAdminOnly    = "admin_only"
	PolicyRequireRole  = "require_role"
)

// UserLookup is the slice of the credential store the middleware reads.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*domain.User, error)
}

// AuthMiddleware validates bearer tokens against the credential store.
//
// The request context carries the decoded claims, not a fresh user read: a role
// change takes effect for a caller only once their current token expires.
type AuthMiddleware struct {
	tokens  *TokenManager
	users   UserLookup
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewAuthMiddleware constructs middleware.
func NewAuthMiddleware(tokens *TokenManager, users UserLookup, metrics *observability.Metrics, logger *zap.Logger) *AuthMiddleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{tokens: tokens, users: users, metrics: metrics, logger: logger}
}

// Authenticate admits any caller holding a valid token for an active user.
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return m.guard(PolicyAuthenticate, nil)
}

func (m *AuthMiddleware) guard(policy string, authorize func(*Claims) *apperrors.DomainError) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, rejection := m.authenticate(c)
		if rejection == nil && authorize != nil {
			rejection = authorize(claims)
		}
		if rejection != nil {
			return m.reject(c, policy, rejection)
		}

		m.metrics.RecordDecision(policy, observability.OutcomeAdmit, "")
		c.Locals(claimsKey, claims)
		return c.Next()
	}
}

func (m *AuthMiddleware) authenticate(c *fiber.Ctx) (*Claims, *apperrors.DomainError) {
	token, present, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
	if !present {
		return nil, apperrors.NewMissingToken()
	}
	if !ok {
		return nil, apperrors.NewInvalidToken(errors.New("malformed authorization header"))
	}

	claims, err := m.tokens.ParseToken(token)
	if err != nil {
		return nil, apperrors.NewInvalidToken(err)
	}

	user, err := m.users.GetByID(c.UserContext(), claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, apperrors.NewUserNotFound()
		}
		return nil, apperrors.ToDomainError(apperrors.NewInternalError(err))
	}
	if !user.IsActive {
		return nil, apperrors.NewAccountDeactivated()
	}
	return claims, nil
}

// reject writes the failure envelope itself; the next handler is never invoked.
func (m *AuthMiddleware) reject(c *fiber.Ctx, policy string, de *apperrors.DomainError) error {
	m.metrics.RecordDecision(policy, observability.OutcomeReject, de.Code)
	if de.HTTPStatus >= fiber.StatusInternalServerError {
		m.logger.Error("access check failed", zap.String("policy", policy), zap.Error(de))
	} else {
		m.logger.Debug("access rejected",
			zap.String("policy", policy),
			zap.String("code", de.Code),
			zap.String("path", c.Path()))
	}
	return c.Status(de.HTTPStatus).JSON(de.Envelope())
}

// bearerToken reports whether a token was sent at all and whether the header was well formed.
func bearerToken(header string) (token string, present bool, ok bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false, false
	}
	scheme, rest, _ := strings.Cut(header, " ")
	if !strings.EqualFold(scheme, "Bearer") {
		return "", true, false
	}
	token = strings.TrimSpace(rest)
	if token == "" {
		return "", false, false
	}
	return token, true, true
}

// ClaimsFromContext retrieves the decoded claims of the authenticated caller.
func ClaimsFromContext(c *fiber.Ctx) (*Claims, bool) {
	val := c.Locals(claimsKey)
	if val == nil {
		return nil, false
	}
	claims, ok := val.(*Claims)
	return claims, ok
}
