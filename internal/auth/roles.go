package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/folio/internal/domain"
	apperrors "github.com/spec-kit/folio/pkg/util"
)

// AdminOnly admits authenticated callers whose token role is admin.
func (m *AuthMiddleware) AdminOnly() fiber.Handler {
	return m.guard(PolicyAdminOnly, func(claims *Claims) *apperrors.DomainError {
		if claims.Role != domain.RoleAdmin {
			return apperrors.NewInsufficientRole("admin access required")
		}
		return nil
	})
}

// RequireRole admits authenticated callers whose token role is one of allowed.
// With no roles it is exactly Authenticate.
func (m *AuthMiddleware) RequireRole(allowed ...domain.Role) fiber.Handler {
	allowedSet := make(map[domain.Role]struct{}, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return m.guard(PolicyRequireRole, func(claims *Claims) *apperrors.DomainError {
		if len(allowedSet) == 0 {
			return nil
		}
		if _, exists := allowedSet[claims.Role]; !exists {
			return apperrors.NewInsufficientRole("insufficient role")
		}
		return nil
	})
}
