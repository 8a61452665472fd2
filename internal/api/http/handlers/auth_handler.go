package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/folio/internal/api/dto"
	"github.com/spec-kit/folio/internal/auth"
	"github.com/spec-kit/folio/internal/domain"
	"github.com/spec-kit/folio/internal/service"
	apperrors "github.com/spec-kit/folio/pkg/util"
)

// AuthHandler exposes the login and session endpoints used by the admin client.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req dto.LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Email == "" || req.Password == "" {
		return apperrors.NewValidationError("email and password required", nil)
	}

	result, err := h.auth.Login(c.UserContext(), req.Email, req.Password, c.IP())
	if err != nil {
		return err
	}

	user := result.User.Public()
	return c.JSON(dto.LoginResponse{
		Success:   true,
		Token:     result.Token,
		User:      &user,
		ExpiresAt: result.ExpiresAt,
		Message:   "login successful",
	})
}

// Verify handles GET /api/auth/verify. The user is built from the token claims.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		return apperrors.NewMissingToken()
	}
	return c.JSON(dto.UserResponse{
		Success: true,
		User: domain.PublicUser{
			ID:       claims.UserID,
			Email:    claims.Email,
			Role:     claims.Role,
			IsActive: true,
		},
	})
}

// Me handles GET /api/auth/me with a fresh read from the store.
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		return apperrors.NewMissingToken()
	}
	user, err := h.auth.CurrentUser(c.UserContext(), claims.UserID)
	if err != nil {
		return err
	}
	return c.JSON(dto.UserResponse{Success: true, User: user.Public()})
}

// Logout handles POST /api/auth/logout. Tokens stay valid until they expire.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		return apperrors.NewMissingToken()
	}
	if err := h.auth.Logout(c.UserContext(), claims); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Success: true, Message: "logged out"})
}

// ChangePassword handles PUT /api/auth/password.
func (h *AuthHandler) ChangePassword(c *fiber.Ctx) error {
	claims, ok := auth.ClaimsFromContext(c)
	if !ok {
		return apperrors.NewMissingToken()
	}
	var req dto.ChangePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.CurrentPassword == "" || req.NewPassword == "" {
		return apperrors.NewValidationError("currentPassword and newPassword required", nil)
	}
	if err := h.auth.ChangePassword(c.UserContext(), claims.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Success: true, Message: "password updated"})
}
