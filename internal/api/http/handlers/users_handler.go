package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/utils"

	"github.com/spec-kit/folio/internal/api/dto"
	"github.com/spec-kit/folio/internal/auth"
	"github.com/spec-kit/folio/internal/domain"
	"github.com/spec-kit/folio/internal/repository"
	"github.com/spec-kit/folio/internal/service"
	apperrors "github.com/spec-kit/folio/pkg/util"
)

// UsersHandler exposes admin user management.
type UsersHandler struct {
	users *service.UserService
}

// NewUsersHandler constructs handler.
func NewUsersHandler(users *service.UserService) *UsersHandler {
	return &UsersHandler{users: users}
}

// List handles GET /api/users?role=&active=&limit=&offset=.
func (h *UsersHandler) List(c *fiber.Ctx) error {
	var filter repository.UserFilter
	if role := c.Query("role"); role != "" {
		r := domain.Role(role).Normalize()
		filter.Role = &r
	}
	if active := c.Query("active"); active != "" {
		v, err := strconv.ParseBool(active)
		if err != nil {
			return apperrors.NewValidationError("active must be a boolean", map[string]any{"field": "active"})
		}
		filter.Active = &v
	}
	filter.Limit = c.QueryInt("limit", 50)
	filter.Offset = c.QueryInt("offset", 0)
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	users, err := h.users.ListUsers(c.UserContext(), filter)
	if err != nil {
		return err
	}
	return c.JSON(dto.UsersResponse{Success: true, Users: dto.PublicUsers(users), Count: len(users)})
}

// Create handles POST /api/users.
func (h *UsersHandler) Create(c *fiber.Ctx) error {
	var req dto.CreateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	claims, _ := auth.ClaimsFromContext(c)
	user, err := h.users.CreateUser(c.UserContext(), claims, service.CreateUserInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     domain.Role(req.Role),
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(dto.UserResponse{Success: true, User: user.Public()})
}

// UpdateStatus handles PATCH /api/users/:id/status.
func (h *UsersHandler) UpdateStatus(c *fiber.Ctx) error {
	var req dto.UpdateStatusRequest
	if err := c.BodyParser(&req); err != nil || req.IsActive == nil {
		return apperrors.NewValidationError("isActive required", map[string]any{"field": "isActive"})
	}
	claims, _ := auth.ClaimsFromContext(c)
	if err := h.users.SetActive(c.UserContext(), claims, userID(c), *req.IsActive); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Success: true, Message: "status updated"})
}

// UpdateRole handles PATCH /api/users/:id/role.
func (h *UsersHandler) UpdateRole(c *fiber.Ctx) error {
	var req dto.UpdateRoleRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	claims, _ := auth.ClaimsFromContext(c)
	if err := h.users.SetRole(c.UserContext(), claims, userID(c), domain.Role(req.Role)); err != nil {
		return err
	}
	return c.JSON(dto.MessageResponse{Success: true, Message: "role updated"})
}

// userID copies the :id param out of the request buffer, which fasthttp reuses.
func userID(c *fiber.Ctx) string {
	return utils.CopyString(c.Params("id"))
}
