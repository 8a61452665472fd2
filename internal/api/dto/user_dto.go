package dto

import (
	"time"

	"github.com/spec-kit/folio/internal/domain"
)

// LoginRequest payload for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse is the success shape the admin client consumes.
// Token and User are both required; the client treats a missing one as a failure.
type LoginResponse struct {
	Success   bool               `json:"success"`
	Token     string             `json:"token"`
	User      *domain.PublicUser `json:"user"`
	ExpiresAt time.Time          `json:"expiresAt"`
	Message   string             `json:"message,omitempty"`
}

// UserResponse wraps a single user.
type UserResponse struct {
	Success bool              `json:"success"`
	User    domain.PublicUser `json:"user"`
}

// UsersResponse wraps a page of users.
type UsersResponse struct {
	Success bool                `json:"success"`
	Users   []domain.PublicUser `json:"users"`
	Count   int                 `json:"count"`
}

// MessageResponse acknowledges an action.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ChangePasswordRequest payload for PUT /api/auth/password.
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// CreateUserRequest payload for POST /api/users.
type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// UpdateStatusRequest payload for PATCH /api/users/:id/status.
type UpdateStatusRequest struct {
	IsActive *bool `json:"isActive"`
}

// UpdateRoleRequest payload for PATCH /api/users/:id/role.
type UpdateRoleRequest struct {
	Role string `json:"role"`
}

// PublicUsers projects a slice of users.
func PublicUsers(users []domain.User) []domain.PublicUser {
	out := make([]domain.PublicUser, 0, len(users))
	for i := range users {
		out = append(out, users[i].Public())
	}
	return out
}
