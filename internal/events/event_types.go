package events

import (
	"time"

	"github.com/spec-kit/folio/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventLoginSucceeded    EventType = "login_succeeded"
	EventLoginFailed       EventType = "login_failed"
	EventLogout            EventType = "logout"
	EventUserCreated       EventType = "user_created"
	EventUserStatusChanged EventType = "user_status_changed"
	EventUserRoleChanged   EventType = "user_role_changed"
	EventPasswordChanged   EventType = "password_changed"
)

// Actor identifies who triggered an event; empty for anonymous login attempts.
type Actor struct {
	UserID string      `json:"user_id,omitempty"`
	Email  string      `json:"email,omitempty"`
	Role   domain.Role `json:"role,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	SubjectID string      `json:"subject_id,omitempty"`
	Actor     Actor       `json:"actor"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// LoginFailedPayload payload.
type LoginFailedPayload struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
	IP     string `json:"ip,omitempty"`
}

// UserStatusChangedPayload payload.
type UserStatusChangedPayload struct {
	Active bool `json:"active"`
}

// UserRoleChangedPayload payload.
type UserRoleChangedPayload struct {
	OldRole domain.Role `json:"old_role"`
	NewRole domain.Role `json:"new_role"`
}
