// Package authstate owns the admin client's authentication state machine.
package authstate

import (
	"github.com/spec-kit/folio/internal/client/health"
	"github.com/spec-kit/folio/internal/domain"
)

// State is a snapshot of the client's authentication state.
type State struct {
	User          *domain.PublicUser `json:"user"`
	Loading       bool               `json:"loading"`
	AuthLoading   bool               `json:"authLoading"`
	BackendStatus health.Status      `json:"backendStatus"`
}

// IsAuthenticated reports whether a user is present.
func (s State) IsAuthenticated() bool {
	return s.User != nil
}

// IsDemoMode reports a user present while the backend is disconnected.
func (s State) IsDemoMode() bool {
	return s.BackendStatus == health.StatusDisconnected && s.User != nil
}

func (s State) clone() State {
	if s.User != nil {
		u := *s.User
		s.User = &u
	}
	return s
}
