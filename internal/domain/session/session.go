package session

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Roles permitted to trigger sync runs
const (
	RoleOwner   = "owner"
	RoleManager = "manager"
)

var (
	// ErrSessionNotFound indicates the bearer token matches no session
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired indicates the session exists but has expired
	ErrSessionExpired = errors.New("session expired")
)

// Session is an authenticated dashboard user's session resolved from a
// bearer token.
type Session struct {
	Token          string
	UserID         uuid.UUID
	OrganizationID uuid.UUID
	Role           string
	ExpiresAt      time.Time
}

// CanSync reports whether the session's role may trigger sync runs
func (s *Session) CanSync() bool {
	return s.Role == RoleOwner || s.Role == RoleManager
}
