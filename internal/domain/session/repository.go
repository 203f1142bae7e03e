package session

import "context"

// Repository defines session token lookups
type Repository interface {
	// FindByToken resolves a bearer token to a session. Returns
	// ErrSessionNotFound for unknown tokens and ErrSessionExpired for
	// expired ones.
	FindByToken(ctx context.Context, token string) (*Session, error)
}
