package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/restobook/sumup-sync/internal/domain/session"
	"github.com/restobook/sumup-sync/internal/platform/persistence"
)

// SessionRepository implements the session.Repository interface for PostgreSQL
type SessionRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
	now     func() time.Time
}

// NewSessionRepository creates a new PostgreSQL session repository
func NewSessionRepository(logger *slog.Logger, db *persistence.PostgresDB) session.Repository {
	return &SessionRepository{
		querier: db.Pool(),
		logger:  logger,
		now:     time.Now,
	}
}

// FindByToken resolves a bearer token to a session
func (r *SessionRepository) FindByToken(ctx context.Context, token string) (*session.Session, error) {
	query := `
		SELECT s.token, s.user_id, u.organization_id, u.role, s.expires_at
		FROM sessions s
		JOIN user_profiles u ON u.id = s.user_id
		WHERE s.token = $1
	`

	var sess session.Session
	err := r.querier.QueryRow(ctx, query, token).Scan(
		&sess.Token,
		&sess.UserID,
		&sess.OrganizationID,
		&sess.Role,
		&sess.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrSessionNotFound
		}
		r.logger.Error("Failed to look up session", "error", err)
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}

	if sess.ExpiresAt.Before(r.now()) {
		return nil, session.ErrSessionExpired
	}

	return &sess, nil
}
