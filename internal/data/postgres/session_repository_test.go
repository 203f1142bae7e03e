package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/restobook/sumup-sync/internal/domain/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRepository_FindByToken(t *testing.T) {
	ctx := context.Background()
	logger := newTestLogger()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := &SessionRepository{querier: mock, logger: logger, now: func() time.Time { return now }}

	userID := uuid.New()
	orgID := uuid.New()

	query := `
		SELECT s.token, s.user_id, u.organization_id, u.role, s.expires_at
		FROM sessions s
		JOIN user_profiles u ON u.id = s.user_id
		WHERE s.token = \$1
	`

	sessionRows := func(expiresAt time.Time) *pgxmock.Rows {
		return pgxmock.NewRows([]string{"token", "user_id", "organization_id", "role", "expires_at"}).
			AddRow("tok-1", userID, orgID, "admin", expiresAt)
	}

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("tok-1").
			WillReturnRows(sessionRows(now.Add(time.Hour)))

		sess, err := repo.FindByToken(ctx, "tok-1")
		assert.NoError(t, err)
		require.NotNil(t, sess)
		assert.Equal(t, "tok-1", sess.Token)
		assert.Equal(t, userID, sess.UserID)
		assert.Equal(t, orgID, sess.OrganizationID)
		assert.Equal(t, "admin", sess.Role)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown token", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("tok-1").WillReturnError(pgx.ErrNoRows)

		sess, err := repo.FindByToken(ctx, "tok-1")
		assert.ErrorIs(t, err, session.ErrSessionNotFound)
		assert.Nil(t, sess)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("expired session", func(t *testing.T) {
		mock.ExpectQuery(query).WithArgs("tok-1").
			WillReturnRows(sessionRows(now.Add(-time.Minute)))

		sess, err := repo.FindByToken(ctx, "tok-1")
		assert.ErrorIs(t, err, session.ErrSessionExpired)
		assert.Nil(t, sess)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("db error", func(t *testing.T) {
		dbErr := errors.New("db error")
		mock.ExpectQuery(query).WithArgs("tok-1").WillReturnError(dbErr)

		sess, err := repo.FindByToken(ctx, "tok-1")
		assert.Error(t, err)
		assert.Nil(t, sess)
		assert.Contains(t, err.Error(), "failed to look up session")
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
