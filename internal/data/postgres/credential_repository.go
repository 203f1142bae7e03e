// Package postgres provides PostgreSQL implementations of the domain
// repositories. It handles all database operations for merchant credentials,
// canonical transactions, line items, the product catalog, and sessions.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/restobook/sumup-sync/internal/domain/credential"
	"github.com/restobook/sumup-sync/internal/platform/persistence"
)

// CredentialRepository implements the credential.Repository interface for PostgreSQL
type CredentialRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewCredentialRepository creates a new PostgreSQL credential repository
func NewCredentialRepository(logger *slog.Logger, db *persistence.PostgresDB) credential.Repository {
	return &CredentialRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

const credentialColumns = `id, organization_id, merchant_code, client_id, client_secret,
		       access_token, refresh_token, oauth_token_expires_at, active, created_at, updated_at`

// FindActiveByOrganization returns all active credentials for a tenant
func (r *CredentialRepository) FindActiveByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*credential.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM merchant_credentials
		WHERE organization_id = $1 AND active = true
		ORDER BY created_at
	`

	rows, err := r.querier.Query(ctx, query, organizationID)
	if err != nil {
		r.logger.Error("Failed to query merchant credentials", "organization_id", organizationID, "error", err)
		return nil, fmt.Errorf("failed to query merchant credentials: %w", err)
	}
	defer rows.Close()

	var creds []*credential.Credential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan merchant credential: %w", err)
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read merchant credentials: %w", err)
	}

	return creds, nil
}

// FindFirstActive returns the tenant's primary active credential
func (r *CredentialRepository) FindFirstActive(ctx context.Context, organizationID uuid.UUID) (*credential.Credential, error) {
	query := `
		SELECT ` + credentialColumns + `
		FROM merchant_credentials
		WHERE organization_id = $1 AND active = true
		ORDER BY created_at
		LIMIT 1
	`

	cred, err := scanCredential(r.querier.QueryRow(ctx, query, organizationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, credential.ErrCredentialNotFound{OrganizationID: organizationID}
		}
		r.logger.Error("Failed to get merchant credential", "organization_id", organizationID, "error", err)
		return nil, fmt.Errorf("failed to get merchant credential: %w", err)
	}

	return cred, nil
}

// UpdateTokens persists a rotated token pair after a refresh exchange
func (r *CredentialRepository) UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error {
	query := `
		UPDATE merchant_credentials
		SET access_token = $2, refresh_token = $3, oauth_token_expires_at = $4, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.querier.Exec(ctx, query, id, accessToken, refreshToken, expiresAt)
	if err != nil {
		r.logger.Error("Failed to update credential tokens", "credential_id", id, "error", err)
		return fmt.Errorf("failed to update credential tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credential %s not found for token update", id)
	}

	return nil
}

// ActiveOrganizations lists tenants that have at least one active credential
func (r *CredentialRepository) ActiveOrganizations(ctx context.Context) ([]uuid.UUID, error) {
	query := `
		SELECT DISTINCT organization_id
		FROM merchant_credentials
		WHERE active = true
	`

	rows, err := r.querier.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query active organizations: %w", err)
	}
	defer rows.Close()

	var orgs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan organization id: %w", err)
		}
		orgs = append(orgs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read active organizations: %w", err)
	}

	return orgs, nil
}

func scanCredential(row pgx.Row) (*credential.Credential, error) {
	var cred credential.Credential
	err := row.Scan(
		&cred.ID,
		&cred.OrganizationID,
		&cred.MerchantCode,
		&cred.ClientID,
		&cred.ClientSecret,
		&cred.AccessToken,
		&cred.RefreshToken,
		&cred.TokenExpiresAt,
		&cred.Active,
		&cred.CreatedAt,
		&cred.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &cred, nil
}
