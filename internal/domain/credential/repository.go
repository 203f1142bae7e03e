package credential

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines merchant credential persistence operations
type Repository interface {
	// FindActiveByOrganization returns all active credentials for a tenant
	FindActiveByOrganization(ctx context.Context, organizationID uuid.UUID) ([]*Credential, error)

	// FindFirstActive returns the tenant's primary active credential, or
	// ErrCredentialNotFound when none is configured
	FindFirstActive(ctx context.Context, organizationID uuid.UUID) (*Credential, error)

	// UpdateTokens persists a rotated token pair after a refresh exchange
	UpdateTokens(ctx context.Context, id uuid.UUID, accessToken, refreshToken string, expiresAt time.Time) error

	// ActiveOrganizations lists tenants that have at least one active credential
	ActiveOrganizations(ctx context.Context) ([]uuid.UUID, error)
}
