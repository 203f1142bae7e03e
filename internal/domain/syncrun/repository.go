package syncrun

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the sync-run audit store
type Repository interface {
	// Record persists one completed run
	Record(ctx context.Context, record *RunRecord) error

	// GetByOrganization returns the most recent runs for a tenant, newest first
	GetByOrganization(ctx context.Context, organizationID uuid.UUID, limit int) ([]*RunRecord, error)
}
