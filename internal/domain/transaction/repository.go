package transaction

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines canonical transaction persistence operations
type Repository interface {
	// DeleteOrphans removes rows matching the provider ids that carry a null
	// organization id. Must run before a tenant-scoped upsert of the same ids.
	DeleteOrphans(ctx context.Context, transactionIDs []string) (int64, error)

	// ExistingIDs returns which of the provider ids are already stored for
	// the tenant. This set drives new/updated classification.
	ExistingIDs(ctx context.Context, organizationID uuid.UUID, transactionIDs []string) (map[string]bool, error)

	// BulkUpsert writes all records in one statement keyed on
	// (organization_id, transaction_id), overwriting normalized fields and
	// the last_updated_at timestamp unconditionally.
	BulkUpsert(ctx context.Context, records []*Record) ([]UpsertedRow, error)

	// ReplaceItems deletes all line items for the row and inserts the new
	// set within one database transaction.
	ReplaceItems(ctx context.Context, rowID uuid.UUID, items []*Item) error

	// FindWithoutItems returns up to limit tenant transactions with no line items
	FindWithoutItems(ctx context.Context, organizationID uuid.UUID, limit int) ([]*Record, error)

	// FindByDateRange returns tenant transactions inside the inclusive range
	FindByDateRange(ctx context.Context, organizationID uuid.UUID, from, to time.Time) ([]*Record, error)

	// CountByOrganization returns the tenant's total stored transactions
	CountByOrganization(ctx context.Context, organizationID uuid.UUID) (int64, error)

	// CountWithItems returns how many tenant transactions have at least one item
	CountWithItems(ctx context.Context, organizationID uuid.UUID) (int64, error)
}
