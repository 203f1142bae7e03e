package product

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines product catalog lookups
type Repository interface {
	// FindByName performs a case-insensitive name lookup within the tenant's
	// catalog. Returns nil (not an error) when no product matches.
	FindByName(ctx context.Context, organizationID uuid.UUID, name string) (*Product, error)
}
