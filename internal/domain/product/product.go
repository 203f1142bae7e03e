package product

import (
	"time"

	"github.com/google/uuid"
)

// Product is an entry in the tenant's catalog. Line items reference products
// by best-effort case-insensitive name match; the reference is informational,
// not authoritative.
type Product struct {
	ID             uuid.UUID
	OrganizationID uuid.UUID
	Name           string
	Price          float64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
