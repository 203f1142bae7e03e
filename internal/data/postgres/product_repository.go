package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/restobook/sumup-sync/internal/domain/product"
	"github.com/restobook/sumup-sync/internal/platform/persistence"
)

// ProductRepository implements the product.Repository interface for PostgreSQL
type ProductRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewProductRepository creates a new PostgreSQL product repository
func NewProductRepository(logger *slog.Logger, db *persistence.PostgresDB) product.Repository {
	return &ProductRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// FindByName performs a case-insensitive name lookup within the tenant's
// catalog. A missing product is not an error; line items without a match keep
// a null product reference.
func (r *ProductRepository) FindByName(ctx context.Context, organizationID uuid.UUID, name string) (*product.Product, error) {
	query := `
		SELECT id, organization_id, name, price, created_at, updated_at
		FROM products
		WHERE organization_id = $1 AND LOWER(name) = LOWER($2)
		LIMIT 1
	`

	var p product.Product
	err := r.querier.QueryRow(ctx, query, organizationID, name).Scan(
		&p.ID,
		&p.OrganizationID,
		&p.Name,
		&p.Price,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to look up product", "organization_id", organizationID, "name", name, "error", err)
		return nil, fmt.Errorf("failed to look up product: %w", err)
	}

	return &p, nil
}
