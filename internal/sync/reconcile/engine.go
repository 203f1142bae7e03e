// Package reconcile merges freshly fetched and normalized transactions into
// local storage: orphan cleanup, new/updated classification, bulk upsert, and
// full line-item replacement per transaction.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/restobook/sumup-sync/internal/domain/payload"
	"github.com/restobook/sumup-sync/internal/domain/product"
	"github.com/restobook/sumup-sync/internal/domain/transaction"
	"github.com/restobook/sumup-sync/internal/sync/extract"
)

// Result summarizes one reconciliation pass for a merchant's transactions
type Result struct {
	New     int
	Updated int
	Rows    []transaction.UpsertedRow
}

// Engine reconciles normalized transactions and their line items against the
// store. Step order matters: orphan cleanup must precede the tenant-scoped
// existence check, which must precede the bulk upsert.
type Engine struct {
	transactions transaction.Repository
	products     product.Repository
	logger       *slog.Logger
}

// NewEngine creates a reconciliation engine
func NewEngine(logger *slog.Logger, transactions transaction.Repository, products product.Repository) *Engine {
	return &Engine{
		transactions: transactions,
		products:     products,
		logger:       logger,
	}
}

// ReconcileTransactions upserts the records for one tenant and classifies
// them as new or updated. The classification comes from the pre-upsert
// existence check, not from the upsert itself.
func (e *Engine) ReconcileTransactions(ctx context.Context, organizationID uuid.UUID, records []*transaction.Record) (*Result, error) {
	if len(records) == 0 {
		return &Result{}, nil
	}

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		ids = append(ids, rec.TransactionID)
	}

	// Orphan rows share a provider id but carry no tenant; they would collide
	// with the tenant-scoped upsert below.
	if _, err := e.transactions.DeleteOrphans(ctx, ids); err != nil {
		return nil, fmt.Errorf("orphan cleanup failed: %w", err)
	}

	existing, err := e.transactions.ExistingIDs(ctx, organizationID, ids)
	if err != nil {
		return nil, fmt.Errorf("existence check failed: %w", err)
	}

	rows, err := e.transactions.BulkUpsert(ctx, records)
	if err != nil {
		return nil, err
	}

	result := &Result{Rows: rows}
	for _, id := range ids {
		if existing[id] {
			result.Updated++
		} else {
			result.New++
		}
	}

	e.logger.Info("reconciled transactions",
		"organization_id", organizationID,
		"total", len(records),
		"new", result.New,
		"updated", result.Updated,
	)

	return result, nil
}

// ReplaceItems re-derives the line items for one stored transaction from its
// raw payload and replaces the existing set. Product references are resolved
// by case-insensitive name match; a failed lookup leaves the reference null.
func (e *Engine) ReplaceItems(ctx context.Context, organizationID uuid.UUID, rowID uuid.UUID, raw payload.Payload) (int, error) {
	items := extract.ExtractItems(raw)

	for _, item := range items {
		matched, err := e.products.FindByName(ctx, organizationID, item.ProductName)
		if err != nil {
			// Matching is best-effort; an unavailable catalog must not block
			// the item insert.
			e.logger.Debug("product lookup failed", "product_name", item.ProductName, "error", err)
			continue
		}
		if matched != nil {
			id := matched.ID
			item.ProductID = &id
		}
	}

	if err := e.transactions.ReplaceItems(ctx, rowID, items); err != nil {
		return 0, fmt.Errorf("item replacement failed: %w", err)
	}

	return len(items), nil
}
