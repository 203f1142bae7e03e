package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/restobook/sumup-sync/internal/domain/payload"
	"github.com/restobook/sumup-sync/internal/domain/transaction"
	"github.com/restobook/sumup-sync/internal/platform/persistence"
)

// TransactionRepository implements the transaction.Repository interface for PostgreSQL
type TransactionRepository struct {
	querier  persistence.Querier
	beginner persistence.TxBeginner
	logger   *slog.Logger
}

// NewTransactionRepository creates a new PostgreSQL transaction repository
func NewTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB) transaction.Repository {
	return &TransactionRepository{
		querier:  db.Pool(),
		beginner: db.Pool(),
		logger:   logger,
	}
}

// DeleteOrphans removes untenanted rows matching the incoming provider ids.
// Running this before the tenant-scoped upsert prevents a uniqueness conflict
// between the upsert and a pre-existing legacy duplicate.
func (r *TransactionRepository) DeleteOrphans(ctx context.Context, transactionIDs []string) (int64, error) {
	if len(transactionIDs) == 0 {
		return 0, nil
	}

	query := `
		DELETE FROM transactions
		WHERE organization_id IS NULL AND transaction_id = ANY($1)
	`

	tag, err := r.querier.Exec(ctx, query, transactionIDs)
	if err != nil {
		r.logger.Error("Failed to delete orphaned transactions", "error", err)
		return 0, fmt.Errorf("failed to delete orphaned transactions: %w", err)
	}

	if tag.RowsAffected() > 0 {
		r.logger.Info("Deleted orphaned transactions", "count", tag.RowsAffected())
	}
	return tag.RowsAffected(), nil
}

// ExistingIDs returns which of the provider ids are already stored for the tenant
func (r *TransactionRepository) ExistingIDs(ctx context.Context, organizationID uuid.UUID, transactionIDs []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(transactionIDs))
	if len(transactionIDs) == 0 {
		return existing, nil
	}

	query := `
		SELECT transaction_id
		FROM transactions
		WHERE organization_id = $1 AND transaction_id = ANY($2)
	`

	rows, err := r.querier.Query(ctx, query, organizationID, transactionIDs)
	if err != nil {
		r.logger.Error("Failed to query existing transaction ids", "organization_id", organizationID, "error", err)
		return nil, fmt.Errorf("failed to query existing transaction ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan transaction id: %w", err)
		}
		existing[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read existing transaction ids: %w", err)
	}

	return existing, nil
}

// BulkUpsert writes all records in a single statement keyed on
// (organization_id, transaction_id). All normalized fields and the
// last_updated_at timestamp are overwritten unconditionally.
func (r *TransactionRepository) BulkUpsert(ctx context.Context, records []*transaction.Record) ([]transaction.UpsertedRow, error) {
	if len(records) == 0 {
		return nil, nil
	}

	const fieldsPerRecord = 15
	valueClauses := make([]string, 0, len(records))
	args := make([]interface{}, 0, len(records)*fieldsPerRecord)

	for i, rec := range records {
		base := i * fieldsPerRecord
		placeholders := make([]string, fieldsPerRecord)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueClauses = append(valueClauses, "("+strings.Join(placeholders, ", ")+")")

		rawJSON, err := json.Marshal(rec.RawPayload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal raw payload for %s: %w", rec.TransactionID, err)
		}

		args = append(args,
			uuid.New(),
			rec.OrganizationID,
			rec.TransactionID,
			rec.Amount,
			rec.RefundedAmount,
			rec.NetAmount,
			rec.Currency,
			rec.Status,
			rec.TransactionDate,
			rec.TipAmount,
			rec.VATAmount,
			rec.VATRate7Amount,
			rec.VATRate19Amount,
			rec.MerchantCode,
			rawJSON,
		)
	}

	query := `
		INSERT INTO transactions (id, organization_id, transaction_id, amount, refunded_amount,
			net_amount, currency, status, transaction_date, tip_amount, vat_amount,
			vat_rate_7_amount, vat_rate_19_amount, merchant_code, raw_payload)
		VALUES ` + strings.Join(valueClauses, ", ") + `
		ON CONFLICT (organization_id, transaction_id) DO UPDATE SET
			amount = EXCLUDED.amount,
			refunded_amount = EXCLUDED.refunded_amount,
			net_amount = EXCLUDED.net_amount,
			currency = EXCLUDED.currency,
			status = EXCLUDED.status,
			transaction_date = EXCLUDED.transaction_date,
			tip_amount = EXCLUDED.tip_amount,
			vat_amount = EXCLUDED.vat_amount,
			vat_rate_7_amount = EXCLUDED.vat_rate_7_amount,
			vat_rate_19_amount = EXCLUDED.vat_rate_19_amount,
			merchant_code = EXCLUDED.merchant_code,
			raw_payload = EXCLUDED.raw_payload,
			last_updated_at = NOW()
		RETURNING id, transaction_id
	`

	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to bulk upsert transactions", "count", len(records), "error", err)
		return nil, fmt.Errorf("failed to bulk upsert transactions: %w", err)
	}
	defer rows.Close()

	var upserted []transaction.UpsertedRow
	for rows.Next() {
		var row transaction.UpsertedRow
		if err := rows.Scan(&row.ID, &row.TransactionID); err != nil {
			return nil, fmt.Errorf("failed to scan upserted row: %w", err)
		}
		upserted = append(upserted, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read upserted rows: %w", err)
	}

	return upserted, nil
}

// ReplaceItems deletes every line item for the row and inserts the new set
// inside one database transaction, so a crash cannot leave the row with a
// partial item set.
func (r *TransactionRepository) ReplaceItems(ctx context.Context, rowID uuid.UUID, items []*transaction.Item) error {
	tx, err := r.beginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin item replacement: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	deleteQuery := `DELETE FROM transaction_items WHERE transaction_id = $1`
	if _, err := tx.Exec(ctx, deleteQuery, rowID); err != nil {
		r.logger.Error("Failed to delete line items", "transaction_row_id", rowID, "error", err)
		return fmt.Errorf("failed to delete line items: %w", err)
	}

	insertQuery := `
		INSERT INTO transaction_items (id, transaction_id, product_id, product_name,
			quantity, unit_price, total_price, raw_item)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	for _, item := range items {
		rawJSON, err := json.Marshal(item.RawItem)
		if err != nil {
			return fmt.Errorf("failed to marshal raw item: %w", err)
		}

		_, err = tx.Exec(ctx, insertQuery,
			uuid.New(),
			rowID,
			item.ProductID,
			item.ProductName,
			item.Quantity,
			item.UnitPrice,
			item.TotalPrice,
			rawJSON,
		)
		if err != nil {
			r.logger.Error("Failed to insert line item", "transaction_row_id", rowID, "product_name", item.ProductName, "error", err)
			return fmt.Errorf("failed to insert line item: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit item replacement: %w", err)
	}

	return nil
}

const transactionColumns = `t.id, t.organization_id, t.transaction_id, t.amount, t.refunded_amount,
		       t.net_amount, t.currency, t.status, t.transaction_date, t.tip_amount,
		       t.vat_amount, t.vat_rate_7_amount, t.vat_rate_19_amount, t.merchant_code,
		       t.raw_payload, t.last_updated_at`

// FindWithoutItems returns up to limit tenant transactions that have no line items
func (r *TransactionRepository) FindWithoutItems(ctx context.Context, organizationID uuid.UUID, limit int) ([]*transaction.Record, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		WHERE t.organization_id = $1
		  AND NOT EXISTS (
			SELECT 1 FROM transaction_items i WHERE i.transaction_id = t.id
		  )
		ORDER BY t.transaction_date DESC
		LIMIT $2
	`

	return r.queryRecords(ctx, query, organizationID, limit)
}

// FindByDateRange returns tenant transactions inside the inclusive range
func (r *TransactionRepository) FindByDateRange(ctx context.Context, organizationID uuid.UUID, from, to time.Time) ([]*transaction.Record, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions t
		WHERE t.organization_id = $1
		  AND t.transaction_date >= $2
		  AND t.transaction_date <= $3
		ORDER BY t.transaction_date DESC
	`

	return r.queryRecords(ctx, query, organizationID, from, to)
}

// CountByOrganization returns the tenant's total stored transactions
func (r *TransactionRepository) CountByOrganization(ctx context.Context, organizationID uuid.UUID) (int64, error) {
	query := `SELECT COUNT(*) FROM transactions WHERE organization_id = $1`

	var count int64
	if err := r.querier.QueryRow(ctx, query, organizationID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return count, nil
}

// CountWithItems returns how many tenant transactions have at least one item
func (r *TransactionRepository) CountWithItems(ctx context.Context, organizationID uuid.UUID) (int64, error) {
	query := `
		SELECT COUNT(DISTINCT t.id)
		FROM transactions t
		JOIN transaction_items i ON i.transaction_id = t.id
		WHERE t.organization_id = $1
	`

	var count int64
	if err := r.querier.QueryRow(ctx, query, organizationID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count transactions with items: %w", err)
	}
	return count, nil
}

func (r *TransactionRepository) queryRecords(ctx context.Context, query string, args ...interface{}) ([]*transaction.Record, error) {
	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query transactions", "error", err)
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var records []*transaction.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}

	return records, nil
}

func scanRecord(row pgx.Row) (*transaction.Record, error) {
	var rec transaction.Record
	var rawJSON []byte
	err := row.Scan(
		&rec.ID,
		&rec.OrganizationID,
		&rec.TransactionID,
		&rec.Amount,
		&rec.RefundedAmount,
		&rec.NetAmount,
		&rec.Currency,
		&rec.Status,
		&rec.TransactionDate,
		&rec.TipAmount,
		&rec.VATAmount,
		&rec.VATRate7Amount,
		&rec.VATRate19Amount,
		&rec.MerchantCode,
		&rawJSON,
		&rec.LastUpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(rawJSON) > 0 {
		var raw payload.Payload
		if err := json.Unmarshal(rawJSON, &raw); err == nil {
			rec.RawPayload = raw
		}
	}

	return &rec, nil
}
