package transaction

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/restobook/sumup-sync/internal/domain/payload"
)

// Normalized status values derived from heterogeneous provider statuses.
// Statuses outside this set pass through uppercased.
const (
	StatusSuccessful        = "SUCCESSFUL"
	StatusRefunded          = "REFUNDED"
	StatusPartiallyRefunded = "PARTIALLY_REFUNDED"
	StatusCancelled         = "CANCELLED"
)

// Record is a tenant-scoped canonical transaction, unique on
// (organization_id, transaction_id). A nil OrganizationID marks a legacy
// orphan row that must be purged before a tenant-scoped upsert of the same
// provider transaction id.
type Record struct {
	ID              uuid.UUID
	OrganizationID  *uuid.UUID
	TransactionID   string // Provider transaction id
	Amount          float64
	RefundedAmount  float64
	NetAmount       float64
	Currency        string
	Status          string
	TransactionDate time.Time
	TipAmount       float64
	VATAmount       float64
	VATRate7Amount  float64
	VATRate19Amount float64
	MerchantCode    string
	RawPayload      payload.Payload
	LastUpdatedAt   time.Time
}

// Item is a canonical line item derived from a transaction's raw payload.
// Items are replaced wholesale on every re-sync of their transaction.
type Item struct {
	ID            uuid.UUID
	TransactionID uuid.UUID // FK to Record.ID
	ProductID     *uuid.UUID
	ProductName   string
	Quantity      float64
	UnitPrice     float64
	TotalPrice    float64
	RawItem       payload.Payload
}

// UpsertedRow identifies a stored transaction row after a bulk upsert
type UpsertedRow struct {
	ID            uuid.UUID
	TransactionID string
}

// ErrUpsertFailed indicates the bulk upsert for a merchant's batch failed;
// it aborts that merchant's run only.
type ErrUpsertFailed struct {
	MerchantCode string
	Err          error
}

func (e ErrUpsertFailed) Error() string {
	return fmt.Sprintf("bulk upsert failed for merchant %s: %v", e.MerchantCode, e.Err)
}

func (e ErrUpsertFailed) Unwrap() error {
	return e.Err
}
