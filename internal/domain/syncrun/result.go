// Package syncrun holds the result types produced by sync runs. The HTTP
// responses are built from these ephemeral values; completed runs are also
// recorded in the audit store for operators.
package syncrun

import (
	"time"

	"github.com/google/uuid"
)

// Kinds of sync runs recorded in the audit store
const (
	KindFullSync = "full_sync"
	KindItemSync = "item_sync"
)

// TransactionError describes a single transaction's failure during a run
type TransactionError struct {
	TransactionID string `json:"transaction_id" bson:"transaction_id"`
	Message       string `json:"error" bson:"error"`
}

// MerchantResult summarizes one merchant credential's portion of a full sync
type MerchantResult struct {
	MerchantCode   string `json:"merchant_code" bson:"merchant_code"`
	Total          int    `json:"total" bson:"total"`
	New            int    `json:"new" bson:"new"`
	Updated        int    `json:"updated" bson:"updated"`
	ItemsExtracted int    `json:"itemsExtracted" bson:"items_extracted"`
	Error          string `json:"error,omitempty" bson:"error,omitempty"`
}

// OrganizationResult is the outcome of a full transaction history sync.
// ErrorDetails is capped for reporting; ErrorCount carries the true total.
type OrganizationResult struct {
	OrganizationID      uuid.UUID          `json:"organization_id" bson:"organization_id"`
	TotalProcessed      int                `json:"total_processed" bson:"total_processed"`
	NewTransactions     int                `json:"new_transactions" bson:"new_transactions"`
	UpdatedTransactions int                `json:"updated_transactions" bson:"updated_transactions"`
	MerchantResults     []MerchantResult   `json:"merchant_results" bson:"merchant_results"`
	TotalItemsExtracted int                `json:"total_items_extracted" bson:"total_items_extracted"`
	ErrorCount          int                `json:"error_count" bson:"error_count"`
	ErrorDetails        []TransactionError `json:"error_details,omitempty" bson:"error_details,omitempty"`
}

// ItemSyncResult is the outcome of an item extraction run
type ItemSyncResult struct {
	OrganizationID        uuid.UUID          `json:"organization_id" bson:"organization_id"`
	TransactionsProcessed int                `json:"transactions_processed" bson:"transactions_processed"`
	ItemsCreated          int                `json:"items_created" bson:"items_created"`
	ErrorCount            int                `json:"error_count" bson:"error_count"`
	ErrorDetails          []TransactionError `json:"error_details,omitempty" bson:"error_details,omitempty"`
	TotalTransactions     int64              `json:"total_transactions" bson:"total_transactions"`
	TransactionsWithItems int64              `json:"transactions_with_items" bson:"transactions_with_items"`
}

// RunRecord is the audit document persisted for each completed run
type RunRecord struct {
	ID             uuid.UUID   `bson:"run_id"`
	OrganizationID uuid.UUID   `bson:"organization_id"`
	Kind           string      `bson:"kind"`
	StartedAt      time.Time   `bson:"started_at"`
	FinishedAt     time.Time   `bson:"finished_at"`
	Result         interface{} `bson:"result"`
}
