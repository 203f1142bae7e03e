package handler

import (
	"time"

	"github.com/restobook/sumup-sync/internal/domain/syncrun"
)

// SyncItemsRequest represents a request to re-derive line items
type SyncItemsRequest struct {
	Limit    int    `json:"limit" binding:"omitempty,min=1"`
	DateFrom string `json:"date_from" binding:"omitempty"`
	DateTo   string `json:"date_to" binding:"omitempty"`
}

// SyncItemsResponse represents the outcome of an item sync run
type SyncItemsResponse struct {
	Success               bool                       `json:"success"`
	TransactionsProcessed int                        `json:"transactions_processed"`
	ItemsCreated          int                        `json:"items_created"`
	Errors                int                        `json:"errors"`
	ErrorDetails          []syncrun.TransactionError `json:"error_details,omitempty"`
	TotalTransactions     int64                      `json:"total_transactions"`
	TransactionsWithItems int64                      `json:"transactions_with_items"`
}

// SyncRequest represents a request to run a full transaction history sync
type SyncRequest struct {
	OrganizationID string `json:"organizationId" binding:"required,uuid"`
	FromDate       string `json:"fromDate" binding:"omitempty"`
	ToDate         string `json:"toDate" binding:"omitempty"`
}

// SyncRunResponse represents one recorded sync run in the audit history
type SyncRunResponse struct {
	RunID      string      `json:"run_id"`
	Kind       string      `json:"kind"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Result     interface{} `json:"result"`
}

// SyncRunsResponse wraps the audit history listing
type SyncRunsResponse struct {
	Runs []SyncRunResponse `json:"runs"`
}

// SyncResponse represents the outcome of a full transaction history sync
type SyncResponse struct {
	Success                    bool                     `json:"success"`
	TotalTransactionsProcessed int                      `json:"totalTransactionsProcessed"`
	NewTransactionsAdded       int                      `json:"newTransactionsAdded"`
	MerchantResults            []syncrun.MerchantResult `json:"merchantResults"`
	Message                    string                   `json:"message"`
}
