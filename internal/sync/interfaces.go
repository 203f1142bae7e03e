package sync

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/restobook/sumup-sync/internal/domain/credential"
	"github.com/restobook/sumup-sync/internal/domain/payload"
	"github.com/restobook/sumup-sync/internal/domain/transaction"
	"github.com/restobook/sumup-sync/internal/sync/reconcile"
)

// SumUpAPI is the provider surface the orchestrator drives
type SumUpAPI interface {
	ListTransactions(ctx context.Context, accessToken, merchantCode string, from, to *time.Time) ([]payload.Payload, error)
	FetchDetail(ctx context.Context, accessToken, merchantCode, transactionID string) (payload.Payload, error)
}

// TokenProvider supplies valid access tokens for merchant credentials
type TokenProvider interface {
	EnsureValidToken(ctx context.Context, cred *credential.Credential) (string, error)
	ForceRefresh(ctx context.Context, cred *credential.Credential) (string, error)
}

// Reconciler merges normalized transactions and line items into storage
type Reconciler interface {
	ReconcileTransactions(ctx context.Context, organizationID uuid.UUID, records []*transaction.Record) (*reconcile.Result, error)
	ReplaceItems(ctx context.Context, organizationID uuid.UUID, rowID uuid.UUID, raw payload.Payload) (int, error)
}
