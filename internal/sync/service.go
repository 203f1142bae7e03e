// Package sync orchestrates the SumUp synchronization pipeline: token
// lifecycle, paginated fetching, normalization, reconciliation, and line-item
// extraction, driven in bounded concurrent batches per merchant.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/restobook/sumup-sync/internal/config"
	"github.com/restobook/sumup-sync/internal/domain/credential"
	"github.com/restobook/sumup-sync/internal/domain/payload"
	"github.com/restobook/sumup-sync/internal/domain/syncrun"
	"github.com/restobook/sumup-sync/internal/domain/transaction"
	"github.com/restobook/sumup-sync/internal/platform/messaging/producers"
	"github.com/restobook/sumup-sync/internal/platform/sumup"
	"github.com/restobook/sumup-sync/internal/sync/extract"
)

// ErrOAuthNotConfigured indicates the merchant credential has no refresh
// token and no usable client configuration.
var ErrOAuthNotConfigured = errors.New("sync: OAuth is not configured for this merchant")

// ItemSyncParams controls an item extraction run. Without a date range, up to
// Limit transactions lacking items are processed; with one, every transaction
// in range has its items deleted and recreated.
type ItemSyncParams struct {
	Limit    int
	DateFrom *time.Time
	DateTo   *time.Time
}

// Service drives sync runs across merchants with bounded concurrency
type Service struct {
	cfg          *config.SyncConfig
	sumup        SumUpAPI
	tokens       TokenProvider
	credentials  credential.Repository
	transactions transaction.Repository
	reconciler   Reconciler
	events       producers.MessagePublisher    // optional
	deadLetters  producers.DeadLetterPublisher // optional
	runs         syncrun.Repository            // optional
	pool         *ants.Pool
	logger       *slog.Logger
}

// NewService creates the sync orchestrator. The events, deadLetters, and runs
// collaborators may be nil; the corresponding side channels are then skipped.
func NewService(
	logger *slog.Logger,
	cfg *config.SyncConfig,
	api SumUpAPI,
	tokens TokenProvider,
	credentials credential.Repository,
	transactions transaction.Repository,
	reconciler Reconciler,
	events producers.MessagePublisher,
	deadLetters producers.DeadLetterPublisher,
	runs syncrun.Repository,
	pool *ants.Pool,
) *Service {
	return &Service{
		cfg:          cfg,
		sumup:        api,
		tokens:       tokens,
		credentials:  credentials,
		transactions: transactions,
		reconciler:   reconciler,
		events:       events,
		deadLetters:  deadLetters,
		runs:         runs,
		pool:         pool,
		logger:       logger,
	}
}

// SyncOrganization performs a full transaction history sync for every active
// merchant credential of the tenant. One merchant's failure never affects the
// others; it is reported in that merchant's result entry.
func (s *Service) SyncOrganization(ctx context.Context, organizationID uuid.UUID, from, to *time.Time) (*syncrun.OrganizationResult, error) {
	startedAt := time.Now().UTC()

	creds, err := s.credentials.FindActiveByOrganization(ctx, organizationID)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant credentials: %w", err)
	}
	if len(creds) == 0 {
		return nil, credential.ErrCredentialNotFound{OrganizationID: organizationID}
	}

	result := &syncrun.OrganizationResult{OrganizationID: organizationID}
	var allErrors []syncrun.TransactionError

	for _, cred := range creds {
		merchantResult, txErrors := s.syncMerchant(ctx, organizationID, cred, from, to)
		result.MerchantResults = append(result.MerchantResults, merchantResult)
		result.TotalProcessed += merchantResult.Total
		result.NewTransactions += merchantResult.New
		result.UpdatedTransactions += merchantResult.Updated
		result.TotalItemsExtracted += merchantResult.ItemsExtracted
		allErrors = append(allErrors, txErrors...)
	}

	result.ErrorCount = len(allErrors)
	result.ErrorDetails = capErrors(allErrors, s.cfg.MaxErrorDetails)

	s.finishRun(ctx, organizationID, syncrun.KindFullSync, startedAt, result)
	return result, nil
}

// SyncItems re-derives line items for the tenant's transactions using its
// primary merchant credential.
func (s *Service) SyncItems(ctx context.Context, organizationID uuid.UUID, params ItemSyncParams) (*syncrun.ItemSyncResult, error) {
	startedAt := time.Now().UTC()

	cred, err := s.credentials.FindFirstActive(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	if cred.RefreshToken == "" {
		return nil, ErrOAuthNotConfigured
	}

	accessToken, err := s.tokens.EnsureValidToken(ctx, cred)
	if err != nil {
		return nil, fmt.Errorf("failed to obtain access token: %w", err)
	}
	cell := newTokenCell(accessToken, cred, s.tokens)

	var targets []*transaction.Record
	if params.DateFrom != nil && params.DateTo != nil {
		targets, err = s.transactions.FindByDateRange(ctx, organizationID, *params.DateFrom, *params.DateTo)
	} else {
		limit := params.Limit
		if limit <= 0 {
			limit = s.cfg.DefaultItemLimit
		}
		targets, err = s.transactions.FindWithoutItems(ctx, organizationID, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load target transactions: %w", err)
	}

	result := &syncrun.ItemSyncResult{OrganizationID: organizationID}
	var (
		mu           sync.Mutex
		itemsCreated int
		txErrors     []syncrun.TransactionError
	)

	runner := &batchRunner{
		pool:      s.pool,
		batchSize: s.cfg.ItemBatchSize,
		delay:     s.cfg.ItemBatchDelay,
		logger:    s.logger,
	}

	runner.Run(ctx, len(targets), func(index int) error {
		target := targets[index]

		raw := target.RawPayload
		detail, err := s.fetchDetail(ctx, cell, cred.MerchantCode, target.TransactionID)
		if err != nil {
			// Absence of detail is not fatal; the archived payload still
			// carries enough to extract from.
			s.recordFailure(ctx, &mu, &txErrors, target.TransactionID, err)
		}
		if detail != nil {
			raw = sumup.MergeDetail(raw, detail)
		}
		if raw == nil {
			err := errors.New("no payload available for item extraction")
			s.recordFailure(ctx, &mu, &txErrors, target.TransactionID, err)
			return err
		}

		count, err := s.reconciler.ReplaceItems(ctx, organizationID, target.ID, raw)
		if err != nil {
			s.recordFailure(ctx, &mu, &txErrors, target.TransactionID, err)
			return err
		}

		mu.Lock()
		itemsCreated += count
		result.TransactionsProcessed++
		mu.Unlock()
		return nil
	})

	result.ItemsCreated = itemsCreated
	result.ErrorCount = len(txErrors)
	result.ErrorDetails = capErrors(txErrors, s.cfg.MaxErrorDetails)

	if total, err := s.transactions.CountByOrganization(ctx, organizationID); err == nil {
		result.TotalTransactions = total
	}
	if withItems, err := s.transactions.CountWithItems(ctx, organizationID); err == nil {
		result.TransactionsWithItems = withItems
	}

	s.finishRun(ctx, organizationID, syncrun.KindItemSync, startedAt, result)
	return result, nil
}

// syncMerchant runs the full pipeline for one merchant credential: token,
// paginated list, per-transaction detail enrichment, normalization,
// reconciliation, and item replacement.
func (s *Service) syncMerchant(ctx context.Context, organizationID uuid.UUID, cred *credential.Credential, from, to *time.Time) (syncrun.MerchantResult, []syncrun.TransactionError) {
	merchantResult := syncrun.MerchantResult{MerchantCode: cred.MerchantCode}

	accessToken, err := s.tokens.EnsureValidToken(ctx, cred)
	if err != nil {
		merchantResult.Error = err.Error()
		s.logger.Error("token acquisition failed", "merchant_code", cred.MerchantCode, "error", err)
		return merchantResult, nil
	}
	cell := newTokenCell(accessToken, cred, s.tokens)

	raws, err := s.sumup.ListTransactions(ctx, cell.Get(), cred.MerchantCode, from, to)
	if errors.Is(err, sumup.ErrUnauthorized) {
		var fresh string
		fresh, err = cell.Refresh(ctx, accessToken)
		if err == nil {
			raws, err = s.sumup.ListTransactions(ctx, fresh, cred.MerchantCode, from, to)
		}
	}
	if err != nil {
		merchantResult.Error = err.Error()
		s.logger.Error("transaction listing failed", "merchant_code", cred.MerchantCode, "error", err)
		return merchantResult, nil
	}
	if len(raws) == 0 {
		return merchantResult, nil
	}

	var (
		mu       sync.Mutex
		txErrors []syncrun.TransactionError
	)

	runner := &batchRunner{
		pool:      s.pool,
		batchSize: s.cfg.FullBatchSize,
		delay:     s.cfg.FullBatchDelay,
		logger:    s.logger,
	}

	// Enrich list records with detail data; the detail endpoint carries tip
	// and VAT fields the list endpoint omits.
	merged := make([]payload.Payload, len(raws))
	runner.Run(ctx, len(raws), func(index int) error {
		raw := raws[index]
		merged[index] = raw

		txID := extract.TransactionCode(raw)
		if txID == "" {
			return nil
		}

		detail, err := s.fetchDetail(ctx, cell, cred.MerchantCode, txID)
		if err != nil {
			s.recordFailure(ctx, &mu, &txErrors, txID, err)
			return nil // list data still yields a usable record
		}
		merged[index] = sumup.MergeDetail(raw, detail)
		return nil
	})

	// Link-following pagination can hand back the same transaction on two
	// pages. A single multi-row upsert cannot touch one conflict key twice,
	// so duplicates collapse here with the last occurrence winning.
	payloadByTxID := make(map[string]payload.Payload, len(merged))
	recordIndex := make(map[string]int, len(merged))
	records := make([]*transaction.Record, 0, len(merged))
	for _, raw := range merged {
		rec := extract.NormalizeTransaction(organizationID, cred.MerchantCode, raw)
		if rec.TransactionID == "" {
			continue
		}
		if pos, seen := recordIndex[rec.TransactionID]; seen {
			records[pos] = rec
		} else {
			recordIndex[rec.TransactionID] = len(records)
			records = append(records, rec)
		}
		payloadByTxID[rec.TransactionID] = raw
	}

	reconciled, err := s.reconciler.ReconcileTransactions(ctx, organizationID, records)
	if err != nil {
		upsertErr := transaction.ErrUpsertFailed{MerchantCode: cred.MerchantCode, Err: err}
		merchantResult.Error = upsertErr.Error()
		s.logger.Error("reconciliation failed", "merchant_code", cred.MerchantCode, "error", err)
		return merchantResult, txErrors
	}

	merchantResult.Total = len(records)
	merchantResult.New = reconciled.New
	merchantResult.Updated = reconciled.Updated

	var itemsExtracted int
	rows := reconciled.Rows
	runner.Run(ctx, len(rows), func(index int) error {
		row := rows[index]
		raw, ok := payloadByTxID[row.TransactionID]
		if !ok {
			return nil
		}

		count, err := s.reconciler.ReplaceItems(ctx, organizationID, row.ID, raw)
		if err != nil {
			s.recordFailure(ctx, &mu, &txErrors, row.TransactionID, err)
			return err
		}

		mu.Lock()
		itemsExtracted += count
		mu.Unlock()
		return nil
	})

	merchantResult.ItemsExtracted = itemsExtracted
	return merchantResult, txErrors
}

// fetchDetail performs the detail lookup with the refresh-and-retry-once
// contract: a 401 triggers one token refresh and one retry; a second 401 is a
// terminal per-transaction error.
func (s *Service) fetchDetail(ctx context.Context, cell *tokenCell, merchantCode, transactionID string) (payload.Payload, error) {
	token := cell.Get()
	detail, err := s.sumup.FetchDetail(ctx, token, merchantCode, transactionID)
	if !errors.Is(err, sumup.ErrUnauthorized) {
		return detail, err
	}

	fresh, err := cell.Refresh(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("token refresh after 401 failed: %w", err)
	}

	detail, err = s.sumup.FetchDetail(ctx, fresh, merchantCode, transactionID)
	if errors.Is(err, sumup.ErrUnauthorized) {
		return nil, fmt.Errorf("authorization failed after token refresh for transaction %s", transactionID)
	}
	return detail, err
}

func (s *Service) recordFailure(ctx context.Context, mu *sync.Mutex, txErrors *[]syncrun.TransactionError, transactionID string, err error) {
	mu.Lock()
	*txErrors = append(*txErrors, syncrun.TransactionError{
		TransactionID: transactionID,
		Message:       err.Error(),
	})
	mu.Unlock()

	s.logger.Warn("transaction sync failed", "transaction_id", transactionID, "error", err)

	if s.deadLetters != nil {
		original, _ := json.Marshal(map[string]string{"transaction_id": transactionID})
		if dlqErr := s.deadLetters.PublishToDLQ(ctx, transactionID, original, err.Error()); dlqErr != nil {
			s.logger.Warn("failed to publish transaction failure to DLQ", "transaction_id", transactionID, "error", dlqErr)
		}
	}
}

// finishRun records the completed run in the audit store and publishes a
// sync.completed event. Both channels are best-effort.
func (s *Service) finishRun(ctx context.Context, organizationID uuid.UUID, kind string, startedAt time.Time, result interface{}) {
	finishedAt := time.Now().UTC()

	if s.runs != nil {
		record := &syncrun.RunRecord{
			ID:             uuid.New(),
			OrganizationID: organizationID,
			Kind:           kind,
			StartedAt:      startedAt,
			FinishedAt:     finishedAt,
			Result:         result,
		}
		if err := s.runs.Record(ctx, record); err != nil {
			s.logger.Warn("failed to record sync run", "organization_id", organizationID, "error", err)
		}
	}

	if s.events != nil {
		event := map[string]interface{}{
			"kind":            kind,
			"organization_id": organizationID.String(),
			"started_at":      startedAt.Format(time.RFC3339Nano),
			"finished_at":     finishedAt.Format(time.RFC3339Nano),
			"result":          result,
		}
		if err := s.events.Publish(ctx, organizationID.String(), event); err != nil {
			s.logger.Warn("failed to publish sync event", "organization_id", organizationID, "error", err)
		}
	}
}

func capErrors(errs []syncrun.TransactionError, max int) []syncrun.TransactionError {
	if len(errs) <= max {
		return errs
	}
	return errs[:max]
}
