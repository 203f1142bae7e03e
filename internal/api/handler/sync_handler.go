package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/restobook/sumup-sync/internal/api/middleware"
	"github.com/restobook/sumup-sync/internal/domain/credential"
	"github.com/restobook/sumup-sync/internal/domain/syncrun"
	syncsvc "github.com/restobook/sumup-sync/internal/sync"
)

// Syncer is the sync orchestration surface the handlers drive
type Syncer interface {
	SyncOrganization(ctx context.Context, organizationID uuid.UUID, from, to *time.Time) (*syncrun.OrganizationResult, error)
	SyncItems(ctx context.Context, organizationID uuid.UUID, params syncsvc.ItemSyncParams) (*syncrun.ItemSyncResult, error)
}

// SyncHandler handles HTTP requests for sync operations
type SyncHandler struct {
	syncer Syncer
	logger *slog.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(logger *slog.Logger, syncer Syncer) *SyncHandler {
	return &SyncHandler{
		syncer: syncer,
		logger: logger,
	}
}

// SyncItems re-derives line items for the caller's organization. Once the
// validation gate is passed the response is always 200; partial failure is
// reported in the body.
func (h *SyncHandler) SyncItems(c *gin.Context) {
	sess := middleware.GetSession(c)
	if sess == nil {
		RespondWithError(c, 401, "Missing session")
		return
	}
	if !sess.CanSync() {
		RespondForbidden(c, "Insufficient permissions to trigger sync")
		return
	}

	var req SyncItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	params := syncsvc.ItemSyncParams{Limit: req.Limit}
	if req.DateFrom != "" || req.DateTo != "" {
		// A half-open range would silently fall back to the no-items query
		if req.DateFrom == "" || req.DateTo == "" {
			RespondBadRequest(c, "Both date_from and date_to are required for a date range")
			return
		}
		from, err := parseDate(req.DateFrom)
		if err != nil {
			RespondBadRequest(c, "Invalid date_from")
			return
		}
		to, err := parseDate(req.DateTo)
		if err != nil {
			RespondBadRequest(c, "Invalid date_to")
			return
		}
		params.DateFrom = from
		params.DateTo = to
	}

	result, err := h.syncer.SyncItems(c.Request.Context(), sess.OrganizationID, params)
	if err != nil {
		h.respondSyncError(c, sess.OrganizationID, err)
		return
	}

	RespondOK(c, SyncItemsResponse{
		Success:               result.ErrorCount == 0,
		TransactionsProcessed: result.TransactionsProcessed,
		ItemsCreated:          result.ItemsCreated,
		Errors:                result.ErrorCount,
		ErrorDetails:          result.ErrorDetails,
		TotalTransactions:     result.TotalTransactions,
		TransactionsWithItems: result.TransactionsWithItems,
	})
}

// Sync runs a full transaction history sync plus item extraction for every
// active merchant credential under the tenant.
func (h *SyncHandler) Sync(c *gin.Context) {
	sess := middleware.GetSession(c)
	if sess == nil {
		RespondWithError(c, 401, "Missing session")
		return
	}
	if !sess.CanSync() {
		RespondForbidden(c, "Insufficient permissions to trigger sync")
		return
	}

	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	organizationID, err := uuid.Parse(req.OrganizationID)
	if err != nil {
		RespondBadRequest(c, "Invalid organizationId")
		return
	}

	from, err := parseDate(req.FromDate)
	if err != nil {
		RespondBadRequest(c, "Invalid fromDate")
		return
	}
	to, err := parseDate(req.ToDate)
	if err != nil {
		RespondBadRequest(c, "Invalid toDate")
		return
	}

	result, err := h.syncer.SyncOrganization(c.Request.Context(), organizationID, from, to)
	if err != nil {
		h.respondSyncError(c, organizationID, err)
		return
	}

	merchantResults := result.MerchantResults
	if merchantResults == nil {
		merchantResults = []syncrun.MerchantResult{}
	}

	success := result.ErrorCount == 0
	for _, mr := range merchantResults {
		if mr.Error != "" {
			success = false
		}
	}

	RespondOK(c, SyncResponse{
		Success:                    success,
		TotalTransactionsProcessed: result.TotalProcessed,
		NewTransactionsAdded:       result.NewTransactions,
		MerchantResults:            merchantResults,
		Message: fmt.Sprintf("Synchronized %d transactions (%d new, %d updated)",
			result.TotalProcessed, result.NewTransactions, result.UpdatedTransactions),
	})
}

// respondSyncError maps orchestrator failures to the validation-gate statuses
func (h *SyncHandler) respondSyncError(c *gin.Context, organizationID uuid.UUID, err error) {
	var notFound credential.ErrCredentialNotFound
	switch {
	case errors.As(err, &notFound):
		RespondNotFound(c, "No active merchant credential configured")
	case errors.Is(err, syncsvc.ErrOAuthNotConfigured):
		RespondBadRequest(c, "OAuth is not configured for this merchant")
	default:
		h.logger.Error("Sync run failed", "organization_id", organizationID, "error", err)
		RespondInternalError(c)
	}
}

// parseDate accepts a date-only or RFC3339 timestamp string. An empty string
// yields nil.
func parseDate(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if parsed, err := time.Parse(layout, value); err == nil {
			return &parsed, nil
		}
	}
	return nil, fmt.Errorf("unsupported date format: %q", value)
}
