package handler

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/restobook/sumup-sync/internal/api/middleware"
	"github.com/restobook/sumup-sync/internal/domain/syncrun"
)

const (
	defaultRunHistoryLimit = 20
	maxRunHistoryLimit     = 100
)

// RunReader provides access to recorded sync runs
type RunReader interface {
	GetByOrganization(ctx context.Context, organizationID uuid.UUID, limit int) ([]*syncrun.RunRecord, error)
}

// RunsHandler serves the sync-run audit history
type RunsHandler struct {
	runs   RunReader
	logger *slog.Logger
}

// NewRunsHandler creates a new runs handler
func NewRunsHandler(logger *slog.Logger, runs RunReader) *RunsHandler {
	return &RunsHandler{
		runs:   runs,
		logger: logger,
	}
}

// List returns the caller's most recent sync runs, newest first
func (h *RunsHandler) List(c *gin.Context) {
	sess := middleware.GetSession(c)
	if sess == nil {
		RespondWithError(c, 401, "Missing session")
		return
	}
	if !sess.CanSync() {
		RespondForbidden(c, "Insufficient permissions to view sync runs")
		return
	}

	limit := defaultRunHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			RespondBadRequest(c, "Invalid limit")
			return
		}
		limit = parsed
	}
	if limit > maxRunHistoryLimit {
		limit = maxRunHistoryLimit
	}

	records, err := h.runs.GetByOrganization(c.Request.Context(), sess.OrganizationID, limit)
	if err != nil {
		h.logger.Error("Failed to load sync runs", "organization_id", sess.OrganizationID, "error", err)
		RespondInternalError(c)
		return
	}

	runs := make([]SyncRunResponse, 0, len(records))
	for _, record := range records {
		runs = append(runs, SyncRunResponse{
			RunID:      record.ID.String(),
			Kind:       record.Kind,
			StartedAt:  record.StartedAt,
			FinishedAt: record.FinishedAt,
			Result:     record.Result,
		})
	}

	RespondOK(c, SyncRunsResponse{Runs: runs})
}
