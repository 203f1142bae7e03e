// Package scheduler runs periodic full syncs for every tenant that has an
// active merchant credential.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/restobook/sumup-sync/internal/config"
	"github.com/restobook/sumup-sync/internal/domain/credential"
	"github.com/restobook/sumup-sync/internal/domain/syncrun"
)

// OrganizationSyncer runs a full sync for one tenant
type OrganizationSyncer interface {
	SyncOrganization(ctx context.Context, organizationID uuid.UUID, from, to *time.Time) (*syncrun.OrganizationResult, error)
}

// Scheduler triggers periodic background syncs
type Scheduler struct {
	credentials credential.Repository
	syncer      OrganizationSyncer
	logger      *slog.Logger
	interval    time.Duration
	lookback    time.Duration
}

func NewScheduler(
	cfg *config.SchedulerConfig,
	credentials credential.Repository,
	syncer OrganizationSyncer,
	logger *slog.Logger,
) *Scheduler {
	return &Scheduler{
		credentials: credentials,
		syncer:      syncer,
		logger:      logger,
		interval:    cfg.Interval,
		lookback:    cfg.Lookback,
	}
}

// Start runs the scheduler until the context is canceled
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting sync scheduler",
		"interval", s.interval.String(),
		"lookback", s.lookback.String(),
	)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sync scheduler stopping due to context cancellation.")
			return
		case <-ticker.C:
			if err := s.runOnce(ctx); err != nil {
				s.logger.Error("Scheduled sync cycle failed", "error", err)
			}
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) error {
	organizationIDs, err := s.credentials.ActiveOrganizations(ctx)
	if err != nil {
		return err
	}

	if len(organizationIDs) == 0 {
		s.logger.Debug("No organizations with active credentials found.")
		return nil
	}

	to := time.Now().UTC()
	from := to.Add(-s.lookback)

	for _, organizationID := range organizationIDs {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		result, err := s.syncer.SyncOrganization(ctx, organizationID, &from, &to)
		if err != nil {
			s.logger.Error("Scheduled sync failed for organization",
				"organization_id", organizationID, "error", err,
			)
			continue
		}

		s.logger.Info("Scheduled sync completed",
			"organization_id", organizationID,
			"total_processed", result.TotalProcessed,
			"new", result.NewTransactions,
			"updated", result.UpdatedTransactions,
			"errors", result.ErrorCount,
		)
	}
	return nil
}
