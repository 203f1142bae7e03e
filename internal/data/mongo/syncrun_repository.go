// Package mongo provides the MongoDB implementation of the sync-run audit
// store. Runs are recorded as append-only documents for operators; the HTTP
// response remains the authoritative ephemeral result.
package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/restobook/sumup-sync/internal/domain/syncrun"
)

// RunCollectionName is the name of the sync-run collection in MongoDB
const RunCollectionName = "sync_runs"

// SyncRunRepository implements the syncrun.Repository interface for MongoDB
type SyncRunRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewSyncRunRepository creates a new MongoDB sync-run repository
func NewSyncRunRepository(logger *slog.Logger, db *mongo.Database) syncrun.Repository {
	return &SyncRunRepository{
		db:     db,
		logger: logger,
	}
}

// Record persists one completed run
func (r *SyncRunRepository) Record(ctx context.Context, record *syncrun.RunRecord) error {
	collection := r.db.Collection(RunCollectionName)

	if _, err := collection.InsertOne(ctx, record); err != nil {
		r.logger.Error("Failed to record sync run",
			"run_id", record.ID.String(),
			"organization_id", record.OrganizationID.String(),
			"error", err)
		return fmt.Errorf("failed to record sync run: %w", err)
	}

	return nil
}

// GetByOrganization returns the most recent runs for a tenant, newest first
func (r *SyncRunRepository) GetByOrganization(ctx context.Context, organizationID uuid.UUID, limit int) ([]*syncrun.RunRecord, error) {
	collection := r.db.Collection(RunCollectionName)

	filter := bson.M{"organization_id": organizationID}
	opts := options.Find().
		SetSort(bson.M{"started_at": -1}).
		SetLimit(int64(limit))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to get sync runs",
			"organization_id", organizationID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to get sync runs: %w", err)
	}
	defer cursor.Close(ctx)

	var records []*syncrun.RunRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode sync runs: %w", err)
	}

	return records, nil
}
