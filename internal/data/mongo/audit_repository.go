package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/bpofinanceiro/reconciliation-service/internal/domain/audit"
)

const (
	// AuditCollectionName is the name of the audit event collection in MongoDB
	AuditCollectionName = "audit_events"

	// ReportCollectionName is the name of the reconciliation report collection
	ReportCollectionName = "reconciliation_reports"
)

// AuditRepository implements the audit.Repository interface for MongoDB.
// Events are best-effort: they are written after the owning postgres
// transaction commits, so a write failure is logged, never propagated into
// financial state.
type AuditRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewAuditRepository creates a new MongoDB audit repository
func NewAuditRepository(logger *slog.Logger, db *mongo.Database) audit.Repository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Record stores one append-only audit event
func (r *AuditRepository) Record(ctx context.Context, event *audit.Event) error {
	collection := r.db.Collection(AuditCollectionName)

	_, err := collection.InsertOne(ctx, event)
	if err != nil {
		r.logger.Error("Failed to record audit event",
			"event_id", event.ID.String(),
			"action", event.Action,
			"error", err)
		return fmt.Errorf("failed to record audit event: %w", err)
	}

	return nil
}

// ListByTenant retrieves paginated audit events for a tenant, newest first
func (r *AuditRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*audit.Event, error) {
	collection := r.db.Collection(AuditCollectionName)

	filter := bson.M{"tenant_id": tenantID}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list audit events",
			"tenant_id", tenantID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to list audit events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*audit.Event
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode audit events: %w", err)
	}

	return events, nil
}

// SaveReport upserts a reconciliation summary for the tenant and period
func (r *AuditRepository) SaveReport(ctx context.Context, report *audit.Report) error {
	collection := r.db.Collection(ReportCollectionName)

	filter := bson.M{
		"tenant_id":    report.TenantID,
		"period_start": report.PeriodStart,
		"period_end":   report.PeriodEnd,
	}
	update := bson.M{"$set": report}
	opts := options.Update().SetUpsert(true)

	_, err := collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		r.logger.Error("Failed to save reconciliation report",
			"tenant_id", report.TenantID.String(),
			"error", err)
		return fmt.Errorf("failed to save reconciliation report: %w", err)
	}

	return nil
}
