package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Action names an auditable operation
type Action string

const (
	ActionMatchCommitted   Action = "MATCH_COMMITTED"
	ActionMatchReversed    Action = "MATCH_REVERSED"
	ActionMatchConfirmed   Action = "MATCH_CONFIRMED"
	ActionMarkedAmbiguous  Action = "MARKED_AMBIGUOUS"
	ActionJobRequeued      Action = "JOB_REQUEUED"
	ActionSyncConflict     Action = "SYNC_CONFLICT"
)

// Event is one append-only audit record. Events are written after the
// owning transaction commits; losing one never corrupts financial state.
type Event struct {
	ID        uuid.UUID              `bson:"event_id" json:"event_id"`
	TenantID  uuid.UUID              `bson:"tenant_id" json:"tenant_id"`
	Actor     string                 `bson:"actor" json:"actor"` // "engine" or a reviewer identifier
	Action    Action                 `bson:"action" json:"action"`
	EntityID  uuid.UUID              `bson:"entity_id" json:"entity_id"`
	Details   map[string]interface{} `bson:"details,omitempty" json:"details,omitempty"`
	CreatedAt time.Time              `bson:"created_at" json:"created_at"`
}

// NewEvent builds an audit event stamped with the current time
func NewEvent(tenantID uuid.UUID, actor string, action Action, entityID uuid.UUID, details map[string]interface{}) *Event {
	return &Event{
		ID:        uuid.New(),
		TenantID:  tenantID,
		Actor:     actor,
		Action:    action,
		EntityID:  entityID,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}
}

// Report is a per-tenant reconciliation summary produced by the reports lane
type Report struct {
	TenantID    uuid.UUID `bson:"tenant_id" json:"tenant_id"`
	PeriodStart time.Time `bson:"period_start" json:"period_start"`
	PeriodEnd   time.Time `bson:"period_end" json:"period_end"`
	Matched     int64     `bson:"matched" json:"matched"`
	Ambiguous   int64     `bson:"ambiguous" json:"ambiguous"`
	Unmatched   int64     `bson:"unmatched" json:"unmatched"`
	GeneratedAt time.Time `bson:"generated_at" json:"generated_at"`
}

// Repository stores audit events and report documents
type Repository interface {
	Record(ctx context.Context, event *Event) error
	ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*Event, error)
	SaveReport(ctx context.Context, report *Report) error
}
