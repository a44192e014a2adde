package service

import (
	"context"

	"github.com/google/uuid"

	"github.com/bpofinanceiro/reconciliation-service/internal/domain/audit"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/bank"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/reconciliation"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/syncjob"
)

// OperatorService exposes the manual-review operations: the ambiguous match
// queue, manual confirmation, and the failed-permanent job queue.
type OperatorService interface {
	// ListAmbiguous returns the tenant's transactions awaiting manual
	// confirmation with their candidate entries.
	ListAmbiguous(ctx context.Context, tenantID uuid.UUID, page, perPage int) ([]*bank.AmbiguousTransaction, error)

	// ConfirmMatch commits a reviewer's decision for one transaction. The
	// resulting match supersedes any prior one and carries the reviewer.
	ConfirmMatch(ctx context.Context, tenantID, bankTransactionID uuid.UUID, entryIDs []uuid.UUID, reviewer string) (*reconciliation.Match, error)

	// ListFailedJobs returns jobs parked as failed-permanent across lanes
	ListFailedJobs(ctx context.Context, page, perPage int) ([]*syncjob.Job, error)

	// RequeueJob returns a failed-permanent job to the queue with a fresh
	// attempt budget
	RequeueJob(ctx context.Context, jobID uuid.UUID) error

	// CancelJob cancels a job that has not started yet
	CancelJob(ctx context.Context, jobID uuid.UUID) error

	// ListAuditEvents returns the tenant's audit trail, newest first
	ListAuditEvents(ctx context.Context, tenantID uuid.UUID, page, perPage int) ([]*audit.Event, error)
}
