package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bpofinanceiro/reconciliation-service/internal/data/postgres"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/audit"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/ledger"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/syncjob"
	"github.com/bpofinanceiro/reconciliation-service/internal/dominio"
	"github.com/bpofinanceiro/reconciliation-service/internal/queue"
)

// DominioSyncHandler pushes one entry's reconciled state to DOMINIO. The
// entry and match are read inside a tenant scope but the push happens
// outside it: an HTTP call must not hold a database transaction open.
type DominioSyncHandler struct {
	store  *postgres.Store
	client dominio.Client
	audit  audit.Repository
	logger *slog.Logger
}

// NewDominioSyncHandler creates the dominio-sync lane handler
func NewDominioSyncHandler(logger *slog.Logger, store *postgres.Store, client dominio.Client, auditRepo audit.Repository) *DominioSyncHandler {
	return &DominioSyncHandler{
		store:  store,
		client: client,
		audit:  auditRepo,
		logger: logger,
	}
}

func (h *DominioSyncHandler) Lane() syncjob.Lane { return syncjob.LaneDominioSync }

func (h *DominioSyncHandler) Handle(ctx context.Context, job *syncjob.Job) error {
	var payload queue.DominioSyncPayload
	if err := job.DecodePayload(&payload); err != nil {
		return err
	}

	var state *dominio.EntryState
	err := h.store.WithTenant(ctx, job.TenantID, func(ctx context.Context, scope *postgres.Scope) error {
		entry, err := scope.Ledger.GetByID(ctx, payload.LedgerEntryID)
		if err != nil {
			return err
		}

		match, err := scope.Matches.GetByID(ctx, payload.MatchID)
		if err != nil {
			return err
		}

		state = &dominio.EntryState{
			LedgerEntryID:     entry.ID,
			Status:            string(entry.Status),
			MatchID:           entry.MatchID,
			BankTransactionID: &match.BankTransactionID,
			Amount:            entry.Amount.String(),
			Currency:          entry.Currency,
			ReconciledAt:      time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		var notFound ledger.ErrEntryNotFound
		if errors.As(err, &notFound) {
			// The entry was removed after the job was queued; nothing left
			// to push.
			h.logger.Warn("Skipping dominio sync for missing ledger entry",
				"tenant_id", job.TenantID.String(),
				"ledger_entry_id", payload.LedgerEntryID.String())
			return nil
		}
		return err
	}

	if err := h.client.UpsertEntryState(ctx, job.TenantID, state); err != nil {
		var conflict dominio.SyncConflictError
		if errors.As(err, &conflict) {
			h.recordConflict(ctx, job, conflict)
		}
		return err
	}

	return nil
}

func (h *DominioSyncHandler) recordConflict(ctx context.Context, job *syncjob.Job, conflict dominio.SyncConflictError) {
	event := audit.NewEvent(job.TenantID, "dominio-sync", audit.ActionSyncConflict, conflict.LedgerEntryID, map[string]interface{}{
		"detail": conflict.Detail,
		"job_id": job.ID.String(),
	})
	if err := h.audit.Record(ctx, event); err != nil {
		h.logger.Warn("Failed to record sync conflict audit event", "error", err)
	}
}
