package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bpofinanceiro/reconciliation-service/internal/domain/syncjob"
	"github.com/bpofinanceiro/reconciliation-service/internal/queue"
	"github.com/bpofinanceiro/reconciliation-service/internal/reconcile"
)

// Reconciler runs one matching pass over an account's unmatched transactions
type Reconciler interface {
	ReconcileAccount(ctx context.Context, tenantID uuid.UUID, accountRef string) (reconcile.Summary, error)
}

// ReconciliationHandler runs the matching engine over one account's
// unmatched transactions and queues the follow-up work: a dominio-sync job
// for every entry a committed match touched, a report refresh when the pass
// changed anything, and a review notification when transactions came out
// ambiguous.
type ReconciliationHandler struct {
	reconciler Reconciler
	queue      *queue.Queue
	logger     *slog.Logger
}

// NewReconciliationHandler creates the reconciliation lane handler
func NewReconciliationHandler(logger *slog.Logger, reconciler Reconciler, q *queue.Queue) *ReconciliationHandler {
	return &ReconciliationHandler{
		reconciler: reconciler,
		queue:      q,
		logger:     logger,
	}
}

func (h *ReconciliationHandler) Lane() syncjob.Lane { return syncjob.LaneReconciliation }

func (h *ReconciliationHandler) Handle(ctx context.Context, job *syncjob.Job) error {
	var payload queue.ReconcilePayload
	if err := job.DecodePayload(&payload); err != nil {
		return err
	}

	summary, err := h.reconciler.ReconcileAccount(ctx, job.TenantID, payload.BankAccountRef)
	if err != nil {
		return err
	}

	h.logger.Info("Reconciliation pass finished",
		"tenant_id", job.TenantID.String(),
		"account_ref", payload.BankAccountRef,
		"matched", summary.Matched,
		"ambiguous", summary.Ambiguous,
		"unmatched", summary.Unmatched,
		"reversed", summary.Reversed)

	for _, match := range summary.Committed {
		for _, entryID := range match.EntryIDs {
			_, err := h.queue.Enqueue(ctx, syncjob.LaneDominioSync, job.TenantID, payload.BankAccountRef,
				queue.DominioSyncPayload{LedgerEntryID: entryID, MatchID: match.ID})
			if err != nil {
				return err
			}
		}
	}

	if summary.Ambiguous > 0 {
		_, err := h.queue.Enqueue(ctx, syncjob.LaneNotifications, job.TenantID, "",
			queue.NotificationPayload{
				Severity: "WARNING",
				Message: fmt.Sprintf("%d ambiguous transactions on account %s await manual review",
					summary.Ambiguous, payload.BankAccountRef),
			})
		if err != nil {
			return err
		}
	}

	if summary.Matched+summary.Ambiguous+summary.Reversed > 0 {
		start, end := reportPeriod(time.Now().UTC())
		_, err := h.queue.Enqueue(ctx, syncjob.LaneReports, job.TenantID, "",
			queue.ReportPayload{PeriodStart: start, PeriodEnd: end})
		if err != nil {
			return err
		}
	}

	return nil
}

// reportPeriod bounds the calendar month containing now, in UTC
func reportPeriod(now time.Time) (time.Time, time.Time) {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
