package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/bpofinanceiro/reconciliation-service/internal/data/postgres"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/audit"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/bank"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/syncjob"
	"github.com/bpofinanceiro/reconciliation-service/internal/queue"
)

// ReportsHandler summarizes a tenant's reconciliation outcomes for a period
// into a report document
type ReportsHandler struct {
	store  *postgres.Store
	audit  audit.Repository
	logger *slog.Logger
}

// NewReportsHandler creates the reports lane handler
func NewReportsHandler(logger *slog.Logger, store *postgres.Store, auditRepo audit.Repository) *ReportsHandler {
	return &ReportsHandler{
		store:  store,
		audit:  auditRepo,
		logger: logger,
	}
}

func (h *ReportsHandler) Lane() syncjob.Lane { return syncjob.LaneReports }

func (h *ReportsHandler) Handle(ctx context.Context, job *syncjob.Job) error {
	var payload queue.ReportPayload
	if err := job.DecodePayload(&payload); err != nil {
		return err
	}

	var counts map[bank.MatchStatus]int64
	err := h.store.WithTenant(ctx, job.TenantID, func(ctx context.Context, scope *postgres.Scope) error {
		var err error
		counts, err = scope.Transactions.CountByMatchStatus(ctx, payload.PeriodStart, payload.PeriodEnd)
		return err
	})
	if err != nil {
		return err
	}

	report := &audit.Report{
		TenantID:    job.TenantID,
		PeriodStart: payload.PeriodStart,
		PeriodEnd:   payload.PeriodEnd,
		Matched:     counts[bank.MatchStatusMatched],
		Ambiguous:   counts[bank.MatchStatusAmbiguous],
		Unmatched:   counts[bank.MatchStatusUnmatched],
		GeneratedAt: time.Now().UTC(),
	}

	if err := h.audit.SaveReport(ctx, report); err != nil {
		return err
	}

	h.logger.Info("Reconciliation report generated",
		"tenant_id", job.TenantID.String(),
		"period_start", payload.PeriodStart.Format(time.RFC3339),
		"period_end", payload.PeriodEnd.Format(time.RFC3339),
		"matched", report.Matched,
		"ambiguous", report.Ambiguous,
		"unmatched", report.Unmatched)

	return nil
}
