package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bpofinanceiro/reconciliation-service/internal/data/postgres"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/audit"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/bank"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/ledger"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/reconciliation"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/syncjob"
	"github.com/bpofinanceiro/reconciliation-service/internal/queue"
)

var (
	// ErrNotReviewable indicates a confirmation attempt on a transaction
	// that is not awaiting review
	ErrNotReviewable = errors.New("bank transaction is not awaiting review")

	// ErrEntryNotMatchable indicates a confirmation naming an entry that is
	// already paid or cancelled
	ErrEntryNotMatchable = errors.New("ledger entry is not matchable")

	// ErrNoEntries indicates a confirmation with an empty entry set
	ErrNoEntries = errors.New("at least one ledger entry is required")
)

type operatorService struct {
	store  *postgres.Store
	jobs   syncjob.Repository
	queue  *queue.Queue
	audit  audit.Repository
	logger *slog.Logger
}

// NewOperatorService creates the operator review service
func NewOperatorService(logger *slog.Logger, store *postgres.Store, jobs syncjob.Repository, q *queue.Queue, auditRepo audit.Repository) OperatorService {
	return &operatorService{
		store:  store,
		jobs:   jobs,
		queue:  q,
		audit:  auditRepo,
		logger: logger,
	}
}

func (s *operatorService) ListAmbiguous(ctx context.Context, tenantID uuid.UUID, page, perPage int) ([]*bank.AmbiguousTransaction, error) {
	var result []*bank.AmbiguousTransaction
	err := s.store.WithTenant(ctx, tenantID, func(ctx context.Context, scope *postgres.Scope) error {
		var err error
		result, err = scope.Transactions.ListAmbiguous(ctx, perPage, (page-1)*perPage)
		return err
	})
	return result, err
}

// ConfirmMatch applies a reviewer's decision atomically: the manual match,
// the entry status transitions and the transaction's match status land in
// one transaction, same as an engine-committed match.
func (s *operatorService) ConfirmMatch(ctx context.Context, tenantID, bankTransactionID uuid.UUID, entryIDs []uuid.UUID, reviewer string) (*reconciliation.Match, error) {
	if len(entryIDs) == 0 {
		return nil, ErrNoEntries
	}
	if reviewer == "" {
		return nil, fmt.Errorf("reviewer is required")
	}

	var match *reconciliation.Match
	var txn *bank.Transaction
	err := s.store.WithTenant(ctx, tenantID, func(ctx context.Context, scope *postgres.Scope) error {
		var err error
		txn, err = scope.Transactions.GetByID(ctx, bankTransactionID)
		if err != nil {
			return err
		}
		if txn.MatchStatus != bank.MatchStatusAmbiguous && txn.MatchStatus != bank.MatchStatusUnmatched {
			return ErrNotReviewable
		}

		statuses := make(map[uuid.UUID]ledger.Status, len(entryIDs))
		for _, entryID := range entryIDs {
			entry, err := scope.Ledger.GetByID(ctx, entryID)
			if err != nil {
				return err
			}
			if !entry.Matchable() {
				return fmt.Errorf("%w: %s is %s", ErrEntryNotMatchable, entry.ID, entry.Status)
			}
			if txn.Settled {
				statuses[entryID] = ledger.StatusPaid
			} else {
				statuses[entryID] = ledger.StatusMatched
			}
		}

		prior, err := scope.Matches.GetCurrentByBankTransactionID(ctx, txn.ID)
		if err != nil {
			return err
		}

		match = reconciliation.NewMatch(tenantID, txn.ID, entryIDs, 1.0, reconciliation.RuleManual)
		match.Reviewer = &reviewer
		if prior != nil {
			match.Supersedes = &prior.ID
		}

		return scope.RecordMatch(ctx, match, statuses, bank.MatchStatusMatched)
	})
	if err != nil {
		return nil, err
	}

	event := audit.NewEvent(tenantID, reviewer, audit.ActionMatchConfirmed, match.ID, map[string]interface{}{
		"bank_transaction_id": bankTransactionID.String(),
		"entries":             len(entryIDs),
	})
	if auditErr := s.audit.Record(ctx, event); auditErr != nil {
		s.logger.Warn("Failed to record confirmation audit event", "error", auditErr)
	}

	for _, entryID := range entryIDs {
		_, err := s.queue.Enqueue(ctx, syncjob.LaneDominioSync, tenantID, txn.BankAccountRef,
			queue.DominioSyncPayload{LedgerEntryID: entryID, MatchID: match.ID})
		if err != nil {
			s.logger.Error("Failed to enqueue dominio sync for confirmed match",
				"match_id", match.ID.String(),
				"ledger_entry_id", entryID.String(),
				"error", err)
		}
	}

	return match, nil
}

func (s *operatorService) ListFailedJobs(ctx context.Context, page, perPage int) ([]*syncjob.Job, error) {
	return s.jobs.ListFailedPermanent(ctx, perPage, (page-1)*perPage)
}

func (s *operatorService) RequeueJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}

	if err := s.jobs.Requeue(ctx, jobID); err != nil {
		return err
	}

	event := audit.NewEvent(job.TenantID, "operator", audit.ActionJobRequeued, jobID, map[string]interface{}{
		"lane":       string(job.Lane),
		"last_error": job.LastError,
	})
	if auditErr := s.audit.Record(ctx, event); auditErr != nil {
		s.logger.Warn("Failed to record requeue audit event", "error", auditErr)
	}

	return nil
}

func (s *operatorService) CancelJob(ctx context.Context, jobID uuid.UUID) error {
	return s.jobs.CancelPending(ctx, jobID)
}

func (s *operatorService) ListAuditEvents(ctx context.Context, tenantID uuid.UUID, page, perPage int) ([]*audit.Event, error) {
	return s.audit.ListByTenant(ctx, tenantID, perPage, (page-1)*perPage)
}
