package reconcile

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/bpofinanceiro/reconciliation-service/internal/data/postgres"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/audit"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/bank"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/ledger"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/reconciliation"
)

const engineActor = "engine"

// Summary reports what one reconciliation pass did to an account. Committed
// carries the match records created during the pass so the caller can queue
// follow-up sync work.
type Summary struct {
	Matched   int
	Ambiguous int
	Unmatched int
	Reversed  int
	Committed []*reconciliation.Match
}

// TenantStore scopes repository work to one tenant inside a single
// transaction. Satisfied by *postgres.Store.
type TenantStore interface {
	WithTenant(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context, scope *postgres.Scope) error) error
}

// Committer drives the engine over an account's unmatched transactions and
// applies each outcome inside one tenant-scoped transaction. Audit events
// are written after the commit, best-effort.
type Committer struct {
	store  TenantStore
	engine *Engine
	audit  audit.Repository
	logger *slog.Logger
}

// NewCommitter creates a committer over the given store and engine
func NewCommitter(logger *slog.Logger, store TenantStore, engine *Engine, auditRepo audit.Repository) *Committer {
	return &Committer{
		store:  store,
		engine: engine,
		audit:  auditRepo,
		logger: logger,
	}
}

const reconcileBatchSize = 200

// ReconcileAccount evaluates every unmatched transaction on the account in
// ingestion order. Each transaction commits independently so one bad line
// cannot roll back its neighbours.
func (c *Committer) ReconcileAccount(ctx context.Context, tenantID uuid.UUID, accountRef string) (Summary, error) {
	var summary Summary

	var unmatched []*bank.Transaction
	err := c.store.WithTenant(ctx, tenantID, func(ctx context.Context, scope *postgres.Scope) error {
		var err error
		unmatched, err = scope.Transactions.ListUnmatched(ctx, accountRef, reconcileBatchSize)
		return err
	})
	if err != nil {
		return summary, fmt.Errorf("failed to list unmatched transactions: %w", err)
	}

	for _, txn := range unmatched {
		var event *audit.Event
		err := c.store.WithTenant(ctx, tenantID, func(ctx context.Context, scope *postgres.Scope) error {
			var err error
			if txn.IsReversal() {
				event, err = c.applyReversal(ctx, scope, txn, &summary)
			} else {
				event, err = c.applyMatch(ctx, scope, txn, &summary)
			}
			return err
		})
		if err != nil {
			return summary, err
		}
		c.recordEvent(ctx, event)
	}

	return summary, nil
}

// applyMatch evaluates one ordinary transaction and commits the outcome
func (c *Committer) applyMatch(ctx context.Context, scope *postgres.Scope, txn *bank.Transaction, summary *Summary) (*audit.Event, error) {
	entries, err := scope.Ledger.FindOpen(ctx, ledger.OpenFilter{})
	if err != nil {
		return nil, err
	}

	outcome := c.engine.Evaluate(txn, entries)
	switch outcome.Decision {
	case DecisionMatched:
		match := reconciliation.NewMatch(scope.TenantID, txn.ID, outcome.EntryIDs, outcome.Confidence, outcome.Rule)
		statuses := make(map[uuid.UUID]ledger.Status, len(outcome.EntryIDs))
		for _, id := range outcome.EntryIDs {
			statuses[id] = settledStatus(txn)
		}
		if err := scope.RecordMatch(ctx, match, statuses, bank.MatchStatusMatched); err != nil {
			return nil, err
		}
		summary.Matched++
		summary.Committed = append(summary.Committed, match)
		return audit.NewEvent(scope.TenantID, engineActor, audit.ActionMatchCommitted, match.ID, map[string]interface{}{
			"bank_transaction_id": txn.ID.String(),
			"rule":                string(outcome.Rule),
			"confidence":          outcome.Confidence,
			"entries":             len(outcome.EntryIDs),
		}), nil

	case DecisionAmbiguous:
		if err := scope.Transactions.MarkAmbiguous(ctx, txn.ID, outcome.CandidateIDs); err != nil {
			return nil, err
		}
		summary.Ambiguous++
		return audit.NewEvent(scope.TenantID, engineActor, audit.ActionMarkedAmbiguous, txn.ID, map[string]interface{}{
			"rule":       string(outcome.Rule),
			"candidates": len(outcome.CandidateIDs),
		}), nil

	default:
		summary.Unmatched++
		return nil, nil
	}
}

// applyReversal voids a previously matched transaction: the entries revert
// to open, the original transaction is ignored, and a new reversal match on
// the reversing transaction supersedes the old one. The old match record is
// retained.
func (c *Committer) applyReversal(ctx context.Context, scope *postgres.Scope, txn *bank.Transaction, summary *Summary) (*audit.Event, error) {
	original, err := scope.Transactions.GetByExternalID(ctx, txn.BankAccountRef, *txn.ReversesExternalID)
	if err != nil {
		return nil, err
	}
	if original == nil {
		// The reversed line has not been ingested yet; leave the reversal
		// unmatched and let a later pass pick it up.
		c.logger.Warn("Reversal references unknown external id",
			"tenant_id", scope.TenantID.String(),
			"external_id", *txn.ReversesExternalID)
		summary.Unmatched++
		return nil, nil
	}

	prior, err := scope.Matches.GetCurrentByBankTransactionID(ctx, original.ID)
	if err != nil {
		return nil, err
	}
	if prior == nil {
		// Nothing was ever matched; the two lines simply cancel out.
		if err := scope.Transactions.SetMatchStatus(ctx, original.ID, bank.MatchStatusIgnored, nil); err != nil {
			return nil, err
		}
		if err := scope.Transactions.SetMatchStatus(ctx, txn.ID, bank.MatchStatusIgnored, nil); err != nil {
			return nil, err
		}
		summary.Reversed++
		return audit.NewEvent(scope.TenantID, engineActor, audit.ActionMatchReversed, txn.ID, map[string]interface{}{
			"original_transaction_id": original.ID.String(),
			"prior_match":             false,
		}), nil
	}

	match := reconciliation.NewMatch(scope.TenantID, txn.ID, prior.EntryIDs, 1.0, reconciliation.RuleReversal)
	match.Supersedes = &prior.ID

	statuses := make(map[uuid.UUID]ledger.Status, len(prior.EntryIDs))
	for _, id := range prior.EntryIDs {
		statuses[id] = ledger.StatusOpen
	}
	if err := scope.RecordMatch(ctx, match, statuses, bank.MatchStatusMatched); err != nil {
		return nil, err
	}
	if err := scope.Transactions.SetMatchStatus(ctx, original.ID, bank.MatchStatusIgnored, nil); err != nil {
		return nil, err
	}

	summary.Reversed++
	summary.Committed = append(summary.Committed, match)
	return audit.NewEvent(scope.TenantID, engineActor, audit.ActionMatchReversed, match.ID, map[string]interface{}{
		"original_transaction_id": original.ID.String(),
		"superseded_match_id":     prior.ID.String(),
	}), nil
}

// settledStatus decides whether a committed match pays the entry off or
// just marks it. Paid requires the bank to have confirmed the movement.
func settledStatus(txn *bank.Transaction) ledger.Status {
	if txn.Settled {
		return ledger.StatusPaid
	}
	return ledger.StatusMatched
}

func (c *Committer) recordEvent(ctx context.Context, event *audit.Event) {
	if event == nil {
		return
	}
	if err := c.audit.Record(ctx, event); err != nil {
		c.logger.Warn("Failed to record audit event", "action", event.Action, "error", err)
	}
}
