// Package postgres provides PostgreSQL implementations of the domain
// repositories. Every financial repository is tenant-scoped: queries are
// bound to one tenant id and each hydrated row is re-checked against the
// scope, so a cross-tenant read aborts the enclosing transaction instead of
// leaking data.
package postgres

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bpofinanceiro/reconciliation-service/internal/domain/bank"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/ledger"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/reconciliation"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/tenant"
	"github.com/bpofinanceiro/reconciliation-service/internal/platform/persistence"
)

// Store is the tenant-scoped transactional entry point over PostgreSQL.
// All financial reads and writes go through WithTenant.
type Store struct {
	db     *persistence.PostgresDB
	logger *slog.Logger
}

// NewStore creates a tenant-scoped store over the given connection pool
func NewStore(logger *slog.Logger, db *persistence.PostgresDB) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// Scope is a tenant-bound handle valid for the duration of one transaction.
// All repositories share the transaction, so multi-repository operations
// commit or roll back as a unit.
type Scope struct {
	TenantID     uuid.UUID
	Ledger       ledger.Repository
	Transactions bank.TransactionRepository
	Matches      reconciliation.Repository
}

// WithTenant runs fn inside a single transaction bound to exactly one
// tenant. The scope is released on every exit path; a CrossTenantError (or
// any other error) from fn rolls the transaction back.
func (s *Store) WithTenant(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context, scope *Scope) error) error {
	if tenantID == uuid.Nil {
		return tenant.ErrContextMissing
	}

	return s.db.ExecuteTx(ctx, func(tx pgx.Tx) error {
		scope := &Scope{
			TenantID:     tenantID,
			Ledger:       newLedgerRepository(s.logger, tx, tenantID),
			Transactions: newBankTransactionRepository(s.logger, tx, tenantID),
			Matches:      newMatchRepository(s.logger, tx, tenantID),
		}
		return fn(tenant.WithID(ctx, tenantID), scope)
	})
}

// RecordMatch persists a match record together with its entry status
// transitions and the bank transaction's match status, atomically: either
// everything lands or nothing does. Entries moved back to OPEN have their
// match reference cleared; all others point at the new match.
func (sc *Scope) RecordMatch(ctx context.Context, match *reconciliation.Match, newStatuses map[uuid.UUID]ledger.Status, txnStatus bank.MatchStatus) error {
	if err := sc.Matches.Create(ctx, match); err != nil {
		return err
	}

	for _, entryID := range match.EntryIDs {
		status, ok := newStatuses[entryID]
		if !ok {
			status = ledger.StatusMatched
		}
		ref := &match.ID
		if status == ledger.StatusOpen {
			ref = nil
		}
		if err := sc.Ledger.SetStatus(ctx, entryID, status, ref); err != nil {
			return err
		}
	}

	return sc.Transactions.SetMatchStatus(ctx, match.BankTransactionID, txnStatus, &match.ID)
}
