package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/bpofinanceiro/reconciliation-service/internal/domain/ledger"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/tenant"
	"github.com/bpofinanceiro/reconciliation-service/internal/platform/persistence"
)

// LedgerRepository implements the ledger.Repository interface for PostgreSQL
type LedgerRepository struct {
	querier  persistence.Querier // Can be *pgxpool.Pool or pgx.Tx
	tenantID uuid.UUID
	logger   *slog.Logger
}

// NewLedgerRepository creates a pool-bound, tenant-scoped ledger repository.
// Used for reads outside a tenant transaction (operator API listings).
func NewLedgerRepository(logger *slog.Logger, db *persistence.PostgresDB, tenantID uuid.UUID) ledger.Repository {
	return &LedgerRepository{
		querier:  db.Pool(),
		tenantID: tenantID,
		logger:   logger,
	}
}

// newLedgerRepository binds the repository to an open transaction
func newLedgerRepository(logger *slog.Logger, tx pgx.Tx, tenantID uuid.UUID) ledger.Repository {
	return &LedgerRepository{
		querier:  tx,
		tenantID: tenantID,
		logger:   logger,
	}
}

const ledgerColumns = `id, tenant_id, counterparty_id, counterparty_name, kind, amount::text, currency, due_date, status, match_id, seq, created_at, updated_at`

func (r *LedgerRepository) scanEntry(row pgx.Row) (*ledger.Entry, error) {
	var e ledger.Entry
	var amount string
	err := row.Scan(
		&e.ID,
		&e.TenantID,
		&e.CounterpartyID,
		&e.CounterpartyName,
		&e.Kind,
		&amount,
		&e.Currency,
		&e.DueDate,
		&e.Status,
		&e.MatchID,
		&e.Seq,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ledger entry amount %q: %w", amount, err)
	}

	if err := tenant.Guard(r.tenantID, e.TenantID, "ledger entry"); err != nil {
		return nil, err
	}

	return &e, nil
}

// FindOpen returns matchable entries ordered by due date ascending, ties
// broken by creation order
func (r *LedgerRepository) FindOpen(ctx context.Context, filter ledger.OpenFilter) ([]*ledger.Entry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE tenant_id = $1 AND status IN ('OPEN', 'OVERDUE')
	`
	args := []interface{}{r.tenantID}

	if filter.CounterpartyID != nil {
		args = append(args, *filter.CounterpartyID)
		query += " AND counterparty_id = $" + strconv.Itoa(len(args))
	}
	if !filter.From.IsZero() {
		args = append(args, filter.From)
		query += " AND due_date >= $" + strconv.Itoa(len(args))
	}
	if !filter.To.IsZero() {
		args = append(args, filter.To)
		query += " AND due_date <= $" + strconv.Itoa(len(args))
	}

	query += " ORDER BY due_date ASC, seq ASC"

	rows, err := r.querier.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query open ledger entries", "tenant_id", r.tenantID.String(), "error", err)
		return nil, fmt.Errorf("failed to query open ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []*ledger.Entry
	for rows.Next() {
		entry, err := r.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read open ledger entries: %w", err)
	}

	return entries, nil
}

// GetByID retrieves a ledger entry by its ID
func (r *LedgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	query := `
		SELECT ` + ledgerColumns + `
		FROM ledger_entries
		WHERE id = $1 AND tenant_id = $2
	`

	entry, err := r.scanEntry(r.querier.QueryRow(ctx, query, id, r.tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ledger.ErrEntryNotFound{ID: id}
		}
		r.logger.Error("Failed to get ledger entry", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get ledger entry: %w", err)
	}

	return entry, nil
}

// SetStatus moves an entry to the given status and match reference
func (r *LedgerRepository) SetStatus(ctx context.Context, id uuid.UUID, status ledger.Status, matchID *uuid.UUID) error {
	query := `
		UPDATE ledger_entries
		SET status = $1, match_id = $2, updated_at = NOW()
		WHERE id = $3 AND tenant_id = $4
	`

	result, err := r.querier.Exec(ctx, query, status, matchID, id, r.tenantID)
	if err != nil {
		r.logger.Error("Failed to update ledger entry status", "id", id.String(), "error", err)
		return fmt.Errorf("failed to update ledger entry status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ledger.ErrEntryNotFound{ID: id}
	}

	return nil
}
