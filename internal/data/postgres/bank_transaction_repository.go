package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/bpofinanceiro/reconciliation-service/internal/domain/bank"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/tenant"
	"github.com/bpofinanceiro/reconciliation-service/internal/platform/persistence"
)

// BankTransactionRepository implements bank.TransactionRepository for PostgreSQL
type BankTransactionRepository struct {
	querier  persistence.Querier
	tenantID uuid.UUID
	logger   *slog.Logger
}

// NewBankTransactionRepository creates a pool-bound, tenant-scoped repository
func NewBankTransactionRepository(logger *slog.Logger, db *persistence.PostgresDB, tenantID uuid.UUID) bank.TransactionRepository {
	return &BankTransactionRepository{
		querier:  db.Pool(),
		tenantID: tenantID,
		logger:   logger,
	}
}

// newBankTransactionRepository binds the repository to an open transaction
func newBankTransactionRepository(logger *slog.Logger, tx pgx.Tx, tenantID uuid.UUID) bank.TransactionRepository {
	return &BankTransactionRepository{
		querier:  tx,
		tenantID: tenantID,
		logger:   logger,
	}
}

const bankTxnColumns = `id, tenant_id, bank_account_ref, amount::text, currency, value_date, description, external_id, reverses_external_id, settled, match_status, match_id, created_at`

func (r *BankTransactionRepository) scanTransaction(row pgx.Row) (*bank.Transaction, error) {
	var t bank.Transaction
	var amount string
	err := row.Scan(
		&t.ID,
		&t.TenantID,
		&t.BankAccountRef,
		&amount,
		&t.Currency,
		&t.ValueDate,
		&t.Description,
		&t.ExternalID,
		&t.ReversesExternalID,
		&t.Settled,
		&t.MatchStatus,
		&t.MatchID,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bank transaction amount %q: %w", amount, err)
	}

	if err := tenant.Guard(r.tenantID, t.TenantID, "bank transaction"); err != nil {
		return nil, err
	}

	return &t, nil
}

// Append inserts normalized transactions, skipping any external id already
// ingested for the same account. Returns the number of new rows.
func (r *BankTransactionRepository) Append(ctx context.Context, txns []*bank.Transaction) (int, error) {
	query := `
		INSERT INTO bank_transactions
			(id, tenant_id, bank_account_ref, amount, currency, value_date, description, external_id, reverses_external_id, settled, match_status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, NOW())
		ON CONFLICT (tenant_id, bank_account_ref, external_id) DO NOTHING
	`

	inserted := 0
	for _, txn := range txns {
		if err := tenant.Guard(r.tenantID, txn.TenantID, "bank transaction"); err != nil {
			return inserted, err
		}

		result, err := r.querier.Exec(ctx, query,
			txn.ID,
			txn.TenantID,
			txn.BankAccountRef,
			txn.Amount.String(),
			txn.Currency,
			txn.ValueDate,
			txn.Description,
			txn.ExternalID,
			txn.ReversesExternalID,
			txn.Settled,
			bank.MatchStatusUnmatched,
		)
		if err != nil {
			r.logger.Error("Failed to append bank transaction", "external_id", txn.ExternalID, "error", err)
			return inserted, fmt.Errorf("failed to append bank transaction %s: %w", txn.ExternalID, err)
		}
		inserted += int(result.RowsAffected())
	}

	return inserted, nil
}

// GetByID retrieves a bank transaction by its ID
func (r *BankTransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*bank.Transaction, error) {
	query := `
		SELECT ` + bankTxnColumns + `
		FROM bank_transactions
		WHERE id = $1 AND tenant_id = $2
	`

	txn, err := r.scanTransaction(r.querier.QueryRow(ctx, query, id, r.tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bank.ErrTransactionNotFound{ID: id}
		}
		r.logger.Error("Failed to get bank transaction", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get bank transaction: %w", err)
	}

	return txn, nil
}

// GetByExternalID retrieves a transaction by its bank-assigned id.
// Returns nil, nil when nothing was ingested under that id.
func (r *BankTransactionRepository) GetByExternalID(ctx context.Context, accountRef, externalID string) (*bank.Transaction, error) {
	query := `
		SELECT ` + bankTxnColumns + `
		FROM bank_transactions
		WHERE tenant_id = $1 AND bank_account_ref = $2 AND external_id = $3
	`

	txn, err := r.scanTransaction(r.querier.QueryRow(ctx, query, r.tenantID, accountRef, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get bank transaction by external id", "external_id", externalID, "error", err)
		return nil, fmt.Errorf("failed to get bank transaction by external id: %w", err)
	}

	return txn, nil
}

// ListUnmatched returns unmatched transactions for an account in ingestion order
func (r *BankTransactionRepository) ListUnmatched(ctx context.Context, accountRef string, limit int) ([]*bank.Transaction, error) {
	query := `
		SELECT ` + bankTxnColumns + `
		FROM bank_transactions
		WHERE tenant_id = $1 AND bank_account_ref = $2 AND match_status = $3
		ORDER BY created_at ASC, id ASC
		LIMIT $4
	`

	rows, err := r.querier.Query(ctx, query, r.tenantID, accountRef, bank.MatchStatusUnmatched, limit)
	if err != nil {
		r.logger.Error("Failed to list unmatched bank transactions", "account_ref", accountRef, "error", err)
		return nil, fmt.Errorf("failed to list unmatched bank transactions: %w", err)
	}
	defer rows.Close()

	var txns []*bank.Transaction
	for rows.Next() {
		txn, err := r.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read unmatched bank transactions: %w", err)
	}

	return txns, nil
}

// SetMatchStatus moves a transaction to the given match status and reference
func (r *BankTransactionRepository) SetMatchStatus(ctx context.Context, id uuid.UUID, status bank.MatchStatus, matchID *uuid.UUID) error {
	query := `
		UPDATE bank_transactions
		SET match_status = $1, match_id = $2
		WHERE id = $3 AND tenant_id = $4
	`

	result, err := r.querier.Exec(ctx, query, status, matchID, id, r.tenantID)
	if err != nil {
		r.logger.Error("Failed to update bank transaction match status", "id", id.String(), "error", err)
		return fmt.Errorf("failed to update bank transaction match status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return bank.ErrTransactionNotFound{ID: id}
	}

	return nil
}

// MarkAmbiguous records the candidate entries and routes the transaction to
// manual review
func (r *BankTransactionRepository) MarkAmbiguous(ctx context.Context, id uuid.UUID, candidateIDs []uuid.UUID) error {
	if err := r.SetMatchStatus(ctx, id, bank.MatchStatusAmbiguous, nil); err != nil {
		return err
	}

	query := `
		INSERT INTO match_candidates (bank_transaction_id, entry_id, tenant_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (bank_transaction_id, entry_id) DO NOTHING
	`
	for _, entryID := range candidateIDs {
		if _, err := r.querier.Exec(ctx, query, id, entryID, r.tenantID); err != nil {
			r.logger.Error("Failed to record match candidate", "bank_transaction_id", id.String(), "entry_id", entryID.String(), "error", err)
			return fmt.Errorf("failed to record match candidate: %w", err)
		}
	}

	return nil
}

// ListAmbiguous returns transactions awaiting manual confirmation with their
// recorded candidate entries
func (r *BankTransactionRepository) ListAmbiguous(ctx context.Context, limit, offset int) ([]*bank.AmbiguousTransaction, error) {
	query := `
		SELECT ` + bankTxnColumns + `
		FROM bank_transactions
		WHERE tenant_id = $1 AND match_status = $2
		ORDER BY created_at ASC, id ASC
		LIMIT $3 OFFSET $4
	`

	rows, err := r.querier.Query(ctx, query, r.tenantID, bank.MatchStatusAmbiguous, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list ambiguous bank transactions", "error", err)
		return nil, fmt.Errorf("failed to list ambiguous bank transactions: %w", err)
	}
	defer rows.Close()

	var result []*bank.AmbiguousTransaction
	for rows.Next() {
		txn, err := r.scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, &bank.AmbiguousTransaction{Transaction: txn})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ambiguous bank transactions: %w", err)
	}

	candidateQuery := `
		SELECT entry_id
		FROM match_candidates
		WHERE bank_transaction_id = $1 AND tenant_id = $2
		ORDER BY entry_id
	`
	for _, item := range result {
		candRows, err := r.querier.Query(ctx, candidateQuery, item.Transaction.ID, r.tenantID)
		if err != nil {
			return nil, fmt.Errorf("failed to load match candidates: %w", err)
		}
		for candRows.Next() {
			var entryID uuid.UUID
			if err := candRows.Scan(&entryID); err != nil {
				candRows.Close()
				return nil, fmt.Errorf("failed to read match candidate: %w", err)
			}
			item.CandidateIDs = append(item.CandidateIDs, entryID)
		}
		candRows.Close()
		if err := candRows.Err(); err != nil {
			return nil, fmt.Errorf("failed to read match candidates: %w", err)
		}
	}

	return result, nil
}

// CountByMatchStatus tallies transactions ingested inside [from, to) per
// match status
func (r *BankTransactionRepository) CountByMatchStatus(ctx context.Context, from, to time.Time) (map[bank.MatchStatus]int64, error) {
	query := `
		SELECT match_status, COUNT(*)
		FROM bank_transactions
		WHERE tenant_id = $1 AND created_at >= $2 AND created_at < $3
		GROUP BY match_status
	`

	rows, err := r.querier.Query(ctx, query, r.tenantID, from, to)
	if err != nil {
		r.logger.Error("Failed to count bank transactions by match status", "error", err)
		return nil, fmt.Errorf("failed to count bank transactions by match status: %w", err)
	}
	defer rows.Close()

	counts := make(map[bank.MatchStatus]int64)
	for rows.Next() {
		var status bank.MatchStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to read match status count: %w", err)
		}
		counts[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read match status counts: %w", err)
	}

	return counts, nil
}
