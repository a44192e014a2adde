package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bpofinanceiro/reconciliation-service/internal/domain/reconciliation"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/tenant"
	"github.com/bpofinanceiro/reconciliation-service/internal/platform/persistence"
)

// MatchRepository implements reconciliation.Repository for PostgreSQL.
// The table is append-only; corrections supersede, they never overwrite.
type MatchRepository struct {
	querier  persistence.Querier
	tenantID uuid.UUID
	logger   *slog.Logger
}

// NewMatchRepository creates a pool-bound, tenant-scoped match repository
func NewMatchRepository(logger *slog.Logger, db *persistence.PostgresDB, tenantID uuid.UUID) reconciliation.Repository {
	return &MatchRepository{
		querier:  db.Pool(),
		tenantID: tenantID,
		logger:   logger,
	}
}

// newMatchRepository binds the repository to an open transaction
func newMatchRepository(logger *slog.Logger, tx pgx.Tx, tenantID uuid.UUID) reconciliation.Repository {
	return &MatchRepository{
		querier:  tx,
		tenantID: tenantID,
		logger:   logger,
	}
}

// Create stores a match record and its entry links
func (r *MatchRepository) Create(ctx context.Context, match *reconciliation.Match) error {
	if err := tenant.Guard(r.tenantID, match.TenantID, "reconciliation match"); err != nil {
		return err
	}

	query := `
		INSERT INTO reconciliation_matches
			(id, tenant_id, bank_transaction_id, confidence, rule, supersedes, reviewer, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.querier.Exec(ctx, query,
		match.ID,
		match.TenantID,
		match.BankTransactionID,
		match.Confidence,
		match.Rule,
		match.Supersedes,
		match.Reviewer,
		match.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create reconciliation match", "id", match.ID.String(), "error", err)
		return fmt.Errorf("failed to create reconciliation match: %w", err)
	}

	entryQuery := `
		INSERT INTO reconciliation_match_entries (match_id, entry_id, tenant_id)
		VALUES ($1, $2, $3)
	`
	for _, entryID := range match.EntryIDs {
		if _, err := r.querier.Exec(ctx, entryQuery, match.ID, entryID, match.TenantID); err != nil {
			r.logger.Error("Failed to link match entry", "match_id", match.ID.String(), "entry_id", entryID.String(), "error", err)
			return fmt.Errorf("failed to link match entry: %w", err)
		}
	}

	return nil
}

func (r *MatchRepository) scanMatch(ctx context.Context, row pgx.Row) (*reconciliation.Match, error) {
	var m reconciliation.Match
	err := row.Scan(
		&m.ID,
		&m.TenantID,
		&m.BankTransactionID,
		&m.Confidence,
		&m.Rule,
		&m.Supersedes,
		&m.Reviewer,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := tenant.Guard(r.tenantID, m.TenantID, "reconciliation match"); err != nil {
		return nil, err
	}

	entryQuery := `
		SELECT entry_id
		FROM reconciliation_match_entries
		WHERE match_id = $1 AND tenant_id = $2
		ORDER BY entry_id
	`
	rows, err := r.querier.Query(ctx, entryQuery, m.ID, r.tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load match entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var entryID uuid.UUID
		if err := rows.Scan(&entryID); err != nil {
			return nil, fmt.Errorf("failed to read match entry: %w", err)
		}
		m.EntryIDs = append(m.EntryIDs, entryID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read match entries: %w", err)
	}

	return &m, nil
}

const matchColumns = `id, tenant_id, bank_transaction_id, confidence, rule, supersedes, reviewer, created_at`

// GetByID retrieves a match record by its ID
func (r *MatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*reconciliation.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM reconciliation_matches
		WHERE id = $1 AND tenant_id = $2
	`

	match, err := r.scanMatch(ctx, r.querier.QueryRow(ctx, query, id, r.tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, reconciliation.ErrMatchNotFound{ID: id}
		}
		r.logger.Error("Failed to get reconciliation match", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get reconciliation match: %w", err)
	}

	return match, nil
}

// GetCurrentByBankTransactionID returns the newest non-superseded match for
// the transaction, or nil when none exists
func (r *MatchRepository) GetCurrentByBankTransactionID(ctx context.Context, bankTransactionID uuid.UUID) (*reconciliation.Match, error) {
	query := `
		SELECT ` + matchColumns + `
		FROM reconciliation_matches m
		WHERE m.bank_transaction_id = $1 AND m.tenant_id = $2
		  AND NOT EXISTS (
			SELECT 1 FROM reconciliation_matches s
			WHERE s.supersedes = m.id AND s.tenant_id = m.tenant_id
		  )
		ORDER BY m.created_at DESC
		LIMIT 1
	`

	match, err := r.scanMatch(ctx, r.querier.QueryRow(ctx, query, bankTransactionID, r.tenantID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		r.logger.Error("Failed to get current match for bank transaction", "bank_transaction_id", bankTransactionID.String(), "error", err)
		return nil, fmt.Errorf("failed to get current match for bank transaction: %w", err)
	}

	return match, nil
}
