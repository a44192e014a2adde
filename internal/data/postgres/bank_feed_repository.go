package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bpofinanceiro/reconciliation-service/internal/domain/bank"
	"github.com/bpofinanceiro/reconciliation-service/internal/platform/persistence"
)

// BankFeedRepository implements bank.FeedRepository for PostgreSQL. Feed
// registrations are scheduler metadata, so this repository is not bound to a
// single tenant; every row still carries its tenant id.
type BankFeedRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewBankFeedRepository creates a pool-bound bank feed repository
func NewBankFeedRepository(logger *slog.Logger, db *persistence.PostgresDB) bank.FeedRepository {
	return &BankFeedRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

const feedColumns = `id, tenant_id, bank, account_ref, poll_interval_seconds, last_synced_at, active, created_at`

func scanFeed(row pgx.Row) (*bank.Feed, error) {
	var f bank.Feed
	var bankCode string
	var pollSeconds int64
	err := row.Scan(
		&f.ID,
		&f.TenantID,
		&bankCode,
		&f.AccountRef,
		&pollSeconds,
		&f.LastSyncedAt,
		&f.Active,
		&f.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	f.Bank, err = bank.ParseBank(bankCode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed bank code: %w", err)
	}
	f.PollInterval = time.Duration(pollSeconds) * time.Second

	return &f, nil
}

// GetByID retrieves a feed registration by its ID
func (r *BankFeedRepository) GetByID(ctx context.Context, id uuid.UUID) (*bank.Feed, error) {
	query := `
		SELECT ` + feedColumns + `
		FROM bank_feeds
		WHERE id = $1
	`

	feed, err := scanFeed(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, bank.ErrFeedNotFound{ID: id}
		}
		r.logger.Error("Failed to get bank feed", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get bank feed: %w", err)
	}

	return feed, nil
}

// ListDue returns active feeds whose poll interval has elapsed since the
// last sync. Feeds that never synced are always due.
func (r *BankFeedRepository) ListDue(ctx context.Context, now time.Time) ([]*bank.Feed, error) {
	query := `
		SELECT ` + feedColumns + `
		FROM bank_feeds
		WHERE active
		  AND (last_synced_at IS NULL
		       OR last_synced_at + poll_interval_seconds * INTERVAL '1 second' <= $1)
		ORDER BY tenant_id, account_ref
	`

	rows, err := r.querier.Query(ctx, query, now)
	if err != nil {
		r.logger.Error("Failed to list due bank feeds", "error", err)
		return nil, fmt.Errorf("failed to list due bank feeds: %w", err)
	}
	defer rows.Close()

	var feeds []*bank.Feed
	for rows.Next() {
		feed, err := scanFeed(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read bank feed: %w", err)
		}
		feeds = append(feeds, feed)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bank feeds: %w", err)
	}

	return feeds, nil
}

// MarkSynced records a completed sync for the feed
func (r *BankFeedRepository) MarkSynced(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE bank_feeds
		SET last_synced_at = $2
		WHERE id = $1
	`

	result, err := r.querier.Exec(ctx, query, id, at)
	if err != nil {
		r.logger.Error("Failed to mark bank feed synced", "id", id.String(), "error", err)
		return fmt.Errorf("failed to mark bank feed synced: %w", err)
	}
	if result.RowsAffected() == 0 {
		return bank.ErrFeedNotFound{ID: id}
	}

	return nil
}
