package bank

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AmbiguousTransaction pairs a transaction routed to manual review with the
// candidate ledger entries the engine could not decide between.
type AmbiguousTransaction struct {
	Transaction *Transaction
	CandidateIDs []uuid.UUID
}

// TransactionRepository manages bank transaction persistence. Tenant-scoped.
type TransactionRepository interface {
	// Append inserts normalized transactions and returns how many were new.
	// Idempotent on (tenant, bank account ref, external id): re-ingesting the
	// same external id is a no-op, not an error.
	Append(ctx context.Context, txns []*Transaction) (int, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetByExternalID(ctx context.Context, accountRef, externalID string) (*Transaction, error)

	// ListUnmatched returns unmatched transactions for an account in
	// ingestion order.
	ListUnmatched(ctx context.Context, accountRef string, limit int) ([]*Transaction, error)

	// SetMatchStatus moves a transaction to the given match status and
	// reference. Only the reconciliation engine calls this.
	SetMatchStatus(ctx context.Context, id uuid.UUID, status MatchStatus, matchID *uuid.UUID) error

	// MarkAmbiguous records the candidate set and routes the transaction to
	// the operator review queue.
	MarkAmbiguous(ctx context.Context, id uuid.UUID, candidateIDs []uuid.UUID) error

	// ListAmbiguous returns transactions awaiting manual confirmation with
	// their recorded candidates.
	ListAmbiguous(ctx context.Context, limit, offset int) ([]*AmbiguousTransaction, error)

	// CountByMatchStatus tallies the tenant's transactions ingested inside
	// [from, to) per match status. Feeds the periodic reconciliation report.
	CountByMatchStatus(ctx context.Context, from, to time.Time) (map[MatchStatus]int64, error)
}

// FeedRepository manages bank feed registrations. Listing due feeds is the
// one control-plane query that spans tenants; each returned feed carries its
// tenant id and all follow-up work is tenant-scoped.
type FeedRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Feed, error)
	ListDue(ctx context.Context, now time.Time) ([]*Feed, error)
	MarkSynced(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ErrTransactionNotFound indicates a missing bank transaction
type ErrTransactionNotFound struct {
	ID uuid.UUID
}

func (e ErrTransactionNotFound) Error() string {
	return "bank transaction not found: " + e.ID.String()
}

// Is implements the errors.Is interface for ErrTransactionNotFound
func (e ErrTransactionNotFound) Is(target error) bool {
	t, ok := target.(ErrTransactionNotFound)
	if !ok {
		return false
	}
	if t.ID == uuid.Nil {
		return true
	}
	return e.ID == t.ID
}

// ErrFeedNotFound indicates a missing feed registration
type ErrFeedNotFound struct {
	ID uuid.UUID
}

func (e ErrFeedNotFound) Error() string {
	return "bank feed not found: " + e.ID.String()
}
