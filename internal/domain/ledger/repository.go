package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// OpenFilter narrows the open-entry query. A nil CounterpartyID means all
// counterparties; zero From/To means no date bound.
type OpenFilter struct {
	CounterpartyID *uuid.UUID
	From           time.Time
	To             time.Time
}

// Repository manages ledger entry persistence. Implementations are always
// tenant-scoped: every query is bound to the scope's tenant and results are
// guarded against cross-tenant rows.
type Repository interface {
	// FindOpen returns matchable entries ordered by due date ascending,
	// ties broken by creation order.
	FindOpen(ctx context.Context, filter OpenFilter) ([]*Entry, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)

	// SetStatus moves an entry to the given status and match reference.
	// Passing a nil matchID clears the reference (reversal path).
	SetStatus(ctx context.Context, id uuid.UUID, status Status, matchID *uuid.UUID) error
}

// ErrEntryNotFound indicates a missing ledger entry
type ErrEntryNotFound struct {
	ID uuid.UUID
}

func (e ErrEntryNotFound) Error() string {
	return "ledger entry not found: " + e.ID.String()
}

// Is implements the errors.Is interface for ErrEntryNotFound
func (e ErrEntryNotFound) Is(target error) bool {
	t, ok := target.(ErrEntryNotFound)
	if !ok {
		return false
	}
	if t.ID == uuid.Nil {
		return true
	}
	return e.ID == t.ID
}
