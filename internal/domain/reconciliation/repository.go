package reconciliation

import (
	"context"

	"github.com/google/uuid"
)

// Repository manages match record persistence. Append-only: there is no
// update or delete; superseding records replace older ones logically.
// Tenant-scoped.
type Repository interface {
	Create(ctx context.Context, match *Match) error
	GetByID(ctx context.Context, id uuid.UUID) (*Match, error)

	// GetCurrentByBankTransactionID returns the newest match for the
	// transaction that no later match supersedes, or nil when none exists.
	GetCurrentByBankTransactionID(ctx context.Context, bankTransactionID uuid.UUID) (*Match, error)
}

// ErrMatchNotFound indicates a missing match record
type ErrMatchNotFound struct {
	ID uuid.UUID
}

func (e ErrMatchNotFound) Error() string {
	return "reconciliation match not found: " + e.ID.String()
}

// Is implements the errors.Is interface for ErrMatchNotFound
func (e ErrMatchNotFound) Is(target error) bool {
	t, ok := target.(ErrMatchNotFound)
	if !ok {
		return false
	}
	if t.ID == uuid.Nil {
		return true
	}
	return e.ID == t.ID
}
