package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind distinguishes payable from receivable obligations
type Kind string

const (
	KindPayable    Kind = "PAYABLE"
	KindReceivable Kind = "RECEIVABLE"
)

// Status defines the lifecycle states of a ledger entry
type Status string

const (
	StatusOpen      Status = "OPEN"
	StatusMatched   Status = "MATCHED"
	StatusPaid      Status = "PAID"
	StatusOverdue   Status = "OVERDUE"
	StatusCancelled Status = "CANCELLED"
)

// Entry represents an accounts-payable or accounts-receivable obligation.
// Entries are created by the payable/receivable workflow; once a matching
// bank transaction is found only the reconciliation engine mutates status
// and match reference.
type Entry struct {
	ID               uuid.UUID       `json:"id"`
	TenantID         uuid.UUID       `json:"tenant_id"`
	CounterpartyID   uuid.UUID       `json:"counterparty_id"`
	CounterpartyName string          `json:"counterparty_name"`
	Kind             Kind            `json:"kind"`
	Amount           decimal.Decimal `json:"amount"` // Always positive; sign lives on the bank transaction
	Currency         string          `json:"currency"`
	DueDate          time.Time       `json:"due_date"`
	Status           Status          `json:"status"`
	MatchID          *uuid.UUID      `json:"match_id,omitempty"`
	Seq              int64           `json:"seq"` // Creation order, tie-break for equal due dates
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// Matchable reports whether the entry may still be claimed by a match.
// Overdue entries stay matchable; paid and cancelled ones do not.
func (e *Entry) Matchable() bool {
	return e.Status == StatusOpen || e.Status == StatusOverdue
}
