package reconciliation

import (
	"time"

	"github.com/google/uuid"
)

// Rule names the matching tier (or manual action) that produced a match
type Rule string

const (
	RuleExact     Rule = "EXACT"
	RuleFuzzy     Rule = "FUZZY"
	RuleHeuristic Rule = "HEURISTIC"
	RuleManual    Rule = "MANUAL"
	RuleReversal  Rule = "REVERSAL"
)

// Match links one bank transaction to one or more ledger entries. Match
// records are append-only: corrections and reversals create a new match with
// a Supersedes back-reference, the old record is retained for audit.
type Match struct {
	ID                uuid.UUID   `json:"id"`
	TenantID          uuid.UUID   `json:"tenant_id"`
	BankTransactionID uuid.UUID   `json:"bank_transaction_id"`
	EntryIDs          []uuid.UUID `json:"entry_ids"`
	Confidence        float64     `json:"confidence"`
	Rule              Rule        `json:"rule"`
	Supersedes        *uuid.UUID  `json:"supersedes,omitempty"`
	Reviewer          *string     `json:"reviewer,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}

// NewMatch builds a match record for the given transaction and entry set
func NewMatch(tenantID, bankTransactionID uuid.UUID, entryIDs []uuid.UUID, confidence float64, rule Rule) *Match {
	return &Match{
		ID:                uuid.New(),
		TenantID:          tenantID,
		BankTransactionID: bankTransactionID,
		EntryIDs:          entryIDs,
		Confidence:        confidence,
		Rule:              rule,
		CreatedAt:         time.Now().UTC(),
	}
}
