package bank

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bank identifies a supported statement feed variant
type Bank string

const (
	BancoDoBrasil Bank = "BANCO_DO_BRASIL"
	Itau          Bank = "ITAU"
	Bradesco      Bank = "BRADESCO"
	Santander     Bank = "SANTANDER"
	OpenBanking   Bank = "OPEN_BANKING"
)

// ParseBank converts a stored bank code into a Bank
func ParseBank(s string) (Bank, error) {
	switch Bank(s) {
	case BancoDoBrasil, Itau, Bradesco, Santander, OpenBanking:
		return Bank(s), nil
	}
	return "", fmt.Errorf("unknown bank: %q", s)
}

// MatchStatus defines the reconciliation states of a bank transaction
type MatchStatus string

const (
	MatchStatusUnmatched MatchStatus = "UNMATCHED"
	MatchStatusMatched   MatchStatus = "MATCHED"
	MatchStatusAmbiguous MatchStatus = "AMBIGUOUS"
	MatchStatusIgnored   MatchStatus = "IGNORED"
)

// Transaction is a single normalized line from a bank statement feed.
// Debits are negative, credits positive; value dates are UTC midnight.
// Immutable after ingestion except for match status and match reference,
// which only the reconciliation engine sets.
type Transaction struct {
	ID                 uuid.UUID       `json:"id"`
	TenantID           uuid.UUID       `json:"tenant_id"`
	BankAccountRef     string          `json:"bank_account_ref"`
	Amount             decimal.Decimal `json:"amount"`
	Currency           string          `json:"currency"`
	ValueDate          time.Time       `json:"value_date"`
	Description        string          `json:"description"`
	ExternalID         string          `json:"external_id"` // Bank-assigned, idempotency key for re-ingestion
	ReversesExternalID *string         `json:"reverses_external_id,omitempty"`
	Settled            bool            `json:"settled"` // Confirmed by the bank, not provisional
	MatchStatus        MatchStatus     `json:"match_status"`
	MatchID            *uuid.UUID      `json:"match_id,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// IsReversal reports whether the line voids a previously ingested transaction
func (t *Transaction) IsReversal() bool {
	return t.ReversesExternalID != nil && *t.ReversesExternalID != ""
}

// Feed registers one bank account statement source for a tenant. The
// scheduler enqueues a bank-sync job whenever a feed is due.
type Feed struct {
	ID           uuid.UUID     `json:"id"`
	TenantID     uuid.UUID     `json:"tenant_id"`
	Bank         Bank          `json:"bank"`
	AccountRef   string        `json:"account_ref"`
	PollInterval time.Duration `json:"poll_interval"`
	LastSyncedAt *time.Time    `json:"last_synced_at,omitempty"`
	Active       bool          `json:"active"`
	CreatedAt    time.Time     `json:"created_at"`
}
