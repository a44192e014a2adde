package handler

import (
	"time"

	"github.com/google/uuid"

	"github.com/bpofinanceiro/reconciliation-service/internal/domain/bank"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/reconciliation"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/syncjob"
)

// ConfirmMatchRequest is a reviewer's decision for one ambiguous transaction
type ConfirmMatchRequest struct {
	BankTransactionID uuid.UUID   `json:"bank_transaction_id" binding:"required"`
	EntryIDs          []uuid.UUID `json:"entry_ids" binding:"required,min=1"`
	Reviewer          string      `json:"reviewer" binding:"required"`
}

// AmbiguousTransactionResponse is one review-queue item
type AmbiguousTransactionResponse struct {
	ID             uuid.UUID   `json:"id"`
	BankAccountRef string      `json:"bank_account_ref"`
	Amount         string      `json:"amount"`
	Currency       string      `json:"currency"`
	ValueDate      time.Time   `json:"value_date"`
	Description    string      `json:"description"`
	ExternalID     string      `json:"external_id"`
	CandidateIDs   []uuid.UUID `json:"candidate_entry_ids"`
}

func toAmbiguousResponse(item *bank.AmbiguousTransaction) *AmbiguousTransactionResponse {
	return &AmbiguousTransactionResponse{
		ID:             item.Transaction.ID,
		BankAccountRef: item.Transaction.BankAccountRef,
		Amount:         item.Transaction.Amount.String(),
		Currency:       item.Transaction.Currency,
		ValueDate:      item.Transaction.ValueDate,
		Description:    item.Transaction.Description,
		ExternalID:     item.Transaction.ExternalID,
		CandidateIDs:   item.CandidateIDs,
	}
}

// MatchResponse is a committed match record
type MatchResponse struct {
	ID                uuid.UUID   `json:"id"`
	BankTransactionID uuid.UUID   `json:"bank_transaction_id"`
	EntryIDs          []uuid.UUID `json:"entry_ids"`
	Confidence        float64     `json:"confidence"`
	Rule              string      `json:"rule"`
	Supersedes        *uuid.UUID  `json:"supersedes,omitempty"`
	Reviewer          *string     `json:"reviewer,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
}

func toMatchResponse(match *reconciliation.Match) *MatchResponse {
	return &MatchResponse{
		ID:                match.ID,
		BankTransactionID: match.BankTransactionID,
		EntryIDs:          match.EntryIDs,
		Confidence:        match.Confidence,
		Rule:              string(match.Rule),
		Supersedes:        match.Supersedes,
		Reviewer:          match.Reviewer,
		CreatedAt:         match.CreatedAt,
	}
}

// JobResponse is one queued or parked job
type JobResponse struct {
	ID          uuid.UUID `json:"id"`
	Lane        string    `json:"lane"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Status      string    `json:"status"`
	Attempts    int       `json:"attempts"`
	LastError   string    `json:"last_error,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	NextRetryAt time.Time `json:"next_retry_at"`
}

func toJobResponse(job *syncjob.Job) *JobResponse {
	return &JobResponse{
		ID:          job.ID,
		Lane:        string(job.Lane),
		TenantID:    job.TenantID,
		Status:      string(job.Status),
		Attempts:    job.Attempts,
		LastError:   job.LastError,
		EnqueuedAt:  job.EnqueuedAt,
		UpdatedAt:   job.UpdatedAt,
		NextRetryAt: job.NextRetryAt,
	}
}
