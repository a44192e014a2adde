// Package dominio pushes reconciled ledger state to the DOMINIO accounting
// system. DOMINIO is eventually consistent and owned by another team: pushes
// are idempotent upserts keyed by (tenant, ledger entry), transient failures
// are retried by the job queue, and a reported conflict is surfaced for
// manual resolution instead of overwriting either side.
package dominio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bpofinanceiro/reconciliation-service/internal/config"
)

// SyncConflictError indicates DOMINIO holds a conflicting state for the
// entry. Never retried: retrying cannot resolve a divergence, an operator
// has to.
type SyncConflictError struct {
	TenantID      uuid.UUID
	LedgerEntryID uuid.UUID
	Detail        string
}

func (e SyncConflictError) Error() string {
	return fmt.Sprintf("dominio sync conflict for entry %s (tenant %s): %s",
		e.LedgerEntryID, e.TenantID, e.Detail)
}

// Retryable marks sync conflicts as permanent for the job queue
func (e SyncConflictError) Retryable() bool { return false }

// EntryState is the reconciled state pushed for one ledger entry
type EntryState struct {
	LedgerEntryID     uuid.UUID  `json:"ledger_entry_id"`
	Status            string     `json:"status"`
	MatchID           *uuid.UUID `json:"match_id,omitempty"`
	BankTransactionID *uuid.UUID `json:"bank_transaction_id,omitempty"`
	Amount            string     `json:"amount"`
	Currency          string     `json:"currency"`
	ReconciledAt      time.Time  `json:"reconciled_at"`
}

// Client talks to the DOMINIO API
type Client interface {
	UpsertEntryState(ctx context.Context, tenantID uuid.UUID, state *EntryState) error
}

type httpClient struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a DOMINIO API client from configuration
func NewClient(logger *slog.Logger, cfg config.DominioConfig) Client {
	return &httpClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}
}

// UpsertEntryState pushes the entry's reconciled state. The endpoint is an
// idempotent upsert keyed by (tenant, entry): repeating a push after a
// half-applied failure is safe. A 409 from DOMINIO is a conflict, not a
// transport problem.
func (c *httpClient) UpsertEntryState(ctx context.Context, tenantID uuid.UUID, state *EntryState) error {
	endpoint := fmt.Sprintf("%s/api/v1/tenants/%s/ledger-entries/%s",
		c.baseURL, tenantID, state.LedgerEntryID)

	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal dominio entry state: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build dominio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("dominio unreachable: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		c.logger.Debug("Pushed entry state to dominio",
			"tenant_id", tenantID.String(),
			"ledger_entry_id", state.LedgerEntryID.String(),
			"status", state.Status)
		return nil

	case resp.StatusCode == http.StatusConflict:
		return SyncConflictError{
			TenantID:      tenantID,
			LedgerEntryID: state.LedgerEntryID,
			Detail:        strings.TrimSpace(string(respBody)),
		}

	default:
		return fmt.Errorf("dominio returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
}
