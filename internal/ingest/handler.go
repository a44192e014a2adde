// Package ingest handles statement line events arriving over Kafka. Banks
// with webhook push deliver lines here instead of waiting for the polling
// scheduler; both paths converge on the same append and reconciliation flow.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bpofinanceiro/reconciliation-service/internal/data/postgres"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/bank"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/syncjob"
	"github.com/bpofinanceiro/reconciliation-service/internal/platform/messaging/producers"
	"github.com/bpofinanceiro/reconciliation-service/internal/queue"
)

// StatementLineEvent is the canonical statement line published on the
// statement topic. Amount is a signed dot-decimal string, value date is an
// ISO date; upstream publishers normalize bank dialects before publishing.
type StatementLineEvent struct {
	TenantID           uuid.UUID `json:"tenant_id"`
	BankAccountRef     string    `json:"bank_account_ref"`
	ExternalID         string    `json:"external_id"`
	Amount             string    `json:"amount"`
	Currency           string    `json:"currency"`
	ValueDate          string    `json:"value_date"`
	Description        string    `json:"description"`
	ReversesExternalID *string   `json:"reverses_external_id,omitempty"`
	Settled            bool      `json:"settled"`
}

// Handler consumes statement line events, appends them and queues a
// reconciliation pass
type Handler struct {
	store    *postgres.Store
	queue    *queue.Queue
	operator *producers.OperatorQueueProducer
	logger   *slog.Logger
}

// NewHandler creates the statement event handler
func NewHandler(logger *slog.Logger, store *postgres.Store, q *queue.Queue, operator *producers.OperatorQueueProducer) *Handler {
	return &Handler{
		store:    store,
		queue:    q,
		operator: operator,
		logger:   logger,
	}
}

// HandleMessage processes one statement line event. An unparseable event is
// routed to the operator queue and committed: redelivering it cannot make it
// parse. Store failures are returned so the offset is not committed and the
// event is redelivered.
func (h *Handler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	txn, err := decodeEvent(value)
	if err != nil {
		h.logger.Warn("Malformed statement event", "key", string(key), "error", err)
		if pubErr := h.operator.PublishMalformed(ctx, string(key), value, err.Error()); pubErr != nil {
			// Could not park it either; leave the offset uncommitted.
			return pubErr
		}
		return nil
	}

	var appended int
	err = h.store.WithTenant(ctx, txn.TenantID, func(ctx context.Context, scope *postgres.Scope) error {
		var err error
		appended, err = scope.Transactions.Append(ctx, []*bank.Transaction{txn})
		return err
	})
	if err != nil {
		return err
	}

	if appended == 0 {
		// Same external id seen before: redelivery or a bank resending
		// history. Matching must not re-trigger.
		h.logger.Debug("Duplicate statement event ignored",
			"external_id", txn.ExternalID,
			"account_ref", txn.BankAccountRef)
		return nil
	}

	_, err = h.queue.Enqueue(ctx, syncjob.LaneReconciliation, txn.TenantID, txn.BankAccountRef,
		queue.ReconcilePayload{BankAccountRef: txn.BankAccountRef})
	return err
}

func decodeEvent(value []byte) (*bank.Transaction, error) {
	var event StatementLineEvent
	if err := json.Unmarshal(value, &event); err != nil {
		return nil, fmt.Errorf("invalid statement event: %w", err)
	}

	if event.TenantID == uuid.Nil {
		return nil, fmt.Errorf("statement event missing tenant id")
	}
	if event.BankAccountRef == "" || event.ExternalID == "" {
		return nil, fmt.Errorf("statement event missing account ref or external id")
	}

	amount, err := decimal.NewFromString(event.Amount)
	if err != nil {
		return nil, fmt.Errorf("invalid statement event amount %q: %w", event.Amount, err)
	}

	valueDate, err := time.Parse("2006-01-02", event.ValueDate)
	if err != nil {
		return nil, fmt.Errorf("invalid statement event value date %q: %w", event.ValueDate, err)
	}

	currency := event.Currency
	if currency == "" {
		currency = "BRL"
	}

	return &bank.Transaction{
		ID:                 uuid.New(),
		TenantID:           event.TenantID,
		BankAccountRef:     event.BankAccountRef,
		Amount:             amount,
		Currency:           currency,
		ValueDate:          valueDate.UTC(),
		Description:        event.Description,
		ExternalID:         event.ExternalID,
		ReversesExternalID: event.ReversesExternalID,
		Settled:            event.Settled,
		MatchStatus:        bank.MatchStatusUnmatched,
	}, nil
}
