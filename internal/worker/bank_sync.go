package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bpofinanceiro/reconciliation-service/internal/bankfeed"
	"github.com/bpofinanceiro/reconciliation-service/internal/data/postgres"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/bank"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/syncjob"
	"github.com/bpofinanceiro/reconciliation-service/internal/platform/messaging/producers"
	"github.com/bpofinanceiro/reconciliation-service/internal/queue"
)

// Feeds that never synced look back this far on their first pull
const initialSyncLookback = 30 * 24 * time.Hour

// BankSyncHandler pulls one feed's statement, appends the normalized lines
// and queues a reconciliation pass for the account. Malformed lines go to
// the operator topic; they never fail the job.
type BankSyncHandler struct {
	feeds    bank.FeedRepository
	registry *bankfeed.Registry
	store    *postgres.Store
	queue    *queue.Queue
	operator *producers.OperatorQueueProducer
	logger   *slog.Logger
}

// NewBankSyncHandler creates the bank-sync lane handler
func NewBankSyncHandler(logger *slog.Logger, feeds bank.FeedRepository, registry *bankfeed.Registry, store *postgres.Store, q *queue.Queue, operator *producers.OperatorQueueProducer) *BankSyncHandler {
	return &BankSyncHandler{
		feeds:    feeds,
		registry: registry,
		store:    store,
		queue:    q,
		operator: operator,
		logger:   logger,
	}
}

func (h *BankSyncHandler) Lane() syncjob.Lane { return syncjob.LaneBankSync }

func (h *BankSyncHandler) Handle(ctx context.Context, job *syncjob.Job) error {
	var payload queue.BankSyncPayload
	if err := job.DecodePayload(&payload); err != nil {
		return err
	}

	feed, err := h.feeds.GetByID(ctx, payload.FeedID)
	if err != nil {
		return err
	}

	client, err := h.registry.Client(feed.Bank)
	if err != nil {
		return err
	}

	since := time.Now().UTC().Add(-initialSyncLookback)
	if feed.LastSyncedAt != nil {
		since = *feed.LastSyncedAt
	}

	statement, err := client.FetchStatement(ctx, feed.AccountRef, since)
	if err != nil {
		return err
	}

	for _, m := range statement.Malformed {
		key := fmt.Sprintf("%s:%s", feed.TenantID, feed.AccountRef)
		if pubErr := h.operator.PublishMalformed(ctx, key, m.Raw, m.Err.Error()); pubErr != nil {
			h.logger.Error("Failed to route malformed line to operator queue",
				"feed_id", feed.ID.String(),
				"error", pubErr)
		}
	}

	if len(statement.Malformed) > 0 {
		_, err = h.queue.Enqueue(ctx, syncjob.LaneNotifications, feed.TenantID, "",
			queue.NotificationPayload{
				Severity: "WARNING",
				Message: fmt.Sprintf("%d malformed statement lines from %s on account %s were quarantined",
					len(statement.Malformed), feed.Bank, feed.AccountRef),
			})
		if err != nil {
			return err
		}
	}

	txns := make([]*bank.Transaction, 0, len(statement.Lines))
	now := time.Now().UTC()
	for _, line := range statement.Lines {
		txns = append(txns, &bank.Transaction{
			ID:                 uuid.New(),
			TenantID:           feed.TenantID,
			BankAccountRef:     feed.AccountRef,
			Amount:             line.Amount,
			Currency:           line.Currency,
			ValueDate:          line.ValueDate,
			Description:        line.Description,
			ExternalID:         line.ExternalID,
			ReversesExternalID: line.ReversesExternalID,
			Settled:            line.Settled,
			MatchStatus:        bank.MatchStatusUnmatched,
		})
	}

	var appended int
	if len(txns) > 0 {
		err = h.store.WithTenant(ctx, feed.TenantID, func(ctx context.Context, scope *postgres.Scope) error {
			var err error
			appended, err = scope.Transactions.Append(ctx, txns)
			return err
		})
		if err != nil {
			return err
		}
	}

	h.logger.Info("Bank feed synced",
		"feed_id", feed.ID.String(),
		"bank", feed.Bank,
		"fetched", len(statement.Lines),
		"appended", appended,
		"malformed", len(statement.Malformed))

	if appended > 0 {
		_, err = h.queue.Enqueue(ctx, syncjob.LaneReconciliation, feed.TenantID, feed.AccountRef,
			queue.ReconcilePayload{BankAccountRef: feed.AccountRef})
		if err != nil {
			return err
		}
	}

	return h.feeds.MarkSynced(ctx, feed.ID, now)
}
