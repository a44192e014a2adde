package worker

import (
	"context"
	"log/slog"

	"github.com/bpofinanceiro/reconciliation-service/internal/domain/syncjob"
	"github.com/bpofinanceiro/reconciliation-service/internal/queue"
)

// NotificationsHandler delivers queued alerts through the notification
// producer. Queuing alerts instead of publishing inline gives delivery the
// same durability and retry budget as any other job.
type NotificationsHandler struct {
	alerter Alerter
	logger  *slog.Logger
}

// NewNotificationsHandler creates the notifications lane handler
func NewNotificationsHandler(logger *slog.Logger, alerter Alerter) *NotificationsHandler {
	return &NotificationsHandler{
		alerter: alerter,
		logger:  logger,
	}
}

func (h *NotificationsHandler) Lane() syncjob.Lane { return syncjob.LaneNotifications }

func (h *NotificationsHandler) Handle(ctx context.Context, job *syncjob.Job) error {
	var payload queue.NotificationPayload
	if err := job.DecodePayload(&payload); err != nil {
		return err
	}

	return h.alerter.Alert(ctx, job.TenantID.String(), payload.Severity, payload.Message)
}
