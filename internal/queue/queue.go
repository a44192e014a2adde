// Package queue is the enqueue-side API over the durable sync job table and
// the lease reaper that reclaims work from crashed workers. Claiming and
// executing jobs is the worker dispatcher's side of the contract.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/bpofinanceiro/reconciliation-service/internal/config"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/syncjob"
)

// BankSyncPayload asks the bank-sync lane to pull one feed
type BankSyncPayload struct {
	FeedID uuid.UUID `json:"feed_id"`
}

// ReconcilePayload asks the reconciliation lane to match one account's
// unmatched transactions
type ReconcilePayload struct {
	BankAccountRef string `json:"bank_account_ref"`
}

// DominioSyncPayload asks the dominio-sync lane to push one entry's
// reconciled state to the external accounting system
type DominioSyncPayload struct {
	LedgerEntryID uuid.UUID `json:"ledger_entry_id"`
	MatchID       uuid.UUID `json:"match_id"`
}

// ReportPayload asks the reports lane to summarize a period
type ReportPayload struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}

// NotificationPayload asks the notifications lane to deliver one alert
type NotificationPayload struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// Queue enqueues durable jobs. It is safe for concurrent use.
type Queue struct {
	jobs   syncjob.Repository
	logger *slog.Logger
}

// NewQueue creates an enqueue handle over the job repository
func NewQueue(logger *slog.Logger, jobs syncjob.Repository) *Queue {
	return &Queue{
		jobs:   jobs,
		logger: logger,
	}
}

// Enqueue stores a new pending job in the lane's (tenant, account) partition
// and returns its id. An empty accountRef partitions per tenant only.
func (q *Queue) Enqueue(ctx context.Context, lane syncjob.Lane, tenantID uuid.UUID, accountRef string, payload interface{}) (uuid.UUID, error) {
	job, err := syncjob.NewJob(lane, tenantID, accountRef, payload)
	if err != nil {
		return uuid.Nil, err
	}

	if err := q.jobs.Enqueue(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("failed to enqueue %s job: %w", lane, err)
	}

	q.logger.Debug("Enqueued sync job",
		"job_id", job.ID.String(),
		"lane", lane,
		"partition", job.PartitionKey)

	return job.ID, nil
}

// Reaper periodically returns running jobs with expired leases to pending so
// a crashed worker's claims are not lost. The reclaimed attempt counts as a
// transient failure.
type Reaper struct {
	jobs   syncjob.Repository
	cfg    config.QueueConfig
	logger *slog.Logger
}

// NewReaper creates a lease reaper
func NewReaper(logger *slog.Logger, jobs syncjob.Repository, cfg config.QueueConfig) *Reaper {
	return &Reaper{
		jobs:   jobs,
		cfg:    cfg,
		logger: logger,
	}
}

// Run reclaims expired leases until the context is cancelled
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReaperInterval)
	defer ticker.Stop()

	r.logger.Info("Queue reaper started", "interval", r.cfg.ReaperInterval.String())

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Queue reaper stopped")
			return
		case <-ticker.C:
			now := time.Now().UTC()
			reaped, err := r.jobs.ReapExpired(ctx, now, now.Add(r.cfg.BackoffBase))
			if err != nil {
				r.logger.Error("Failed to reap expired job leases", "error", err)
				continue
			}
			if reaped > 0 {
				r.logger.Warn("Reclaimed expired job leases", "count", reaped)
			}
		}
	}
}
