// Package worker executes queued sync jobs. A dispatcher polls each lane,
// claims runnable jobs under a lease and runs them on a shared worker pool;
// lane handlers hold the actual business logic. Retry classification lives
// here: transient failures back off and retry, permanent ones park the job
// and alert an operator.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/bpofinanceiro/reconciliation-service/internal/config"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/syncjob"
	"github.com/bpofinanceiro/reconciliation-service/internal/queue"
)

// Handler executes jobs for one lane
type Handler interface {
	Lane() syncjob.Lane
	Handle(ctx context.Context, job *syncjob.Job) error
}

// Alerter delivers operator alerts for jobs that exhausted their retries
type Alerter interface {
	Alert(ctx context.Context, tenantID, severity, message string) error
}

// Dispatcher claims due jobs lane by lane and runs them on the pool.
// Claiming is FIFO per (tenant, bank account) partition; execution across
// partitions is concurrent up to the pool size.
type Dispatcher struct {
	jobs     syncjob.Repository
	handlers map[syncjob.Lane]Handler
	pool     *ants.Pool
	alerter  Alerter
	cfg      config.QueueConfig
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewDispatcher creates a dispatcher over the given handlers and pool size
func NewDispatcher(logger *slog.Logger, jobs syncjob.Repository, alerter Alerter, cfg config.QueueConfig, poolSize int, handlers ...Handler) (*Dispatcher, error) {
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	byLane := make(map[syncjob.Lane]Handler, len(handlers))
	for _, h := range handlers {
		byLane[h.Lane()] = h
	}

	return &Dispatcher{
		jobs:     jobs,
		handlers: byLane,
		pool:     pool,
		alerter:  alerter,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Run polls every registered lane until the context is cancelled, then
// waits for in-flight jobs to finish. Running jobs are never interrupted
// mid-flight; a partial match application would break the store contract.
func (d *Dispatcher) Run(ctx context.Context) {
	for lane := range d.handlers {
		d.wg.Add(1)
		go d.pollLane(ctx, lane)
	}

	<-ctx.Done()
	d.wg.Wait()
	d.pool.Release()
	d.logger.Info("Dispatcher stopped", "running_workers", d.pool.Running())
}

func (d *Dispatcher) pollLane(ctx context.Context, lane syncjob.Lane) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.logger.Info("Polling lane", "lane", lane, "interval", d.cfg.PollInterval.String())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.drainLane(ctx, lane)
		}
	}
}

func (d *Dispatcher) drainLane(ctx context.Context, lane syncjob.Lane) {
	claimed, err := d.jobs.ClaimDue(ctx, lane, d.cfg.BatchSize, d.cfg.JobTimeout)
	if err != nil {
		d.logger.Error("Failed to claim jobs", "lane", lane, "error", err)
		return
	}

	var batch sync.WaitGroup
	for _, job := range claimed {
		job := job
		batch.Add(1)
		if err := d.pool.Submit(func() {
			defer batch.Done()
			d.execute(ctx, job)
		}); err != nil {
			batch.Done()
			d.logger.Error("Failed to submit job to pool", "job_id", job.ID.String(), "error", err)
		}
	}
	// Wait for the batch so the next claim sees partition heads settled.
	batch.Wait()
}

func (d *Dispatcher) execute(ctx context.Context, job *syncjob.Job) {
	logger := d.logger.With("job_id", job.ID.String(), "lane", job.Lane, "attempt", job.Attempts+1)

	// Jobs can arrive over budget when the reaper charged the attempts.
	if job.Attempts >= d.cfg.MaxAttempts {
		d.park(ctx, job, "retry budget exhausted before execution")
		return
	}

	handler, ok := d.handlers[job.Lane]
	if !ok {
		d.park(ctx, job, fmt.Sprintf("no handler registered for lane %s", job.Lane))
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, d.cfg.JobTimeout)
	err := handler.Handle(jobCtx, job)
	cancel()

	if err == nil {
		if markErr := d.jobs.MarkSucceeded(ctx, job.ID); markErr != nil {
			logger.Error("Failed to mark job succeeded", "error", markErr)
		}
		return
	}

	logger.Warn("Job failed", "error", err)

	if !syncjob.IsRetryable(err) || job.Attempts+1 >= d.cfg.MaxAttempts {
		d.park(ctx, job, err.Error())
		return
	}

	delay := queue.Backoff(job.Attempts, d.cfg.BackoffBase, d.cfg.BackoffCap)
	if rescheduleErr := d.jobs.Reschedule(ctx, job.ID, time.Now().UTC().Add(delay), err.Error()); rescheduleErr != nil {
		logger.Error("Failed to reschedule job", "error", rescheduleErr)
	}
}

// park moves a job to failed-permanent and alerts an operator. The
// notifications lane never re-alerts about itself: a broken alert pipeline
// producing more alerts would loop forever.
func (d *Dispatcher) park(ctx context.Context, job *syncjob.Job, reason string) {
	if err := d.jobs.MarkFailedPermanent(ctx, job.ID, reason); err != nil {
		d.logger.Error("Failed to mark job failed-permanent", "job_id", job.ID.String(), "error", err)
		return
	}

	d.logger.Error("Job parked as failed-permanent",
		"job_id", job.ID.String(),
		"lane", job.Lane,
		"reason", reason)

	if job.Lane == syncjob.LaneNotifications {
		return
	}

	message := fmt.Sprintf("%s job %s failed permanently: %s", job.Lane, job.ID, reason)
	if err := d.alerter.Alert(ctx, job.TenantID.String(), "CRITICAL", message); err != nil {
		d.logger.Error("Failed to emit permanent-failure alert", "job_id", job.ID.String(), "error", err)
	}
}
