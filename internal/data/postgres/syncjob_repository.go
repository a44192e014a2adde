package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bpofinanceiro/reconciliation-service/internal/domain/syncjob"
	"github.com/bpofinanceiro/reconciliation-service/internal/platform/persistence"
)

// SyncJobRepository implements syncjob.Repository for PostgreSQL. The claim
// query is the FIFO discipline: a job is only claimable when no earlier job
// in its (tenant, bank account) partition is pending or running, so two
// workers can never reorder a partition even though they race freely across
// partitions.
type SyncJobRepository struct {
	querier persistence.Querier
	logger  *slog.Logger
}

// NewSyncJobRepository creates a pool-bound sync job repository
func NewSyncJobRepository(logger *slog.Logger, db *persistence.PostgresDB) syncjob.Repository {
	return &SyncJobRepository{
		querier: db.Pool(),
		logger:  logger,
	}
}

// NewSyncJobRepositoryWithTx binds the repository to an open transaction so
// follow-up jobs enqueue atomically with the state they depend on.
func NewSyncJobRepositoryWithTx(logger *slog.Logger, tx pgx.Tx) syncjob.Repository {
	return &SyncJobRepository{
		querier: tx,
		logger:  logger,
	}
}

const jobColumns = `id, lane, tenant_id, partition_key, payload, status, attempts, next_retry_at, lease_expires_at, last_error, seq, enqueued_at, updated_at`

func scanJob(row pgx.Row) (*syncjob.Job, error) {
	var j syncjob.Job
	var lastError *string
	err := row.Scan(
		&j.ID,
		&j.Lane,
		&j.TenantID,
		&j.PartitionKey,
		&j.Payload,
		&j.Status,
		&j.Attempts,
		&j.NextRetryAt,
		&j.LeaseExpiresAt,
		&lastError,
		&j.Seq,
		&j.EnqueuedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastError != nil {
		j.LastError = *lastError
	}
	return &j, nil
}

// Enqueue stores a new pending job
func (r *SyncJobRepository) Enqueue(ctx context.Context, job *syncjob.Job) error {
	query := `
		INSERT INTO sync_jobs
			(id, lane, tenant_id, partition_key, payload, status, attempts, next_retry_at, enqueued_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.querier.Exec(ctx, query,
		job.ID,
		job.Lane,
		job.TenantID,
		job.PartitionKey,
		job.Payload,
		job.Status,
		job.Attempts,
		job.NextRetryAt,
		job.EnqueuedAt,
		job.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to enqueue sync job", "id", job.ID.String(), "lane", job.Lane, "error", err)
		return fmt.Errorf("failed to enqueue sync job: %w", err)
	}

	return nil
}

// GetByID retrieves a job by its ID
func (r *SyncJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*syncjob.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM sync_jobs
		WHERE id = $1
	`

	job, err := scanJob(r.querier.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, syncjob.ErrJobNotFound{ID: id}
		}
		r.logger.Error("Failed to get sync job", "id", id.String(), "error", err)
		return nil, fmt.Errorf("failed to get sync job: %w", err)
	}

	return job, nil
}

// ClaimDue claims up to limit runnable jobs in a lane. The NOT EXISTS clause
// skips any partition whose head is running or is an earlier pending job;
// SKIP LOCKED keeps concurrent claimers from blocking each other.
func (r *SyncJobRepository) ClaimDue(ctx context.Context, lane syncjob.Lane, limit int, lease time.Duration) ([]*syncjob.Job, error) {
	query := `
		UPDATE sync_jobs
		SET status = 'RUNNING', lease_expires_at = NOW() + $3::interval, updated_at = NOW()
		WHERE id IN (
			SELECT j.id
			FROM sync_jobs j
			WHERE j.lane = $1
			  AND j.status = 'PENDING'
			  AND j.next_retry_at <= NOW()
			  AND NOT EXISTS (
				SELECT 1 FROM sync_jobs p
				WHERE p.lane = j.lane
				  AND p.partition_key = j.partition_key
				  AND (p.status = 'RUNNING' OR (p.status = 'PENDING' AND p.seq < j.seq))
			  )
			ORDER BY j.seq
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + jobColumns + `
	`

	rows, err := r.querier.Query(ctx, query, lane, limit, lease.String())
	if err != nil {
		r.logger.Error("Failed to claim sync jobs", "lane", lane, "error", err)
		return nil, fmt.Errorf("failed to claim sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*syncjob.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read claimed sync job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read claimed sync jobs: %w", err)
	}

	return jobs, nil
}

// MarkSucceeded moves a running job to its terminal success state
func (r *SyncJobRepository) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE sync_jobs
		SET status = 'SUCCEEDED', lease_expires_at = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'RUNNING'
	`

	result, err := r.querier.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to mark sync job succeeded", "id", id.String(), "error", err)
		return fmt.Errorf("failed to mark sync job succeeded: %w", err)
	}
	if result.RowsAffected() == 0 {
		return syncjob.ErrJobNotFound{ID: id}
	}

	return nil
}

// Reschedule returns a transiently failed job to pending for a later attempt
func (r *SyncJobRepository) Reschedule(ctx context.Context, id uuid.UUID, nextRetryAt time.Time, lastError string) error {
	query := `
		UPDATE sync_jobs
		SET status = 'PENDING', attempts = attempts + 1, next_retry_at = $2,
		    lease_expires_at = NULL, last_error = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'RUNNING'
	`

	result, err := r.querier.Exec(ctx, query, id, nextRetryAt, lastError)
	if err != nil {
		r.logger.Error("Failed to reschedule sync job", "id", id.String(), "error", err)
		return fmt.Errorf("failed to reschedule sync job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return syncjob.ErrJobNotFound{ID: id}
	}

	return nil
}

// MarkFailedPermanent parks a job for operator attention; it will not be
// picked up again unless requeued
func (r *SyncJobRepository) MarkFailedPermanent(ctx context.Context, id uuid.UUID, lastError string) error {
	query := `
		UPDATE sync_jobs
		SET status = 'FAILED_PERMANENT', attempts = attempts + 1,
		    lease_expires_at = NULL, last_error = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'RUNNING'
	`

	result, err := r.querier.Exec(ctx, query, id, lastError)
	if err != nil {
		r.logger.Error("Failed to mark sync job failed-permanent", "id", id.String(), "error", err)
		return fmt.Errorf("failed to mark sync job failed-permanent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return syncjob.ErrJobNotFound{ID: id}
	}

	return nil
}

// ReapExpired returns running jobs with expired leases to pending. The
// reaped attempt counts as a transient failure.
func (r *SyncJobRepository) ReapExpired(ctx context.Context, now time.Time, nextRetryAt time.Time) (int, error) {
	query := `
		UPDATE sync_jobs
		SET status = 'PENDING', attempts = attempts + 1, next_retry_at = $2,
		    lease_expires_at = NULL, last_error = 'job lease expired', updated_at = NOW()
		WHERE status = 'RUNNING' AND lease_expires_at IS NOT NULL AND lease_expires_at < $1
	`

	result, err := r.querier.Exec(ctx, query, now, nextRetryAt)
	if err != nil {
		r.logger.Error("Failed to reap expired sync jobs", "error", err)
		return 0, fmt.Errorf("failed to reap expired sync jobs: %w", err)
	}

	return int(result.RowsAffected()), nil
}

// CancelPending cancels a job that has not started yet
func (r *SyncJobRepository) CancelPending(ctx context.Context, id uuid.UUID) error {
	query := `
		DELETE FROM sync_jobs
		WHERE id = $1 AND status = 'PENDING'
	`

	result, err := r.querier.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to cancel sync job", "id", id.String(), "error", err)
		return fmt.Errorf("failed to cancel sync job: %w", err)
	}
	if result.RowsAffected() == 0 {
		job, getErr := r.GetByID(ctx, id)
		if getErr != nil {
			return getErr
		}
		return syncjob.ErrNotCancellable{ID: id, Status: job.Status}
	}

	return nil
}

// ListFailedPermanent returns parked jobs for the operator review queue
func (r *SyncJobRepository) ListFailedPermanent(ctx context.Context, limit, offset int) ([]*syncjob.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM sync_jobs
		WHERE status = 'FAILED_PERMANENT'
		ORDER BY updated_at DESC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.querier.Query(ctx, query, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list failed-permanent sync jobs", "error", err)
		return nil, fmt.Errorf("failed to list failed-permanent sync jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*syncjob.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to read failed-permanent sync job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read failed-permanent sync jobs: %w", err)
	}

	return jobs, nil
}

// Requeue returns a failed-permanent job to pending with a fresh attempt budget
func (r *SyncJobRepository) Requeue(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE sync_jobs
		SET status = 'PENDING', attempts = 0, next_retry_at = NOW(),
		    last_error = NULL, updated_at = NOW()
		WHERE id = $1 AND status = 'FAILED_PERMANENT'
	`

	result, err := r.querier.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to requeue sync job", "id", id.String(), "error", err)
		return fmt.Errorf("failed to requeue sync job: %w", err)
	}
	if result.RowsAffected() == 0 {
		return syncjob.ErrJobNotFound{ID: id}
	}

	return nil
}
