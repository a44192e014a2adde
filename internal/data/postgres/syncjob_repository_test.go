package postgres

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpofinanceiro/reconciliation-service/internal/domain/syncjob"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func jobRows(jobs ...*syncjob.Job) *pgxmock.Rows {
	rows := pgxmock.NewRows([]string{
		"id", "lane", "tenant_id", "partition_key", "payload", "status", "attempts",
		"next_retry_at", "lease_expires_at", "last_error", "seq", "enqueued_at", "updated_at",
	})
	for _, j := range jobs {
		var lastError *string
		if j.LastError != "" {
			lastError = &j.LastError
		}
		rows.AddRow(j.ID, j.Lane, j.TenantID, j.PartitionKey, j.Payload, j.Status, j.Attempts,
			j.NextRetryAt, j.LeaseExpiresAt, lastError, j.Seq, j.EnqueuedAt, j.UpdatedAt)
	}
	return rows
}

func pendingJob(t *testing.T) *syncjob.Job {
	t.Helper()
	job, err := syncjob.NewJob(syncjob.LaneBankSync, uuid.New(), "12345-6", map[string]string{"feed_id": uuid.NewString()})
	require.NoError(t, err)
	job.Seq = 7
	return job
}

func TestSyncJobRepository_Enqueue(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &SyncJobRepository{querier: mock, logger: newTestLogger()}
	job := pendingJob(t)

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(`INSERT INTO sync_jobs`).
			WithArgs(job.ID, job.Lane, job.TenantID, job.PartitionKey, job.Payload,
				job.Status, job.Attempts, job.NextRetryAt, job.EnqueuedAt, job.UpdatedAt).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		assert.NoError(t, repo.Enqueue(ctx, job))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failure", func(t *testing.T) {
		dbErr := errors.New("db error")
		mock.ExpectExec(`INSERT INTO sync_jobs`).
			WithArgs(job.ID, job.Lane, job.TenantID, job.PartitionKey, job.Payload,
				job.Status, job.Attempts, job.NextRetryAt, job.EnqueuedAt, job.UpdatedAt).
			WillReturnError(dbErr)

		err := repo.Enqueue(ctx, job)
		assert.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSyncJobRepository_GetByID(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &SyncJobRepository{querier: mock, logger: newTestLogger()}
	job := pendingJob(t)

	t.Run("success", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .+ FROM sync_jobs\s+WHERE id = \$1`).
			WithArgs(job.ID).
			WillReturnRows(jobRows(job))

		got, err := repo.GetByID(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, job.PartitionKey, got.PartitionKey)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT .+ FROM sync_jobs\s+WHERE id = \$1`).
			WithArgs(job.ID).
			WillReturnError(pgx.ErrNoRows)

		got, err := repo.GetByID(ctx, job.ID)
		assert.Nil(t, got)
		assert.ErrorIs(t, err, syncjob.ErrJobNotFound{ID: job.ID})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSyncJobRepository_ClaimDue(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &SyncJobRepository{querier: mock, logger: newTestLogger()}

	t.Run("claims runnable jobs in seq order", func(t *testing.T) {
		first := pendingJob(t)
		second := pendingJob(t)
		first.Status = syncjob.StatusRunning
		second.Status = syncjob.StatusRunning

		mock.ExpectQuery(`UPDATE sync_jobs\s+SET status = 'RUNNING'`).
			WithArgs(syncjob.LaneBankSync, 10, (30 * time.Second).String()).
			WillReturnRows(jobRows(first, second))

		jobs, err := repo.ClaimDue(ctx, syncjob.LaneBankSync, 10, 30*time.Second)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, first.ID, jobs[0].ID)
		assert.Equal(t, syncjob.StatusRunning, jobs[0].Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty lane claims nothing", func(t *testing.T) {
		mock.ExpectQuery(`UPDATE sync_jobs\s+SET status = 'RUNNING'`).
			WithArgs(syncjob.LaneReports, 10, (30 * time.Second).String()).
			WillReturnRows(jobRows())

		jobs, err := repo.ClaimDue(ctx, syncjob.LaneReports, 10, 30*time.Second)
		require.NoError(t, err)
		assert.Empty(t, jobs)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSyncJobRepository_Reschedule(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &SyncJobRepository{querier: mock, logger: newTestLogger()}
	id := uuid.New()
	retryAt := time.Now().UTC().Add(time.Minute)

	t.Run("success", func(t *testing.T) {
		mock.ExpectExec(`UPDATE sync_jobs\s+SET status = 'PENDING', attempts = attempts \+ 1`).
			WithArgs(id, retryAt, "connection refused").
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.Reschedule(ctx, id, retryAt, "connection refused"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("job no longer running", func(t *testing.T) {
		mock.ExpectExec(`UPDATE sync_jobs\s+SET status = 'PENDING', attempts = attempts \+ 1`).
			WithArgs(id, retryAt, "connection refused").
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err := repo.Reschedule(ctx, id, retryAt, "connection refused")
		assert.ErrorIs(t, err, syncjob.ErrJobNotFound{ID: id})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSyncJobRepository_MarkFailedPermanent(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &SyncJobRepository{querier: mock, logger: newTestLogger()}
	id := uuid.New()

	mock.ExpectExec(`UPDATE sync_jobs\s+SET status = 'FAILED_PERMANENT'`).
		WithArgs(id, "malformed payload").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	assert.NoError(t, repo.MarkFailedPermanent(ctx, id, "malformed payload"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncJobRepository_ReapExpired(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &SyncJobRepository{querier: mock, logger: newTestLogger()}
	now := time.Now().UTC()
	retryAt := now.Add(30 * time.Second)

	mock.ExpectExec(`UPDATE sync_jobs\s+SET status = 'PENDING', attempts = attempts \+ 1`).
		WithArgs(now, retryAt).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	reclaimed, err := repo.ReapExpired(ctx, now, retryAt)
	require.NoError(t, err)
	assert.Equal(t, 3, reclaimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncJobRepository_CancelPending(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &SyncJobRepository{querier: mock, logger: newTestLogger()}

	t.Run("pending job is deleted", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectExec(`DELETE FROM sync_jobs`).
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		assert.NoError(t, repo.CancelPending(ctx, id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("running job is not cancellable", func(t *testing.T) {
		job := pendingJob(t)
		job.Status = syncjob.StatusRunning

		mock.ExpectExec(`DELETE FROM sync_jobs`).
			WithArgs(job.ID).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))
		mock.ExpectQuery(`SELECT .+ FROM sync_jobs\s+WHERE id = \$1`).
			WithArgs(job.ID).
			WillReturnRows(jobRows(job))

		err := repo.CancelPending(ctx, job.ID)
		var notCancellable syncjob.ErrNotCancellable
		require.ErrorAs(t, err, &notCancellable)
		assert.Equal(t, syncjob.StatusRunning, notCancellable.Status)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestSyncJobRepository_Requeue(t *testing.T) {
	ctx := context.Background()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := &SyncJobRepository{querier: mock, logger: newTestLogger()}
	id := uuid.New()

	t.Run("parked job returns to pending", func(t *testing.T) {
		mock.ExpectExec(`UPDATE sync_jobs\s+SET status = 'PENDING', attempts = 0`).
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.Requeue(ctx, id))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("only parked jobs can be requeued", func(t *testing.T) {
		mock.ExpectExec(`UPDATE sync_jobs\s+SET status = 'PENDING', attempts = 0`).
			WithArgs(id).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		assert.ErrorIs(t, repo.Requeue(ctx, id), syncjob.ErrJobNotFound{ID: id})
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
