package syncjob

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository manages durable job persistence. Unlike the financial
// repositories it is not tenant-scoped: the dispatcher claims work across
// tenants, and each claimed job re-establishes its tenant scope before
// touching financial data.
type Repository interface {
	Enqueue(ctx context.Context, job *Job) error
	GetByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// ClaimDue atomically claims up to limit runnable jobs in a lane and
	// marks them running with the given lease. A job is runnable when it is
	// pending, its retry time has passed, and no earlier job in its
	// partition is pending or still running. This keeps execution FIFO
	// per (tenant, bank account) even with concurrent workers.
	ClaimDue(ctx context.Context, lane Lane, limit int, lease time.Duration) ([]*Job, error)

	MarkSucceeded(ctx context.Context, id uuid.UUID) error

	// Reschedule returns a transiently failed job to pending with a future
	// retry time, recording the attempt and its error.
	Reschedule(ctx context.Context, id uuid.UUID, nextRetryAt time.Time, lastError string) error

	MarkFailedPermanent(ctx context.Context, id uuid.UUID, lastError string) error

	// ReapExpired returns running jobs whose lease expired to pending and
	// reports how many were reclaimed. A reaped attempt counts as transient.
	ReapExpired(ctx context.Context, now time.Time, nextRetryAt time.Time) (int, error)

	// CancelPending cancels a job that has not started; running jobs always
	// run to completion or failure.
	CancelPending(ctx context.Context, id uuid.UUID) error

	ListFailedPermanent(ctx context.Context, limit, offset int) ([]*Job, error)

	// Requeue returns a failed-permanent job to pending with a fresh
	// attempt budget. Operator action.
	Requeue(ctx context.Context, id uuid.UUID) error
}

// ErrJobNotFound indicates a missing sync job
type ErrJobNotFound struct {
	ID uuid.UUID
}

func (e ErrJobNotFound) Error() string {
	return "sync job not found: " + e.ID.String()
}

// Is implements the errors.Is interface for ErrJobNotFound
func (e ErrJobNotFound) Is(target error) bool {
	t, ok := target.(ErrJobNotFound)
	if !ok {
		return false
	}
	if t.ID == uuid.Nil {
		return true
	}
	return e.ID == t.ID
}

// ErrNotCancellable indicates an attempt to cancel a job that already left
// the pending state
type ErrNotCancellable struct {
	ID     uuid.UUID
	Status Status
}

func (e ErrNotCancellable) Error() string {
	return "sync job " + e.ID.String() + " is " + string(e.Status) + " and cannot be cancelled"
}
