package worker

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpofinanceiro/reconciliation-service/internal/domain/reconciliation"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/syncjob"
	"github.com/bpofinanceiro/reconciliation-service/internal/queue"
	"github.com/bpofinanceiro/reconciliation-service/internal/reconcile"
)

// fakeReconciler returns a scripted pass summary
type fakeReconciler struct {
	summary reconcile.Summary
	err     error
}

func (f *fakeReconciler) ReconcileAccount(ctx context.Context, tenantID uuid.UUID, accountRef string) (reconcile.Summary, error) {
	return f.summary, f.err
}

func reconcileJob(t *testing.T) *syncjob.Job {
	t.Helper()
	job, err := syncjob.NewJob(syncjob.LaneReconciliation, uuid.New(), "12345-6",
		queue.ReconcilePayload{BankAccountRef: "12345-6"})
	require.NoError(t, err)
	return job
}

func jobsByLane(repo *fakeJobRepo) map[syncjob.Lane][]*syncjob.Job {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	byLane := make(map[syncjob.Lane][]*syncjob.Job)
	for _, job := range repo.claimable {
		byLane[job.Lane] = append(byLane[job.Lane], job)
	}
	return byLane
}

func TestReconciliationHandler_FollowUpJobs(t *testing.T) {
	ctx := context.Background()

	newHandler := func(summary reconcile.Summary) (*ReconciliationHandler, *fakeJobRepo) {
		repo := newFakeJobRepo()
		h := NewReconciliationHandler(slog.Default(), &fakeReconciler{summary: summary},
			queue.NewQueue(slog.Default(), repo))
		return h, repo
	}

	t.Run("committed match queues dominio sync per entry and a report refresh", func(t *testing.T) {
		match := reconciliation.NewMatch(uuid.New(), uuid.New(),
			[]uuid.UUID{uuid.New(), uuid.New()}, 1.0, reconciliation.RuleExact)
		h, repo := newHandler(reconcile.Summary{Matched: 1, Committed: []*reconciliation.Match{match}})

		require.NoError(t, h.Handle(ctx, reconcileJob(t)))

		byLane := jobsByLane(repo)
		require.Len(t, byLane[syncjob.LaneDominioSync], 2)
		require.Len(t, byLane[syncjob.LaneReports], 1)
		assert.Empty(t, byLane[syncjob.LaneNotifications])

		seen := make([]uuid.UUID, 0, 2)
		for _, job := range byLane[syncjob.LaneDominioSync] {
			var payload queue.DominioSyncPayload
			require.NoError(t, job.DecodePayload(&payload))
			assert.Equal(t, match.ID, payload.MatchID)
			seen = append(seen, payload.LedgerEntryID)
		}
		assert.ElementsMatch(t, match.EntryIDs, seen)

		var report queue.ReportPayload
		require.NoError(t, byLane[syncjob.LaneReports][0].DecodePayload(&report))
		assert.Equal(t, 1, report.PeriodStart.Day())
		assert.Equal(t, report.PeriodStart.AddDate(0, 1, 0), report.PeriodEnd)
	})

	t.Run("ambiguous outcome queues a review notification", func(t *testing.T) {
		h, repo := newHandler(reconcile.Summary{Ambiguous: 2})

		require.NoError(t, h.Handle(ctx, reconcileJob(t)))

		byLane := jobsByLane(repo)
		require.Len(t, byLane[syncjob.LaneNotifications], 1)
		require.Len(t, byLane[syncjob.LaneReports], 1)

		var payload queue.NotificationPayload
		require.NoError(t, byLane[syncjob.LaneNotifications][0].DecodePayload(&payload))
		assert.Equal(t, "WARNING", payload.Severity)
		assert.Contains(t, payload.Message, "2 ambiguous transactions")
		assert.Contains(t, payload.Message, "12345-6")
	})

	t.Run("reversal alone still refreshes the report", func(t *testing.T) {
		h, repo := newHandler(reconcile.Summary{Reversed: 1})

		require.NoError(t, h.Handle(ctx, reconcileJob(t)))

		byLane := jobsByLane(repo)
		require.Len(t, byLane[syncjob.LaneReports], 1)
		assert.Empty(t, byLane[syncjob.LaneNotifications])
	})

	t.Run("a pass that changed nothing queues nothing", func(t *testing.T) {
		h, repo := newHandler(reconcile.Summary{Unmatched: 3})

		require.NoError(t, h.Handle(ctx, reconcileJob(t)))

		assert.Empty(t, repo.claimable)
	})
}

func TestReportPeriod(t *testing.T) {
	start, end := reportPeriod(time.Date(2026, 3, 15, 13, 45, 0, 0, time.UTC))

	assert.Equal(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC), end)
}
