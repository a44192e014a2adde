// Package scheduler turns feed registrations into bank-sync jobs. It is the
// only component that looks across tenants: it reads which feeds are due and
// enqueues one job per feed, and everything downstream re-establishes tenant
// scope from the job.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bpofinanceiro/reconciliation-service/internal/domain/bank"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/syncjob"
	"github.com/bpofinanceiro/reconciliation-service/internal/queue"
)

// Scheduler polls for due feeds and enqueues bank-sync work
type Scheduler struct {
	feeds    bank.FeedRepository
	queue    *queue.Queue
	interval time.Duration
	logger   *slog.Logger

	mu           sync.Mutex
	lastEnqueued map[uuid.UUID]time.Time
}

// New creates a scheduler polling at the given interval
func New(logger *slog.Logger, feeds bank.FeedRepository, q *queue.Queue, interval time.Duration) *Scheduler {
	return &Scheduler{
		feeds:        feeds,
		queue:        q,
		interval:     interval,
		logger:       logger,
		lastEnqueued: make(map[uuid.UUID]time.Time),
	}
}

// Run enqueues due feeds until the context is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Feed scheduler started", "interval", s.interval.String())

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Feed scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now().UTC()

	due, err := s.feeds.ListDue(ctx, now)
	if err != nil {
		s.logger.Error("Failed to list due bank feeds", "error", err)
		return
	}

	for _, feed := range due {
		if !s.shouldEnqueue(feed, now) {
			continue
		}

		_, err := s.queue.Enqueue(ctx, syncjob.LaneBankSync, feed.TenantID, feed.AccountRef,
			queue.BankSyncPayload{FeedID: feed.ID})
		if err != nil {
			s.logger.Error("Failed to enqueue bank-sync job",
				"feed_id", feed.ID.String(),
				"error", err)
			continue
		}

		s.markEnqueued(feed.ID, now)
		s.logger.Debug("Enqueued bank-sync job",
			"feed_id", feed.ID.String(),
			"bank", feed.Bank,
			"tenant_id", feed.TenantID.String())
	}
}

// shouldEnqueue suppresses duplicate jobs while a feed's previous sync is
// still in flight. A feed stays listed as due until its sync succeeds and
// bumps last_synced_at; without this check every tick would enqueue it
// again. Duplicates would still be harmless (ingestion is idempotent), just
// wasteful.
func (s *Scheduler) shouldEnqueue(feed *bank.Feed, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	last, ok := s.lastEnqueued[feed.ID]
	if ok && now.Sub(last) < feed.PollInterval {
		return false
	}
	return true
}

func (s *Scheduler) markEnqueued(id uuid.UUID, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEnqueued[id] = now
}
