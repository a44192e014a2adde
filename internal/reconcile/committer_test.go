package reconcile

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpofinanceiro/reconciliation-service/internal/data/postgres"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/audit"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/bank"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/ledger"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/reconciliation"
)

// fakeLedgerRepo records status transitions without a database
type fakeLedgerRepo struct {
	open     []*ledger.Entry
	statuses map[uuid.UUID]ledger.Status
	refs     map[uuid.UUID]*uuid.UUID
}

func (f *fakeLedgerRepo) FindOpen(ctx context.Context, filter ledger.OpenFilter) ([]*ledger.Entry, error) {
	return f.open, nil
}

func (f *fakeLedgerRepo) GetByID(ctx context.Context, id uuid.UUID) (*ledger.Entry, error) {
	for _, e := range f.open {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, ledger.ErrEntryNotFound{ID: id}
}

func (f *fakeLedgerRepo) SetStatus(ctx context.Context, id uuid.UUID, status ledger.Status, matchID *uuid.UUID) error {
	f.statuses[id] = status
	f.refs[id] = matchID
	return nil
}

type fakeTxnRepo struct {
	unmatched  []*bank.Transaction
	byExternal map[string]*bank.Transaction
	statuses   map[uuid.UUID]bank.MatchStatus
	matchRefs  map[uuid.UUID]*uuid.UUID
	candidates map[uuid.UUID][]uuid.UUID
}

func (f *fakeTxnRepo) Append(ctx context.Context, txns []*bank.Transaction) (int, error) {
	return len(txns), nil
}

func (f *fakeTxnRepo) GetByID(ctx context.Context, id uuid.UUID) (*bank.Transaction, error) {
	return nil, bank.ErrTransactionNotFound{ID: id}
}

func (f *fakeTxnRepo) GetByExternalID(ctx context.Context, accountRef, externalID string) (*bank.Transaction, error) {
	txn, ok := f.byExternal[externalID]
	if !ok {
		return nil, nil
	}
	return txn, nil
}

func (f *fakeTxnRepo) ListUnmatched(ctx context.Context, accountRef string, limit int) ([]*bank.Transaction, error) {
	return f.unmatched, nil
}

func (f *fakeTxnRepo) SetMatchStatus(ctx context.Context, id uuid.UUID, status bank.MatchStatus, matchID *uuid.UUID) error {
	f.statuses[id] = status
	f.matchRefs[id] = matchID
	return nil
}

func (f *fakeTxnRepo) MarkAmbiguous(ctx context.Context, id uuid.UUID, candidateIDs []uuid.UUID) error {
	f.statuses[id] = bank.MatchStatusAmbiguous
	f.candidates[id] = candidateIDs
	return nil
}

func (f *fakeTxnRepo) ListAmbiguous(ctx context.Context, limit, offset int) ([]*bank.AmbiguousTransaction, error) {
	return nil, nil
}

func (f *fakeTxnRepo) CountByMatchStatus(ctx context.Context, from, to time.Time) (map[bank.MatchStatus]int64, error) {
	return nil, nil
}

type fakeMatchRepo struct {
	created []*reconciliation.Match
	current map[uuid.UUID]*reconciliation.Match
}

func (f *fakeMatchRepo) Create(ctx context.Context, match *reconciliation.Match) error {
	f.created = append(f.created, match)
	return nil
}

func (f *fakeMatchRepo) GetByID(ctx context.Context, id uuid.UUID) (*reconciliation.Match, error) {
	for _, m := range f.created {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, reconciliation.ErrMatchNotFound{ID: id}
}

func (f *fakeMatchRepo) GetCurrentByBankTransactionID(ctx context.Context, bankTransactionID uuid.UUID) (*reconciliation.Match, error) {
	return f.current[bankTransactionID], nil
}

type fakeAuditRepo struct {
	events []*audit.Event
}

func (f *fakeAuditRepo) Record(ctx context.Context, event *audit.Event) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakeAuditRepo) ListByTenant(ctx context.Context, tenantID uuid.UUID, limit, offset int) ([]*audit.Event, error) {
	return nil, nil
}

func (f *fakeAuditRepo) SaveReport(ctx context.Context, report *audit.Report) error {
	return nil
}

// fakeStore hands every call the same scope; transaction semantics are the
// real store's concern
type fakeStore struct {
	scope *postgres.Scope
}

func (f *fakeStore) WithTenant(ctx context.Context, tenantID uuid.UUID, fn func(ctx context.Context, scope *postgres.Scope) error) error {
	return fn(ctx, f.scope)
}

type committerFixture struct {
	tenantID  uuid.UUID
	ledger    *fakeLedgerRepo
	txns      *fakeTxnRepo
	matches   *fakeMatchRepo
	audit     *fakeAuditRepo
	committer *Committer
}

func newCommitterFixture(t *testing.T) *committerFixture {
	t.Helper()

	f := &committerFixture{
		tenantID: uuid.New(),
		ledger: &fakeLedgerRepo{
			statuses: make(map[uuid.UUID]ledger.Status),
			refs:     make(map[uuid.UUID]*uuid.UUID),
		},
		txns: &fakeTxnRepo{
			byExternal: make(map[string]*bank.Transaction),
			statuses:   make(map[uuid.UUID]bank.MatchStatus),
			matchRefs:  make(map[uuid.UUID]*uuid.UUID),
			candidates: make(map[uuid.UUID][]uuid.UUID),
		},
		matches: &fakeMatchRepo{current: make(map[uuid.UUID]*reconciliation.Match)},
		audit:   &fakeAuditRepo{},
	}

	scope := &postgres.Scope{
		TenantID:     f.tenantID,
		Ledger:       f.ledger,
		Transactions: f.txns,
		Matches:      f.matches,
	}
	f.committer = NewCommitter(slog.Default(), &fakeStore{scope: scope}, testEngine(), f.audit)
	return f
}

func reversalOf(externalID string) *bank.Transaction {
	txn := testTxn("1500.00", "ESTORNO PAGAMENTO ACME LTDA")
	txn.ExternalID = "ext-2"
	txn.ReversesExternalID = &externalID
	return txn
}

func TestCommitter_Reversal(t *testing.T) {
	ctx := context.Background()

	t.Run("reversal of a matched transaction supersedes and reopens entries", func(t *testing.T) {
		f := newCommitterFixture(t)

		first := testEntry("700.00", "Acme Ltda", ledger.KindPayable, day(0))
		second := testEntry("800.00", "Acme Ltda", ledger.KindPayable, day(0))

		original := testTxn("-1500.00", "PAGAMENTO ACME LTDA")
		original.MatchStatus = bank.MatchStatusMatched
		prior := reconciliation.NewMatch(f.tenantID, original.ID,
			[]uuid.UUID{first.ID, second.ID}, 1.0, reconciliation.RuleExact)

		f.txns.byExternal[original.ExternalID] = original
		f.matches.current[original.ID] = prior

		rev := reversalOf(original.ExternalID)
		f.txns.unmatched = []*bank.Transaction{rev}

		summary, err := f.committer.ReconcileAccount(ctx, f.tenantID, "12345-6")
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Reversed)
		require.Len(t, summary.Committed, 1)

		m := summary.Committed[0]
		assert.Equal(t, reconciliation.RuleReversal, m.Rule)
		assert.Equal(t, rev.ID, m.BankTransactionID)
		assert.Equal(t, 1.0, m.Confidence)
		require.NotNil(t, m.Supersedes)
		assert.Equal(t, prior.ID, *m.Supersedes)
		assert.ElementsMatch(t, prior.EntryIDs, m.EntryIDs)

		// Entries reopen with their match reference cleared.
		for _, id := range prior.EntryIDs {
			assert.Equal(t, ledger.StatusOpen, f.ledger.statuses[id])
			ref, ok := f.ledger.refs[id]
			require.True(t, ok)
			assert.Nil(t, ref)
		}

		// The original line is retired; the reversing line carries the new
		// match.
		assert.Equal(t, bank.MatchStatusIgnored, f.txns.statuses[original.ID])
		assert.Equal(t, bank.MatchStatusMatched, f.txns.statuses[rev.ID])
		require.NotNil(t, f.txns.matchRefs[rev.ID])
		assert.Equal(t, m.ID, *f.txns.matchRefs[rev.ID])

		// The prior record is retained, only the reversal was appended.
		require.Len(t, f.matches.created, 1)
		assert.Equal(t, m.ID, f.matches.created[0].ID)

		require.Len(t, f.audit.events, 1)
		assert.Equal(t, audit.ActionMatchReversed, f.audit.events[0].Action)
		assert.Equal(t, prior.ID.String(), f.audit.events[0].Details["superseded_match_id"])
	})

	t.Run("reversal of an unmatched transaction cancels both lines", func(t *testing.T) {
		f := newCommitterFixture(t)

		original := testTxn("-1500.00", "PAGAMENTO ACME LTDA")
		f.txns.byExternal[original.ExternalID] = original

		rev := reversalOf(original.ExternalID)
		f.txns.unmatched = []*bank.Transaction{rev}

		summary, err := f.committer.ReconcileAccount(ctx, f.tenantID, "12345-6")
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Reversed)
		assert.Empty(t, summary.Committed)
		assert.Empty(t, f.matches.created)
		assert.Equal(t, bank.MatchStatusIgnored, f.txns.statuses[original.ID])
		assert.Equal(t, bank.MatchStatusIgnored, f.txns.statuses[rev.ID])

		require.Len(t, f.audit.events, 1)
		assert.Equal(t, audit.ActionMatchReversed, f.audit.events[0].Action)
		assert.Equal(t, false, f.audit.events[0].Details["prior_match"])
	})

	t.Run("reversal of an unknown line stays unmatched", func(t *testing.T) {
		f := newCommitterFixture(t)

		rev := reversalOf("never-ingested")
		f.txns.unmatched = []*bank.Transaction{rev}

		summary, err := f.committer.ReconcileAccount(ctx, f.tenantID, "12345-6")
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Unmatched)
		assert.Empty(t, f.txns.statuses)
		assert.Empty(t, f.matches.created)
		assert.Empty(t, f.audit.events)
	})
}

func TestCommitter_AmbiguousRoutesToReview(t *testing.T) {
	f := newCommitterFixture(t)

	txn := testTxn("-1500.00", "PAGAMENTO ACME LTDA")
	first := testEntry("1500.00", "Acme Ltda", ledger.KindPayable, day(1))
	second := testEntry("1500.00", "Acme Ltda", ledger.KindPayable, day(-1))

	f.ledger.open = []*ledger.Entry{first, second}
	f.txns.unmatched = []*bank.Transaction{txn}

	summary, err := f.committer.ReconcileAccount(context.Background(), f.tenantID, "12345-6")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Ambiguous)
	assert.Empty(t, summary.Committed)
	assert.Empty(t, f.matches.created)
	assert.Equal(t, bank.MatchStatusAmbiguous, f.txns.statuses[txn.ID])
	assert.ElementsMatch(t, []uuid.UUID{first.ID, second.ID}, f.txns.candidates[txn.ID])

	require.Len(t, f.audit.events, 1)
	assert.Equal(t, audit.ActionMarkedAmbiguous, f.audit.events[0].Action)
}

func TestCommitter_MatchedOutcome(t *testing.T) {
	ctx := context.Background()

	t.Run("settled transaction pays the entry", func(t *testing.T) {
		f := newCommitterFixture(t)

		txn := testTxn("-1500.00", "PAGAMENTO ACME LTDA")
		txn.Settled = true
		entry := testEntry("1500.00", "Acme Ltda", ledger.KindPayable, day(0))

		f.ledger.open = []*ledger.Entry{entry}
		f.txns.unmatched = []*bank.Transaction{txn}

		summary, err := f.committer.ReconcileAccount(ctx, f.tenantID, "12345-6")
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Matched)
		require.Len(t, summary.Committed, 1)

		m := summary.Committed[0]
		assert.Equal(t, ledger.StatusPaid, f.ledger.statuses[entry.ID])
		require.NotNil(t, f.ledger.refs[entry.ID])
		assert.Equal(t, m.ID, *f.ledger.refs[entry.ID])
		assert.Equal(t, bank.MatchStatusMatched, f.txns.statuses[txn.ID])

		require.Len(t, f.audit.events, 1)
		assert.Equal(t, audit.ActionMatchCommitted, f.audit.events[0].Action)
	})

	t.Run("provisional transaction only marks the entry", func(t *testing.T) {
		f := newCommitterFixture(t)

		txn := testTxn("-1500.00", "PAGAMENTO ACME LTDA")
		txn.Settled = false
		entry := testEntry("1500.00", "Acme Ltda", ledger.KindPayable, day(0))

		f.ledger.open = []*ledger.Entry{entry}
		f.txns.unmatched = []*bank.Transaction{txn}

		summary, err := f.committer.ReconcileAccount(ctx, f.tenantID, "12345-6")
		require.NoError(t, err)

		assert.Equal(t, 1, summary.Matched)
		assert.Equal(t, ledger.StatusMatched, f.ledger.statuses[entry.ID])
	})
}
