// Package reconcile implements the matching engine and the committer that
// applies its outcomes to the store. The engine is pure: it evaluates one
// bank transaction against a set of candidate ledger entries and returns an
// outcome without touching persistence.
package reconcile

import (
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bpofinanceiro/reconciliation-service/internal/config"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/bank"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/ledger"
	"github.com/bpofinanceiro/reconciliation-service/internal/domain/reconciliation"
)

// Decision is the engine's verdict for one bank transaction
type Decision string

const (
	DecisionMatched   Decision = "MATCHED"
	DecisionAmbiguous Decision = "AMBIGUOUS"
	DecisionUnmatched Decision = "UNMATCHED"
)

// Outcome describes what the engine decided and why. For a matched outcome
// EntryIDs is the winning set; for an ambiguous one CandidateIDs holds every
// entry an operator should consider.
type Outcome struct {
	Decision     Decision
	Rule         reconciliation.Rule
	Confidence   float64
	EntryIDs     []uuid.UUID
	CandidateIDs []uuid.UUID
}

// Engine evaluates bank transactions against open ledger entries in three
// tiers: exact, fuzzy subset-sum, heuristic text similarity. The first tier
// that produces a unique winner decides; ties are ambiguous, never guessed.
type Engine struct {
	cfg config.ReconciliationConfig
}

// NewEngine creates a matching engine with the given thresholds
func NewEngine(cfg config.ReconciliationConfig) *Engine {
	return &Engine{cfg: cfg}
}

const confidenceEpsilon = 1e-9

// Evaluate runs the three matching tiers for one transaction. Candidates
// that are not matchable, have the wrong currency, or whose kind does not
// agree with the transaction's sign are filtered before any tier runs:
// debits settle payables, credits settle receivables.
func (e *Engine) Evaluate(txn *bank.Transaction, entries []*ledger.Entry) Outcome {
	amount := txn.Amount.Abs()
	wantKind := ledger.KindReceivable
	if txn.Amount.IsNegative() {
		wantKind = ledger.KindPayable
	}

	var candidates []*ledger.Entry
	for _, entry := range entries {
		if !entry.Matchable() || entry.Kind != wantKind || entry.Currency != txn.Currency {
			continue
		}
		candidates = append(candidates, entry)
	}

	if outcome, decided := e.exactTier(txn, amount, candidates); decided {
		return outcome
	}
	if outcome, decided := e.fuzzyTier(txn, amount, candidates); decided {
		return outcome
	}
	if outcome, decided := e.heuristicTier(txn, amount, candidates); decided {
		return outcome
	}

	return Outcome{Decision: DecisionUnmatched}
}

// exactTier looks for a single entry with the identical amount whose
// counterparty is named in the statement description and whose due date
// falls inside the window.
func (e *Engine) exactTier(txn *bank.Transaction, amount decimal.Decimal, candidates []*ledger.Entry) (Outcome, bool) {
	var hits []*ledger.Entry
	for _, entry := range candidates {
		if !entry.Amount.Equal(amount) {
			continue
		}
		if !e.withinWindow(entry, txn) {
			continue
		}
		if !mentionsCounterparty(txn.Description, entry.CounterpartyName) {
			continue
		}
		hits = append(hits, entry)
	}

	switch len(hits) {
	case 0:
		return Outcome{}, false
	case 1:
		return Outcome{
			Decision:   DecisionMatched,
			Rule:       reconciliation.RuleExact,
			Confidence: 1.0,
			EntryIDs:   []uuid.UUID{hits[0].ID},
		}, true
	default:
		// Equal amounts, same window, same counterparty mention: no basis
		// to pick one over another.
		return Outcome{
			Decision:     DecisionAmbiguous,
			Rule:         reconciliation.RuleExact,
			Confidence:   1.0,
			CandidateIDs: entryIDs(hits),
		}, true
	}
}

// fuzzyTier finds counterparty-grouped entry sets whose amounts sum exactly
// to the transaction amount. Confidence is scaled down by the worst date
// distance in the set; sets below the configured floor are discarded.
func (e *Engine) fuzzyTier(txn *bank.Transaction, amount decimal.Decimal, candidates []*ledger.Entry) (Outcome, bool) {
	groups := make(map[uuid.UUID][]*ledger.Entry)
	for _, entry := range candidates {
		if !e.withinWindow(entry, txn) {
			continue
		}
		if !mentionsCounterparty(txn.Description, entry.CounterpartyName) {
			continue
		}
		groups[entry.CounterpartyID] = append(groups[entry.CounterpartyID], entry)
	}

	var best float64
	var winning [][]*ledger.Entry
	for _, group := range groups {
		for _, set := range sumCombinations(group, amount, e.cfg.MaxCombination) {
			confidence := e.setConfidence(txn, set)
			if confidence < e.cfg.MinFuzzyConfidence {
				continue
			}
			switch {
			case confidence > best+confidenceEpsilon:
				best = confidence
				winning = [][]*ledger.Entry{set}
			case math.Abs(confidence-best) <= confidenceEpsilon:
				winning = append(winning, set)
			}
		}
	}

	switch len(winning) {
	case 0:
		return Outcome{}, false
	case 1:
		return Outcome{
			Decision:   DecisionMatched,
			Rule:       reconciliation.RuleFuzzy,
			Confidence: best,
			EntryIDs:   entryIDs(winning[0]),
		}, true
	default:
		seen := make(map[uuid.UUID]bool)
		var ids []uuid.UUID
		for _, set := range winning {
			for _, entry := range set {
				if !seen[entry.ID] {
					seen[entry.ID] = true
					ids = append(ids, entry.ID)
				}
			}
		}
		return Outcome{
			Decision:     DecisionAmbiguous,
			Rule:         reconciliation.RuleFuzzy,
			Confidence:   best,
			CandidateIDs: ids,
		}, true
	}
}

// heuristicTier proposes same-amount entries whose counterparty name merely
// resembles the statement description. Proposals are always ambiguous and
// the confidence is capped: this tier exists to help an operator, not to
// commit matches on its own.
func (e *Engine) heuristicTier(txn *bank.Transaction, amount decimal.Decimal, candidates []*ledger.Entry) (Outcome, bool) {
	var hits []*ledger.Entry
	var bestSimilarity float64
	for _, entry := range candidates {
		if !entry.Amount.Equal(amount) {
			continue
		}
		score := similarity(txn.Description, entry.CounterpartyName)
		if score < e.cfg.TextSimilarity {
			continue
		}
		if score > bestSimilarity {
			bestSimilarity = score
		}
		hits = append(hits, entry)
	}

	if len(hits) == 0 {
		return Outcome{}, false
	}

	confidence := bestSimilarity
	if confidence > e.cfg.HeuristicCap {
		confidence = e.cfg.HeuristicCap
	}

	return Outcome{
		Decision:     DecisionAmbiguous,
		Rule:         reconciliation.RuleHeuristic,
		Confidence:   confidence,
		CandidateIDs: entryIDs(hits),
	}, true
}

func (e *Engine) withinWindow(entry *ledger.Entry, txn *bank.Transaction) bool {
	return dateDistanceDays(entry.DueDate, txn.ValueDate) <= float64(e.cfg.DateWindowDays)
}

// setConfidence scales by the worst date distance in the set: 1.0 when every
// entry is due on the value date, approaching zero at the window edge.
func (e *Engine) setConfidence(txn *bank.Transaction, set []*ledger.Entry) float64 {
	var worst float64
	for _, entry := range set {
		if d := dateDistanceDays(entry.DueDate, txn.ValueDate); d > worst {
			worst = d
		}
	}
	return 1 - worst/float64(e.cfg.DateWindowDays)
}

func dateDistanceDays(a, b time.Time) float64 {
	return math.Abs(a.Sub(b).Hours()) / 24
}

// sumCombinations enumerates entry sets of size 2..maxSize whose amounts sum
// exactly to target. Entry lists per counterparty are small in practice, so
// plain recursive enumeration with a running-sum cutoff is enough.
func sumCombinations(entries []*ledger.Entry, target decimal.Decimal, maxSize int) [][]*ledger.Entry {
	var results [][]*ledger.Entry
	var current []*ledger.Entry

	var walk func(start int, sum decimal.Decimal)
	walk = func(start int, sum decimal.Decimal) {
		if sum.GreaterThan(target) {
			return
		}
		if sum.Equal(target) && len(current) >= 2 {
			results = append(results, append([]*ledger.Entry(nil), current...))
			return
		}
		if len(current) == maxSize {
			return
		}
		for i := start; i < len(entries); i++ {
			current = append(current, entries[i])
			walk(i+1, sum.Add(entries[i].Amount))
			current = current[:len(current)-1]
		}
	}
	walk(0, decimal.Zero)

	return results
}

func entryIDs(entries []*ledger.Entry) []uuid.UUID {
	ids := make([]uuid.UUID, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}
	return ids
}
