package reconcile

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// normalizeText uppercases, strips punctuation and collapses whitespace so
// bank descriptions like "PIX TRANSF - ACME LTDA." and counterparty names
// like "Acme Ltda" compare cleanly.
func normalizeText(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := true
	for _, r := range strings.ToUpper(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}

	return strings.TrimSpace(b.String())
}

// similarity returns the normalized Levenshtein similarity of two strings
// in [0, 1], where 1 means identical after normalization.
func similarity(a, b string) float64 {
	na, nb := normalizeText(a), normalizeText(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	distance := levenshtein.ComputeDistance(na, nb)
	longest := len([]rune(na))
	if l := len([]rune(nb)); l > longest {
		longest = l
	}

	return 1 - float64(distance)/float64(longest)
}

// mentionsCounterparty reports whether the statement description names the
// counterparty outright. Used by the exact and fuzzy tiers; the heuristic
// tier falls back to similarity scoring.
func mentionsCounterparty(description, counterpartyName string) bool {
	name := normalizeText(counterpartyName)
	if name == "" {
		return false
	}
	return strings.Contains(normalizeText(description), name)
}
