package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercase and punctuation", "Acme Ltda.", "ACME LTDA"},
		{"statement prefix", "PIX TRANSF - ACME LTDA.", "PIX TRANSF ACME LTDA"},
		{"collapses whitespace", "  ACME   LTDA  ", "ACME LTDA"},
		{"keeps digits", "NF 12345 ACME", "NF 12345 ACME"},
		{"empty", "", ""},
		{"only punctuation", "-- // --", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeText(tt.input))
		})
	}
}

func TestSimilarity(t *testing.T) {
	t.Run("identical after normalization", func(t *testing.T) {
		assert.Equal(t, 1.0, similarity("Acme Ltda.", "ACME LTDA"))
	})

	t.Run("close names score high", func(t *testing.T) {
		assert.Greater(t, similarity("ACME COMERCIO LTD", "ACME COMERCIO LTDA"), 0.9)
	})

	t.Run("unrelated names score low", func(t *testing.T) {
		assert.Less(t, similarity("TARIFA BANCARIA", "Acme Ltda"), 0.5)
	})

	t.Run("empty input scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, similarity("", "Acme Ltda"))
		assert.Equal(t, 0.0, similarity("Acme Ltda", ""))
	})
}

func TestMentionsCounterparty(t *testing.T) {
	tests := []struct {
		name         string
		description  string
		counterparty string
		want         bool
	}{
		{"exact mention", "PAGAMENTO FORNECEDOR ACME LTDA", "Acme Ltda", true},
		{"mention with punctuation", "PIX TRANSF - ACME LTDA.", "Acme Ltda", true},
		{"no mention", "TED RECEBIDA 998877", "Acme Ltda", false},
		{"empty counterparty never matches", "PAGAMENTO", "", false},
		{"partial name is not containment", "PAGAMENTO ACM", "Acme Ltda", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mentionsCounterparty(tt.description, tt.counterparty))
		})
	}
}
