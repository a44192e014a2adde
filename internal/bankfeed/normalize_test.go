package bankfeed

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrazilianDecimal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain comma decimal", "1234,56", "1234.56", false},
		{"with thousand dots", "1.234.567,89", "1234567.89", false},
		{"no decimal part", "1500", "1500", false},
		{"surrounding whitespace", " 12,30 ", "12.3", false},
		{"garbage", "abc", "", true},
		{"empty", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseBrazilianDecimal(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestSignFromIndicator(t *testing.T) {
	hundred := decimal.RequireFromString("100.00")

	t.Run("debit indicator negates", func(t *testing.T) {
		got, err := signFromIndicator(hundred, "D", "D")
		require.NoError(t, err)
		assert.True(t, got.Equal(hundred.Neg()))
	})

	t.Run("indicator comparison is case insensitive", func(t *testing.T) {
		got, err := signFromIndicator(hundred, " debito ", "DEBITO")
		require.NoError(t, err)
		assert.True(t, got.IsNegative())
	})

	t.Run("credit indicator keeps the sign", func(t *testing.T) {
		got, err := signFromIndicator(hundred, "C", "D")
		require.NoError(t, err)
		assert.True(t, got.Equal(hundred))
	})

	t.Run("negative wire amount is rejected", func(t *testing.T) {
		_, err := signFromIndicator(hundred.Neg(), "D", "D")
		assert.Error(t, err)
	})
}

func TestParseValueDate(t *testing.T) {
	t.Run("pins to UTC midnight", func(t *testing.T) {
		got, err := parseValueDate("2026-03-10T14:35:00-03:00", time.RFC3339)
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("brazilian layout", func(t *testing.T) {
		got, err := parseValueDate("10/03/2026", "02/01/2006")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), got)
	})

	t.Run("wrong layout errors", func(t *testing.T) {
		_, err := parseValueDate("2026-03-10", "02/01/2006")
		assert.Error(t, err)
	})
}

func TestReversalRef(t *testing.T) {
	assert.Nil(t, reversalRef(""))
	assert.Nil(t, reversalRef("   "))

	ref := reversalRef(" txn-9 ")
	require.NotNil(t, ref)
	assert.Equal(t, "txn-9", *ref)
}

func TestDefaultCurrency(t *testing.T) {
	assert.Equal(t, "BRL", defaultCurrency(""))
	assert.Equal(t, "BRL", defaultCurrency("  "))
	assert.Equal(t, "USD", defaultCurrency("usd"))
}
