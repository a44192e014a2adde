package bankfeed

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// parseBrazilianDecimal parses amounts written with thousand dots and a
// decimal comma, e.g. "1.234,56".
func parseBrazilianDecimal(s string) (decimal.Decimal, error) {
	cleaned := strings.ReplaceAll(strings.TrimSpace(s), ".", "")
	cleaned = strings.ReplaceAll(cleaned, ",", ".")
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// parsePlainDecimal parses dot-decimal amounts, e.g. "-1234.56"
func parsePlainDecimal(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return d, nil
}

// signFromIndicator applies a debit/credit indicator to an unsigned amount.
// Debits come out negative. The amount must be positive on the wire.
func signFromIndicator(amount decimal.Decimal, indicator string, debitValues ...string) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, fmt.Errorf("indicator-signed amount must be positive, got %s", amount)
	}
	upper := strings.ToUpper(strings.TrimSpace(indicator))
	for _, dv := range debitValues {
		if upper == dv {
			return amount.Neg(), nil
		}
	}
	return amount, nil
}

// parseValueDate parses a statement date in the given layout and pins it to
// UTC midnight so date arithmetic in the matching tiers is timezone-free.
func parseValueDate(s, layout string) (time.Time, error) {
	t, err := time.Parse(layout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid value date %q: %w", s, err)
	}
	return toUTCMidnight(t), nil
}

func toUTCMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// reversalRef trims a reversal reference, returning nil when the field was
// absent or blank so plain lines never look like reversals.
func reversalRef(s string) *string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

func defaultCurrency(s string) string {
	trimmed := strings.ToUpper(strings.TrimSpace(s))
	if trimmed == "" {
		return "BRL"
	}
	return trimmed
}
