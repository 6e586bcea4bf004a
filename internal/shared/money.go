package shared

import (
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// Cent is the settlement tolerance for floating residue on statements.
	Cent = decimal.New(1, -2)
	// Hundred converts percent figures to ratios.
	Hundred = decimal.NewFromInt(100)
)

// Round2 rounds to cents, half away from zero.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Percent converts a percent figure (85 for 85%) into a ratio.
func Percent(p decimal.Decimal) decimal.Decimal {
	return p.Div(Hundred)
}

// ParseAmount parses a money string, rejecting empty or malformed input.
func ParseAmount(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, Invalid(field, "required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, Invalid(field, "must be a decimal number")
	}
	if err := RequireCents(field, d); err != nil {
		return decimal.Zero, err
	}
	return d, nil
}

// RequireCents rejects amounts that NUMERIC(14,2) columns would round on write.
func RequireCents(field string, amount decimal.Decimal) error {
	if amount.Exponent() < -2 && !amount.Equal(amount.Truncate(2)) {
		return Invalid(field, "at most 2 decimal places")
	}
	return nil
}

// RequirePositive validates amount > 0 with cent precision.
func RequirePositive(field string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return Invalid(field, "must be greater than zero")
	}
	return RequireCents(field, amount)
}
