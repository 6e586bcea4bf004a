// Package rates holds the catalog of named rate profiles offered to loans.
package rates

import (
	"github.com/shopspring/decimal"
)

// Well-known profile codes.
const (
	ProfileStandard = "standard"
	ProfilePremium  = "premium"
	ProfileLegacy   = "legacy"
	ProfileCustom   = "custom"
)

// Bounds on the per-quincena custom interest rate, in percent.
var (
	CustomRateMin = decimal.RequireFromString("0.5")
	CustomRateMax = decimal.RequireFromString("10")
)

// ProfileTerm holds the annual percentage rates for one term length.
type ProfileTerm struct {
	TermBiweeks          int             `json:"term_biweeks"`
	ClientRateAnnual     decimal.Decimal `json:"client_rate_annual"`
	AssociateRateAnnual  decimal.Decimal `json:"associate_rate_annual"`
	CommissionRateAnnual decimal.Decimal `json:"commission_rate_annual"`
}

// RateProfile is an immutable named tier of rates.
type RateProfile struct {
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	IsActive         bool            `json:"is_active"`
	AllowsCustomRate bool            `json:"allows_custom_rate"`
	MinAmount        decimal.Decimal `json:"min_amount"`
	MaxAmount        decimal.Decimal `json:"max_amount"`
	AmountStep       decimal.Decimal `json:"amount_step"`
	MaxTerm          int             `json:"max_term,omitempty"`
	Terms            []ProfileTerm   `json:"terms"`

	customCommission decimal.Decimal
}

// Term returns the term entry for the given length.
func (p RateProfile) Term(termBiweeks int) (ProfileTerm, bool) {
	if p.AllowsCustomRate {
		if termBiweeks < 1 || termBiweeks > p.MaxTerm {
			return ProfileTerm{}, false
		}
		return ProfileTerm{
			TermBiweeks:          termBiweeks,
			CommissionRateAnnual: p.customCommission,
		}, true
	}
	for _, t := range p.Terms {
		if t.TermBiweeks == termBiweeks {
			return t, true
		}
	}
	return ProfileTerm{}, false
}

// AmountAllowed reports whether amount lies within bounds and on the step grid.
func (p RateProfile) AmountAllowed(amount decimal.Decimal) bool {
	if amount.LessThan(p.MinAmount) || amount.GreaterThan(p.MaxAmount) {
		return false
	}
	if p.AmountStep.IsPositive() && !amount.Mod(p.AmountStep).IsZero() {
		return false
	}
	return true
}

// CustomCommissionRate returns the annual commission applied to custom-rate loans.
func (p RateProfile) CustomCommissionRate() decimal.Decimal {
	return p.customCommission
}
