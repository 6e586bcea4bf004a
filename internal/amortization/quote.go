package amortization

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/rates"
	"github.com/credinet/credinet/internal/shared"
)

// Catalog resolves rate profiles.
type Catalog interface {
	Profile(code string) (rates.RateProfile, error)
	Lookup(code string, termBiweeks int) (rates.ProfileTerm, error)
}

// QuoteInput requests a schedule for a profile. CustomRate is a per-quincena percentage.
type QuoteInput struct {
	ProfileCode  string
	Amount       decimal.Decimal
	TermBiweeks  int
	CustomRate   *decimal.Decimal
	ApprovalDate time.Time
}

// Quote is a resolved profile term plus the resulting schedule.
type Quote struct {
	ProfileCode          string          `json:"profile_code"`
	ClientRateAnnual     decimal.Decimal `json:"client_rate_annual"`
	AssociateRateAnnual  decimal.Decimal `json:"associate_rate_annual"`
	CommissionRateAnnual decimal.Decimal `json:"commission_rate_annual"`
	Schedule             Schedule        `json:"schedule"`
}

// Rates resolves and validates the rates a loan would snapshot, without building rows.
func Rates(catalog Catalog, in QuoteInput) (rates.ProfileTerm, error) {
	if in.TermBiweeks <= 0 {
		return rates.ProfileTerm{}, shared.Invalid("term_biweeks", "must be greater than zero")
	}
	if err := shared.RequirePositive("amount", in.Amount); err != nil {
		return rates.ProfileTerm{}, err
	}
	profile, err := catalog.Profile(in.ProfileCode)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return rates.ProfileTerm{}, shared.Invalid("profile_code", "unknown rate profile %q", in.ProfileCode)
		}
		return rates.ProfileTerm{}, err
	}
	if !profile.IsActive {
		return rates.ProfileTerm{}, shared.Invalid("profile_code", "rate profile %q is not offered", in.ProfileCode)
	}
	term, err := catalog.Lookup(in.ProfileCode, in.TermBiweeks)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return rates.ProfileTerm{}, shared.Invalid("term_biweeks", "term %d not offered by profile %q", in.TermBiweeks, in.ProfileCode)
		}
		return rates.ProfileTerm{}, err
	}
	if !profile.AmountAllowed(in.Amount) {
		return rates.ProfileTerm{}, shared.Invalid("amount", "must be between %s and %s in steps of %s",
			profile.MinAmount.StringFixed(2), profile.MaxAmount.StringFixed(2), profile.AmountStep.String())
	}
	if profile.AllowsCustomRate {
		if in.CustomRate == nil {
			return rates.ProfileTerm{}, shared.Invalid("custom_interest_rate", "required for profile %q", in.ProfileCode)
		}
		r := *in.CustomRate
		if r.LessThan(rates.CustomRateMin) || r.GreaterThan(rates.CustomRateMax) {
			return rates.ProfileTerm{}, shared.Invalid("custom_interest_rate", "must be between %s and %s percent",
				rates.CustomRateMin.String(), rates.CustomRateMax.String())
		}
		term.ClientRateAnnual = r.Mul(periodsPerYear)
		term.AssociateRateAnnual = term.ClientRateAnnual.Sub(term.CommissionRateAnnual)
		return term, nil
	}
	if in.CustomRate != nil {
		return rates.ProfileTerm{}, shared.Invalid("custom_interest_rate", "only allowed for the custom profile")
	}
	return term, nil
}

// BuildQuote resolves rates and computes the full schedule.
func BuildQuote(catalog Catalog, in QuoteInput) (Quote, error) {
	term, err := Rates(catalog, in)
	if err != nil {
		return Quote{}, err
	}
	schedule, err := Calculate(Input{
		Amount:               in.Amount,
		TermBiweeks:          in.TermBiweeks,
		ClientRateAnnual:     term.ClientRateAnnual,
		CommissionRateAnnual: term.CommissionRateAnnual,
		ApprovalDate:         in.ApprovalDate,
	})
	if err != nil {
		return Quote{}, err
	}
	return Quote{
		ProfileCode:          in.ProfileCode,
		ClientRateAnnual:     term.ClientRateAnnual,
		AssociateRateAnnual:  term.AssociateRateAnnual,
		CommissionRateAnnual: term.CommissionRateAnnual,
		Schedule:             schedule,
	}, nil
}
