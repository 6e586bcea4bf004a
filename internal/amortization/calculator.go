// Package amortization computes flat-rate biweekly payment schedules.
package amortization

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/credinet/credinet/internal/shared"
)

const (
	// PeriodsPerYear is the number of quincenas in a year.
	PeriodsPerYear = 24
	// DaysPerPeriod separates consecutive due dates.
	DaysPerPeriod = 15
)

var periodsPerYear = decimal.NewFromInt(PeriodsPerYear)

// Input describes a schedule request. Rates are annual percentages.
type Input struct {
	Amount               decimal.Decimal
	TermBiweeks          int
	ClientRateAnnual     decimal.Decimal
	CommissionRateAnnual decimal.Decimal
	ApprovalDate         time.Time
}

// Row is one installment draft.
type Row struct {
	Number           int             `json:"payment_number"`
	DueDate          time.Time       `json:"payment_due_date"`
	ExpectedAmount   decimal.Decimal `json:"expected_amount"`
	Principal        decimal.Decimal `json:"principal_amount"`
	Interest         decimal.Decimal `json:"interest_amount"`
	Commission       decimal.Decimal `json:"commission_amount"`
	AssociatePayment decimal.Decimal `json:"associate_payment"`
	BalanceAfter     decimal.Decimal `json:"balance_after"`
}

// Summary aggregates a schedule. Every figure is recomputable from Amount, term and rates.
type Summary struct {
	Amount                decimal.Decimal `json:"amount"`
	TermBiweeks           int             `json:"term_biweeks"`
	ClientRateAnnual      decimal.Decimal `json:"client_rate_annual"`
	CommissionRateAnnual  decimal.Decimal `json:"commission_rate_annual"`
	PeriodRate            decimal.Decimal `json:"period_rate"`
	BiweeklyPayment       decimal.Decimal `json:"biweekly_payment"`
	TotalPayment          decimal.Decimal `json:"total_payment"`
	TotalInterest         decimal.Decimal `json:"total_interest"`
	CommissionPerPayment  decimal.Decimal `json:"commission_per_payment"`
	AssociatePayment      decimal.Decimal `json:"associate_payment"`
	TotalCommission       decimal.Decimal `json:"total_commission"`
	TotalAssociatePayment decimal.Decimal `json:"total_associate_payment"`
	FirstDueDate          time.Time       `json:"first_due_date"`
	LastDueDate           time.Time       `json:"last_due_date"`
}

// Schedule pairs a summary with ordered rows.
type Schedule struct {
	Summary Summary `json:"summary"`
	Rows    []Row   `json:"rows"`
}

// Validate checks the raw calculator input.
func (in Input) Validate() error {
	if in.TermBiweeks <= 0 {
		return shared.Invalid("term_biweeks", "must be greater than zero")
	}
	if err := shared.RequirePositive("amount", in.Amount); err != nil {
		return err
	}
	if in.ClientRateAnnual.IsNegative() {
		return shared.Invalid("client_rate_annual", "cannot be negative")
	}
	if in.CommissionRateAnnual.IsNegative() {
		return shared.Invalid("commission_rate_annual", "cannot be negative")
	}
	if in.ApprovalDate.IsZero() {
		return shared.Invalid("approval_date", "required")
	}
	return nil
}

// PeriodRate converts an annual percentage to a per-quincena ratio.
func PeriodRate(annualPercent decimal.Decimal) decimal.Decimal {
	return shared.Percent(annualPercent).Div(periodsPerYear)
}

// Calculate produces the schedule. Rounding happens once per published figure.
func Calculate(in Input) (Schedule, error) {
	if err := in.Validate(); err != nil {
		return Schedule{}, err
	}
	term := decimal.NewFromInt(int64(in.TermBiweeks))
	rate := PeriodRate(in.ClientRateAnnual)

	biweekly := shared.Round2(in.Amount.Div(term).Add(in.Amount.Mul(rate)))
	commission := shared.Round2(in.Amount.Mul(PeriodRate(in.CommissionRateAnnual)))
	if commission.GreaterThan(biweekly) {
		return Schedule{}, shared.Invalid("commission_rate_annual", "commission exceeds the biweekly payment")
	}
	associatePayment := biweekly.Sub(commission)
	totalPayment := biweekly.Mul(term)

	start := dateOnly(in.ApprovalDate)
	principalShare := shared.Round2(in.Amount.Div(term))
	rows := make([]Row, 0, in.TermBiweeks)
	balance := in.Amount
	for n := 1; n <= in.TermBiweeks; n++ {
		principal := principalShare
		if n == in.TermBiweeks {
			principal = balance
		}
		balance = balance.Sub(principal)
		rows = append(rows, Row{
			Number:           n,
			DueDate:          DueDate(start, n),
			ExpectedAmount:   biweekly,
			Principal:        principal,
			Interest:         biweekly.Sub(principal),
			Commission:       commission,
			AssociatePayment: associatePayment,
			BalanceAfter:     balance,
		})
	}

	return Schedule{
		Summary: Summary{
			Amount:                in.Amount,
			TermBiweeks:           in.TermBiweeks,
			ClientRateAnnual:      in.ClientRateAnnual,
			CommissionRateAnnual:  in.CommissionRateAnnual,
			PeriodRate:            rate.Mul(shared.Hundred).Round(4),
			BiweeklyPayment:       biweekly,
			TotalPayment:          totalPayment,
			TotalInterest:         totalPayment.Sub(in.Amount),
			CommissionPerPayment:  commission,
			AssociatePayment:      associatePayment,
			TotalCommission:       commission.Mul(term),
			TotalAssociatePayment: associatePayment.Mul(term),
			FirstDueDate:          rows[0].DueDate,
			LastDueDate:           rows[len(rows)-1].DueDate,
		},
		Rows: rows,
	}, nil
}

// DueDate returns the n-th due date: n quincenas of exactly 15 days after start.
func DueDate(start time.Time, n int) time.Time {
	return dateOnly(start).AddDate(0, 0, DaysPerPeriod*n)
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
