package amortization

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credinet/credinet/internal/rates"
	"github.com/credinet/credinet/internal/shared"
)

var approval = time.Date(2025, 12, 1, 14, 30, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCalculateStandardScenario(t *testing.T) {
	s, err := Calculate(Input{
		Amount:               dec("10000"),
		TermBiweeks:          12,
		ClientRateAnnual:     dec("85"),
		CommissionRateAnnual: dec("25"),
		ApprovalDate:         approval,
	})
	require.NoError(t, err)

	assert.Equal(t, "3.5417", s.Summary.PeriodRate.StringFixed(4))
	assert.Equal(t, "1187.50", s.Summary.BiweeklyPayment.StringFixed(2))
	assert.Equal(t, "104.17", s.Summary.CommissionPerPayment.StringFixed(2))
	assert.Equal(t, "1083.33", s.Summary.AssociatePayment.StringFixed(2))
	assert.Equal(t, "14250.00", s.Summary.TotalPayment.StringFixed(2))
	assert.Equal(t, "4250.00", s.Summary.TotalInterest.StringFixed(2))
	assert.Equal(t, "1250.04", s.Summary.TotalCommission.StringFixed(2))

	require.Len(t, s.Rows, 12)
	first := time.Date(2025, 12, 16, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, first, s.Rows[0].DueDate)
	for i := 1; i < len(s.Rows); i++ {
		assert.Equal(t, 15*24*time.Hour, s.Rows[i].DueDate.Sub(s.Rows[i-1].DueDate))
		assert.Equal(t, i+1, s.Rows[i].Number)
	}
	assert.Equal(t, s.Rows[11].DueDate, s.Summary.LastDueDate)
	assert.True(t, s.Rows[11].BalanceAfter.IsZero())
}

func TestCalculateInvariantsHoldAcrossInputs(t *testing.T) {
	amounts := []string{"1000", "3500", "7250.50", "10000", "99999.99"}
	terms := []int{1, 6, 12, 13, 24, 52}
	clientRates := []string{"0", "12", "85", "102", "240"}
	for _, a := range amounts {
		for _, term := range terms {
			for _, r := range clientRates {
				s, err := Calculate(Input{
					Amount:               dec(a),
					TermBiweeks:          term,
					ClientRateAnnual:     dec(r),
					CommissionRateAnnual: decimal.Zero,
					ApprovalDate:         approval,
				})
				require.NoError(t, err)
				sum := s.Summary
				n := decimal.NewFromInt(int64(term))
				require.True(t, sum.TotalPayment.Equal(sum.BiweeklyPayment.Mul(n)))
				require.True(t, sum.TotalInterest.Equal(sum.TotalPayment.Sub(sum.Amount)))
				require.True(t, sum.AssociatePayment.Add(sum.CommissionPerPayment).Equal(sum.BiweeklyPayment))

				principal := decimal.Zero
				for _, row := range s.Rows {
					principal = principal.Add(row.Principal)
					require.True(t, row.Principal.Add(row.Interest).Equal(row.ExpectedAmount))
				}
				require.True(t, principal.Equal(dec(a)), "principal split must sum to amount")
			}
		}
	}
}

func TestCalculateCommissionSplit(t *testing.T) {
	for _, commission := range []string{"0", "10", "25", "30"} {
		s, err := Calculate(Input{
			Amount:               dec("8500"),
			TermBiweeks:          18,
			ClientRateAnnual:     dec("85"),
			CommissionRateAnnual: dec(commission),
			ApprovalDate:         approval,
		})
		require.NoError(t, err)
		for _, row := range s.Rows {
			require.True(t, row.AssociatePayment.Add(row.Commission).Equal(row.ExpectedAmount))
		}
	}
}

func TestCalculateRejectsInvalidInput(t *testing.T) {
	cases := map[string]Input{
		"term_biweeks":           {Amount: dec("1000"), TermBiweeks: 0, ApprovalDate: approval},
		"amount":                 {Amount: dec("-5"), TermBiweeks: 6, ApprovalDate: approval},
		"client_rate_annual":     {Amount: dec("1000"), TermBiweeks: 6, ClientRateAnnual: dec("-1"), ApprovalDate: approval},
		"commission_rate_annual": {Amount: dec("1000"), TermBiweeks: 6, ClientRateAnnual: dec("10"), CommissionRateAnnual: dec("9999"), ApprovalDate: approval},
		"approval_date":          {Amount: dec("1000"), TermBiweeks: 6},
	}
	for field, in := range cases {
		s, err := Calculate(in)
		var verr *shared.ValidationError
		require.True(t, errors.As(err, &verr), field)
		require.Equal(t, field, verr.Field)
		require.Empty(t, s.Rows)
	}
}

func TestDueDateSteps15Days(t *testing.T) {
	start := time.Date(2026, 1, 31, 9, 0, 0, 0, time.UTC)
	require.Equal(t, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), DueDate(start, 1))
	require.Equal(t, time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), DueDate(start, 2))
}

func catalog(t *testing.T) *rates.Catalog {
	t.Helper()
	c, err := rates.DefaultCatalog(decimal.NewFromInt(500))
	require.NoError(t, err)
	return c
}

func TestBuildQuoteStandard(t *testing.T) {
	q, err := BuildQuote(catalog(t), QuoteInput{
		ProfileCode:  rates.ProfileStandard,
		Amount:       dec("10000"),
		TermBiweeks:  12,
		ApprovalDate: approval,
	})
	require.NoError(t, err)
	require.Equal(t, "1187.50", q.Schedule.Summary.BiweeklyPayment.StringFixed(2))
	require.True(t, q.AssociateRateAnnual.Equal(dec("60")))
}

func TestBuildQuoteCustomRate(t *testing.T) {
	rate := dec("4")
	q, err := BuildQuote(catalog(t), QuoteInput{
		ProfileCode:  rates.ProfileCustom,
		Amount:       dec("5000"),
		TermBiweeks:  10,
		CustomRate:   &rate,
		ApprovalDate: approval,
	})
	require.NoError(t, err)
	require.True(t, q.ClientRateAnnual.Equal(dec("96")))
	// 5000/10 + 5000*0.04
	require.Equal(t, "700.00", q.Schedule.Summary.BiweeklyPayment.StringFixed(2))
}

func TestQuoteValidationFields(t *testing.T) {
	c := catalog(t)
	low := dec("0.4")
	ok := dec("3")
	cases := []struct {
		field string
		in    QuoteInput
	}{
		{"profile_code", QuoteInput{ProfileCode: "gold", Amount: dec("5000"), TermBiweeks: 12, ApprovalDate: approval}},
		{"profile_code", QuoteInput{ProfileCode: rates.ProfileLegacy, Amount: dec("5000"), TermBiweeks: 10, ApprovalDate: approval}},
		{"term_biweeks", QuoteInput{ProfileCode: rates.ProfileStandard, Amount: dec("5000"), TermBiweeks: 7, ApprovalDate: approval}},
		{"term_biweeks", QuoteInput{ProfileCode: rates.ProfileStandard, Amount: dec("5000"), TermBiweeks: 0, ApprovalDate: approval}},
		{"amount", QuoteInput{ProfileCode: rates.ProfileStandard, Amount: dec("5250"), TermBiweeks: 12, ApprovalDate: approval}},
		{"amount", QuoteInput{ProfileCode: rates.ProfileStandard, Amount: dec("50000"), TermBiweeks: 12, ApprovalDate: approval}},
		{"amount", QuoteInput{ProfileCode: rates.ProfileStandard, Amount: dec("5000.005"), TermBiweeks: 12, ApprovalDate: approval}},
		{"custom_interest_rate", QuoteInput{ProfileCode: rates.ProfileCustom, Amount: dec("5000"), TermBiweeks: 12, ApprovalDate: approval}},
		{"custom_interest_rate", QuoteInput{ProfileCode: rates.ProfileCustom, Amount: dec("5000"), TermBiweeks: 12, CustomRate: &low, ApprovalDate: approval}},
		{"custom_interest_rate", QuoteInput{ProfileCode: rates.ProfileStandard, Amount: dec("5000"), TermBiweeks: 12, CustomRate: &ok, ApprovalDate: approval}},
	}
	for _, tc := range cases {
		_, err := BuildQuote(c, tc.in)
		var verr *shared.ValidationError
		require.True(t, errors.As(err, &verr), "%s: %v", tc.field, err)
		require.Equal(t, tc.field, verr.Field)
	}
}
