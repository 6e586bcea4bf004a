package shared

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestRound2HalfAwayFromZero(t *testing.T) {
	require.Equal(t, "1.13", Round2(decimal.RequireFromString("1.125")).StringFixed(2))
	require.Equal(t, "1.12", Round2(decimal.RequireFromString("1.1249")).StringFixed(2))
	require.Equal(t, "-1.13", Round2(decimal.RequireFromString("-1.125")).StringFixed(2))
}

func TestParseAmount(t *testing.T) {
	d, err := ParseAmount("amount", " 500.50 ")
	require.NoError(t, err)
	require.True(t, d.Equal(decimal.RequireFromString("500.5")))

	_, err = ParseAmount("amount", "")
	require.ErrorIs(t, err, ErrValidation)
	_, err = ParseAmount("amount", "abc")
	require.ErrorIs(t, err, ErrValidation)
	_, err = ParseAmount("amount", "10.005")
	require.ErrorIs(t, err, ErrValidation)

	d, err = ParseAmount("amount", "10.500")
	require.NoError(t, err)
	require.Equal(t, "10.50", d.StringFixed(2))
}

func TestRequirePositiveRejectsSubCentAmounts(t *testing.T) {
	cases := []struct {
		raw string
		ok  bool
	}{
		{"0.01", true},
		{"1187.50", true},
		{"100", true},
		{"2.1000", true},
		{"0.005", false},
		{"0.004", false},
		{"1187.495", false},
		{"0", false},
		{"-1", false},
	}
	for _, tc := range cases {
		err := RequirePositive("amount", decimal.RequireFromString(tc.raw))
		if tc.ok {
			require.NoError(t, err, tc.raw)
			continue
		}
		var verr *ValidationError
		require.ErrorAs(t, err, &verr, tc.raw)
		require.Equal(t, "amount", verr.Field)
	}
}

func TestNewPageClamps(t *testing.T) {
	require.Equal(t, Page{Limit: 50, Offset: 0}, NewPage(0, -3))
	require.Equal(t, Page{Limit: 500, Offset: 10}, NewPage(10000, 10))
}
