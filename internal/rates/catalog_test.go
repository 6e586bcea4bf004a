package rates

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/credinet/credinet/internal/shared"
)

func defaultCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := DefaultCatalog(decimal.NewFromInt(500))
	require.NoError(t, err)
	return c
}

func TestDefaultCatalogStandardTerm(t *testing.T) {
	c := defaultCatalog(t)
	term, err := c.Lookup(ProfileStandard, 12)
	require.NoError(t, err)
	require.True(t, term.ClientRateAnnual.Equal(decimal.NewFromInt(85)))
	require.True(t, term.CommissionRateAnnual.Equal(decimal.NewFromInt(25)))
}

func TestLookupUnknownTermIsNotFound(t *testing.T) {
	c := defaultCatalog(t)
	_, err := c.Lookup(ProfileStandard, 13)
	require.ErrorIs(t, err, shared.ErrNotFound)
	_, err = c.Lookup("gold", 12)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestInactiveProfileRejectedForLookup(t *testing.T) {
	c := defaultCatalog(t)
	_, err := c.Lookup(ProfileLegacy, 10)
	require.ErrorIs(t, err, shared.ErrNotFound)

	p, err := c.Profile(ProfileLegacy)
	require.NoError(t, err)
	require.False(t, p.IsActive)
}

func TestCustomProfileOffersAnyTermUpToMax(t *testing.T) {
	c := defaultCatalog(t)
	term, err := c.Lookup(ProfileCustom, 7)
	require.NoError(t, err)
	require.True(t, term.ClientRateAnnual.IsZero())
	require.True(t, term.CommissionRateAnnual.Equal(decimal.NewFromInt(25)))

	_, err = c.Lookup(ProfileCustom, 53)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestAmountAllowed(t *testing.T) {
	c := defaultCatalog(t)
	p, err := c.Profile(ProfileStandard)
	require.NoError(t, err)
	require.True(t, p.AmountAllowed(decimal.NewFromInt(10000)))
	require.False(t, p.AmountAllowed(decimal.NewFromInt(10250)))
	require.False(t, p.AmountAllowed(decimal.NewFromInt(2500)))
	require.False(t, p.AmountAllowed(decimal.NewFromInt(30500)))
}

func TestDefaultCatalogFollowsConfiguredIncrement(t *testing.T) {
	c, err := DefaultCatalog(decimal.NewFromInt(250))
	require.NoError(t, err)

	standard, err := c.Profile(ProfileStandard)
	require.NoError(t, err)
	require.True(t, standard.AmountStep.Equal(decimal.NewFromInt(250)))
	require.True(t, standard.AmountAllowed(decimal.NewFromInt(10250)))

	legacy, err := c.Profile(ProfileLegacy)
	require.NoError(t, err)
	require.True(t, legacy.AmountStep.Equal(decimal.NewFromInt(250)))

	premium, err := c.Profile(ProfilePremium)
	require.NoError(t, err)
	require.True(t, premium.AmountStep.Equal(decimal.NewFromInt(1000)))
}

func TestParseUsesDefaultStep(t *testing.T) {
	raw := []byte(`
profiles:
  - code: flat
    name: Flat
    active: true
    min_amount: "100"
    max_amount: "1000"
    terms:
      - { term: 4, client: "48", associate: "36", commission: "12" }
`)
	c, err := Parse(raw, decimal.NewFromInt(50))
	require.NoError(t, err)
	p, err := c.Profile("flat")
	require.NoError(t, err)
	require.True(t, p.AmountStep.Equal(decimal.NewFromInt(50)))
	require.Len(t, c.Profiles(), 1)
}

func TestParseRejectsDuplicates(t *testing.T) {
	raw := []byte(`
profiles:
  - { code: a, name: A, active: true, min_amount: "1", max_amount: "2", terms: [] }
  - { code: a, name: A, active: true, min_amount: "1", max_amount: "2", terms: [] }
`)
	_, err := Parse(raw, decimal.NewFromInt(1))
	require.Error(t, err)
}
