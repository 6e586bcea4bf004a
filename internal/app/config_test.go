package app

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.True(t, cfg.LateFeeRate.Equal(decimal.RequireFromString("0.30")))
	assert.True(t, cfg.LoanAmountIncrement.Equal(decimal.NewFromInt(500)))
	assert.Equal(t, 10*time.Minute, cfg.ScheduleCacheTTL)
	assert.Equal(t, 120, cfg.RateLimitPerMinute)
	assert.Equal(t, "0 6 8,23 * *", cfg.CutoffCron)
	assert.Equal(t, 2*time.Minute, cfg.LockTTL)
	assert.Equal(t, 72*time.Hour, cfg.IdempotencyRetention)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("LATE_FEE_RATE", "0.25")
	t.Setenv("LOAN_AMOUNT_INCREMENT", "250")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "0.25", cfg.LateFeeRate.String())
	assert.Equal(t, "250", cfg.LoanAmountIncrement.String())
}

func TestLoadConfigRejectsBusinessKnobs(t *testing.T) {
	cases := map[string][2]string{
		"fee above one":      {"LATE_FEE_RATE", "1.5"},
		"zero fee":           {"LATE_FEE_RATE", "0"},
		"negative increment": {"LOAN_AMOUNT_INCREMENT", "-500"},
		"negative limit":     {"RATE_LIMIT_PER_MINUTE", "-1"},
		"zero retention":     {"IDEMPOTENCY_RETENTION", "0s"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := LoadConfig()
			require.Error(t, err)
		})
	}
}

func TestNilConfigIsNotProduction(t *testing.T) {
	var cfg *Config
	assert.False(t, cfg.IsProduction())
}
