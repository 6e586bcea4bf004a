package periods

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestCutDatesCoverEighthAndTwentyThird(t *testing.T) {
	cuts := CutDates(2026)
	require.Len(t, cuts, 24)
	require.Equal(t, date(2026, time.January, 8), cuts[0])
	require.Equal(t, date(2026, time.January, 23), cuts[1])
	require.Equal(t, date(2026, time.December, 23), cuts[23])
	for i := 1; i < len(cuts); i++ {
		require.True(t, cuts[i].After(cuts[i-1]))
	}
}

func TestBuildPeriod(t *testing.T) {
	p, err := BuildPeriod(date(2026, time.January, 8))
	require.NoError(t, err)
	require.Equal(t, "Jan08-2026", p.Code)
	require.Equal(t, date(2025, time.December, 24), p.StartDate)
	require.Equal(t, date(2026, time.January, 8), p.EndDate)
	require.Equal(t, date(2026, time.January, 15), p.PaymentDate)
	require.Equal(t, StatusPending, p.Status)

	p, err = BuildPeriod(date(2026, time.March, 23))
	require.NoError(t, err)
	require.Equal(t, "Mar23-2026", p.Code)
	require.Equal(t, date(2026, time.March, 9), p.StartDate)
	require.Equal(t, date(2026, time.March, 30), p.PaymentDate)

	_, err = BuildPeriod(date(2026, time.March, 15))
	require.Error(t, err)
}

func TestConsecutivePeriodsTile(t *testing.T) {
	cuts := CutDates(2026)
	for i := 1; i < len(cuts); i++ {
		prev, err := BuildPeriod(cuts[i-1])
		require.NoError(t, err)
		cur, err := BuildPeriod(cuts[i])
		require.NoError(t, err)
		require.Equal(t, prev.EndDate.AddDate(0, 0, 1), cur.StartDate, cur.Code)
	}
}

func TestNextCut(t *testing.T) {
	require.Equal(t, date(2026, time.January, 8), NextCut(date(2026, time.January, 1)))
	require.Equal(t, date(2026, time.January, 8), NextCut(date(2026, time.January, 8)))
	require.Equal(t, date(2026, time.January, 23), NextCut(date(2026, time.January, 9)))
	require.Equal(t, date(2027, time.January, 8), NextCut(date(2026, time.December, 24)))
}

func TestStatusLinearAndLegacy(t *testing.T) {
	require.Equal(t, StatusPending, StatusLegacyActive.Normalize())
	next, ok := StatusLegacyActive.Next()
	require.True(t, ok)
	require.Equal(t, StatusCutoff, next)
	_, ok = StatusClosed.Next()
	require.False(t, ok)
	require.True(t, StatusCutoff.AcceptsAbonos())
	require.True(t, StatusCollecting.AcceptsAbonos())
	require.False(t, StatusSettling.AcceptsAbonos())
	require.False(t, Status("BOGUS").Valid())
	require.True(t, StatusLegacyActive.Valid())
}
