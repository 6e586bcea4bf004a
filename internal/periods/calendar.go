package periods

import (
	"fmt"
	"time"
)

// Cut days of every month.
var CutDays = [2]int{8, 23}

// PaymentGraceDays separates the cut date from the associate payment date.
const PaymentGraceDays = 7

// CodeLayout renders period codes such as Jan08-2026.
const CodeLayout = "Jan02-2006"

// CutDates returns the cut dates of a year in order.
func CutDates(year int) []time.Time {
	out := make([]time.Time, 0, 24)
	for m := time.January; m <= time.December; m++ {
		for _, d := range CutDays {
			out = append(out, time.Date(year, m, d, 0, 0, 0, 0, time.UTC))
		}
	}
	return out
}

// PreviousCut returns the cut date preceding cut.
func PreviousCut(cut time.Time) time.Time {
	cut = day(cut)
	if cut.Day() == CutDays[1] {
		return time.Date(cut.Year(), cut.Month(), CutDays[0], 0, 0, 0, 0, time.UTC)
	}
	prevMonth := time.Date(cut.Year(), cut.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, -1, 0)
	return time.Date(prevMonth.Year(), prevMonth.Month(), CutDays[1], 0, 0, 0, 0, time.UTC)
}

// NextCut returns the first cut date on or after t.
func NextCut(t time.Time) time.Time {
	t = day(t)
	for _, d := range CutDays {
		c := time.Date(t.Year(), t.Month(), d, 0, 0, 0, 0, time.UTC)
		if !c.Before(t) {
			return c
		}
	}
	next := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return time.Date(next.Year(), next.Month(), CutDays[0], 0, 0, 0, 0, time.UTC)
}

// BuildPeriod derives the window that ends on cut.
func BuildPeriod(cut time.Time) (CutPeriod, error) {
	cut = day(cut)
	if cut.Day() != CutDays[0] && cut.Day() != CutDays[1] {
		return CutPeriod{}, fmt.Errorf("periods: %s is not a cut date", cut.Format(time.DateOnly))
	}
	return CutPeriod{
		Code:        cut.Format(CodeLayout),
		StartDate:   PreviousCut(cut).AddDate(0, 0, 1),
		EndDate:     cut,
		CutDate:     cut,
		PaymentDate: cut.AddDate(0, 0, PaymentGraceDays),
		Status:      StatusPending,
	}, nil
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
