package shared

import "fmt"

// PeriodLockKey builds redis keys guarding cut period batches.
func PeriodLockKey(periodID int64) string {
	return fmt.Sprintf("lending:period:%d:lock", periodID)
}

// ScheduleCacheKey builds the cache key for a loan amortization schedule.
func ScheduleCacheKey(loanID int64) string {
	return fmt.Sprintf("lending:loan:%d:schedule", loanID)
}
