// Package period contains the billing-period arithmetic used by the
// rollover job. Periods are calendar months anchored at the moment the
// subscription was activated.
package period

import "time"

// Elapsed counts the number of whole billing periods between start and now.
// A period ends on the same day-of-month the subscription started; months
// without that day roll over on their last day (Go's AddDate semantics).
// Returns 0 when now is before the end of the first period.
func Elapsed(start, now time.Time) int {
	if !start.Before(now) {
		return 0
	}
	elapsed := 0
	for !start.AddDate(0, elapsed+1, 0).After(now) {
		elapsed++
	}
	return elapsed
}

// Advance returns the period anchor moved forward by n periods.
func Advance(start time.Time, n int) time.Time {
	return start.AddDate(0, n, 0)
}
