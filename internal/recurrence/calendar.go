// Package recurrence implements the calendar arithmetic behind recurring
// task rules and report schedules. All functions are pure: no clock reads,
// no side effects, and monotonically increasing output for monotonically
// increasing input, which makes repeated application safe.
package recurrence

import (
	"time"

	"agencydesk/internal/types"
)

// NextOccurrence computes the next occurrence of a recurrence rule after
// previous.
//
// Weekly and biweekly cadences add 7 or 14 days. If dayOfWeek (0=Sunday..
// 6=Saturday) is supplied, the result is normalized onto that weekday within
// the week window produced by the addition, so the occurrence never drifts
// off its anchor.
//
// Monthly, quarterly, and semiannual cadences add 1, 3, or 6 calendar months.
// The target day is dayOfMonth when supplied, otherwise the previous
// occurrence's day; either way it is clamped to the last day of the resulting
// month, so a rule anchored to day 31 lands on day 28/29/30 in short months.
//
// Time of day and location are preserved from previous.
func NextOccurrence(previous time.Time, freq types.Frequency, dayOfWeek, dayOfMonth *int) time.Time {
	switch freq {
	case types.FrequencyWeekly:
		return nextWeekAligned(previous, 7, dayOfWeek)
	case types.FrequencyBiweekly:
		return nextWeekAligned(previous, 14, dayOfWeek)
	case types.FrequencyMonthly:
		return nextMonthClamped(previous, 1, dayOfMonth)
	case types.FrequencyQuarterly:
		return nextMonthClamped(previous, 3, dayOfMonth)
	case types.FrequencySemiannual:
		return nextMonthClamped(previous, 6, dayOfMonth)
	default:
		// Unknown cadence: advance a week so the pointer always moves forward.
		return previous.AddDate(0, 0, 7)
	}
}

// nextWeekAligned adds days to previous and, when a weekday anchor is set,
// shifts the result onto that weekday within the same week window.
func nextWeekAligned(previous time.Time, days int, dayOfWeek *int) time.Time {
	next := previous.AddDate(0, 0, days)
	if dayOfWeek == nil {
		return next
	}

	target := *dayOfWeek
	if target < 0 || target > 6 {
		return next
	}

	delta := target - int(next.Weekday())
	return next.AddDate(0, 0, delta)
}

// nextMonthClamped adds months to previous and clamps the day anchor to the
// length of the resulting month. It avoids time.AddDate's normalization
// (Jan 31 + 1 month = Mar 2/3) by constructing the date explicitly.
func nextMonthClamped(previous time.Time, months int, dayOfMonth *int) time.Time {
	year, month := previous.Year(), int(previous.Month())+months
	for month > 12 {
		month -= 12
		year++
	}

	day := previous.Day()
	if dayOfMonth != nil && *dayOfMonth >= 1 && *dayOfMonth <= 31 {
		day = *dayOfMonth
	}

	if last := lastDayOfMonth(year, time.Month(month)); day > last {
		day = last
	}

	return time.Date(year, time.Month(month), day,
		previous.Hour(), previous.Minute(), previous.Second(),
		previous.Nanosecond(), previous.Location())
}

// lastDayOfMonth returns the number of days in the given month.
func lastDayOfMonth(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
