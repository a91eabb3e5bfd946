package analytics

import "costwatch/internal/core"

// PreviousPeriod derives the comparison window for a filter set: the
// immediately preceding window of equal length, ending the day before
// the current window starts. Cloud, currency and allow-lists carry over
// unchanged.
func PreviousPeriod(f core.QueryFilters) core.QueryFilters {
	days := f.RangeDays()
	return f.WithRange(f.Start.AddDays(-days), f.End.AddDays(-days))
}
