package analytics

import (
	"context"

	"golang.org/x/sync/errgroup"

	"costwatch/internal/core"
)

// Summarize builds the composite reporting payload for a filter window.
//
// The reference date anchors the month-to-date and year-to-date windows;
// callers pass the date they are reporting against instead of this code
// reading the clock, so historical queries stay deterministic. A zero
// reference defaults to the window's end date.
//
// Sub-results have no ordering dependency on each other and are computed
// concurrently, then joined. Rate resolution cannot fail; any fact query
// failure aborts the whole summary.
func (s *Service) Summarize(ctx context.Context, f core.QueryFilters, ref core.Date) (core.Summary, error) {
	if err := f.Validate(); err != nil {
		return core.Summary{}, err
	}
	if ref.IsZero() {
		ref = f.End
	}

	rangeDays := f.RangeDays()
	prev := PreviousPeriod(f)
	monthFilters := f.WithRange(ref.MonthStart(), ref)
	yearFilters := f.WithRange(ref.YearStart(), ref)

	var (
		periodTotal float64
		prevTotal   float64
		monthTotal  float64
		yearTotal   float64
		daily       []core.TimeseriesPoint
		rate        float64
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		periodTotal, err = s.facts.Total(gctx, f)
		return err
	})
	g.Go(func() (err error) {
		prevTotal, err = s.facts.Total(gctx, prev)
		return err
	})
	g.Go(func() (err error) {
		monthTotal, err = s.facts.Total(gctx, monthFilters)
		return err
	})
	g.Go(func() (err error) {
		yearTotal, err = s.facts.Total(gctx, yearFilters)
		return err
	})
	g.Go(func() (err error) {
		daily, err = s.facts.Timeseries(gctx, f)
		return err
	})
	g.Go(func() error {
		rate = s.resolver.ResolveRate(gctx, f.End, s.baseCurrency, s.reportingCurrency, yearFilters)
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.Summary{}, err
	}

	deltaPct := 0.0
	if prevTotal > 0 {
		deltaPct = (periodTotal - prevTotal) / prevTotal * 100.0
	}

	summary := core.Summary{
		PeriodTotal:   periodTotal,
		PreviousTotal: prevTotal,
		DeltaPct:      deltaPct,
		AvgDaily:      periodTotal / float64(rangeDays),
		PeakDay:       peakDay(daily, f.Start),
		MonthToDate:   monthTotal,
		YearToDate:    yearTotal,
		Rate:          rate,
	}

	if budget := s.targets.MonthlyTarget(f.Cloud, ref.MonthStart(), f.Currency); budget > 0 {
		summary.BudgetMonth = &budget
	}
	if budget := s.targets.YearlyTarget(f.Cloud, ref.Year(), f.Currency); budget > 0 {
		summary.BudgetYear = &budget
	}

	return summary, nil
}

// peakDay picks the most expensive day of the series; on a tie the
// earliest date wins. An empty series yields a zero peak on the window
// start.
func peakDay(daily []core.TimeseriesPoint, fallback core.Date) core.PeakDay {
	peak := core.PeakDay{Date: fallback, Amount: 0}
	for i, point := range daily {
		if i == 0 || point.Total > peak.Amount {
			peak = core.PeakDay{Date: point.Date, Amount: point.Total}
		}
	}
	return peak
}
