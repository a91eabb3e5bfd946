package analytics

import (
	"context"

	"golang.org/x/sync/errgroup"

	"costwatch/internal/core"
)

// DailyBreakdown returns the daily series split across the period's top
// dimension values. Values outside the Top-N fold into an "Others" key;
// a day's total is always the exact sum of its sub-totals.
func (s *Service) DailyBreakdown(ctx context.Context, f core.QueryFilters, dim core.Dimension, topN int) ([]core.DailyBreakdown, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if !dim.Valid() {
		return nil, core.ErrInvalidDim
	}
	if topN < 1 {
		return nil, core.ErrInvalidLimit
	}

	var (
		topRows []core.DimensionTotal
		rows    []core.DailyDimensionRow
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		topRows, err = s.facts.TotalsByDimension(gctx, f, dim, topN)
		return err
	})
	g.Go(func() (err error) {
		rows, err = s.facts.DailyTotalsByDimension(gctx, f, dim)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	topNames := make(map[string]bool, len(topRows))
	for _, row := range topRows {
		topNames[row.Name] = true
	}

	var days []core.DailyBreakdown
	var current *core.DailyBreakdown
	for _, row := range rows {
		if current == nil || !current.Date.Equal(row.Date.Time) {
			days = append(days, core.DailyBreakdown{
				Date:        row.Date,
				ByDimension: make(map[string]float64),
			})
			current = &days[len(days)-1]
		}
		name := row.Name
		if !topNames[name] {
			name = core.OthersBucket
		}
		current.ByDimension[name] += row.Total
		current.Total += row.Total
	}

	return days, nil
}
