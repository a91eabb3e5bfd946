package analytics

import (
	"context"

	"golang.org/x/sync/errgroup"

	"costwatch/internal/core"
)

// Rank groups the filter window's records by a dimension, ranks the
// groups by total descending and folds everything beyond the requested
// Top-N into an "Others" bucket. The totals of a full result always sum
// to the period total; "Others" is appended last regardless of size.
func (s *Service) Rank(ctx context.Context, f core.QueryFilters, dim core.Dimension, limit int) ([]core.RankedItem, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if !dim.Valid() {
		return nil, core.ErrInvalidDim
	}
	if limit < 1 {
		return nil, core.ErrInvalidLimit
	}

	prev := PreviousPeriod(f)

	var (
		periodTotal float64
		prevTotal   float64
		rows        []core.DimensionTotal
		prevRows    []core.DimensionTotal
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
		// One row beyond the limit tells us whether an Others bucket is
		// needed without a separate distinct-count query.
		rows, err = s.facts.TotalsByDimension(gctx, f, dim, limit+1)
		return err
	})
	g.Go(func() (err error) {
		prevRows, err = s.facts.TotalsByDimension(gctx, prev, dim, 0)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	prevTotals := make(map[string]float64, len(prevRows))
	for _, row := range prevRows {
		prevTotals[row.Name] = row.Total
	}

	needOthers := limit > 1 && len(rows) > limit
	top := rows
	if needOthers {
		top = rows[:limit-1]
	} else if len(top) > limit {
		top = top[:limit]
	}

	items := make([]core.RankedItem, 0, len(top)+1)
	topSum, topPrevSum := 0.0, 0.0
	for _, row := range top {
		previous := prevTotals[row.Name]
		topSum += row.Total
		topPrevSum += previous
		items = append(items, rankedItem(row.Name, row.Total, previous, periodTotal))
	}

	if needOthers {
		othersTotal := periodTotal - topSum
		if othersTotal < 0 {
			othersTotal = 0
		}
		othersPrev := prevTotal - topPrevSum
		if othersPrev < 0 {
			othersPrev = 0
		}
		items = append(items, rankedItem(core.OthersBucket, othersTotal, othersPrev, periodTotal))
	}

	return items, nil
}

func rankedItem(name string, total, previous, periodTotal float64) core.RankedItem {
	delta := total - previous
	deltaPct := 0.0
	if previous > 0 {
		deltaPct = delta / previous * 100.0
	}
	return core.RankedItem{
		Name:     name,
		Total:    total,
		SharePct: core.Pct(total, periodTotal),
		Delta:    delta,
		DeltaPct: deltaPct,
	}
}
