// Package analytics turns the canonical cost facts into reporting
// payloads: period totals, deltas, daily series, Top-N rankings and
// budget comparisons, normalized into a single reporting currency.
//
// Every operation is a pure read over whatever snapshot the underlying
// store exposes; the package holds no mutable state and callers may run
// operations fully in parallel.
package analytics

import (
	"context"

	"costwatch/internal/core"
)

// FactStore is the query surface the analytics engine needs from the
// fact collection. Implementations own the storage engine; the engine
// only composes and parameterizes queries.
type FactStore interface {
	// Total returns the scalar sum over all records matching the filters.
	Total(ctx context.Context, f core.QueryFilters) (float64, error)

	// Timeseries returns per-day sums ordered by date ascending. Days
	// with no records are absent.
	Timeseries(ctx context.Context, f core.QueryFilters) ([]core.TimeseriesPoint, error)

	// TotalsByDimension returns grouped sums for the chosen dimension,
	// ordered by total descending then name ascending. A non-positive
	// limit returns every group.
	TotalsByDimension(ctx context.Context, f core.QueryFilters, dim core.Dimension, limit int) ([]core.DimensionTotal, error)

	// DailyTotalsByDimension returns per-day, per-dimension sums ordered
	// by date ascending.
	DailyTotalsByDimension(ctx context.Context, f core.QueryFilters, dim core.Dimension) ([]core.DailyDimensionRow, error)

	// AvailableRange returns the min and max record dates for a cloud.
	// ok is false when the cloud has no records at all.
	AvailableRange(ctx context.Context, cloud core.Cloud) (min, max core.Date, ok bool, err error)

	// HasCoverage reports whether every day in [start, end] has at least
	// one record for the cloud. An empty sourceRef matches any source.
	HasCoverage(ctx context.Context, cloud core.Cloud, start, end core.Date, sourceRef string) (bool, error)

	// DualCurrencySums sums records inside the filter window that carry
	// both a native amount in from and a secondary amount in to. Records
	// missing either side are excluded from both sums.
	DualCurrencySums(ctx context.Context, f core.QueryFilters, from, to string) (native, secondary float64, err error)
}

// RateStore exposes the currency rate table.
type RateStore interface {
	// RatesAsOf returns every stored rate for either direction of the
	// (from, to) pair dated at or before asOf, newest first.
	RatesAsOf(ctx context.Context, asOf core.Date, from, to string) ([]core.CurrencyRate, error)
}
