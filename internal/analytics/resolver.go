package analytics

import (
	"context"
	"strings"

	"costwatch/internal/core"
	"costwatch/internal/log"
)

// RateResolver resolves a normalization ratio between two currencies for
// a given date. Resolution never fails: it walks a fallback chain from
// stored rates through inferred ratios down to a configured constant and
// finally identity.
type RateResolver struct {
	rates    RateStore
	facts    FactStore
	fallback float64
	logger   *log.Logger
}

func NewRateResolver(rates RateStore, facts FactStore, fallback float64, logger *log.Logger) *RateResolver {
	return &RateResolver{
		rates:    rates,
		facts:    facts,
		fallback: fallback,
		logger:   logger.WithComponent(log.ComponentAnalytics),
	}
}

// ResolveRate returns a positive from->to rate as of the given date.
// The period filters bound the window used when the ratio has to be
// inferred from dual-currency records.
//
// Resolution order, first success wins: exact-date stored rate (either
// direction), latest stored rate at or before asOf, inferred ratio from
// records carrying both amounts, configured fallback, identity.
func (r *RateResolver) ResolveRate(ctx context.Context, asOf core.Date, from, to string, period core.QueryFilters) float64 {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))
	if from == to {
		return 1.0
	}

	rows, err := r.rates.RatesAsOf(ctx, asOf, from, to)
	if err != nil {
		r.logger.WarnContext(ctx, "rate lookup failed, continuing fallback chain",
			"as_of", asOf.String(), log.FieldFrom, from, log.FieldTo, to, log.FieldError, err.Error())
		rows = nil
	}

	// Exact-date rates first, then anything older. Rows arrive newest
	// first, so the first usable row of each pass wins.
	for _, exactOnly := range []bool{true, false} {
		for _, row := range rows {
			if exactOnly && !row.Date.Equal(asOf.Time) {
				continue
			}
			if rate, ok := directedRate(row, from, to); ok {
				return rate
			}
		}
	}

	if inferred, ok := r.inferRate(ctx, period, from, to); ok {
		return inferred
	}

	if r.fallback > 0 {
		return r.fallback
	}
	return 1.0
}

// inferRate derives a ratio from records that were double-reported in
// both currencies. Only those records enter either sum, so the ratio is
// never skewed by rows converted elsewhere or not at all.
func (r *RateResolver) inferRate(ctx context.Context, period core.QueryFilters, from, to string) (float64, bool) {
	if period.Start.IsZero() || period.End.IsZero() {
		return 0, false
	}
	native, secondary, err := r.facts.DualCurrencySums(ctx, period, from, to)
	if err != nil {
		r.logger.WarnContext(ctx, "dual-currency sum failed, continuing fallback chain",
			log.FieldFrom, from, log.FieldTo, to, log.FieldError, err.Error())
		return 0, false
	}
	if native <= 0 || secondary <= 0 {
		return 0, false
	}
	return secondary / native, true
}

// directedRate orients a stored rate row to the requested direction,
// inverting when the row is stored the other way around.
func directedRate(row core.CurrencyRate, from, to string) (float64, bool) {
	if row.Rate <= 0 {
		return 0, false
	}
	rowFrom := strings.ToUpper(row.From)
	rowTo := strings.ToUpper(row.To)
	if rowFrom == from && rowTo == to {
		return row.Rate, true
	}
	if rowFrom == to && rowTo == from {
		return 1.0 / row.Rate, true
	}
	return 0, false
}
