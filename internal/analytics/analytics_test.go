package analytics

import (
	"context"
	"sort"

	"costwatch/internal/core"
)

// factRow is a flattened fact for the in-memory fake store. amount is
// the native value; secondary, when set, is the pre-converted value in
// the reporting currency (queries prefer it, like the real store).
type factRow struct {
	date      core.Date
	cloud     core.Cloud
	scope     string
	service   string
	currency  string
	amount    float64
	secondary *float64
}

type fakeStore struct {
	rows  []factRow
	rates []core.CurrencyRate
	err   error // when set, every fact query fails with it
}

func sec(v float64) *float64 { return &v }

func (s *fakeStore) matching(f core.QueryFilters) []factRow {
	var out []factRow
	for _, row := range s.rows {
		if f.Cloud != core.CloudAll && row.cloud != f.Cloud {
			continue
		}
		if row.date.Before(f.Start.Time) || row.date.After(f.End.Time) {
			continue
		}
		if len(f.Services) > 0 && !contains(f.Services, row.service) {
			continue
		}
		if len(f.Accounts) > 0 && !contains(f.Accounts, row.scope) {
			continue
		}
		out = append(out, row)
	}
	return out
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func (r factRow) value() float64 {
	if r.secondary != nil {
		return *r.secondary
	}
	return r.amount
}

func (s *fakeStore) Total(_ context.Context, f core.QueryFilters) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	total := 0.0
	for _, row := range s.matching(f) {
		total += row.value()
	}
	return total, nil
}

func (s *fakeStore) Timeseries(_ context.Context, f core.QueryFilters) ([]core.TimeseriesPoint, error) {
	if s.err != nil {
		return nil, s.err
	}
	byDate := make(map[string]*core.TimeseriesPoint)
	for _, row := range s.matching(f) {
		key := row.date.String()
		if byDate[key] == nil {
			byDate[key] = &core.TimeseriesPoint{Date: row.date}
		}
		byDate[key].Total += row.value()
	}
	var points []core.TimeseriesPoint
	for _, point := range byDate {
		points = append(points, *point)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date.Time) })
	return points, nil
}

func (s *fakeStore) TotalsByDimension(_ context.Context, f core.QueryFilters, dim core.Dimension, limit int) ([]core.DimensionTotal, error) {
	if s.err != nil {
		return nil, s.err
	}
	byName := make(map[string]float64)
	for _, row := range s.matching(f) {
		byName[s.dimName(row, dim)] += row.value()
	}
	var totals []core.DimensionTotal
	for name, total := range byName {
		totals = append(totals, core.DimensionTotal{Key: name, Name: name, Total: total})
	}
	sort.Slice(totals, func(i, j int) bool {
		if totals[i].Total != totals[j].Total {
			return totals[i].Total > totals[j].Total
		}
		return totals[i].Name < totals[j].Name
	})
	if limit > 0 && len(totals) > limit {
		totals = totals[:limit]
	}
	return totals, nil
}

func (s *fakeStore) DailyTotalsByDimension(_ context.Context, f core.QueryFilters, dim core.Dimension) ([]core.DailyDimensionRow, error) {
	if s.err != nil {
		return nil, s.err
	}
	type key struct {
		date string
		name string
	}
	byKey := make(map[key]*core.DailyDimensionRow)
	for _, row := range s.matching(f) {
		k := key{date: row.date.String(), name: s.dimName(row, dim)}
		if byKey[k] == nil {
			byKey[k] = &core.DailyDimensionRow{Date: row.date, Name: k.name}
		}
		byKey[k].Total += row.value()
	}
	var rows []core.DailyDimensionRow
	for _, row := range byKey {
		rows = append(rows, *row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date.Time) {
			return rows[i].Date.Before(rows[j].Date.Time)
		}
		return rows[i].Name < rows[j].Name
	})
	return rows, nil
}

func (s *fakeStore) dimName(row factRow, dim core.Dimension) string {
	if dim == core.DimensionAccount {
		return row.scope
	}
	return row.service
}

func (s *fakeStore) AvailableRange(_ context.Context, cloud core.Cloud) (core.Date, core.Date, bool, error) {
	if s.err != nil {
		return core.Date{}, core.Date{}, false, s.err
	}
	var min, max core.Date
	found := false
	for _, row := range s.rows {
		if cloud != core.CloudAll && row.cloud != cloud {
			continue
		}
		if !found || row.date.Before(min.Time) {
			min = row.date
		}
		if !found || row.date.After(max.Time) {
			max = row.date
		}
		found = true
	}
	return min, max, found, nil
}

func (s *fakeStore) HasCoverage(_ context.Context, cloud core.Cloud, start, end core.Date, sourceRef string) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	for d := start; !d.After(end.Time); d = d.AddDays(1) {
		covered := false
		for _, row := range s.rows {
			if row.cloud == cloud && row.date.Equal(d.Time) {
				covered = true
				break
			}
		}
		if !covered {
			return false, nil
		}
	}
	return true, nil
}

func (s *fakeStore) DualCurrencySums(_ context.Context, f core.QueryFilters, from, to string) (float64, float64, error) {
	if s.err != nil {
		return 0, 0, s.err
	}
	native, secondary := 0.0, 0.0
	for _, row := range s.matching(f) {
		if row.currency != from || row.secondary == nil {
			continue
		}
		native += row.amount
		secondary += *row.secondary
	}
	return native, secondary, nil
}

type fakeRates struct {
	rates []core.CurrencyRate
	err   error
}

func (s *fakeRates) RatesAsOf(_ context.Context, asOf core.Date, from, to string) ([]core.CurrencyRate, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []core.CurrencyRate
	for _, rate := range s.rates {
		pairMatch := (rate.From == from && rate.To == to) || (rate.From == to && rate.To == from)
		if pairMatch && !rate.Date.After(asOf.Time) {
			out = append(out, rate)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date.Time) })
	return out, nil
}

// newTestService wires a Service over the fakes with BRL reporting, USD
// base and a 5.0 fallback rate, mirroring the default configuration.
func newTestService(facts *fakeStore, rates *fakeRates, defaults TargetDefaults, targetsJSON string) *Service {
	resolver := NewRateResolver(rates, facts, 5.0, testLogger())
	targets := NewTargets(defaults, "BRL", targetsJSON)
	return NewService(facts, resolver, targets, "BRL", "USD")
}
