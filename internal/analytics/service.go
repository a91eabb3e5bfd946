package analytics

import (
	"context"

	"costwatch/internal/core"
)

// Service orchestrates the analytics components over one fact store.
// It is safe for concurrent use: all fields are set at construction and
// every method is a pure read.
type Service struct {
	facts             FactStore
	resolver          *RateResolver
	targets           *Targets
	reportingCurrency string
	baseCurrency      string
}

func NewService(facts FactStore, resolver *RateResolver, targets *Targets, reportingCurrency, baseCurrency string) *Service {
	return &Service{
		facts:             facts,
		resolver:          resolver,
		targets:           targets,
		reportingCurrency: reportingCurrency,
		baseCurrency:      baseCurrency,
	}
}

// Timeseries returns the per-day totals for the filter window.
func (s *Service) Timeseries(ctx context.Context, f core.QueryFilters) ([]core.TimeseriesPoint, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return s.facts.Timeseries(ctx, f)
}

// AvailableRange reports the min and max record dates for a cloud.
func (s *Service) AvailableRange(ctx context.Context, cloud core.Cloud) (min, max core.Date, ok bool, err error) {
	return s.facts.AvailableRange(ctx, cloud)
}
