package rates

import (
	"context"
	"time"

	"costwatch/internal/core"
	"costwatch/internal/log"
)

// Store is the slice of the rate table the syncer needs.
type Store interface {
	RatesAsOf(ctx context.Context, asOf core.Date, from, to string) ([]core.CurrencyRate, error)
	UpsertRate(ctx context.Context, rate core.CurrencyRate) error
}

// Fetcher is satisfied by Provider.
type Fetcher interface {
	Fetch(ctx context.Context, requested core.Date) (Quote, error)
}

// Syncer keeps the stored base-to-reporting rate current. Every failure
// degrades to the best stored rate instead of surfacing an error; cost
// summaries must not break because a quote provider is down.
type Syncer struct {
	store     Store
	provider  Fetcher
	from      string
	to        string
	onRequest bool
	logger    *log.Logger
}

func NewSyncer(store Store, provider Fetcher, from, to string, onRequest bool, logger *log.Logger) *Syncer {
	return &Syncer{
		store:     store,
		provider:  provider,
		from:      from,
		to:        to,
		onRequest: onRequest,
		logger:    logger.WithComponent(log.ComponentRates),
	}
}

// EnsureRate returns the rate for asOf, fetching from the provider when
// no exact-date rate is stored and on-request sync is enabled. The bool
// reports whether any rate was found.
func (s *Syncer) EnsureRate(ctx context.Context, asOf core.Date) (float64, bool) {
	if !s.onRequest {
		return s.storedRate(ctx, asOf, false)
	}

	if rate, ok := s.storedRate(ctx, asOf, true); ok {
		return rate, true
	}

	quote, err := s.provider.Fetch(ctx, asOf)
	if err != nil {
		s.logger.WarnContext(ctx, "rate fetch failed, using stored rate",
			log.FieldError, err.Error(), log.FieldFrom, s.from, log.FieldTo, s.to)
		return s.storedRate(ctx, asOf, false)
	}

	if err := s.storeQuote(ctx, quote); err != nil {
		s.logger.WarnContext(ctx, "rate upsert failed",
			log.FieldError, err.Error(), log.FieldRateDate, quote.Date.String())
	} else {
		s.logger.InfoContext(ctx, "rate synced",
			log.FieldFrom, s.from, log.FieldTo, s.to,
			log.FieldRate, quote.Rate, log.FieldRateDate, quote.Date.String(),
			log.FieldSource, quote.Source)
	}
	return quote.Rate, true
}

// SyncOnce fetches and stores today's quote. Used by the worker loop.
func (s *Syncer) SyncOnce(ctx context.Context, today core.Date) error {
	quote, err := s.provider.Fetch(ctx, today)
	if err != nil {
		return err
	}
	return s.storeQuote(ctx, quote)
}

// Run syncs immediately and then on every tick until the context ends.
func (s *Syncer) Run(ctx context.Context, interval time.Duration) {
	sync := func() {
		today := core.DateOf(time.Now().UTC())
		if err := s.SyncOnce(ctx, today); err != nil {
			s.logger.WarnContext(ctx, "scheduled rate sync failed", log.FieldError, err.Error())
		}
	}
	sync()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			sync()
		case <-ctx.Done():
			return
		}
	}
}

// storeQuote writes the quote in both directions so lookups never need
// to care which way the provider quotes the pair.
func (s *Syncer) storeQuote(ctx context.Context, quote Quote) error {
	if err := s.store.UpsertRate(ctx, core.CurrencyRate{
		Date: quote.Date, From: s.from, To: s.to, Rate: quote.Rate,
	}); err != nil {
		return err
	}
	return s.store.UpsertRate(ctx, core.CurrencyRate{
		Date: quote.Date, From: s.to, To: s.from, Rate: 1.0 / quote.Rate,
	})
}

// storedRate returns the best stored rate on or before asOf in the
// configured direction, inverting reversed rows. With exactOnly set,
// only rows dated exactly asOf qualify.
func (s *Syncer) storedRate(ctx context.Context, asOf core.Date, exactOnly bool) (float64, bool) {
	rows, err := s.store.RatesAsOf(ctx, asOf, s.from, s.to)
	if err != nil {
		s.logger.WarnContext(ctx, "rate lookup failed", log.FieldError, err.Error())
		return 0, false
	}
	for _, row := range rows {
		if exactOnly && !row.Date.Equal(asOf.Time) {
			continue
		}
		if row.Rate <= 0 {
			continue
		}
		if row.From == s.from {
			return row.Rate, true
		}
		return 1.0 / row.Rate, true
	}
	return 0, false
}
