package rates

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"costwatch/internal/core"
	"costwatch/internal/log"
)

type fakeRateStore struct {
	rates     []core.CurrencyRate
	upserted  []core.CurrencyRate
	queryErr  error
	upsertErr error
}

func (f *fakeRateStore) RatesAsOf(_ context.Context, asOf core.Date, _, _ string) ([]core.CurrencyRate, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	var out []core.CurrencyRate
	for _, r := range f.rates {
		if !r.Date.After(asOf.Time) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeRateStore) UpsertRate(_ context.Context, rate core.CurrencyRate) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, rate)
	return nil
}

type fakeFetcher struct {
	quote Quote
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(_ context.Context, _ core.Date) (Quote, error) {
	f.calls++
	if f.err != nil {
		return Quote{}, f.err
	}
	return f.quote, nil
}

func quietLogger() *log.Logger {
	return log.New(log.Config{
		Component: "test",
		Handler:   slog.NewTextHandler(io.Discard, nil),
	})
}

func TestEnsureRateExactStoredSkipsFetch(t *testing.T) {
	asOf := testDate(t, "2026-02-10")
	store := &fakeRateStore{rates: []core.CurrencyRate{
		{Date: asOf, From: "USD", To: "BRL", Rate: 5.2},
	}}
	fetcher := &fakeFetcher{}

	s := NewSyncer(store, fetcher, "USD", "BRL", true, quietLogger())
	rate, ok := s.EnsureRate(context.Background(), asOf)
	if !ok || rate != 5.2 {
		t.Errorf("EnsureRate() = (%v, %v), want (5.2, true)", rate, ok)
	}
	if fetcher.calls != 0 {
		t.Errorf("provider called %d times for an exact stored rate, want 0", fetcher.calls)
	}
}

func TestEnsureRateFetchesAndStoresBothDirections(t *testing.T) {
	asOf := testDate(t, "2026-02-10")
	store := &fakeRateStore{rates: []core.CurrencyRate{
		// Stale rate only; no exact match for asOf.
		{Date: testDate(t, "2026-02-01"), From: "USD", To: "BRL", Rate: 5.0},
	}}
	fetcher := &fakeFetcher{quote: Quote{Date: asOf, Rate: 5.4, Source: "api"}}

	s := NewSyncer(store, fetcher, "USD", "BRL", true, quietLogger())
	rate, ok := s.EnsureRate(context.Background(), asOf)
	if !ok || rate != 5.4 {
		t.Errorf("EnsureRate() = (%v, %v), want (5.4, true)", rate, ok)
	}
	if len(store.upserted) != 2 {
		t.Fatalf("upserted %d rates, want 2", len(store.upserted))
	}
	if store.upserted[0].From != "USD" || store.upserted[0].Rate != 5.4 {
		t.Errorf("direct upsert = %+v", store.upserted[0])
	}
	if store.upserted[1].From != "BRL" || math.Abs(store.upserted[1].Rate-1.0/5.4) > 1e-12 {
		t.Errorf("inverse upsert = %+v", store.upserted[1])
	}
}

func TestEnsureRateFetchFailureFallsBackToStored(t *testing.T) {
	asOf := testDate(t, "2026-02-10")
	store := &fakeRateStore{rates: []core.CurrencyRate{
		{Date: testDate(t, "2026-02-05"), From: "BRL", To: "USD", Rate: 0.2},
	}}
	fetcher := &fakeFetcher{err: errors.New("provider down")}

	s := NewSyncer(store, fetcher, "USD", "BRL", true, quietLogger())
	rate, ok := s.EnsureRate(context.Background(), asOf)
	if !ok || math.Abs(rate-5.0) > 1e-12 {
		t.Errorf("EnsureRate() = (%v, %v), want inverted stored rate (5.0, true)", rate, ok)
	}
}

func TestEnsureRateSyncDisabledUsesStoreOnly(t *testing.T) {
	asOf := testDate(t, "2026-02-10")
	store := &fakeRateStore{rates: []core.CurrencyRate{
		{Date: testDate(t, "2026-02-01"), From: "USD", To: "BRL", Rate: 5.1},
	}}
	fetcher := &fakeFetcher{quote: Quote{Date: asOf, Rate: 9.9}}

	s := NewSyncer(store, fetcher, "USD", "BRL", false, quietLogger())
	rate, ok := s.EnsureRate(context.Background(), asOf)
	if !ok || rate != 5.1 {
		t.Errorf("EnsureRate() = (%v, %v), want (5.1, true)", rate, ok)
	}
	if fetcher.calls != 0 {
		t.Errorf("provider called %d times with sync disabled, want 0", fetcher.calls)
	}
}

func TestEnsureRateNothingAvailable(t *testing.T) {
	store := &fakeRateStore{}
	fetcher := &fakeFetcher{err: errors.New("provider down")}

	s := NewSyncer(store, fetcher, "USD", "BRL", true, quietLogger())
	if rate, ok := s.EnsureRate(context.Background(), testDate(t, "2026-02-10")); ok || rate != 0 {
		t.Errorf("EnsureRate() = (%v, %v), want (0, false)", rate, ok)
	}
}

func TestSyncOnce(t *testing.T) {
	store := &fakeRateStore{}
	fetcher := &fakeFetcher{quote: Quote{Date: testDate(t, "2026-02-10"), Rate: 5.3}}

	s := NewSyncer(store, fetcher, "USD", "BRL", true, quietLogger())
	if err := s.SyncOnce(context.Background(), testDate(t, "2026-02-10")); err != nil {
		t.Fatalf("SyncOnce() error = %v", err)
	}
	if len(store.upserted) != 2 {
		t.Errorf("upserted %d rates, want 2", len(store.upserted))
	}

	store.upsertErr = errors.New("disk full")
	if err := s.SyncOnce(context.Background(), testDate(t, "2026-02-10")); err == nil {
		t.Error("SyncOnce() error = nil with failing store, want error")
	}
}
