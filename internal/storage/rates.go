package storage

import (
	"context"
	"fmt"
	"strings"

	"costwatch/internal/core"
)

// RatesAsOf returns stored rates for the pair in either direction, dated
// on or before asOf, newest first.
func (s *Store) RatesAsOf(ctx context.Context, asOf core.Date, from, to string) ([]core.CurrencyRate, error) {
	from = strings.ToUpper(from)
	to = strings.ToUpper(to)

	rows, err := s.db.QueryContext(ctx,
		`SELECT rate_date, from_currency, to_currency, CAST(rate AS REAL)
		 FROM dim_currency_rate
		 WHERE rate_date <= ?
		   AND ((from_currency = ? AND to_currency = ?) OR (from_currency = ? AND to_currency = ?))
		 ORDER BY rate_date DESC`,
		asOf.String(), from, to, to, from)
	if err != nil {
		return nil, fmt.Errorf("query currency rates: %w", err)
	}
	defer rows.Close()

	var rates []core.CurrencyRate
	for rows.Next() {
		var (
			day  string
			rate core.CurrencyRate
		)
		if err := rows.Scan(&day, &rate.From, &rate.To, &rate.Rate); err != nil {
			return nil, fmt.Errorf("scan currency rate: %w", err)
		}
		date, err := core.ParseDate(day)
		if err != nil {
			return nil, fmt.Errorf("parse rate date %q: %w", day, err)
		}
		rate.Date = date
		rates = append(rates, rate)
	}
	return rates, rows.Err()
}

// UpsertRate writes one directed rate, replacing any existing row for the
// same date and pair.
func (s *Store) UpsertRate(ctx context.Context, rate core.CurrencyRate) error {
	if err := rate.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dim_currency_rate (rate_date, from_currency, to_currency, rate)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(rate_date, from_currency, to_currency)
		 DO UPDATE SET rate = excluded.rate`,
		rate.Date.String(), strings.ToUpper(rate.From), strings.ToUpper(rate.To), rate.Rate)
	if err != nil {
		return fmt.Errorf("upsert currency rate: %w", err)
	}
	return nil
}
