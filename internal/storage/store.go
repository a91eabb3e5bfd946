// Package storage owns the SQLite persistence for canonical cost facts,
// currency rates and ingest jobs. It implements the analytics query
// interfaces plus the write paths used by the ingestion and rate-sync
// collaborators.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"costwatch/internal/core"

	_ "modernc.org/sqlite"
)

// Store is the SQLite-backed fact and rate store. All reads operate on
// whatever snapshot SQLite exposes; concurrent ingestion simply shows up
// in later queries.
type Store struct {
	db *sql.DB

	// secondaryCurrency is the fixed currency of amount_secondary; the
	// schema does not record it per row.
	secondaryCurrency string
}

func Open(dbPath, secondaryCurrency string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{
		db:                db,
		secondaryCurrency: strings.ToUpper(secondaryCurrency),
	}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// amountExpr prefers the pre-converted secondary amount when present,
// falling back to the native amount.
const amountExpr = "COALESCE(CAST(f.amount_secondary AS REAL), CAST(f.amount AS REAL))"

// queryClauses is the fixed set of composable predicates every fact
// query is assembled from. Each predicate is added explicitly; there is
// no ad hoc string assembly at call sites.
type queryClauses struct {
	conds []string
	args  []any
}

func (q *queryClauses) add(cond string, args ...any) {
	q.conds = append(q.conds, cond)
	q.args = append(q.args, args...)
}

func (q *queryClauses) where() string {
	if len(q.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.conds, " AND ")
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// clausesFor translates a filter set into predicates over the fact table
// (aliased f).
func clausesFor(f core.QueryFilters) *queryClauses {
	q := &queryClauses{}
	q.add("f.cost_date BETWEEN ? AND ?", f.Start.String(), f.End.String())
	if f.Cloud != core.CloudAll {
		q.add("f.cloud = ?", string(f.Cloud))
	}
	if len(f.Services) > 0 {
		args := make([]any, len(f.Services))
		for i, v := range f.Services {
			args[i] = v
		}
		q.add("f.service_key IN ("+placeholders(len(f.Services))+")", args...)
	}
	if len(f.Accounts) > 0 {
		args := make([]any, len(f.Accounts))
		for i, v := range f.Accounts {
			args[i] = v
		}
		q.add("f.scope_key IN ("+placeholders(len(f.Accounts))+")", args...)
	}
	return q
}

// dimJoin returns the join clause and display-name expression for a
// ranking dimension.
func dimJoin(dim core.Dimension) (join, nameExpr string) {
	if dim == core.DimensionAccount {
		return "JOIN dim_scope d ON d.scope_id = f.scope_id",
			"COALESCE(NULLIF(d.scope_name, ''), d.scope_key)"
	}
	return "JOIN dim_service d ON d.service_id = f.service_id",
		"COALESCE(NULLIF(d.service_name, ''), d.service_key)"
}

func (s *Store) Total(ctx context.Context, f core.QueryFilters) (float64, error) {
	q := clausesFor(f)
	row := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM("+amountExpr+"), 0) FROM fact_cost_daily f"+q.where(), q.args...)

	var total float64
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("sum facts: %w", err)
	}
	return total, nil
}

func (s *Store) Timeseries(ctx context.Context, f core.QueryFilters) ([]core.TimeseriesPoint, error) {
	q := clausesFor(f)
	rows, err := s.db.QueryContext(ctx,
		"SELECT f.cost_date, COALESCE(SUM("+amountExpr+"), 0) FROM fact_cost_daily f"+
			q.where()+" GROUP BY f.cost_date ORDER BY f.cost_date ASC", q.args...)
	if err != nil {
		return nil, fmt.Errorf("query timeseries: %w", err)
	}
	defer rows.Close()

	var points []core.TimeseriesPoint
	for rows.Next() {
		var (
			day   string
			total float64
		)
		if err := rows.Scan(&day, &total); err != nil {
			return nil, fmt.Errorf("scan timeseries row: %w", err)
		}
		date, err := core.ParseDate(day)
		if err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", day, err)
		}
		points = append(points, core.TimeseriesPoint{Date: date, Total: total})
	}
	return points, rows.Err()
}

func (s *Store) TotalsByDimension(ctx context.Context, f core.QueryFilters, dim core.Dimension, limit int) ([]core.DimensionTotal, error) {
	if !dim.Valid() {
		return nil, core.ErrInvalidDim
	}
	join, nameExpr := dimJoin(dim)
	q := clausesFor(f)

	query := "SELECT " + nameExpr + " AS name, COALESCE(SUM(" + amountExpr + "), 0) AS total " +
		"FROM fact_cost_daily f " + join + q.where() +
		" GROUP BY name ORDER BY total DESC, name ASC"
	if limit > 0 {
		query += " LIMIT ?"
		q.args = append(q.args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, q.args...)
	if err != nil {
		return nil, fmt.Errorf("query dimension totals: %w", err)
	}
	defer rows.Close()

	var totals []core.DimensionTotal
	for rows.Next() {
		var row core.DimensionTotal
		if err := rows.Scan(&row.Name, &row.Total); err != nil {
			return nil, fmt.Errorf("scan dimension total: %w", err)
		}
		row.Key = row.Name
		totals = append(totals, row)
	}
	return totals, rows.Err()
}

func (s *Store) DailyTotalsByDimension(ctx context.Context, f core.QueryFilters, dim core.Dimension) ([]core.DailyDimensionRow, error) {
	if !dim.Valid() {
		return nil, core.ErrInvalidDim
	}
	join, nameExpr := dimJoin(dim)
	q := clausesFor(f)

	rows, err := s.db.QueryContext(ctx,
		"SELECT f.cost_date, "+nameExpr+" AS name, COALESCE(SUM("+amountExpr+"), 0) "+
			"FROM fact_cost_daily f "+join+q.where()+
			" GROUP BY f.cost_date, name ORDER BY f.cost_date ASC, name ASC", q.args...)
	if err != nil {
		return nil, fmt.Errorf("query daily dimension totals: %w", err)
	}
	defer rows.Close()

	var out []core.DailyDimensionRow
	for rows.Next() {
		var (
			day string
			row core.DailyDimensionRow
		)
		if err := rows.Scan(&day, &row.Name, &row.Total); err != nil {
			return nil, fmt.Errorf("scan daily dimension row: %w", err)
		}
		date, err := core.ParseDate(day)
		if err != nil {
			return nil, fmt.Errorf("parse stored date %q: %w", day, err)
		}
		row.Date = date
		out = append(out, row)
	}
	return out, rows.Err()
}

func (s *Store) AvailableRange(ctx context.Context, cloud core.Cloud) (core.Date, core.Date, bool, error) {
	query := "SELECT MIN(f.cost_date), MAX(f.cost_date) FROM fact_cost_daily f"
	var args []any
	if cloud != core.CloudAll {
		query += " WHERE f.cloud = ?"
		args = append(args, string(cloud))
	}

	var minDay, maxDay sql.NullString
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&minDay, &maxDay); err != nil {
		return core.Date{}, core.Date{}, false, fmt.Errorf("query available range: %w", err)
	}
	if !minDay.Valid || !maxDay.Valid {
		return core.Date{}, core.Date{}, false, nil
	}

	min, err := core.ParseDate(minDay.String)
	if err != nil {
		return core.Date{}, core.Date{}, false, fmt.Errorf("parse min date %q: %w", minDay.String, err)
	}
	max, err := core.ParseDate(maxDay.String)
	if err != nil {
		return core.Date{}, core.Date{}, false, fmt.Errorf("parse max date %q: %w", maxDay.String, err)
	}
	return min, max, true, nil
}

func (s *Store) HasCoverage(ctx context.Context, cloud core.Cloud, start, end core.Date, sourceRef string) (bool, error) {
	q := &queryClauses{}
	q.add("f.cost_date BETWEEN ? AND ?", start.String(), end.String())
	if cloud != core.CloudAll {
		q.add("f.cloud = ?", string(cloud))
	}
	if sourceRef != "" {
		q.add("f.source = ?", sourceRef)
	}

	var distinctDays int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT f.cost_date) FROM fact_cost_daily f"+q.where(), q.args...).Scan(&distinctDays)
	if err != nil {
		return false, fmt.Errorf("query coverage: %w", err)
	}
	return distinctDays >= start.DaysUntil(end)+1, nil
}

func (s *Store) DualCurrencySums(ctx context.Context, f core.QueryFilters, from, to string) (float64, float64, error) {
	if strings.ToUpper(to) != s.secondaryCurrency {
		return 0, 0, nil
	}
	q := clausesFor(f)
	q.add("f.currency = ?", strings.ToUpper(from))
	q.add("f.amount_secondary IS NOT NULL")

	var native, secondary float64
	err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(SUM(CAST(f.amount AS REAL)), 0), COALESCE(SUM(CAST(f.amount_secondary AS REAL)), 0) "+
			"FROM fact_cost_daily f"+q.where(), q.args...).Scan(&native, &secondary)
	if err != nil {
		return 0, 0, fmt.Errorf("query dual-currency sums: %w", err)
	}
	return native, secondary, nil
}
