package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"costwatch/internal/core"

	"github.com/google/uuid"
)

// Option is a selectable filter value exposed to clients.
type Option struct {
	Key  string `json:"key"`
	Name string `json:"name"`
}

// EnsureScope upserts a billing scope dimension row and returns its id.
// A non-empty name always wins over a previously stored one.
func (s *Store) EnsureScope(ctx context.Context, cloud core.Cloud, key, name string) (int64, error) {
	if key == "" {
		return 0, core.ErrEmptyScope
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO dim_scope (cloud, scope_key, scope_name) VALUES (?, ?, ?)
		 ON CONFLICT(cloud, scope_key) DO UPDATE SET
		   scope_name = CASE WHEN excluded.scope_name <> '' THEN excluded.scope_name ELSE dim_scope.scope_name END
		 RETURNING scope_id`,
		string(cloud), key, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert scope %s/%s: %w", cloud, key, err)
	}
	return id, nil
}

// EnsureService upserts a service dimension row and returns its id.
func (s *Store) EnsureService(ctx context.Context, cloud core.Cloud, key, name string) (int64, error) {
	if key == "" {
		return 0, core.ErrEmptyService
	}
	var id int64
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO dim_service (cloud, service_key, service_name) VALUES (?, ?, ?)
		 ON CONFLICT(cloud, service_key) DO UPDATE SET
		   service_name = CASE WHEN excluded.service_name <> '' THEN excluded.service_name ELSE dim_service.service_name END
		 RETURNING service_id`,
		string(cloud), key, name).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert service %s/%s: %w", cloud, key, err)
	}
	return id, nil
}

// UpsertCostRecord writes one daily fact. Replays of the same natural key
// overwrite the amount; a missing secondary amount never clears a stored
// one.
func (s *Store) UpsertCostRecord(ctx context.Context, rec core.CostRecord, scopeID, serviceID int64) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fact_cost_daily
		   (fact_id, cost_date, cloud, scope_id, service_id, scope_key, service_key, region_key, currency, amount, amount_secondary, source)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cost_date, cloud, scope_key, service_key, region_key, currency, source)
		 DO UPDATE SET
		   scope_id = excluded.scope_id,
		   service_id = excluded.service_id,
		   amount = excluded.amount,
		   amount_secondary = COALESCE(excluded.amount_secondary, fact_cost_daily.amount_secondary),
		   updated_at = datetime('now')`,
		uuid.NewString(), rec.Date.String(), string(rec.Cloud), scopeID, serviceID,
		rec.ScopeKey, rec.ServiceKey, rec.RegionKey, strings.ToUpper(rec.CurrencyCode),
		rec.Amount, rec.AmountSecondary, rec.SourceRef)
	if err != nil {
		return fmt.Errorf("upsert cost fact: %w", err)
	}
	return nil
}

// CreateIngestJob records a new running job and returns its id.
func (s *Store) CreateIngestJob(ctx context.Context, provider core.Cloud, start, end core.Date) (string, error) {
	jobID := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ingest_job (job_id, provider, range_start, range_end) VALUES (?, ?, ?, ?)`,
		jobID, string(provider), start.String(), end.String())
	if err != nil {
		return "", fmt.Errorf("create ingest job: %w", err)
	}
	return jobID, nil
}

// FinishIngestJob marks a job done or failed with its row counters.
func (s *Store) FinishIngestJob(ctx context.Context, jobID string, received, written int, jobErr error) error {
	status := "done"
	errMsg := ""
	if jobErr != nil {
		status = "failed"
		errMsg = jobErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE ingest_job
		 SET status = ?, rows_received = ?, rows_written = ?, error = ?, finished_at = datetime('now')
		 WHERE job_id = ?`,
		status, received, written, errMsg, jobID)
	if err != nil {
		return fmt.Errorf("finish ingest job: %w", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("finish ingest job: unknown job %s", jobID)
	}
	return nil
}

// ListScopes returns the known billing scopes for filter pickers,
// alphabetical by display name.
func (s *Store) ListScopes(ctx context.Context, cloud core.Cloud) ([]Option, error) {
	query := `SELECT scope_key, COALESCE(NULLIF(scope_name, ''), scope_key) AS name FROM dim_scope`
	var args []any
	if cloud != core.CloudAll {
		query += " WHERE cloud = ?"
		args = append(args, string(cloud))
	}
	query += " ORDER BY name ASC"
	return s.queryOptions(ctx, query, args...)
}

// TopServices returns the services with the highest all-time spend, for
// filter pickers.
func (s *Store) TopServices(ctx context.Context, cloud core.Cloud, limit int) ([]Option, error) {
	q := &queryClauses{}
	if cloud != core.CloudAll {
		q.add("f.cloud = ?", string(cloud))
	}
	query := "SELECT d.service_key, COALESCE(NULLIF(d.service_name, ''), d.service_key) AS name " +
		"FROM fact_cost_daily f JOIN dim_service d ON d.service_id = f.service_id" + q.where() +
		" GROUP BY d.service_key, name ORDER BY SUM(" + amountExpr + ") DESC, name ASC"
	if limit > 0 {
		query += " LIMIT ?"
		q.args = append(q.args, limit)
	}
	return s.queryOptions(ctx, query, q.args...)
}

func (s *Store) queryOptions(ctx context.Context, query string, args ...any) ([]Option, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query options: %w", err)
	}
	defer rows.Close()

	var opts []Option
	for rows.Next() {
		var o Option
		if err := rows.Scan(&o.Key, &o.Name); err != nil {
			return nil, fmt.Errorf("scan option: %w", err)
		}
		opts = append(opts, o)
	}
	return opts, rows.Err()
}
