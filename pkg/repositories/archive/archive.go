// Package archive stores decoded execution plans in DuckDB or SQLite so that
// plans evicted by the cache server stay browsable.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/TFMV/cachewatch/pkg/errors"
	"github.com/TFMV/cachewatch/pkg/infrastructure/pool"
	"github.com/TFMV/cachewatch/pkg/models"
	"github.com/TFMV/cachewatch/pkg/repositories"
)

const schema = `
CREATE TABLE IF NOT EXISTS plan_archive (
	host TEXT NOT NULL,
	plan_id TEXT NOT NULL,
	created_at BIGINT NOT NULL,
	display_name TEXT NOT NULL,
	execution_time_ms BIGINT NOT NULL,
	network_traffic_bytes BIGINT NOT NULL,
	node_count INTEGER NOT NULL,
	plan_json TEXT NOT NULL,
	archived_at BIGINT NOT NULL,
	PRIMARY KEY (host, plan_id)
)`

const upsert = `
INSERT OR REPLACE INTO plan_archive (
	host, plan_id, created_at, display_name, execution_time_ms,
	network_traffic_bytes, node_count, plan_json, archived_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

const selectColumns = `SELECT host, node_count, plan_json, archived_at FROM plan_archive`

// archiveRepository implements repositories.ArchiveRepository.
type archiveRepository struct {
	pool   pool.ConnectionPool
	logger zerolog.Logger
	now    func() time.Time
}

// Option configures the repository.
type Option func(*archiveRepository)

// WithClock replaces the clock used for archived_at.
func WithClock(now func() time.Time) Option {
	return func(r *archiveRepository) {
		r.now = now
	}
}

// New creates the archive table if needed and returns the repository. The
// repository owns the pool and closes it in Close.
func New(ctx context.Context, p pool.ConnectionPool, logger zerolog.Logger, opts ...Option) (repositories.ArchiveRepository, error) {
	r := &archiveRepository{
		pool:   p,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	db, err := p.Get(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create archive schema")
	}

	logger.Info().Str("driver", p.Driver()).Msg("Plan archive ready")
	return r, nil
}

// Save stores plans for host in one transaction.
func (r *archiveRepository) Save(ctx context.Context, host string, plans []models.ExecutionPlan) error {
	if len(plans) == 0 {
		return nil
	}

	db, err := r.pool.Get(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to begin archive transaction")
	}
	defer func() {
		if err := tx.Rollback(); err != nil && err != sql.ErrTxDone {
			r.logger.Error().Err(err).Msg("failed to rollback archive transaction")
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsert)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to prepare archive insert")
	}
	defer stmt.Close()

	archivedAt := r.now().Unix()
	for i := range plans {
		plan := &plans[i]
		payload, err := json.Marshal(plan)
		if err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to encode plan").WithDetail("plan_id", plan.ID)
		}

		var name string
		var execMs, network uint64
		if plan.Stats != nil {
			name = plan.Stats.DisplayName
			execMs = plan.Stats.ExecutionTimeMs
			network = plan.Stats.NetworkTrafficBytes
		}

		if _, err := stmt.ExecContext(ctx,
			host, plan.ID, plan.CreatedAt, name, int64(execMs), int64(network),
			plan.Plan.CountNodes(), string(payload), archivedAt,
		); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "failed to archive plan").WithDetail("plan_id", plan.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.CodeInternal, "failed to commit archive transaction")
	}

	r.logger.Debug().Str("host", host).Int("plans", len(plans)).Msg("Archived execution plans")
	return nil
}

// List returns archived plans newest first.
func (r *archiveRepository) List(ctx context.Context, host string, limit int) ([]repositories.ArchivedPlan, error) {
	if limit <= 0 {
		limit = 50
	}

	db, err := r.pool.Get(ctx)
	if err != nil {
		return nil, err
	}

	query := selectColumns + ` ORDER BY created_at DESC, plan_id LIMIT ?`
	args := []interface{}{limit}
	if host != "" {
		query = selectColumns + ` WHERE host = ? ORDER BY created_at DESC, plan_id LIMIT ?`
		args = []interface{}{host, limit}
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to list archived plans")
	}
	defer rows.Close()

	var out []repositories.ArchivedPlan
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *plan)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to read archived plans")
	}
	return out, nil
}

// Get returns one archived plan.
func (r *archiveRepository) Get(ctx context.Context, host, id string) (*repositories.ArchivedPlan, error) {
	db, err := r.pool.Get(ctx)
	if err != nil {
		return nil, err
	}

	row := db.QueryRowContext(ctx, selectColumns+` WHERE host = ? AND plan_id = ?`, host, id)
	plan, err := scanPlan(row)
	if err == sql.ErrNoRows {
		return nil, errors.ErrPlanNotFound
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// Prune keeps the maxRows newest plans. Plans sharing the cut-off timestamp
// are all kept.
func (r *archiveRepository) Prune(ctx context.Context, maxRows int) (int64, error) {
	if maxRows <= 0 {
		return 0, nil
	}

	db, err := r.pool.Get(ctx)
	if err != nil {
		return 0, err
	}

	res, err := db.ExecContext(ctx, `
		DELETE FROM plan_archive WHERE created_at < (
			SELECT created_at FROM plan_archive ORDER BY created_at DESC LIMIT 1 OFFSET ?
		)`, maxRows-1)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeInternal, "failed to prune archive")
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeInternal, "failed to count pruned plans")
	}
	if deleted > 0 {
		r.logger.Debug().Int64("deleted", deleted).Int("max_rows", maxRows).Msg("Pruned plan archive")
	}
	return deleted, nil
}

func (r *archiveRepository) Close() error {
	stats := r.pool.Stats()
	r.logger.Debug().
		Str("driver", stats.Driver).
		Int("open_connections", stats.OpenConnections).
		Bool("healthy", stats.Healthy).
		Msg("Closing plan archive")
	return r.pool.Close()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPlan(row rowScanner) (*repositories.ArchivedPlan, error) {
	var (
		out        repositories.ArchivedPlan
		payload    string
		archivedAt int64
	)
	if err := row.Scan(&out.Host, &out.NodeCount, &payload, &archivedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to scan archived plan")
	}
	if err := json.Unmarshal([]byte(payload), &out.Plan); err != nil {
		return nil, errors.Wrap(err, errors.CodeDecodeFailed, "archived plan is corrupt")
	}
	out.ArchivedAt = time.Unix(archivedAt, 0)
	return &out, nil
}
