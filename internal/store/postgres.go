package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/taxid-cli/internal/db"
	"github.com/sells-group/taxid-cli/internal/model"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool  db.Pool
	table string
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool. table defaults to DefaultTable.
func NewPostgres(ctx context.Context, connString, table string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return NewPostgresWithPool(pool, table), nil
}

// NewPostgresWithPool wraps an existing pool.
func NewPostgresWithPool(pool db.Pool, table string) *PostgresStore {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresStore{pool: pool, table: table}
}

// Migrate applies the embedded migrations, then creates the record table
// under the configured name.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ran, err := db.Migrate(ctx, s.pool, migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	if _, err := s.pool.Exec(ctx, recordTableDDL(s.table)); err != nil {
		return eris.Wrapf(err, "postgres: create record table %s", s.table)
	}
	zap.L().Info("postgres: migrations complete",
		zap.Int("applied", len(ran)),
		zap.String("table", s.table),
	)
	return nil
}

// recordTableDDL is idempotent so it can run on every open.
func recordTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	tax_id     TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	source     TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (lower(name));`,
		pgx.Identifier{table}.Sanitize(),
		pgx.Identifier{"idx_" + table + "_name_lower"}.Sanitize(),
	)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) tableIdent() string {
	return pgx.Identifier{s.table}.Sanitize()
}

// UpsertRecords writes recs in a single COPY + ON CONFLICT transaction.
func (s *PostgresStore) UpsertRecords(ctx context.Context, recs []model.UnifiedRecord) (int64, error) {
	rows := make([][]any, len(recs))
	for i, r := range recs {
		rows[i] = []any{r.TaxID, r.Name, r.Source}
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        s.table,
		Columns:      []string{"tax_id", "name", "source"},
		ConflictKeys: []string{"tax_id"},
		Touch:        "updated_at",
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert records")
	}
	return n, nil
}

// GetByTaxID returns the stored record for taxID, or nil when absent.
func (s *PostgresStore) GetByTaxID(ctx context.Context, taxID string) (*model.StoredRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT tax_id, name, source, updated_at FROM `+s.tableIdent()+` WHERE tax_id = $1`,
		taxID,
	)
	var r model.StoredRecord
	if err := row.Scan(&r.TaxID, &r.Name, &r.Source, &r.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get record %s", taxID)
	}
	return &r, nil
}

// GetByTaxIDs returns the stored records for taxIDs keyed by tax-id, in one query.
func (s *PostgresStore) GetByTaxIDs(ctx context.Context, taxIDs []string) (map[string]model.StoredRecord, error) {
	out := make(map[string]model.StoredRecord)
	ids := uniqueNonEmpty(taxIDs)
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT tax_id, name, source, updated_at FROM `+s.tableIdent()+` WHERE tax_id = ANY($1)`,
		ids,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get records")
	}
	defer rows.Close()

	for rows.Next() {
		var r model.StoredRecord
		if err := rows.Scan(&r.TaxID, &r.Name, &r.Source, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		out[r.TaxID] = r
	}
	return out, eris.Wrap(rows.Err(), "postgres: get records iterate")
}

// SearchByName returns up to limit records whose name contains name, case-insensitively.
func (s *PostgresStore) SearchByName(ctx context.Context, name string, limit int) ([]model.StoredRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT tax_id, name, source, updated_at FROM `+s.tableIdent()+` WHERE name ILIKE $1 ORDER BY tax_id LIMIT $2`,
		likePattern(name), limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: search records")
	}
	defer rows.Close()

	var out []model.StoredRecord
	for rows.Next() {
		var r model.StoredRecord
		if err := rows.Scan(&r.TaxID, &r.Name, &r.Source, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: search records iterate")
}

// RecordRun inserts the run summary.
func (s *PostgresStore) RecordRun(ctx context.Context, run *model.Run) error {
	var completed *time.Time
	if !run.CompletedAt.IsZero() {
		completed = &run.CompletedAt
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sync_runs (id, status, started_at, completed_at, sources_ok, sources_failed,
			records_read, excluded, unified, duplicate_groups, batches_failed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, string(run.Status), run.StartedAt, completed, run.SourcesOK, run.SourcesFailed,
		run.RecordsRead, run.Excluded, run.Unified, run.DuplicateGroups, run.BatchesFailed,
	)
	return eris.Wrapf(err, "postgres: record run %s", run.ID)
}

// ListRuns returns recent runs, newest first.
func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, started_at, completed_at, sources_ok, sources_failed,
		records_read, excluded, unified, duplicate_groups, batches_failed FROM sync_runs`
	args := []any{}
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	args = append(args, runLimit(filter.Limit))
	if len(args) == 2 {
		query += ` ORDER BY started_at DESC LIMIT $2`
	} else {
		query += ` ORDER BY started_at DESC LIMIT $1`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var status string
		var completed *time.Time
		if err := rows.Scan(&r.ID, &status, &r.StartedAt, &completed, &r.SourcesOK, &r.SourcesFailed,
			&r.RecordsRead, &r.Excluded, &r.Unified, &r.DuplicateGroups, &r.BatchesFailed); err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		r.Status = model.RunStatus(status)
		if completed != nil {
			r.CompletedAt = *completed
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}
