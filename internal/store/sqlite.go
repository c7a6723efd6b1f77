package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/taxid-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn, table string) (*SQLiteStore, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validIdent(table) {
		return nil, eris.Errorf("sqlite: invalid table name %q", table)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db, table: table}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS %[1]s (
	tax_id     TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	source     TEXT NOT NULL,
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS sync_runs (
	id               TEXT PRIMARY KEY,
	status           TEXT NOT NULL,
	started_at       DATETIME NOT NULL,
	completed_at     DATETIME,
	sources_ok       INTEGER NOT NULL DEFAULT 0,
	sources_failed   INTEGER NOT NULL DEFAULT 0,
	records_read     INTEGER NOT NULL DEFAULT 0,
	excluded         INTEGER NOT NULL DEFAULT 0,
	unified          INTEGER NOT NULL DEFAULT 0,
	duplicate_groups INTEGER NOT NULL DEFAULT 0,
	batches_failed   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_%[1]s_name ON %[1]s(name);
CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(sqliteMigration, s.table))
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertRecords writes recs in one transaction with INSERT ... ON CONFLICT(tax_id) DO UPDATE.
func (s *SQLiteStore) UpsertRecords(ctx context.Context, recs []model.UnifiedRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO `+s.table+` (tax_id, name, source, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(tax_id) DO UPDATE SET
			name = excluded.name,
			source = excluded.source,
			updated_at = excluded.updated_at`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close() //nolint:errcheck

	now := time.Now().UTC()
	var n int64
	for _, r := range recs {
		res, err := stmt.ExecContext(ctx, r.TaxID, r.Name, r.Source, now)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert %s", r.TaxID)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		n += affected
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit")
	}
	return n, nil
}

func (s *SQLiteStore) GetByTaxID(ctx context.Context, taxID string) (*model.StoredRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT tax_id, name, source, updated_at FROM `+s.table+` WHERE tax_id = ?`, taxID)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get record %s", taxID)
	}
	return r, nil
}

func (s *SQLiteStore) GetByTaxIDs(ctx context.Context, taxIDs []string) (map[string]model.StoredRecord, error) {
	out := make(map[string]model.StoredRecord)
	ids := uniqueNonEmpty(taxIDs)
	if len(ids) == 0 {
		return out, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT tax_id, name, source, updated_at FROM `+s.table+` WHERE tax_id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get records")
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		out[r.TaxID] = *r
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get records iterate")
}

func (s *SQLiteStore) SearchByName(ctx context.Context, name string, limit int) ([]model.StoredRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tax_id, name, source, updated_at FROM `+s.table+`
		WHERE lower(name) LIKE lower(?) ESCAPE '\' ORDER BY tax_id LIMIT ?`,
		likePattern(name), limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: search records")
	}
	defer rows.Close()

	var out []model.StoredRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: search records iterate")
}

func (s *SQLiteStore) RecordRun(ctx context.Context, run *model.Run) error {
	var completed sql.NullTime
	if !run.CompletedAt.IsZero() {
		completed = sql.NullTime{Time: run.CompletedAt.UTC(), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_runs (id, status, started_at, completed_at, sources_ok, sources_failed,
			records_read, excluded, unified, duplicate_groups, batches_failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Status), run.StartedAt.UTC(), completed, run.SourcesOK, run.SourcesFailed,
		run.RecordsRead, run.Excluded, run.Unified, run.DuplicateGroups, run.BatchesFailed,
	)
	return eris.Wrapf(err, "sqlite: record run %s", run.ID)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, started_at, completed_at, sources_ok, sources_failed,
		records_read, excluded, unified, duplicate_groups, batches_failed FROM sync_runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, runLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		var r model.Run
		var completed sql.NullTime
		if err := rows.Scan(&r.ID, &r.Status, &r.StartedAt, &completed, &r.SourcesOK, &r.SourcesFailed,
			&r.RecordsRead, &r.Excluded, &r.Unified, &r.DuplicateGroups, &r.BatchesFailed); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		if completed.Valid {
			r.CompletedAt = completed.Time
		}
		runs = append(runs, r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (*model.StoredRecord, error) {
	var r model.StoredRecord
	if err := row.Scan(&r.TaxID, &r.Name, &r.Source, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// validIdent accepts plain SQL identifiers made of letters, digits, and underscores.
func validIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
