package db

import (
	"context"
	"io/fs"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// migrationLockID serializes concurrent migration runs across processes.
const migrationLockID = 20240711

// execQuerier is satisfied by a pool and by a transaction.
type execQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Migrate applies every *.sql file in dir of fsys not yet recorded in
// schema_migrations, in lexicographic order, and returns the applied
// filenames. Everything runs in one transaction holding a transaction-scoped
// advisory lock; a failed file leaves nothing applied.
func Migrate(ctx context.Context, pool Pool, fsys fs.FS, dir string) ([]string, error) {
	log := zap.L().With(zap.String("component", "db.migrate"))

	names, err := MigrationNames(fsys, dir)
	if err != nil {
		return nil, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "db: migrate: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockID); err != nil {
		return nil, eris.Wrap(err, "db: acquire migration advisory lock")
	}

	if err := ensureMigrationTable(ctx, tx); err != nil {
		return nil, err
	}

	applied, err := appliedMigrations(ctx, tx)
	if err != nil {
		return nil, err
	}

	var ran []string
	for _, name := range names {
		if applied[name] {
			continue
		}

		data, err := fs.ReadFile(fsys, dir+"/"+name)
		if err != nil {
			return nil, eris.Wrapf(err, "db: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))

		if _, err := tx.Exec(ctx, string(data)); err != nil {
			return nil, eris.Wrapf(err, "db: apply migration %s", name)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO schema_migrations (filename, applied_at) VALUES ($1, now())",
			name,
		); err != nil {
			return nil, eris.Wrapf(err, "db: record migration %s", name)
		}
		ran = append(ran, name)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, eris.Wrap(err, "db: migrate: commit")
	}
	return ran, nil
}

// MigrationNames lists the .sql files in dir, sorted.
func MigrationNames(fsys fs.FS, dir string) ([]string, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, eris.Wrap(err, "db: read migration dir")
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func ensureMigrationTable(ctx context.Context, q execQuerier) error {
	sql := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			id         SERIAL PRIMARY KEY,
			filename   TEXT NOT NULL UNIQUE,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`
	if _, err := q.Exec(ctx, sql); err != nil {
		return eris.Wrap(err, "db: ensure migration table")
	}
	return nil
}

func appliedMigrations(ctx context.Context, q execQuerier) (map[string]bool, error) {
	rows, err := q.Query(ctx, "SELECT filename FROM schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "db: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "db: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
