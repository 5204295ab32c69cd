package database

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"
)

// Filename format: YYYYMMDD_HHMMSS_description.{up,down}.sql
const (
	migrationFilenameParts = 3
	minVersionParts        = 2
)

// Migration is one versioned schema change.
type Migration struct {
	Version string
	Name    string
	UpSQL   string
	DownSQL string
}

// MigrationRecord is a row in schema_migrations.
type MigrationRecord struct {
	Version   string
	AppliedAt time.Time
}

// Migrate applies every migration in fsys that has not been recorded yet and
// returns how many were applied. Each migration runs in its own transaction,
// so a failure leaves earlier migrations committed.
func (db *DB) Migrate(ctx context.Context, fsys fs.FS) (int, error) {
	if err := db.createMigrationsTable(ctx); err != nil {
		return 0, fmt.Errorf("creating migrations table: %w", err)
	}

	_, pending, err := db.MigrationStatus(ctx, fsys)
	if err != nil {
		return 0, err
	}

	for i, m := range pending {
		if err := db.applyMigration(ctx, m); err != nil {
			return i, fmt.Errorf("applying migration %s (%s): %w", m.Version, m.Name, err)
		}
	}
	return len(pending), nil
}

// MigrateDown rolls back the most recently applied migration. It is a no-op
// when nothing has been applied.
func (db *DB) MigrateDown(ctx context.Context, fsys fs.FS) error {
	applied, err := db.appliedMigrations(ctx)
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		return nil
	}
	latest := applied[len(applied)-1]

	migrations, err := LoadMigrations(fsys)
	if err != nil {
		return err
	}

	var target *Migration
	for i := range migrations {
		if migrations[i].Version == latest.Version {
			target = &migrations[i]
			break
		}
	}
	if target == nil {
		return fmt.Errorf("migration %s not found", latest.Version)
	}
	if target.DownSQL == "" {
		return fmt.Errorf("migration %s has no down SQL", latest.Version)
	}

	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, target.DownSQL); err != nil {
			return fmt.Errorf("executing down SQL: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM schema_migrations WHERE version = ?", target.Version,
		); err != nil {
			return fmt.Errorf("removing migration record: %w", err)
		}
		return nil
	})
}

// MigrationStatus reports which migrations in fsys are applied and which are
// still pending.
func (db *DB) MigrationStatus(ctx context.Context, fsys fs.FS) (applied []MigrationRecord, pending []Migration, err error) {
	if err := db.createMigrationsTable(ctx); err != nil {
		return nil, nil, fmt.Errorf("creating migrations table: %w", err)
	}
	applied, err = db.appliedMigrations(ctx)
	if err != nil {
		return nil, nil, err
	}
	migrations, err := LoadMigrations(fsys)
	if err != nil {
		return nil, nil, err
	}

	done := make(map[string]bool, len(applied))
	for _, r := range applied {
		done[r.Version] = true
	}
	for _, m := range migrations {
		if !done[m.Version] {
			pending = append(pending, m)
		}
	}
	return applied, pending, nil
}

func (db *DB) createMigrationsTable(ctx context.Context) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL
		) STRICT`)
	return err
}

func (db *DB) appliedMigrations(ctx context.Context) ([]MigrationRecord, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT version, applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, fmt.Errorf("querying migrations: %w", err)
	}
	defer rows.Close()

	var records []MigrationRecord
	for rows.Next() {
		var r MigrationRecord
		var appliedAt string
		if err := rows.Scan(&r.Version, &appliedAt); err != nil {
			return nil, fmt.Errorf("scanning migration: %w", err)
		}
		r.AppliedAt, _ = time.Parse(time.RFC3339, appliedAt) //nolint:errcheck // zero time on bad data
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating migrations: %w", err)
	}
	return records, nil
}

func (db *DB) applyMigration(ctx context.Context, m Migration) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
			return fmt.Errorf("executing SQL: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)",
			m.Version, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("recording migration: %w", err)
		}
		return nil
	})
}

// LoadMigrations reads the *.sql files at the root of fsys, pairs up and down
// scripts by version and returns them oldest first. A nil fsys yields no
// migrations. A down script without an up script is ignored.
func LoadMigrations(fsys fs.FS) ([]Migration, error) {
	if fsys == nil {
		return nil, nil
	}
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading migrations: %w", err)
	}

	up := make(map[string]string)
	down := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		version, isUp, ok := parseMigrationFilename(e.Name())
		if !ok {
			continue
		}
		if isUp {
			up[version] = e.Name()
		} else {
			down[version] = e.Name()
		}
	}

	migrations := make([]Migration, 0, len(up))
	for version, upFile := range up {
		upSQL, err := fs.ReadFile(fsys, path.Clean(upFile))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", upFile, err)
		}
		m := Migration{Version: version, Name: extractMigrationName(upFile), UpSQL: string(upSQL)}
		if downFile, ok := down[version]; ok {
			downSQL, err := fs.ReadFile(fsys, path.Clean(downFile))
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", downFile, err)
			}
			m.DownSQL = string(downSQL)
		}
		migrations = append(migrations, m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// parseMigrationFilename returns the version and direction encoded in name.
func parseMigrationFilename(name string) (version string, isUp bool, ok bool) {
	base, found := strings.CutSuffix(name, ".sql")
	if !found {
		return "", false, false
	}
	if b, found := strings.CutSuffix(base, ".up"); found {
		base, isUp = b, true
	} else if b, found := strings.CutSuffix(base, ".down"); found {
		base = b
	} else {
		return "", false, false
	}

	parts := strings.SplitN(base, "_", migrationFilenameParts)
	if len(parts) < minVersionParts {
		return "", false, false
	}
	return parts[0] + "_" + parts[1], isUp, true
}

// extractMigrationName turns "20261016_120000_devices.up.sql" into "devices".
func extractMigrationName(filename string) string {
	base := strings.TrimSuffix(filename, ".sql")
	base = strings.TrimSuffix(base, ".up")
	base = strings.TrimSuffix(base, ".down")

	parts := strings.SplitN(base, "_", migrationFilenameParts)
	if len(parts) >= migrationFilenameParts {
		return parts[minVersionParts]
	}
	return base
}
