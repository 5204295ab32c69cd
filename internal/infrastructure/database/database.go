package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	dirPermissions  = 0750
	filePermissions = 0600

	// defaultBusyTimeout is used when Config.BusyTimeout is zero (seconds).
	defaultBusyTimeout = 5

	// pingTimeout bounds the connectivity check in Open.
	pingTimeout = 5 * time.Second

	connMaxIdleTime = 30 * time.Minute
)

// ErrEmptyPath is returned by Open when no database path is configured.
var ErrEmptyPath = errors.New("database: path is empty")

// DB wraps a sql.DB connection to the snapshot store.
type DB struct {
	*sql.DB
	path string
}

// Config contains database configuration options.
type Config struct {
	// Path is the SQLite file. Its directory is created if missing.
	Path string

	// WALMode enables write-ahead logging.
	WALMode bool

	// BusyTimeout is the lock wait in seconds.
	BusyTimeout int
}

// Open connects to the SQLite file described by cfg and verifies the
// connection with a ping bounded by ctx.
func Open(ctx context.Context, cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, ErrEmptyPath
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = defaultBusyTimeout
	}

	// See: https://github.com/mattn/go-sqlite3#connection-string
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on",
		cfg.Path, int(time.Duration(busy)*time.Second/time.Millisecond))
	if cfg.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single writer.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close() //nolint:errcheck // best effort on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	_ = os.Chmod(cfg.Path, filePermissions) //nolint:errcheck // file may not exist until first write

	return &DB{DB: sqlDB, path: cfg.Path}, nil
}

// Close closes the underlying connection. Safe to call on a zero DB.
func (db *DB) Close() error {
	if db == nil || db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the filesystem path of the database file.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck runs a trivial query to confirm the connection is usable.
func (db *DB) HealthCheck(ctx context.Context) error {
	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back otherwise.
func (db *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
