// Package database provides the SQLite store used to keep device snapshots
// between runs of the gateway client.
//
// This package manages:
//   - Connection setup with WAL mode and a busy timeout
//   - Versioned schema migrations read from an fs.FS
//   - Health checks and transactional helpers
//
// The gateway itself is the source of truth for device state. The database
// only holds the last discovery result and the latest reported property
// values so the CLI and HTTP API can answer while the broker is unreachable.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if _, err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql with an
// optional matching .down.sql.
package database
