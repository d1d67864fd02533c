// Package sqlite provides a SQLite implementation of the CanonStore interface.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/ehudso7/halcyon-cinema-2.0/internal/domain/canonerr"
	"github.com/ehudso7/halcyon-cinema-2.0/internal/infrastructure/config"
)

// timeNow returns the current time (can be mocked in tests).
var timeNow = time.Now

// Repository implements ports.CanonStore using SQLite.
type Repository struct {
	db   *sql.DB
	path string
}

// connPragmas are applied by the driver to every pooled connection. Write
// transactions begin IMMEDIATE so concurrent writers queue on busy_timeout
// instead of failing when upgrading a read lock.
const connPragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_txlock=immediate"

// NewRepository creates a new SQLite repository.
func NewRepository(cfg config.SQLiteConfig) (*Repository, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}

	db, err := sql.Open("sqlite", dsn(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	// Every pooled connection to :memory: is a separate database.
	if cfg.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to sqlite database: %w", err)
	}

	return &Repository{
		db:   db,
		path: cfg.Path,
	}, nil
}

// dsn appends the connection pragmas to a database path.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + connPragmas
}

// Close closes the database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Path returns the database file path.
func (r *Repository) Path() string {
	return r.path
}

// EnsureSchema creates the database schema if it doesn't exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	schema := `
	-- Canon entries (one row per entry, current state)
	CREATE TABLE IF NOT EXISTS canon_entries (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		slug TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		payload TEXT,
		lock_state TEXT NOT NULL DEFAULT 'unlocked',
		version INTEGER NOT NULL,
		parent_id TEXT,
		timeline_id TEXT NOT NULL DEFAULT '',
		active INTEGER NOT NULL DEFAULT 1,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_canon_entries_slug
		ON canon_entries(project_id, timeline_id, slug) WHERE active = 1;
	CREATE INDEX IF NOT EXISTS idx_canon_entries_project ON canon_entries(project_id, timeline_id, active);
	CREATE INDEX IF NOT EXISTS idx_canon_entries_parent ON canon_entries(parent_id);

	-- Kind-specific attributes, rewritten with every entry write
	CREATE TABLE IF NOT EXISTS canon_entry_attributes (
		entry_id TEXT NOT NULL REFERENCES canon_entries(id) ON DELETE CASCADE,
		kind TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_canon_entry_attributes_entry ON canon_entry_attributes(entry_id);
	CREATE INDEX IF NOT EXISTS idx_canon_entry_attributes_lookup ON canon_entry_attributes(name, value);

	-- Version history (append-only)
	CREATE TABLE IF NOT EXISTS canon_versions (
		id TEXT PRIMARY KEY,
		entry_id TEXT NOT NULL REFERENCES canon_entries(id),
		version INTEGER NOT NULL,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		payload TEXT,
		actor TEXT,
		reason TEXT,
		change_type TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(entry_id, version)
	);
	CREATE INDEX IF NOT EXISTS idx_canon_versions_entry ON canon_versions(entry_id);

	-- Timelines (exactly one main per project)
	CREATE TABLE IF NOT EXISTS timelines (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		description TEXT,
		is_main INTEGER NOT NULL DEFAULT 0,
		parent_id TEXT REFERENCES timelines(id),
		fork_point_entry_id TEXT,
		created_at TIMESTAMP NOT NULL
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_timelines_main ON timelines(project_id) WHERE is_main = 1;
	CREATE INDEX IF NOT EXISTS idx_timelines_project ON timelines(project_id);

	-- Audit log (tracks all actions)
	CREATE TABLE IF NOT EXISTS audit_log (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		action TEXT NOT NULL,
		entry_id TEXT,
		details TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_audit_log_entry ON audit_log(entry_id);
	CREATE INDEX IF NOT EXISTS idx_audit_log_action ON audit_log(action);
	`

	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

// withTx runs fn in a transaction, committing when fn returns nil.
func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return busyAsConflict(fmt.Errorf("beginning transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return busyAsConflict(err)
	}
	if err := tx.Commit(); err != nil {
		return busyAsConflict(fmt.Errorf("committing transaction: %w", err))
	}
	return nil
}

// busyAsConflict reports a write that lost the database lock as a retriable
// conflict.
func busyAsConflict(err error) error {
	if !isBusyError(err) {
		return err
	}
	var ce *canonerr.Error
	if errors.As(err, &ce) {
		return err
	}
	return canonerr.Conflict("", "database is busy, retry the write", err)
}

// isConstraintError reports whether err is a SQLite uniqueness or primary key violation.
func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3.SQLITE_CONSTRAINT || code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

// isBusyError reports whether err is SQLITE_BUSY or SQLITE_LOCKED, including
// their extended codes.
func isBusyError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

// nullString maps "" to NULL.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// boolToInt converts a bool for INTEGER columns.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
