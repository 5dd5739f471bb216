// Package store persists committed architectures, their sessions and the
// audit log in SQLite (modernc.org/sqlite, pure Go) with FTS5 keyword search.
//
// A commit writes the new architecture version, the session and the audit
// entry in a single IMMEDIATE transaction, so readers observe all three or
// none. The (project_id, version) primary key is the final guard against two
// commits claiming the same version.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// timeNow is replaced by tests that assert on commit timestamps.
var timeNow = time.Now

// newSessionID returns a time-ordered UUIDv7, falling back to a random v4
// if the clock source fails.
var newSessionID = func() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// timeLayout is the on-disk timestamp format. Fixed width keeps text
// ordering equal to chronological ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// DBFile is the database filename inside the data directory.
const DBFile = "archpipe.db"

// ─── Config ──────────────────────────────────────────────────────────────────

// Config holds store configuration.
type Config struct {
	DataDir         string
	MaxQueryResults int
}

// DefaultConfig returns the default configuration for the store.
func DefaultConfig() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:         filepath.Join(home, ".archpipe"),
		MaxQueryResults: 20,
	}
}

// ─── DB ──────────────────────────────────────────────────────────────────────

// DB owns the SQLite handle shared by ArchitectureStore and AuditLog.
type DB struct {
	db    *sql.DB
	cfg   Config
	hooks storeHooks
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// storeHooks let tests inject failures at the write boundaries.
type storeHooks struct {
	exec    func(ctx context.Context, db execer, query string, args ...any) (sql.Result, error)
	beginTx func(ctx context.Context, db *sql.DB) (*sql.Tx, error)
	commit  func(tx *sql.Tx) error
}

func defaultStoreHooks() storeHooks {
	return storeHooks{
		exec: func(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
			return db.ExecContext(ctx, query, args...)
		},
		beginTx: func(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
			return db.BeginTx(ctx, nil)
		},
		commit: func(tx *sql.Tx) error {
			return tx.Commit()
		},
	}
}

func (d *DB) execHook(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
	if d.hooks.exec != nil {
		return d.hooks.exec(ctx, db, query, args...)
	}
	return db.ExecContext(ctx, query, args...)
}

func (d *DB) beginTxHook(ctx context.Context) (*sql.Tx, error) {
	if d.hooks.beginTx != nil {
		return d.hooks.beginTx(ctx, d.db)
	}
	return d.db.BeginTx(ctx, nil)
}

func (d *DB) commitHook(tx *sql.Tx) error {
	if d.hooks.commit != nil {
		return d.hooks.commit(tx)
	}
	return tx.Commit()
}

// Open creates the data directory if needed, opens SQLite with WAL mode and
// immediate write transactions, and runs migrations.
func Open(cfg Config) (*DB, error) {
	if cfg.MaxQueryResults <= 0 {
		cfg.MaxQueryResults = DefaultConfig().MaxQueryResults
	}
	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return nil, fmt.Errorf("store: create data dir: %w", err)
	}

	// Pragmas go in the DSN so every pooled connection gets them.
	dsn := filepath.Join(cfg.DataDir, DBFile) + "?" + strings.Join([]string{
		"_txlock=immediate",
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=synchronous(NORMAL)",
		"_pragma=foreign_keys(ON)",
	}, "&")

	db, err := openDB("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	d := &DB{db: db, cfg: cfg, hooks: defaultStoreHooks()}
	if err := d.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return d, nil
}

// Close closes the underlying database connection.
func (d *DB) Close() error {
	return d.db.Close()
}

// Ping reports whether the database is reachable.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// ─── Migrations ──────────────────────────────────────────────────────────────

func (d *DB) migrate() error {
	ctx := context.Background()

	schema := `
		CREATE TABLE IF NOT EXISTS architectures (
			project_id TEXT    NOT NULL,
			version    INTEGER NOT NULL,
			services   TEXT    NOT NULL,
			status     TEXT    NOT NULL DEFAULT 'committed',
			session_id TEXT    NOT NULL,
			created_at TEXT    NOT NULL,
			PRIMARY KEY (project_id, version)
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id           TEXT    PRIMARY KEY,
			project_id   TEXT    NOT NULL,
			version      INTEGER NOT NULL,
			diff         TEXT    NOT NULL,
			task_plan    TEXT    NOT NULL,
			reason       TEXT    NOT NULL,
			committed_at TEXT    NOT NULL,
			FOREIGN KEY (project_id, version) REFERENCES architectures(project_id, version)
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id, version);

		CREATE TABLE IF NOT EXISTS audit_log (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id   TEXT    NOT NULL UNIQUE,
			project_id   TEXT    NOT NULL,
			committed_at TEXT    NOT NULL,
			reason       TEXT    NOT NULL,
			summary      TEXT    NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_audit_project ON audit_log(project_id);

		CREATE VIRTUAL TABLE IF NOT EXISTS audit_fts USING fts5(
			reason,
			summary,
			content='audit_log',
			content_rowid='id'
		);
	`
	if _, err := d.execHook(ctx, d.db, schema); err != nil {
		return err
	}

	// FTS sync plus immutability: committed rows are never updated or deleted.
	triggers := `
		CREATE TRIGGER IF NOT EXISTS audit_fts_insert AFTER INSERT ON audit_log BEGIN
			INSERT INTO audit_fts(rowid, reason, summary)
			VALUES (new.id, new.reason, new.summary);
		END;

		CREATE TRIGGER IF NOT EXISTS audit_log_no_update BEFORE UPDATE ON audit_log BEGIN
			SELECT RAISE(ABORT, 'audit_log is append-only');
		END;

		CREATE TRIGGER IF NOT EXISTS audit_log_no_delete BEFORE DELETE ON audit_log BEGIN
			SELECT RAISE(ABORT, 'audit_log is append-only');
		END;

		CREATE TRIGGER IF NOT EXISTS architectures_no_update BEFORE UPDATE ON architectures BEGIN
			SELECT RAISE(ABORT, 'committed architectures are immutable');
		END;

		CREATE TRIGGER IF NOT EXISTS sessions_no_update BEFORE UPDATE ON sessions BEGIN
			SELECT RAISE(ABORT, 'sessions are immutable');
		END;
	`
	if _, err := d.execHook(ctx, d.db, triggers); err != nil {
		return err
	}

	return nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}

// isUniqueViolation checks if an error is a SQLite UNIQUE/PRIMARY KEY violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
