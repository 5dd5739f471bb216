package store

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

// DB exposes the internal *sql.DB for test helpers in store_test.
// This file only compiles during `go test`.
func (d *DB) DB() *sql.DB {
	return d.db
}

// FailCommit makes every transaction commit fail with err.
func (d *DB) FailCommit(err error) {
	d.hooks.commit = func(tx *sql.Tx) error {
		_ = tx.Rollback()
		return err
	}
}

// FailExecContaining makes every statement containing fragment fail with err.
func (d *DB) FailExecContaining(fragment string, err error) {
	next := d.hooks.exec
	d.hooks.exec = func(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
		if strings.Contains(query, fragment) {
			return nil, err
		}
		return next(ctx, db, query, args...)
	}
}

// SetTimeNow replaces the clock used for commit timestamps.
func SetTimeNow(fn func() time.Time) (restore func()) {
	prev := timeNow
	timeNow = fn
	return func() { timeNow = prev }
}

var SanitizeFTS = sanitizeFTS
