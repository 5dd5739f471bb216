package store

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/HendryAvila/archpipe/internal/arch"
)

// AuditLog is the append-only record of committed sessions.
type AuditLog struct {
	db *DB
}

// NewAuditLog returns an audit log backed by db.
func NewAuditLog(db *DB) *AuditLog {
	return &AuditLog{db: db}
}

// QueryOptions narrows an audit query.
type QueryOptions struct {
	ProjectID string
	Limit     int
}

// Append records a committed session. Appending a session id that is
// already present is a no-op.
func (l *AuditLog) Append(ctx context.Context, s *arch.Session) error {
	return l.appendTx(ctx, l.db.db, s)
}

// appendTx inserts the audit row through db, which is either the pool or
// the commit transaction.
func (l *AuditLog) appendTx(ctx context.Context, db execer, s *arch.Session) error {
	if s == nil || s.ID == "" {
		return fmt.Errorf("audit: session id is required")
	}
	if _, err := l.db.execHook(ctx, db,
		`INSERT OR IGNORE INTO audit_log (session_id, project_id, committed_at, reason, summary)
		 VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.ProjectID, formatTime(s.CommittedAt), s.Reason, arch.Summarize(s),
	); err != nil {
		return fmt.Errorf("audit: append %s: %w", s.ID, err)
	}
	return nil
}

// Query returns the entries whose reason or summary matches filterText,
// most recent first. An empty filter returns the most recent entries.
// The result is never nil.
func (l *AuditLog) Query(ctx context.Context, filterText string) ([]arch.AuditEntry, error) {
	return l.Search(ctx, filterText, QueryOptions{})
}

// Search is Query with options. A word matches as a keyword prefix (FTS5)
// and the whole filter also matches as a case-insensitive substring.
func (l *AuditLog) Search(ctx context.Context, filterText string, opts QueryOptions) ([]arch.AuditEntry, error) {
	limit := opts.Limit
	if limit <= 0 || limit > l.db.cfg.MaxQueryResults {
		limit = l.db.cfg.MaxQueryResults
	}

	sqlStr := `
		SELECT a.session_id, a.project_id, a.committed_at, a.reason, a.summary
		FROM audit_log a
		WHERE 1 = 1
	`
	var args []any

	filter := strings.TrimSpace(filterText)
	if filter != "" {
		like := "%" + escapeLike(filter) + "%"
		clause := `a.reason LIKE ? ESCAPE '\' OR a.summary LIKE ? ESCAPE '\'`
		clauseArgs := []any{like, like}
		if fts := sanitizeFTS(filter); fts != "" {
			clause = `a.id IN (SELECT rowid FROM audit_fts WHERE audit_fts MATCH ?) OR ` + clause
			clauseArgs = append([]any{fts}, clauseArgs...)
		}
		sqlStr += " AND (" + clause + ")"
		args = append(args, clauseArgs...)
	}
	if opts.ProjectID != "" {
		sqlStr += " AND a.project_id = ?"
		args = append(args, opts.ProjectID)
	}

	sqlStr += " ORDER BY a.id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []arch.AuditEntry{}
	for rows.Next() {
		var (
			e           arch.AuditEntry
			committedAt string
		)
		if err := rows.Scan(&e.SessionID, &e.ProjectID, &committedAt, &e.Reason, &e.Summary); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		if e.CommittedAt, err = parseTime(committedAt); err != nil {
			return nil, err
		}
		results = append(results, e)
	}
	return results, rows.Err()
}

// Count returns the number of audit entries.
func (l *AuditLog) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("audit: count: %w", err)
	}
	return n, nil
}

// sanitizeFTS turns free text into an FTS5 query of quoted prefix terms,
// so user input never reaches the FTS5 query grammar.
// "add payments" → `"add"* "payments"*`
func sanitizeFTS(query string) string {
	var terms []string
	for _, w := range strings.Fields(query) {
		w = strings.ReplaceAll(w, `"`, "")
		if !strings.ContainsFunc(w, isWordRune) {
			continue
		}
		terms = append(terms, `"`+w+`"*`)
	}
	return strings.Join(terms, " ")
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

// escapeLike escapes LIKE wildcards so the filter matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
