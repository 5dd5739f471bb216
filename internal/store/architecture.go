package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/HendryAvila/archpipe/internal/arch"
)

// ArchitectureStore holds the committed architecture versions of every
// project and the sessions that produced them.
type ArchitectureStore struct {
	db    *DB
	audit *AuditLog
}

// NewArchitectureStore returns a store writing audit entries through audit.
// A nil audit log gets one backed by the same database.
func NewArchitectureStore(db *DB, audit *AuditLog) *ArchitectureStore {
	if audit == nil {
		audit = NewAuditLog(db)
	}
	return &ArchitectureStore{db: db, audit: audit}
}

// GetCurrent returns the highest committed version of the project.
// It returns arch.ErrNotFound when the project was never committed.
func (s *ArchitectureStore) GetCurrent(ctx context.Context, projectID string) (*arch.Architecture, error) {
	var (
		version  int
		services string
	)
	err := s.db.db.QueryRowContext(ctx,
		`SELECT version, services FROM architectures
		 WHERE project_id = ? AND status = 'committed'
		 ORDER BY version DESC LIMIT 1`,
		projectID,
	).Scan(&version, &services)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: project %q", arch.ErrNotFound, projectID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading current architecture of %q: %w", projectID, err)
	}
	return decodeArchitecture(projectID, version, services)
}

// CurrentOrDefault is GetCurrent with arch.ErrNotFound mapped to the empty
// version-0 baseline.
func (s *ArchitectureStore) CurrentOrDefault(ctx context.Context, projectID string) (*arch.Architecture, error) {
	a, err := s.GetCurrent(ctx, projectID)
	if errors.Is(err, arch.ErrNotFound) {
		return arch.Empty(projectID), nil
	}
	return a, err
}

// History returns every committed version of the project, oldest first.
func (s *ArchitectureStore) History(ctx context.Context, projectID string) ([]arch.Architecture, error) {
	rows, err := s.db.db.QueryContext(ctx,
		`SELECT version, services FROM architectures
		 WHERE project_id = ? AND status = 'committed'
		 ORDER BY version ASC`,
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing history of %q: %w", projectID, err)
	}
	defer func() { _ = rows.Close() }()

	out := []arch.Architecture{}
	for rows.Next() {
		var (
			version  int
			services string
		)
		if err := rows.Scan(&version, &services); err != nil {
			return nil, fmt.Errorf("scanning architecture: %w", err)
		}
		a, err := decodeArchitecture(projectID, version, services)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Commit persists a new architecture version together with its session and
// audit entry, and returns the new session id.
//
// The updated architecture must be exactly one version ahead of the current
// one (0 when the project is new); otherwise arch.ErrVersionConflict is
// returned and nothing is written.
func (s *ArchitectureStore) Commit(ctx context.Context, p arch.CommitParams) (string, error) {
	if p.ProjectID == "" {
		return "", fmt.Errorf("project_id is required")
	}
	if p.UpdatedArchitecture.ProjectID != p.ProjectID {
		return "", fmt.Errorf("updated architecture belongs to project %q, want %q",
			p.UpdatedArchitecture.ProjectID, p.ProjectID)
	}
	if err := arch.ValidateArchitecture(&p.UpdatedArchitecture); err != nil {
		return "", err
	}

	services, err := json.Marshal(p.UpdatedArchitecture.Services)
	if err != nil {
		return "", fmt.Errorf("marshaling services: %w", err)
	}
	diff, err := json.Marshal(p.Diff)
	if err != nil {
		return "", fmt.Errorf("marshaling diff: %w", err)
	}
	plan, err := json.Marshal(p.TaskPlan)
	if err != nil {
		return "", fmt.Errorf("marshaling task plan: %w", err)
	}

	tx, err := s.db.beginTxHook(ctx)
	if err != nil {
		return "", fmt.Errorf("begin commit: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var current int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version), 0) FROM architectures
		 WHERE project_id = ? AND status = 'committed'`,
		p.ProjectID,
	).Scan(&current); err != nil {
		return "", fmt.Errorf("reading current version: %w", err)
	}

	want := current + 1
	if p.UpdatedArchitecture.Version != want {
		return "", fmt.Errorf("%w: project %q is at version %d, commit targets %d",
			arch.ErrVersionConflict, p.ProjectID, current, p.UpdatedArchitecture.Version)
	}

	sess := &arch.Session{
		ID:                  newSessionID(),
		ProjectID:           p.ProjectID,
		Diff:                p.Diff,
		UpdatedArchitecture: p.UpdatedArchitecture,
		TaskPlan:            p.TaskPlan,
		CommittedAt:         timeNow().UTC(),
		Reason:              p.Reason,
	}
	committedAt := formatTime(sess.CommittedAt)

	if _, err := s.db.execHook(ctx, tx,
		`INSERT INTO architectures (project_id, version, services, session_id, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		p.ProjectID, want, string(services), sess.ID, committedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: version %d of %q already committed",
				arch.ErrVersionConflict, want, p.ProjectID)
		}
		return "", fmt.Errorf("inserting architecture: %w", err)
	}

	if _, err := s.db.execHook(ctx, tx,
		`INSERT INTO sessions (id, project_id, version, diff, task_plan, reason, committed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, p.ProjectID, want, string(diff), string(plan), p.Reason, committedAt,
	); err != nil {
		return "", fmt.Errorf("inserting session: %w", err)
	}

	if err := s.audit.appendTx(ctx, tx, sess); err != nil {
		return "", err
	}

	if err := s.db.commitHook(tx); err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("%w: %v", arch.ErrVersionConflict, err)
		}
		return "", fmt.Errorf("commit: %w", err)
	}
	return sess.ID, nil
}

// GetSession returns a committed session by id, or arch.ErrNotFound.
func (s *ArchitectureStore) GetSession(ctx context.Context, sessionID string) (*arch.Session, error) {
	var (
		projectID, diff, plan, reason, committedAt, services string
		version                                               int
	)
	err := s.db.db.QueryRowContext(ctx,
		`SELECT s.project_id, s.version, s.diff, s.task_plan, s.reason, s.committed_at, a.services
		 FROM sessions s
		 JOIN architectures a ON a.project_id = s.project_id AND a.version = s.version
		 WHERE s.id = ?`,
		sessionID,
	).Scan(&projectID, &version, &diff, &plan, &reason, &committedAt, &services)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: session %q", arch.ErrNotFound, sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("loading session %q: %w", sessionID, err)
	}

	sess := &arch.Session{ID: sessionID, ProjectID: projectID, Reason: reason}
	if err := json.Unmarshal([]byte(diff), &sess.Diff); err != nil {
		return nil, fmt.Errorf("decoding diff of session %q: %w", sessionID, err)
	}
	if err := json.Unmarshal([]byte(plan), &sess.TaskPlan); err != nil {
		return nil, fmt.Errorf("decoding task plan of session %q: %w", sessionID, err)
	}
	a, err := decodeArchitecture(projectID, version, services)
	if err != nil {
		return nil, err
	}
	sess.UpdatedArchitecture = *a
	if sess.CommittedAt, err = parseTime(committedAt); err != nil {
		return nil, err
	}
	return sess, nil
}

func decodeArchitecture(projectID string, version int, services string) (*arch.Architecture, error) {
	a := &arch.Architecture{ProjectID: projectID, Version: version}
	if err := json.Unmarshal([]byte(services), &a.Services); err != nil {
		return nil, fmt.Errorf("decoding services of %q v%d: %w", projectID, version, err)
	}
	if a.Services == nil {
		a.Services = []arch.ServiceDescriptor{}
	}
	return a, nil
}
