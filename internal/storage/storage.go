// Package storage persists projects and their conversation graphs in
// SQLite so a project can be reopened with its full branching history.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/davidchris/thoughttree/internal/graph"
)

// Project is one saved workspace: a notes directory plus its graph.
type Project struct {
	ID        string
	Name      string
	NotesDir  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SessionRecord is bookkeeping about one adapter session, kept for the
// doctor command and debugging. Not used to resurrect live sessions.
type SessionRecord struct {
	ID        string
	ProjectID string
	Provider  string
	Workdir   string
	RemoteID  string
	CreatedAt time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// New opens (creating if needed) the database under dataDir.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "thoughttree.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000&_fk=1")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, path: dbPath}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		notes_dir TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_projects_updated ON projects(updated_at DESC);

	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		provider TEXT,
		model TEXT,
		timestamp DATETIME NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_nodes_project ON nodes(project_id);

	CREATE TABLE IF NOT EXISTS edges (
		project_id TEXT NOT NULL,
		parent_id TEXT NOT NULL,
		child_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		PRIMARY KEY (project_id, child_id, position),
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_edges_project ON edges(project_id);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		provider TEXT NOT NULL,
		workdir TEXT NOT NULL,
		remote_id TEXT,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (project_id) REFERENCES projects(id) ON DELETE CASCADE
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// ── projects ──

// CreateProject inserts a project.
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, notes_dir, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, p.ID, p.Name, p.NotesDir, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create project %s: %w", p.ID, err)
	}
	return nil
}

// GetProject loads a project by id.
func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	var p Project
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, notes_dir, created_at, updated_at
		FROM projects WHERE id = ?
	`, id).Scan(&p.ID, &p.Name, &p.NotesDir, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListProjects returns projects, most recently updated first.
func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, notes_dir, created_at, updated_at
		FROM projects ORDER BY updated_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.Name, &p.NotesDir, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// DeleteProject removes a project and, via cascade, its graph and sessions.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	return nil
}

// ── graphs ──

// SaveGraph replaces the stored graph of a project with the given one,
// atomically.
func (s *Store) SaveGraph(ctx context.Context, projectID string, g *graph.Graph) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE project_id = ?`, projectID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM edges WHERE project_id = ?`, projectID); err != nil {
		return err
	}

	for _, n := range g.Nodes() {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO nodes (id, project_id, role, content, provider, model, timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, n.ID, projectID, string(n.Role), n.Content, n.Provider, n.Model, n.Timestamp); err != nil {
			return fmt.Errorf("save node %s: %w", n.ID, err)
		}
	}

	// Positions preserve edge recording order per child: position 0 is the
	// chosen parent and must replay first on load.
	positions := make(map[string]int)
	for _, e := range g.EdgesInOrder() {
		pos := positions[e.Child]
		positions[e.Child] = pos + 1
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO edges (project_id, parent_id, child_id, position)
			VALUES (?, ?, ?, ?)
		`, projectID, e.Parent, e.Child, pos); err != nil {
			return fmt.Errorf("save edge %s->%s: %w", e.Parent, e.Child, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`, time.Now(), projectID); err != nil {
		return err
	}
	return tx.Commit()
}

// LoadGraph rebuilds a project's graph from storage.
func (s *Store) LoadGraph(ctx context.Context, projectID string) (*graph.Graph, error) {
	g := graph.New()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, role, content, provider, model, timestamp
		FROM nodes WHERE project_id = ?
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var n graph.Node
		var role string
		var provider, model sql.NullString
		if err := rows.Scan(&n.ID, &role, &n.Content, &provider, &model, &n.Timestamp); err != nil {
			return nil, err
		}
		n.Role = graph.Role(role)
		n.Provider = provider.String
		n.Model = model.String
		if err := g.AddNode(&n); err != nil {
			return nil, fmt.Errorf("load node %s: %w", n.ID, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	erows, err := s.db.QueryContext(ctx, `
		SELECT parent_id, child_id FROM edges
		WHERE project_id = ? ORDER BY child_id, position
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer erows.Close()
	for erows.Next() {
		var parent, child string
		if err := erows.Scan(&parent, &child); err != nil {
			return nil, err
		}
		if err := g.AddEdge(parent, child); err != nil {
			return nil, fmt.Errorf("load edge %s->%s: %w", parent, child, err)
		}
	}
	return g, erows.Err()
}

// ── sessions ──

// RecordSession logs an adapter session for a project.
func (s *Store) RecordSession(ctx context.Context, rec *SessionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, project_id, provider, workdir, remote_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.ID, rec.ProjectID, rec.Provider, rec.Workdir, rec.RemoteID, rec.CreatedAt)
	return err
}

// ListSessions returns a project's session records, newest first.
func (s *Store) ListSessions(ctx context.Context, projectID string) ([]*SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, provider, workdir, remote_id, created_at
		FROM sessions WHERE project_id = ? ORDER BY created_at DESC
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*SessionRecord
	for rows.Next() {
		var r SessionRecord
		var remote sql.NullString
		if err := rows.Scan(&r.ID, &r.ProjectID, &r.Provider, &r.Workdir, &remote, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.RemoteID = remote.String
		out = append(out, &r)
	}
	return out, rows.Err()
}
