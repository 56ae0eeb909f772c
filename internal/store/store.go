// Package store is the relational persistence collaborator: projects, their
// rich-text descriptions and comments. It uses SQLite through database/sql.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dkeye/Collab/internal/domain"
	_ "modernc.org/sqlite"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

var ErrNotFound = errors.New("not found")

const timeLayout = time.RFC3339Nano

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates the database file (and its directory) when missing and
// applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("store: create data dir: %w", err)
		}
	}
	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("store: pragma %q: %w", p, err)
		}
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migration: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS projects (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			name       TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS descriptions (
			project_id INTEGER PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
			content    TEXT NOT NULL,
			updated_by INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS comments (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id  INTEGER NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
			author_id   INTEGER NOT NULL,
			author_name TEXT NOT NULL,
			body        TEXT NOT NULL,
			mentions    TEXT NOT NULL DEFAULT '[]',
			created_at  TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_comments_project ON comments(project_id, id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ─── Projects ────────────────────────────────────────────────────────────────

func (s *Store) CreateProject(ctx context.Context, name string) (domain.Project, error) {
	created := s.now()
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO projects (name, created_at) VALUES (?, ?)",
		name, created.Format(timeLayout),
	)
	if err != nil {
		return domain.Project{}, fmt.Errorf("store: create project: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Project{}, fmt.Errorf("store: create project: %w", err)
	}
	return domain.Project{ID: domain.ProjectID(id), Name: name, CreatedAt: created}, nil
}

func (s *Store) GetProject(ctx context.Context, id domain.ProjectID) (domain.Project, error) {
	var (
		p       domain.Project
		created string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, created_at FROM projects WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Project{}, ErrNotFound
	}
	if err != nil {
		return domain.Project{}, fmt.Errorf("store: get project %d: %w", id, err)
	}
	p.CreatedAt = parseTime(created)
	return p, nil
}

// ProjectExists implements core.ProjectLookup.
func (s *Store) ProjectExists(ctx context.Context, id domain.ProjectID) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM projects WHERE id = ?", id).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("store: project exists %d: %w", id, err)
	}
	return n > 0, nil
}

// ─── Descriptions ────────────────────────────────────────────────────────────

// SaveDescription replaces the stored document. The last write wins; there
// is no version check.
func (s *Store) SaveDescription(ctx context.Context, id domain.ProjectID, content json.RawMessage, by domain.UserID) (domain.Description, error) {
	ok, err := s.ProjectExists(ctx, id)
	if err != nil {
		return domain.Description{}, err
	}
	if !ok {
		return domain.Description{}, ErrNotFound
	}
	d := domain.Description{ProjectID: id, Content: content, UpdatedBy: by, UpdatedAt: s.now()}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO descriptions (project_id, content, updated_by, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(project_id) DO UPDATE SET
			content    = excluded.content,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at`,
		id, string(content), by, d.UpdatedAt.Format(timeLayout),
	)
	if err != nil {
		return domain.Description{}, fmt.Errorf("store: save description %d: %w", id, err)
	}
	return d, nil
}

func (s *Store) GetDescription(ctx context.Context, id domain.ProjectID) (domain.Description, error) {
	var (
		d                domain.Description
		content, updated string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT project_id, content, updated_by, updated_at FROM descriptions WHERE project_id = ?", id,
	).Scan(&d.ProjectID, &content, &d.UpdatedBy, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Description{}, ErrNotFound
	}
	if err != nil {
		return domain.Description{}, fmt.Errorf("store: get description %d: %w", id, err)
	}
	d.Content = json.RawMessage(content)
	d.UpdatedAt = parseTime(updated)
	return d, nil
}

// ─── Comments ────────────────────────────────────────────────────────────────

func (s *Store) AddComment(ctx context.Context, c domain.Comment) (domain.Comment, error) {
	ok, err := s.ProjectExists(ctx, c.ProjectID)
	if err != nil {
		return domain.Comment{}, err
	}
	if !ok {
		return domain.Comment{}, ErrNotFound
	}
	if c.Mentions == nil {
		c.Mentions = []domain.UserID{}
	}
	mentions, err := json.Marshal(c.Mentions)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("store: encode mentions: %w", err)
	}
	c.CreatedAt = s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (project_id, author_id, author_name, body, mentions, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ProjectID, c.Author.ID, c.Author.Username, string(c.Body), string(mentions), c.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return domain.Comment{}, fmt.Errorf("store: add comment: %w", err)
	}
	if c.ID, err = res.LastInsertId(); err != nil {
		return domain.Comment{}, fmt.Errorf("store: add comment: %w", err)
	}
	return c, nil
}

// ListComments returns the comments of a project oldest first.
func (s *Store) ListComments(ctx context.Context, id domain.ProjectID) ([]domain.Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, author_id, author_name, body, mentions, created_at
		FROM comments WHERE project_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, fmt.Errorf("store: list comments %d: %w", id, err)
	}
	defer rows.Close()

	out := []domain.Comment{}
	for rows.Next() {
		var (
			c                       domain.Comment
			body, mentions, created string
		)
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.Author.ID, &c.Author.Username, &body, &mentions, &created); err != nil {
			return nil, fmt.Errorf("store: scan comment: %w", err)
		}
		c.Body = json.RawMessage(body)
		if err := json.Unmarshal([]byte(mentions), &c.Mentions); err != nil {
			return nil, fmt.Errorf("store: decode mentions of comment %d: %w", c.ID, err)
		}
		c.CreatedAt = parseTime(created)
		out = append(out, c)
	}
	return out, rows.Err()
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
