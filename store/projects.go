package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/sitegen/dbopen"
	"github.com/hazyhaar/sitegen/idgen"
)

// Project statuses.
const (
	StatusDraft      = "draft"
	StatusGenerating = "generating"
	StatusReady      = "ready"
	StatusPartial    = "partial"
	StatusFailed     = "failed"
	StatusDeploying  = "deploying"
	StatusDeployed   = "deployed"
)

// Project is a user's website.
type Project struct {
	ID           string `json:"id"`
	UserID       string `json:"user_id"`
	Name         string `json:"name"`
	Description  string `json:"description"`
	Prompt       string `json:"prompt"`
	Provider     string `json:"provider"`
	Status       string `json:"status"`
	DeployURL    string `json:"deploy_url,omitempty"`
	HasThumbnail bool   `json:"has_thumbnail"`
	FileCount    int    `json:"file_count"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
}

const projectColumns = `p.id, p.user_id, p.name, p.description, p.prompt, p.provider, p.status,
	p.deploy_url, p.thumbnail IS NOT NULL,
	(SELECT COUNT(*) FROM project_files f WHERE f.project_id = p.id),
	p.created_at, p.updated_at`

// CreateProject inserts p for p.UserID.
func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	now := time.Now().UnixMilli()
	if p.ID == "" {
		p.ID = idgen.Project()
	}
	if p.Status == "" {
		p.Status = StatusDraft
	}
	p.CreatedAt, p.UpdatedAt = now, now
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO projects (id, user_id, name, description, prompt, provider, status,
		deploy_url, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.UserID, p.Name, p.Description, p.Prompt, p.Provider, p.Status,
		p.DeployURL, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create project: %w", err)
	}
	return nil
}

// GetProject returns project id owned by userID. An empty userID skips the
// ownership check (CLI and admin use).
func (s *Store) GetProject(ctx context.Context, userID, id string) (*Project, error) {
	q := `SELECT ` + projectColumns + ` FROM projects p WHERE p.id = ?`
	args := []any{id}
	if userID != "" {
		q += ` AND p.user_id = ?`
		args = append(args, userID)
	}
	return scanProject(s.DB.QueryRowContext(ctx, q, args...))
}

// ListProjects returns the projects of userID, most recently updated first.
func (s *Store) ListProjects(ctx context.Context, userID string) ([]*Project, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+projectColumns+` FROM projects p WHERE p.user_id = ?
		ORDER BY p.updated_at DESC, p.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("store: list projects: %w", err)
	}
	defer rows.Close()
	out := []*Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpdateProject saves the editable fields of p (name, description, prompt,
// provider). Ownership is checked against p.UserID.
func (s *Store) UpdateProject(ctx context.Context, p *Project) error {
	p.UpdatedAt = time.Now().UnixMilli()
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE projects SET name=?, description=?, prompt=?, provider=?, updated_at=?
		WHERE id=? AND user_id=?`,
		p.Name, p.Description, p.Prompt, p.Provider, p.UpdatedAt, p.ID, p.UserID)
	return affected(res, err, "update project")
}

// SetProjectStatus changes the status of project id.
func (s *Store) SetProjectStatus(ctx context.Context, id, status string) error {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE projects SET status=?, updated_at=? WHERE id=?`, status, time.Now().UnixMilli(), id)
	return affected(res, err, "set project status")
}

// SetProjectDeployURL records the URL of the latest successful deployment.
func (s *Store) SetProjectDeployURL(ctx context.Context, id, url string) error {
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE projects SET deploy_url=?, status=?, updated_at=? WHERE id=?`,
		url, StatusDeployed, time.Now().UnixMilli(), id)
	return affected(res, err, "set deploy url")
}

// SetProjectThumbnail stores a PNG screenshot. Nil clears it.
func (s *Store) SetProjectThumbnail(ctx context.Context, id string, png []byte) error {
	var v any
	if png != nil {
		v = png
	}
	res, err := dbopen.Exec(ctx, s.DB, `UPDATE projects SET thumbnail=? WHERE id=?`, v, id)
	return affected(res, err, "set thumbnail")
}

// GetProjectThumbnail returns the stored screenshot of a project owned by
// userID, or ErrNotFound when there is none.
func (s *Store) GetProjectThumbnail(ctx context.Context, userID, id string) ([]byte, error) {
	var png []byte
	err := s.DB.QueryRowContext(ctx,
		`SELECT thumbnail FROM projects WHERE id = ? AND user_id = ? AND thumbnail IS NOT NULL`,
		id, userID).Scan(&png)
	if err != nil {
		return nil, notFound(err)
	}
	return png, nil
}

// DeleteProject removes a project owned by userID with its files,
// generations and deployments.
func (s *Store) DeleteProject(ctx context.Context, userID, id string) error {
	res, err := dbopen.Exec(ctx, s.DB, `DELETE FROM projects WHERE id=? AND user_id=?`, id, userID)
	return affected(res, err, "delete project")
}

func scanProject(row scanner) (*Project, error) {
	var p Project
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Description, &p.Prompt, &p.Provider,
		&p.Status, &p.DeployURL, &p.HasThumbnail, &p.FileCount, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

func affected(res rowsAffected, err error, op string) error {
	if err != nil {
		return fmt.Errorf("store: %s: %w", op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
