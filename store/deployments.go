package store

import (
	"context"
	"fmt"
	"time"

	"github.com/hazyhaar/sitegen/dbopen"
	"github.com/hazyhaar/sitegen/idgen"
)

// Deployment statuses.
const (
	DeploymentPending  = "pending"
	DeploymentBuilding = "building"
	DeploymentReady    = "ready"
	DeploymentFailed   = "failed"
)

// Deployment is one publication of a project to a hosting provider.
type Deployment struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	UserID     string `json:"user_id"`
	Provider   string `json:"provider"`
	Status     string `json:"status"`
	URL        string `json:"url,omitempty"`
	ExternalID string `json:"external_id,omitempty"`
	FileCount  int    `json:"file_count"`
	Error      string `json:"error,omitempty"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// CreateDeployment inserts d as pending.
func (s *Store) CreateDeployment(ctx context.Context, d *Deployment) error {
	now := time.Now().UnixMilli()
	if d.ID == "" {
		d.ID = idgen.Deployment()
	}
	if d.Status == "" {
		d.Status = DeploymentPending
	}
	d.CreatedAt, d.UpdatedAt = now, now
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO deployments (id, project_id, user_id, provider, status, url, external_id,
		file_count, error, created_at, updated_at) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.ProjectID, d.UserID, d.Provider, d.Status, d.URL, d.ExternalID,
		d.FileCount, d.Error, d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("store: create deployment: %w", err)
	}
	return nil
}

// UpdateDeployment saves status, URL, external ID, file count and error.
func (s *Store) UpdateDeployment(ctx context.Context, d *Deployment) error {
	d.UpdatedAt = time.Now().UnixMilli()
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE deployments SET status=?, url=?, external_id=?, file_count=?, error=?, updated_at=?
		WHERE id=?`,
		d.Status, d.URL, d.ExternalID, d.FileCount, d.Error, d.UpdatedAt, d.ID)
	return affected(res, err, "update deployment")
}

// ListDeployments returns the latest deployments of projectID, newest first.
func (s *Store) ListDeployments(ctx context.Context, projectID string, limit int) ([]*Deployment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT id, project_id, user_id, provider, status, url, external_id, file_count, error,
		created_at, updated_at FROM deployments WHERE project_id = ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list deployments: %w", err)
	}
	defer rows.Close()
	out := []*Deployment{}
	for rows.Next() {
		var d Deployment
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.UserID, &d.Provider, &d.Status, &d.URL,
			&d.ExternalID, &d.FileCount, &d.Error, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &d)
	}
	return out, rows.Err()
}
