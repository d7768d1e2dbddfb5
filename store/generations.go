package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/sitegen/dbopen"
	"github.com/hazyhaar/sitegen/idgen"
)

// Generation statuses.
const (
	GenerationRunning   = "running"
	GenerationCompleted = "completed"
	GenerationPartial   = "partial"
	GenerationFailed    = "failed"
)

// Generation is one generate or modify run of a project.
type Generation struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	UserID     string `json:"user_id"`
	Mode       string `json:"mode"` // "generate" or "modify"
	Prompt     string `json:"prompt"`
	Provider   string `json:"provider"`
	Status     string `json:"status"`
	FileCount  int    `json:"file_count"`
	Report     string `json:"report,omitempty"` // sitefile.Report as JSON
	Error      string `json:"error,omitempty"`
	StartedAt  int64  `json:"started_at"`
	FinishedAt int64  `json:"finished_at,omitempty"`
}

const generationColumns = `id, project_id, user_id, mode, prompt, provider, status,
	file_count, report, error, started_at, finished_at`

// StartGeneration records g as running. It returns ErrGenerationActive when
// the project already has a running generation.
func (s *Store) StartGeneration(ctx context.Context, g *Generation) error {
	if g.ID == "" {
		g.ID = idgen.Generation()
	}
	g.Status = GenerationRunning
	g.StartedAt = time.Now().UnixMilli()
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO generations (id, project_id, user_id, mode, prompt, provider, status, started_at)
		VALUES (?,?,?,?,?,?,?,?)`,
		g.ID, g.ProjectID, g.UserID, g.Mode, g.Prompt, g.Provider, g.Status, g.StartedAt)
	if dbopen.IsUniqueViolation(err) {
		return ErrGenerationActive
	}
	if err != nil {
		return fmt.Errorf("store: start generation: %w", err)
	}
	return nil
}

// FinishGeneration closes generation id with a terminal status.
func (s *Store) FinishGeneration(ctx context.Context, id, status string, fileCount int, report, errMsg string) error {
	var rep sql.NullString
	if report != "" {
		rep = sql.NullString{String: report, Valid: true}
	}
	res, err := dbopen.Exec(ctx, s.DB,
		`UPDATE generations SET status=?, file_count=?, report=?, error=?, finished_at=?
		WHERE id=? AND status='running'`,
		status, fileCount, rep, errMsg, time.Now().UnixMilli(), id)
	return affected(res, err, "finish generation")
}

// ListGenerations returns the latest generations of projectID, newest first.
func (s *Store) ListGenerations(ctx context.Context, projectID string, limit int) ([]*Generation, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+generationColumns+` FROM generations WHERE project_id = ?
		ORDER BY started_at DESC, id DESC LIMIT ?`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list generations: %w", err)
	}
	defer rows.Close()
	out := []*Generation{}
	for rows.Next() {
		var g Generation
		var report sql.NullString
		var finished sql.NullInt64
		if err := rows.Scan(&g.ID, &g.ProjectID, &g.UserID, &g.Mode, &g.Prompt, &g.Provider,
			&g.Status, &g.FileCount, &report, &g.Error, &g.StartedAt, &finished); err != nil {
			return nil, err
		}
		g.Report = report.String
		g.FinishedAt = finished.Int64
		out = append(out, &g)
	}
	return out, rows.Err()
}

// FailStaleGenerations marks every running generation as failed. It runs at
// startup: a generation cannot outlive the process that ran it. Projects
// stuck in "generating" are reset to "failed" too.
func (s *Store) FailStaleGenerations(ctx context.Context) (int64, error) {
	var n int64
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		res, err := tx.ExecContext(ctx,
			`UPDATE generations SET status='failed', error='interrupted by restart', finished_at=?
			WHERE status='running'`, now)
		if err != nil {
			return err
		}
		n, _ = res.RowsAffected()
		_, err = tx.ExecContext(ctx,
			`UPDATE projects SET status=?, updated_at=? WHERE status=?`, StatusFailed, now, StatusGenerating)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("store: fail stale generations: %w", err)
	}
	return n, nil
}
