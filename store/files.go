package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hazyhaar/sitegen/dbopen"
	"github.com/hazyhaar/sitegen/sitefile"
)

// StoredFile is a persisted project file.
type StoredFile struct {
	sitefile.FileRecord
	UpdatedAt int64 `json:"updated_at"`
}

// UpsertFiles inserts or replaces records of projectID keyed by path, in a
// single transaction, and bumps the project's updated_at.
func (s *Store) UpsertFiles(ctx context.Context, projectID string, records []sitefile.FileRecord) error {
	return s.writeFiles(ctx, projectID, records, false)
}

// ReplaceFiles makes records the complete file set of projectID.
func (s *Store) ReplaceFiles(ctx context.Context, projectID string, records []sitefile.FileRecord) error {
	return s.writeFiles(ctx, projectID, records, true)
}

func (s *Store) writeFiles(ctx context.Context, projectID string, records []sitefile.FileRecord, replace bool) error {
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		res, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`, now, projectID)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		if replace {
			if _, err := tx.ExecContext(ctx, `DELETE FROM project_files WHERE project_id = ?`, projectID); err != nil {
				return err
			}
		}
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO project_files (project_id, path, content, type, size, updated_at)
			VALUES (?,?,?,?,?,?)
			ON CONFLICT(project_id, path) DO UPDATE SET
				content=excluded.content, type=excluded.type, size=excluded.size,
				updated_at=excluded.updated_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range records {
			r = sitefile.New(r.Path, r.Content, sitefile.StorageType(r.Type))
			if _, err := stmt.ExecContext(ctx, projectID, r.Path, r.Content, string(r.Type), r.Size, now); err != nil {
				return err
			}
		}
		return nil
	})
	if errors.Is(err, ErrNotFound) {
		return err
	}
	if err != nil {
		return fmt.Errorf("store: write files: %w", err)
	}
	return nil
}

// ListFiles returns the files of projectID in deployment priority order.
func (s *Store) ListFiles(ctx context.Context, projectID string) ([]StoredFile, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT path, content, type, size, updated_at FROM project_files WHERE project_id = ?`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: list files: %w", err)
	}
	defer rows.Close()
	byPath := map[string]StoredFile{}
	var records []sitefile.FileRecord
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		byPath[f.Path] = f
		records = append(records, f.FileRecord)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]StoredFile, 0, len(records))
	for _, r := range sitefile.SortByPriority(records) {
		out = append(out, byPath[r.Path])
	}
	return out, nil
}

// Records returns the file records of projectID in priority order.
func (s *Store) Records(ctx context.Context, projectID string) ([]sitefile.FileRecord, error) {
	files, err := s.ListFiles(ctx, projectID)
	if err != nil {
		return nil, err
	}
	out := make([]sitefile.FileRecord, len(files))
	for i, f := range files {
		out[i] = f.FileRecord
	}
	return out, nil
}

// GetFile returns one file of projectID.
func (s *Store) GetFile(ctx context.Context, projectID, path string) (*StoredFile, error) {
	f, err := scanFile(s.DB.QueryRowContext(ctx,
		`SELECT path, content, type, size, updated_at FROM project_files
		WHERE project_id = ? AND path = ?`, projectID, path))
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// DeleteFile removes one file of projectID.
func (s *Store) DeleteFile(ctx context.Context, projectID, path string) error {
	res, err := dbopen.Exec(ctx, s.DB,
		`DELETE FROM project_files WHERE project_id = ? AND path = ?`, projectID, path)
	return affected(res, err, "delete file")
}

// CountFiles returns the number of files and their total size in bytes.
func (s *Store) CountFiles(ctx context.Context, projectID string) (count int, bytes int64, err error) {
	err = s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM project_files WHERE project_id = ?`,
		projectID).Scan(&count, &bytes)
	if err != nil {
		return 0, 0, fmt.Errorf("store: count files: %w", err)
	}
	return count, bytes, nil
}

func scanFile(row scanner) (StoredFile, error) {
	var f StoredFile
	var typ string
	if err := row.Scan(&f.Path, &f.Content, &typ, &f.Size, &f.UpdatedAt); err != nil {
		return StoredFile{}, notFound(err)
	}
	f.Type = sitefile.FileType(typ)
	return f, nil
}
