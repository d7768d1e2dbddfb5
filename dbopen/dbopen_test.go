package dbopen_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/sitegen/dbopen"
)

func TestOpenPragmas(t *testing.T) {
	db := dbopen.OpenMemory(t)

	var fk, busy, sync int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow("PRAGMA busy_timeout").Scan(&busy); err != nil {
		t.Fatal(err)
	}
	if err := db.QueryRow("PRAGMA synchronous").Scan(&sync); err != nil {
		t.Fatal(err)
	}
	if fk != 1 || busy != 10_000 || sync != 1 {
		t.Fatalf("pragmas: foreign_keys=%d busy_timeout=%d synchronous=%d", fk, busy, sync)
	}
}

func TestOptions(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithBusyTimeout(2500), dbopen.WithoutForeignKeys())

	var fk, busy int
	db.QueryRow("PRAGMA foreign_keys").Scan(&fk)
	db.QueryRow("PRAGMA busy_timeout").Scan(&busy)
	if fk != 0 || busy != 2500 {
		t.Fatalf("foreign_keys=%d busy_timeout=%d", fk, busy)
	}
}

func TestWithSchemaOrder(t *testing.T) {
	db := dbopen.OpenMemory(t,
		dbopen.WithSchema(`CREATE TABLE projects (id TEXT PRIMARY KEY)`),
		dbopen.WithSchema(`CREATE TABLE project_files (project_id TEXT REFERENCES projects(id), path TEXT)`),
	)
	if _, err := db.Exec(`INSERT INTO projects (id) VALUES ('p1')`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO project_files (project_id, path) VALUES ('p1', 'index.html')`); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO project_files (project_id, path) VALUES ('missing', 'x')`); err == nil {
		t.Fatal("foreign key not enforced")
	}
}

func TestOpenBadSchema(t *testing.T) {
	if _, err := dbopen.Open(":memory:", dbopen.WithSchema(`CREATE TABLEX nope`)); err == nil {
		t.Fatal("expected schema error")
	}
}

func TestWithMkdirAll(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "nested", "sitegen.db")
	db, err := dbopen.Open(path, dbopen.WithMkdirAll())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("directory not created: %v", err)
	}
}

func TestIsBusy(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("no such table"), false},
		{errors.New("SQLITE_BUSY"), true},
		{errors.New("exec: database is locked (5)"), true},
		{errors.New("database table is locked"), true},
	}
	for _, tt := range tests {
		if got := dbopen.IsBusy(tt.err); got != tt.want {
			t.Errorf("IsBusy(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE u (id TEXT PRIMARY KEY)`))
	db.Exec(`INSERT INTO u (id) VALUES ('a')`)
	_, err := db.Exec(`INSERT INTO u (id) VALUES ('a')`)
	if !dbopen.IsUniqueViolation(err) {
		t.Fatalf("IsUniqueViolation(%v) = false", err)
	}
	if dbopen.IsUniqueViolation(errors.New("database is locked")) {
		t.Fatal("busy error reported as unique violation")
	}
}

func TestRunTx(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE files (path TEXT PRIMARY KEY, content TEXT)`))
	ctx := context.Background()

	err := dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO files VALUES ('index.html', '<p>a</p>')`); err != nil {
			return err
		}
		_, err := tx.Exec(`INSERT INTO files VALUES ('style.css', 'body{}')`)
		return err
	})
	if err != nil {
		t.Fatalf("RunTx: %v", err)
	}

	sentinel := errors.New("abort")
	err = dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		tx.Exec(`INSERT INTO files VALUES ('script.js', '')`)
		return sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("RunTx error = %v, want sentinel", err)
	}

	var n int
	db.QueryRow(`SELECT COUNT(*) FROM files`).Scan(&n)
	if n != 2 {
		t.Fatalf("count = %d, want 2 (rolled back insert kept?)", n)
	}
}

func TestExec(t *testing.T) {
	db := dbopen.OpenMemory(t, dbopen.WithSchema(`CREATE TABLE e (id TEXT PRIMARY KEY)`))
	res, err := dbopen.Exec(context.Background(), db, `INSERT INTO e (id) VALUES (?)`, "1")
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if n, _ := res.RowsAffected(); n != 1 {
		t.Fatalf("rows affected = %d", n)
	}
}

func TestRunTxCancelled(t *testing.T) {
	db := dbopen.OpenMemory(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := dbopen.RunTx(ctx, db, func(*sql.Tx) error { return nil }); err == nil {
		t.Fatal("expected error on cancelled context")
	}
}
