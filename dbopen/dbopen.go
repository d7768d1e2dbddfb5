// Package dbopen opens the sitegen SQLite database with the pragmas every
// connection needs (foreign keys, WAL, busy timeout) applied through plain
// Exec calls, then runs the schema statements it was given.
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("data/sitegen.db", dbopen.WithMkdirAll(), dbopen.WithSchema(store.Schema))
//
// Tests use OpenMemory, which pins the pool to one connection.
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

type config struct {
	driver      string
	busyTimeout int
	synchronous string
	foreignKeys bool
	mkdirAll    bool
	schemas     []string
	maxOpen     int
}

// Option customises Open.
type Option func(*config)

// WithDriver sets the database/sql driver name. Default: "sqlite".
func WithDriver(name string) Option { return func(c *config) { c.driver = name } }

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds. Default: 10000.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithSchema queues DDL executed after the pragmas, in call order.
func WithSchema(s string) Option { return func(c *config) { c.schemas = append(c.schemas, s) } }

// WithMaxOpenConns caps the pool size. 0 keeps database/sql's default.
func WithMaxOpenConns(n int) Option { return func(c *config) { c.maxOpen = n } }

// WithoutForeignKeys disables PRAGMA foreign_keys.
func WithoutForeignKeys() Option { return func(c *config) { c.foreignKeys = false } }

// Open opens the database at path. The driver must be blank-imported by the
// caller.
func Open(path string, opts ...Option) (*sql.DB, error) {
	cfg := config{
		driver:      "sqlite",
		busyTimeout: 10_000,
		synchronous: "NORMAL",
		foreignKeys: true,
	}
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("dbopen: mkdir: %w", err)
		}
	}

	db, err := sql.Open(cfg.driver, path)
	if err != nil {
		return nil, fmt.Errorf("dbopen: open: %w", err)
	}
	if cfg.maxOpen > 0 {
		db.SetMaxOpenConns(cfg.maxOpen)
	}

	if err := setup(db, &cfg); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func setup(db *sql.DB, cfg *config) error {
	fk := "ON"
	if !cfg.foreignKeys {
		fk = "OFF"
	}
	stmts := []string{
		"PRAGMA foreign_keys = " + fk,
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.busyTimeout),
		"PRAGMA synchronous = " + cfg.synchronous,
	}
	for _, p := range stmts {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("dbopen: %s: %w", p, err)
		}
	}
	for i, s := range cfg.schemas {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("dbopen: schema %d: %w", i, err)
		}
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("dbopen: ping: %w", err)
	}
	return nil
}

// OpenMemory opens a private in-memory database for a test and closes it on
// cleanup. Each ":memory:" connection is a separate database, so the pool is
// limited to one connection.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", append(opts, WithMaxOpenConns(1))...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
