// Package store is the SQLite data access layer of sitegen: users, projects,
// their files, generation runs and deployments.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/hazyhaar/sitegen/dbopen"
	"github.com/hazyhaar/sitegen/observability"
	"github.com/hazyhaar/sitegen/shield"
)

var (
	// ErrNotFound is returned when a row does not exist or is not owned by
	// the requesting user.
	ErrNotFound = errors.New("store: not found")

	// ErrEmailTaken is returned by CreateUser for a duplicate email.
	ErrEmailTaken = errors.New("store: email already registered")

	// ErrGenerationActive is returned by StartGeneration while another
	// generation of the same project is running.
	ErrGenerationActive = errors.New("store: a generation is already running for this project")
)

// Store wraps the application database.
type Store struct {
	DB *sql.DB
}

// New wraps an already opened database. The schema must have been applied.
func New(db *sql.DB) *Store {
	return &Store{DB: db}
}

// Open opens (creating if needed) the database at path with every schema
// sitegen needs.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	opts = append([]dbopen.Option{dbopen.WithMkdirAll()}, opts...)
	opts = append(opts, Schemas()...)
	db, err := dbopen.Open(path, opts...)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	return New(db), nil
}

// Schemas returns the dbopen options applying all DDL in order.
func Schemas() []dbopen.Option {
	return []dbopen.Option{
		dbopen.WithSchema(Schema),
		dbopen.WithSchema(shield.Schema),
		dbopen.WithSchema(observability.Schema),
	}
}

// Close closes the database.
func (s *Store) Close() error { return s.DB.Close() }

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}
