package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hazyhaar/sitegen/dbopen"
	"github.com/hazyhaar/sitegen/idgen"
)

// User is an account. PasswordHash is empty for OAuth-only accounts.
type User struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	Name           string `json:"name"`
	PasswordHash   string `json:"-"`
	Role           string `json:"role"`
	Provider       string `json:"provider"`
	ProviderUserID string `json:"-"`
	AvatarURL      string `json:"avatar_url,omitempty"`
	CreatedAt      int64  `json:"created_at"`
	UpdatedAt      int64  `json:"updated_at"`
	LastLoginAt    int64  `json:"last_login_at,omitempty"`
}

const userColumns = `id, email, name, password_hash, role, provider, provider_user_id,
	avatar_url, created_at, updated_at, last_login_at`

// NormalizeEmail lower-cases and trims an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser inserts u, filling ID, role, provider and timestamps when unset.
func (s *Store) CreateUser(ctx context.Context, u *User) error {
	now := time.Now().UnixMilli()
	if u.ID == "" {
		u.ID = idgen.User()
	}
	if u.Role == "" {
		u.Role = "user"
	}
	if u.Provider == "" {
		u.Provider = "password"
	}
	u.Email = NormalizeEmail(u.Email)
	u.CreatedAt, u.UpdatedAt = now, now

	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO users (`+userColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		u.ID, u.Email, u.Name, u.PasswordHash, u.Role, u.Provider, u.ProviderUserID,
		u.AvatarURL, u.CreatedAt, u.UpdatedAt, nullInt(u.LastLoginAt))
	if dbopen.IsUniqueViolation(err) {
		return ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("store: create user: %w", err)
	}
	return nil
}

// GetUser returns the user with id.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// GetUserByEmail looks an account up by normalized email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.DB.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, NormalizeEmail(email))
	return scanUser(row)
}

// UpsertOAuthUser returns the account linked to (provider, providerUserID).
// An existing account with the same email is linked; otherwise a new one is
// created. Name and avatar are refreshed on every call. A linked password
// account keeps its password hash.
func (s *Store) UpsertOAuthUser(ctx context.Context, u *User) (*User, error) {
	var out *User
	err := dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		existing, err := scanUser(tx.QueryRowContext(ctx,
			`SELECT `+userColumns+` FROM users WHERE provider = ? AND provider_user_id = ?`,
			u.Provider, u.ProviderUserID))
		if errors.Is(err, ErrNotFound) {
			existing, err = scanUser(tx.QueryRowContext(ctx,
				`SELECT `+userColumns+` FROM users WHERE email = ?`, NormalizeEmail(u.Email)))
		}
		switch {
		case errors.Is(err, ErrNotFound):
			nu := *u
			nu.ID = idgen.User()
			nu.Email = NormalizeEmail(u.Email)
			if nu.Role == "" {
				nu.Role = "user"
			}
			nu.CreatedAt, nu.UpdatedAt, nu.LastLoginAt = now, now, now
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO users (`+userColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
				nu.ID, nu.Email, nu.Name, "", nu.Role, nu.Provider, nu.ProviderUserID,
				nu.AvatarURL, now, now, now); err != nil {
				return err
			}
			out = &nu
			return nil
		case err != nil:
			return err
		}

		if u.Name != "" {
			existing.Name = u.Name
		}
		if u.AvatarURL != "" {
			existing.AvatarURL = u.AvatarURL
		}
		existing.Provider = u.Provider
		existing.ProviderUserID = u.ProviderUserID
		existing.UpdatedAt, existing.LastLoginAt = now, now
		_, err = tx.ExecContext(ctx,
			`UPDATE users SET name=?, avatar_url=?, provider=?, provider_user_id=?,
			updated_at=?, last_login_at=? WHERE id=?`,
			existing.Name, existing.AvatarURL, existing.Provider, existing.ProviderUserID,
			now, now, existing.ID)
		out = existing
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("store: upsert oauth user: %w", err)
	}
	return out, nil
}

// TouchLogin records a successful login.
func (s *Store) TouchLogin(ctx context.Context, id string) error {
	_, err := dbopen.Exec(ctx, s.DB, `UPDATE users SET last_login_at = ? WHERE id = ?`, time.Now().UnixMilli(), id)
	return err
}

// SetUserRole changes the role of a user.
func (s *Store) SetUserRole(ctx context.Context, id, role string) error {
	res, err := dbopen.Exec(ctx, s.DB, `UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
		role, time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("store: set role: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns every account, newest first.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()
	var out []*User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*User, error) {
	var u User
	var last sql.NullInt64
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Role, &u.Provider,
		&u.ProviderUserID, &u.AvatarURL, &u.CreatedAt, &u.UpdatedAt, &last)
	if err != nil {
		return nil, notFound(err)
	}
	u.LastLoginAt = last.Int64
	return &u, nil
}
