// Package auth issues and verifies the session tokens of sitegen users:
// HS256 JWTs carried in an HttpOnly cookie or a Bearer header, bcrypt
// password hashes and Google OAuth2 sign-in.
package auth

import "github.com/golang-jwt/jwt/v5"

// Roles.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Claims is the JWT payload of a sitegen session.
type Claims struct {
	jwt.RegisteredClaims
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Role     string `json:"role"`
	Provider string `json:"provider,omitempty"` // "local", "google"
}
