package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/hazyhaar/sitegen/kit"
)

type claimsKey struct{}

// Middleware parses the session token from the cookie or, failing that,
// the Authorization Bearer header. Valid claims are stored in the context
// together with kit.UserIDKey and kit.RoleKey. Missing or invalid tokens
// are ignored; RequireSession enforces authentication.
func Middleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr := ""
			fromCookie := false
			if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
				tokenStr, fromCookie = c.Value, true
			} else if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
				tokenStr = strings.TrimSpace(h[len("Bearer "):])
			}
			if tokenStr == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := ValidateToken(secret, tokenStr)
			if err != nil {
				if fromCookie {
					ClearTokenCookie(w)
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims stores claims in ctx along with the kit identity keys.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	ctx = context.WithValue(ctx, claimsKey{}, c)
	ctx = kit.WithUserID(ctx, c.UserID)
	return kit.WithRole(ctx, c.Role)
}

// GetClaims returns the session claims, or nil for anonymous requests.
func GetClaims(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// RequireSession answers 401 JSON when the request carries no valid session.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetClaims(r.Context()) == nil {
			deny(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin answers 403 JSON unless the session has the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := GetClaims(r.Context())
		if c == nil || c.Role != RoleAdmin {
			deny(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func deny(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
