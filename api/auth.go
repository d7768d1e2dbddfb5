package api

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"net/http"
	"net/mail"
	"slices"
	"time"

	"golang.org/x/oauth2"

	"github.com/hazyhaar/sitegen/auth"
	"github.com/hazyhaar/sitegen/observability"
	"github.com/hazyhaar/sitegen/shield"
	"github.com/hazyhaar/sitegen/store"
)

const (
	minPasswordLength = 8
	stateCookieName   = "oauth_state"
)

var errInvalidCredentials = errors.New("invalid email or password")

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type sessionResponse struct {
	User  *store.User `json:"user"`
	Token string      `json:"token"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	email := store.NormalizeEmail(req.Email)
	if _, err := mail.ParseAddress(email); err != nil {
		fail(w, r, badRequest("invalid email address"))
		return
	}
	if len(req.Password) < minPasswordLength {
		fail(w, r, badRequest("password must be at least %d characters", minPasswordLength))
		return
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		fail(w, r, err)
		return
	}

	u := &store.User{
		Email:        email,
		Name:         cleanText(req.Name, 100),
		PasswordHash: hash,
		Role:         s.initialRole(r, email),
	}
	if err := s.cfg.Store.CreateUser(r.Context(), u); err != nil {
		fail(w, r, err)
		return
	}
	s.logEvent(r.Context(), observability.Event{
		Kind: observability.KindUserRegistered, UserID: u.ID, Success: true,
		Message: "account created", Details: map[string]any{"provider": u.Provider, "role": u.Role},
	})
	s.startSession(w, r, http.StatusCreated, u)
}

// initialRole grants admin to configured emails and to the very first
// account of a fresh installation.
func (s *Server) initialRole(r *http.Request, email string) string {
	if slices.Contains(s.cfg.AdminEmails, email) {
		return auth.RoleAdmin
	}
	users, err := s.cfg.Store.ListUsers(r.Context())
	if err == nil && len(users) == 0 {
		return auth.RoleAdmin
	}
	return auth.RoleUser
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := decodeJSON(r, &req); err != nil {
		fail(w, r, err)
		return
	}
	u, err := s.cfg.Store.GetUserByEmail(r.Context(), req.Email)
	if errors.Is(err, store.ErrNotFound) || (err == nil && u.PasswordHash == "") {
		writeError(w, http.StatusUnauthorized, errInvalidCredentials)
		return
	}
	if err != nil {
		fail(w, r, err)
		return
	}
	if auth.CheckPassword(u.PasswordHash, req.Password) != nil {
		shield.GetLogger(r.Context()).Info("api: login refused", "user_id", u.ID)
		writeError(w, http.StatusUnauthorized, errInvalidCredentials)
		return
	}
	if err := s.cfg.Store.TouchLogin(r.Context(), u.ID); err != nil {
		shield.GetLogger(r.Context()).Warn("api: touch login failed", "error", err)
	}
	s.logEvent(r.Context(), observability.Event{
		Kind: observability.KindUserLogin, UserID: u.ID, Success: true,
		Message: "password login",
	})
	s.startSession(w, r, http.StatusOK, u)
}

func (s *Server) startSession(w http.ResponseWriter, r *http.Request, code int, u *store.User) {
	token, err := s.issueToken(w, r, u)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, code, sessionResponse{User: u, Token: token})
}

// issueToken signs a session for u and sets the cookie.
func (s *Server) issueToken(w http.ResponseWriter, r *http.Request, u *store.User) (string, error) {
	token, err := auth.GenerateToken(s.cfg.JWTSecret, &auth.Claims{
		UserID:   u.ID,
		Email:    u.Email,
		Name:     u.Name,
		Role:     u.Role,
		Provider: u.Provider,
	}, s.cfg.TokenTTL)
	if err != nil {
		return "", err
	}
	auth.SetTokenCookie(w, token, s.cfg.TokenTTL, s.cfg.SecureCookies || auth.IsSecureRequest(r))
	return token, nil
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	auth.ClearTokenCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.cfg.Store.GetUser(r.Context(), auth.GetClaims(r.Context()).UserID)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Google == nil {
		writeError(w, http.StatusNotFound, errors.New("google sign-in is not configured"))
		return
	}
	buf := make([]byte, 16)
	rand.Read(buf)
	state := hex.EncodeToString(buf)
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/api/auth/google",
		MaxAge:   int((10 * time.Minute).Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.SecureCookies || auth.IsSecureRequest(r),
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.cfg.Google.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Google == nil {
		writeError(w, http.StatusNotFound, errors.New("google sign-in is not configured"))
		return
	}
	c, err := r.Cookie(stateCookieName)
	state := r.URL.Query().Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(c.Value), []byte(state)) != 1 {
		writeError(w, http.StatusBadRequest, errors.New("invalid oauth state"))
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookieName, Path: "/api/auth/google", MaxAge: -1})

	gu, err := auth.FetchGoogleUser(r.Context(), s.cfg.Google, r.URL.Query().Get("code"))
	if err != nil {
		shield.GetLogger(r.Context()).Warn("api: google sign-in failed", "error", err)
		writeError(w, http.StatusUnauthorized, errors.New("google sign-in failed"))
		return
	}
	u, err := s.cfg.Store.UpsertOAuthUser(r.Context(), &store.User{
		Email:          gu.Email,
		Name:           gu.Name,
		Provider:       "google",
		ProviderUserID: gu.ProviderUserID,
		AvatarURL:      gu.AvatarURL,
		Role:           s.initialRole(r, store.NormalizeEmail(gu.Email)),
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	s.logEvent(r.Context(), observability.Event{
		Kind: observability.KindUserLogin, UserID: u.ID, Success: true,
		Message: "google login",
	})

	if _, err := s.issueToken(w, r, u); err != nil {
		fail(w, r, err)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}
