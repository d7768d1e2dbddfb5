package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"

	"github.com/hazyhaar/sitegen/kit"
)

var testSecret = bytes.Repeat([]byte("s"), 32)

func TestTokenRoundTrip(t *testing.T) {
	tok, err := GenerateToken(testSecret, &Claims{UserID: "usr_1", Email: "a@b.c", Role: RoleUser}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	c, err := ValidateToken(testSecret, tok)
	if err != nil {
		t.Fatal(err)
	}
	if c.UserID != "usr_1" || c.Email != "a@b.c" || c.Subject != "usr_1" {
		t.Fatalf("claims: %+v", c)
	}
}

func TestTokenRejections(t *testing.T) {
	if _, err := GenerateToken([]byte("short"), &Claims{UserID: "u"}, time.Hour); err == nil {
		t.Fatal("short secret accepted")
	}

	expired, _ := GenerateToken(testSecret, &Claims{UserID: "u"}, -time.Minute)
	if _, err := ValidateToken(testSecret, expired); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token: got %v", err)
	}

	other, _ := GenerateToken(bytes.Repeat([]byte("x"), 32), &Claims{UserID: "u"}, time.Hour)
	if _, err := ValidateToken(testSecret, other); err == nil {
		t.Fatal("token signed with another secret accepted")
	}

	if _, err := ValidateToken(testSecret, "garbage"); err == nil {
		t.Fatal("garbage accepted")
	}
}

func TestMiddleware(t *testing.T) {
	tok, _ := GenerateToken(testSecret, &Claims{UserID: "usr_9", Role: RoleAdmin}, time.Hour)

	var gotUser, gotRole string
	h := Middleware(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = kit.GetUserID(r.Context())
		gotRole = kit.GetRole(r.Context())
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: tok})
	h.ServeHTTP(httptest.NewRecorder(), req)
	if gotUser != "usr_9" || gotRole != RoleAdmin {
		t.Fatalf("cookie: user=%q role=%q", gotUser, gotRole)
	}

	gotUser = ""
	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	h.ServeHTTP(httptest.NewRecorder(), req)
	if gotUser != "usr_9" {
		t.Fatalf("bearer: user=%q", gotUser)
	}

	gotUser = "unchanged"
	req = httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: CookieName, Value: "bad"})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if gotUser != "" {
		t.Fatalf("invalid cookie: user=%q", gotUser)
	}
	if !strings.Contains(rec.Header().Get("Set-Cookie"), "Max-Age=0") {
		t.Fatalf("invalid cookie not cleared: %q", rec.Header().Get("Set-Cookie"))
	}
}

func TestRequireSessionAndAdmin(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	rec := httptest.NewRecorder()
	RequireSession(ok).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous: got %d", rec.Code)
	}

	userCtx := WithClaims(context.Background(), &Claims{UserID: "u", Role: RoleUser})
	rec = httptest.NewRecorder()
	RequireAdmin(ok).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil).WithContext(userCtx))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin: got %d", rec.Code)
	}

	adminCtx := WithClaims(context.Background(), &Claims{UserID: "a", Role: RoleAdmin})
	rec = httptest.NewRecorder()
	RequireAdmin(ok).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil).WithContext(adminCtx))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("admin: got %d", rec.Code)
	}
}

func TestPassword(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrWeakPassword) {
		t.Fatalf("weak password: got %v", err)
	}
	h, err := HashPassword("correct horse")
	if err != nil {
		t.Fatal(err)
	}
	if err := CheckPassword(h, "correct horse"); err != nil {
		t.Fatalf("good password: %v", err)
	}
	if err := CheckPassword(h, "wrong horse"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("bad password: got %v", err)
	}
	if err := CheckPassword("", "anything"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("empty hash: got %v", err)
	}
}

func TestFetchGoogleUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"at","token_type":"Bearer","expires_in":3600}`)
		case "/userinfo":
			if r.Header.Get("Authorization") != "Bearer at" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(OAuthUser{ProviderUserID: "g1", Email: "g@example.com", Verified: true, Name: "G"})
		}
	}))
	defer srv.Close()

	old := GoogleUserInfoURL
	GoogleUserInfoURL = srv.URL + "/userinfo"
	defer func() { GoogleUserInfoURL = old }()

	oc := NewGoogleProvider(OAuthConfig{ClientID: "id", ClientSecret: "secret", RedirectURL: "http://localhost/cb"})
	oc.Endpoint = oauth2.Endpoint{TokenURL: srv.URL + "/token", AuthURL: srv.URL + "/auth"}

	u, err := FetchGoogleUser(context.Background(), oc, "code")
	if err != nil {
		t.Fatal(err)
	}
	if u.Email != "g@example.com" || u.ProviderUserID != "g1" {
		t.Fatalf("user: %+v", u)
	}
	if NewGoogleProvider(OAuthConfig{}) != nil {
		t.Fatal("empty client id should disable the provider")
	}
}
