package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/hazyhaar/sitegen/horosafe"
)

// GoogleUserInfoURL is the profile endpoint queried after the code exchange.
var GoogleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// OAuthConfig configures Google sign-in. An empty ClientID disables it.
type OAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// OAuthUser is the profile returned by the provider.
type OAuthUser struct {
	ProviderUserID string `json:"id"`
	Email          string `json:"email"`
	Verified       bool   `json:"verified_email"`
	Name           string `json:"name"`
	AvatarURL      string `json:"picture"`
}

// NewGoogleProvider returns the oauth2 config for Google, or nil when
// cfg.ClientID is empty.
func NewGoogleProvider(cfg OAuthConfig) *oauth2.Config {
	if cfg.ClientID == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       []string{"openid", "email", "profile"},
		Endpoint:     google.Endpoint,
	}
}

// FetchGoogleUser exchanges code for a token and loads the user's profile.
func FetchGoogleUser(ctx context.Context, oc *oauth2.Config, code string) (*OAuthUser, error) {
	token, err := oc.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: oauth exchange: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, GoogleUserInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := oc.Client(ctx, token).Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: google userinfo: %w", err)
	}
	defer resp.Body.Close()

	body, err := horosafe.LimitedReadAll(resp.Body, horosafe.MaxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("auth: google userinfo: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: google userinfo returned %d: %s", resp.StatusCode, body)
	}

	var u OAuthUser
	if err := json.Unmarshal(body, &u); err != nil {
		return nil, fmt.Errorf("auth: decode google userinfo: %w", err)
	}
	if u.Email == "" || !u.Verified {
		return nil, fmt.Errorf("auth: google account has no verified email")
	}
	return &u, nil
}
