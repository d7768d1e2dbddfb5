package deploy

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// VercelConfig configures the Vercel deployer.
type VercelConfig struct {
	Token        string
	TeamID       string
	BaseURL      string        // default https://api.vercel.com
	Concurrency  int           // parallel uploads, default 6
	PollInterval time.Duration // default 2s
	Timeout      time.Duration // whole deployment, default 5m
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

func (c *VercelConfig) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.vercel.com"
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Concurrency <= 0 {
		c.Concurrency = 6
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Minute
	}
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Vercel deploys through the Vercel REST API: every file is uploaded by
// SHA-1 digest, then a production deployment referencing the digests is
// created and polled until it is ready.
type Vercel struct {
	cfg VercelConfig
}

// NewVercel returns a Vercel deployer.
func NewVercel(cfg VercelConfig) *Vercel {
	cfg.defaults()
	return &Vercel{cfg: cfg}
}

func (v *Vercel) Name() string { return "vercel" }

type vercelFile struct {
	File string `json:"file"`
	SHA  string `json:"sha"`
	Size int    `json:"size"`
}

type vercelDeployment struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	ReadyState string `json:"readyState"`
	ErrorMsg   string `json:"errorMessage"`
}

// Deploy uploads site and waits for the deployment to be ready.
func (v *Vercel) Deploy(ctx context.Context, site Site) (*Result, error) {
	if v.cfg.Token == "" {
		return nil, fmt.Errorf("%w: vercel token", ErrNotConfigured)
	}
	ctx, cancel := context.WithTimeout(ctx, v.cfg.Timeout)
	defer cancel()

	files := make([]vercelFile, len(site.Files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(v.cfg.Concurrency)
	for i, f := range site.Files {
		data := []byte(f.Content)
		sum := sha1.Sum(data)
		files[i] = vercelFile{File: f.Path, SHA: hex.EncodeToString(sum[:]), Size: len(data)}
		g.Go(func() error {
			return v.upload(gctx, files[i].SHA, data)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var d vercelDeployment
	body := map[string]any{
		"name":            site.Slug,
		"files":           files,
		"target":          "production",
		"projectSettings": map[string]any{"framework": nil},
	}
	if err := v.do(ctx, http.MethodPost, "/v13/deployments", body, &d); err != nil {
		return nil, err
	}
	v.cfg.Logger.Info("deploy: vercel deployment created", "project_id", site.ProjectID, "deployment", d.ID, "files", len(files))

	tick := time.NewTicker(v.cfg.PollInterval)
	defer tick.Stop()
	for {
		switch d.ReadyState {
		case "READY":
			return &Result{URL: "https://" + strings.TrimPrefix(d.URL, "https://"), ExternalID: d.ID}, nil
		case "ERROR", "CANCELED":
			msg := d.ErrorMsg
			if msg == "" {
				msg = "deployment " + strings.ToLower(d.ReadyState)
			}
			return nil, &ProviderError{Provider: "vercel", Status: http.StatusOK, Message: msg}
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("deploy: vercel: waiting for %s: %w", d.ID, ctx.Err())
		case <-tick.C:
		}
		if err := v.do(ctx, http.MethodGet, "/v13/deployments/"+url.PathEscape(d.ID), nil, &d); err != nil {
			return nil, err
		}
	}
}

func (v *Vercel) upload(ctx context.Context, sha string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint("/v2/files"), bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+v.cfg.Token)
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("x-vercel-digest", sha)
	req.Header.Set("Content-Length", strconv.Itoa(len(data)))
	resp, err := v.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("deploy: vercel: upload %s: %w", sha, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return vercelError(resp)
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

func (v *Vercel) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, v.endpoint(path), body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+v.cfg.Token)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := v.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("deploy: vercel: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return vercelError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("deploy: vercel: decode %s: %w", path, err)
	}
	return nil
}

func (v *Vercel) endpoint(path string) string {
	u := v.cfg.BaseURL + path
	if v.cfg.TeamID != "" {
		u += "?teamId=" + url.QueryEscape(v.cfg.TeamID)
	}
	return u
}

func vercelError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &e) == nil && e.Error.Message != "" {
		msg = e.Error.Message
	}
	return &ProviderError{Provider: "vercel", Status: resp.StatusCode, Message: msg}
}
