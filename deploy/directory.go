package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hazyhaar/sitegen/export"
)

// Directory publishes sites under Root/<slug>, for self-hosting behind any
// static web server and for local development.
type Directory struct {
	Root    string
	BaseURL string // public URL of Root; file:// URLs are used when empty
}

func (d *Directory) Name() string { return "directory" }

// Deploy replaces Root/<slug> with the site files.
func (d *Directory) Deploy(ctx context.Context, site Site) (*Result, error) {
	if d.Root == "" {
		return nil, fmt.Errorf("%w: directory root", ErrNotConfigured)
	}
	slug := export.Slug(site.Slug)
	dir := filepath.Join(d.Root, slug)
	tmp, err := os.MkdirTemp(d.Root, "."+slug+"-")
	if err != nil {
		return nil, fmt.Errorf("deploy: directory: %w", err)
	}
	defer os.RemoveAll(tmp)

	for _, f := range site.Files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		dst := filepath.Join(tmp, filepath.FromSlash(export.SanitizePath(f.Path)))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return nil, fmt.Errorf("deploy: directory: %w", err)
		}
		if err := os.WriteFile(dst, []byte(f.Content), 0o644); err != nil {
			return nil, fmt.Errorf("deploy: directory: %w", err)
		}
	}
	if err := os.RemoveAll(dir); err != nil {
		return nil, fmt.Errorf("deploy: directory: clear %s: %w", dir, err)
	}
	if err := os.Rename(tmp, dir); err != nil {
		return nil, fmt.Errorf("deploy: directory: publish %s: %w", dir, err)
	}

	u := strings.TrimRight(d.BaseURL, "/") + "/" + slug + "/"
	if d.BaseURL == "" {
		abs, _ := filepath.Abs(dir)
		u = "file://" + filepath.ToSlash(abs) + "/"
	}
	return &Result{URL: u, ExternalID: slug}, nil
}
