// Package localsite reads and writes a site kept in a local directory, for
// the command line tools.
package localsite

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/hazyhaar/sitegen/sitefile"
)

// DefaultPatterns selects the text files a generated site is made of.
var DefaultPatterns = []string{"**/*.{html,htm,css,js,mjs,json,md,txt,svg,xml}"}

// ErrNoFiles is returned by Load when no file matches.
var ErrNoFiles = errors.New("localsite: no matching files")

// Site is a directory and the doublestar patterns (slash separated,
// relative to Root) selecting its files.
type Site struct {
	Root     string
	Patterns []string
}

// New returns a Site over root. Patterns default to DefaultPatterns.
func New(root string, patterns ...string) (*Site, error) {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("localsite: invalid pattern %q", p)
		}
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("localsite: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("localsite: %s is not a directory", root)
	}
	return &Site{Root: root, Patterns: patterns}, nil
}

// Match reports whether rel, a slash separated path relative to Root, is
// part of the site.
func (s *Site) Match(rel string) bool {
	if hidden(rel) {
		return false
	}
	for _, p := range s.Patterns {
		if ok, _ := doublestar.Match(p, rel); ok {
			return true
		}
	}
	return false
}

// Load reads every matching file. Hidden files and directories, and
// node_modules, are skipped.
func (s *Site) Load() ([]sitefile.FileRecord, error) {
	fsys := os.DirFS(s.Root)
	seen := make(map[string]bool)
	var out []sitefile.FileRecord
	for _, p := range s.Patterns {
		matches, err := doublestar.Glob(fsys, p, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("localsite: glob %q: %w", p, err)
		}
		for _, m := range matches {
			if seen[m] || hidden(m) {
				continue
			}
			seen[m] = true
			data, err := fs.ReadFile(fsys, m)
			if err != nil {
				return nil, fmt.Errorf("localsite: read %s: %w", m, err)
			}
			out = append(out, sitefile.New(m, string(data), sitefile.TypeFromPath(m)))
		}
	}
	if len(out) == 0 {
		return nil, ErrNoFiles
	}
	return out, nil
}

// Write stores records under Root and returns the paths it changed. Files
// whose content is already identical are left alone.
func (s *Site) Write(records []sitefile.FileRecord) ([]string, error) {
	var changed []string
	for _, r := range records {
		rel := sitefile.CleanPath(r.Path)
		if rel == "" {
			continue
		}
		dst := filepath.Join(s.Root, filepath.FromSlash(rel))
		if cur, err := os.ReadFile(dst); err == nil && bytes.Equal(cur, []byte(r.Content)) {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return changed, fmt.Errorf("localsite: %w", err)
		}
		if err := os.WriteFile(dst, []byte(r.Content), 0o644); err != nil {
			return changed, fmt.Errorf("localsite: write %s: %w", rel, err)
		}
		changed = append(changed, rel)
	}
	return changed, nil
}

func hidden(rel string) bool {
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") || seg == "node_modules" {
			return true
		}
	}
	return false
}
