// Package export packages a project as a deterministic ZIP archive ready for
// static hosting, with the deployment helpers a user expects next to the
// site: a README, a copy script and Netlify, Vercel and GitHub Pages
// configurations plus a sitemap.
package export

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/hazyhaar/sitegen/sitefile"
)

// ErrEmpty is returned when the project has no file to export.
var ErrEmpty = errors.New("export: project has no files")

// DefaultBaseURL is used in the sitemap when the site has no deployment URL.
const DefaultBaseURL = "https://example.com"

// Site is what gets exported.
type Site struct {
	Name        string
	Description string
	Prompt      string
	BaseURL     string
	Files       []sitefile.FileRecord
}

// Entry is one archive member.
type Entry struct {
	Path      string
	Data      []byte
	Mode      fs.FileMode
	Generated bool // ancillary file, not a project file
}

// Filename is the download name of a project archive.
func Filename(name string) string { return Slug(name) + ".zip" }

// Entries returns the archive members in order: project files by priority,
// then every ancillary file whose path the project does not already use.
func Entries(site Site) ([]Entry, error) {
	if len(site.Files) == 0 {
		return nil, ErrEmpty
	}
	files := sitefile.SortByPriority(site.Files)
	for i, f := range files {
		files[i].Path = SanitizePath(f.Path)
		if sitefile.StorageType(sitefile.ResolveType(string(f.Type), f.Path)) == sitefile.TypeHTML {
			files[i] = files[i].WithContent(sitefile.FixImageURLs(f.Content))
		}
	}

	used := make(map[string]bool, len(files))
	entries := make([]Entry, 0, len(files)+len(ancillaries))
	for _, f := range files {
		entries = append(entries, Entry{Path: uniqueName(f.Path, used), Data: []byte(f.Content), Mode: 0o644})
	}

	info := newSiteInfo(site, files)
	for _, a := range ancillaries {
		if used[a.path] {
			continue
		}
		data, err := a.render(info)
		if err != nil {
			return nil, fmt.Errorf("export: %s: %w", a.path, err)
		}
		used[a.path] = true
		entries = append(entries, Entry{Path: a.path, Data: data, Mode: a.mode, Generated: true})
	}
	return entries, nil
}

// Write streams the archive of site to w and returns the number of entries.
func Write(w io.Writer, site Site) (int, error) {
	entries, err := Entries(site)
	if err != nil {
		return 0, err
	}
	zw := zip.NewWriter(w)
	for _, e := range entries {
		if err := writeEntry(zw, e.Path, e.Data, e.Mode); err != nil {
			zw.Close()
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("export: close archive: %w", err)
	}
	return len(entries), nil
}

// siteInfo is the template context shared by the ancillary renderers.
type siteInfo struct {
	Name        string
	Slug        string
	Description string
	Prompt      string
	BaseURL     string
	Files       []sitefile.FileRecord
	Pages       []page
	Index       string // content of the first page
}

type page struct {
	Path  string
	Title string
}

func newSiteInfo(site Site, files []sitefile.FileRecord) siteInfo {
	info := siteInfo{
		Name:        strings.TrimSpace(site.Name),
		Slug:        Slug(site.Name),
		Description: strings.TrimSpace(site.Description),
		Prompt:      strings.TrimSpace(site.Prompt),
		BaseURL:     strings.TrimRight(site.BaseURL, "/"),
		Files:       files,
	}
	if info.Name == "" {
		info.Name = "Website"
	}
	if info.BaseURL == "" {
		info.BaseURL = DefaultBaseURL
	}
	for _, f := range files {
		if sitefile.TypeFromPath(f.Path) != sitefile.TypeHTML {
			continue
		}
		if info.Index == "" {
			info.Index = f.Content
		}
		info.Pages = append(info.Pages, page{Path: f.Path, Title: pageTitle(f.Content, f.Path)})
	}
	return info
}

type ancillary struct {
	path   string
	mode   fs.FileMode
	render func(siteInfo) ([]byte, error)
}

var ancillaries = []ancillary{
	{"README.md", 0o644, renderReadme},
	{"deploy.sh", 0o755, renderDeployScript},
	{"netlify.toml", 0o644, renderNetlify},
	{"vercel.json", 0o644, renderVercel},
	{".github/workflows/pages.yml", 0o644, renderPagesWorkflow},
	{"sitemap.xml", 0o644, renderSitemap},
}
