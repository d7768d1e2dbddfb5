package export

import (
	"archive/zip"
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/sitegen/sitefile"
)

func testSite() Site {
	return Site{
		Name:        "Boulangerie Éclair",
		Description: "Artisan bakery",
		Prompt:      "a bakery in Lyon",
		BaseURL:     "https://eclair.example.org/",
		Files: []sitefile.FileRecord{
			sitefile.New("style.css", "body{}", sitefile.TypeCSS),
			sitefile.New("about.html", "<html><head><title>About us</title></head><body><h1>About</h1></body></html>", sitefile.TypeHTML),
			sitefile.New("index.html", `<html><head><title>Éclair &amp; Co</title></head><body><h1>Welcome</h1><h2>Our bread</h2><img src="assets/images/bread.jpg"></body></html>`, sitefile.TypeHTML),
			sitefile.New("../../etc/passwd", "x", sitefile.TypeText),
		},
	}
}

func paths(entries []Entry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e.Path)
	}
	return out
}

func TestEntries_Order(t *testing.T) {
	entries, err := Entries(testSite())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"index.html", "about.html", "style.css", "etc/passwd",
		"README.md", "deploy.sh", "netlify.toml", "vercel.json",
		".github/workflows/pages.yml", "sitemap.xml",
	}
	if diff := cmp.Diff(want, paths(entries)); diff != "" {
		t.Fatalf("entries (-want +got):\n%s", diff)
	}
	if strings.Contains(string(entries[0].Data), "assets/images") {
		t.Fatal("images not fixed in exported html")
	}
}

func TestEntries_ProjectFileWins(t *testing.T) {
	site := testSite()
	site.Files = append(site.Files, sitefile.New("README.md", "mine", sitefile.TypeMarkdown))
	entries, err := Entries(site)
	if err != nil {
		t.Fatal(err)
	}
	n := 0
	for _, e := range entries {
		if e.Path == "README.md" {
			n++
			if string(e.Data) != "mine" || e.Generated {
				t.Fatalf("README.md overwritten: %q", e.Data)
			}
		}
	}
	if n != 1 {
		t.Fatalf("README.md appears %d times", n)
	}
}

func TestEntries_Empty(t *testing.T) {
	if _, err := Entries(Site{Name: "x"}); !errors.Is(err, ErrEmpty) {
		t.Fatalf("err = %v", err)
	}
}

func TestWrite_Deterministic(t *testing.T) {
	var a, b bytes.Buffer
	n, err := Write(&a, testSite())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Write(&b, testSite()); err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Fatal("archives differ")
	}

	zr, err := zip.NewReader(bytes.NewReader(a.Bytes()), int64(a.Len()))
	if err != nil {
		t.Fatal(err)
	}
	if len(zr.File) != n {
		t.Fatalf("archive has %d entries, Write reported %d", len(zr.File), n)
	}
	for _, f := range zr.File {
		if !f.Modified.Equal(FixedTime) {
			t.Fatalf("%s modified %v", f.Name, f.Modified)
		}
		if f.Name == "deploy.sh" && f.Mode().Perm() != 0o755 {
			t.Fatalf("deploy.sh mode %v", f.Mode())
		}
	}
}

func entry(t *testing.T, name string) string {
	t.Helper()
	var buf bytes.Buffer
	if _, err := Write(&buf, testSite()); err != nil {
		t.Fatal(err)
	}
	zr, _ := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	for _, f := range zr.File {
		if f.Name == name {
			rc, _ := f.Open()
			defer rc.Close()
			data, _ := io.ReadAll(rc)
			return string(data)
		}
	}
	t.Fatalf("%s not in archive", name)
	return ""
}

func TestReadme(t *testing.T) {
	readme := entry(t, "README.md")
	for _, want := range []string{
		"# Boulangerie Éclair",
		"Artisan bakery",
		"> a bakery in Lyon",
		"- [Éclair & Co](index.html)",
		"- [About us](about.html)",
		"- Welcome",
		"  - Our bread",
		"| style.css | CSS | 6 |",
		"./deploy.sh /var/www/boulangerie-eclair",
	} {
		if !strings.Contains(readme, want) {
			t.Errorf("README missing %q:\n%s", want, readme)
		}
	}
}

func TestHostingConfigs(t *testing.T) {
	var netlify struct {
		Build   struct{ Publish string }
		Headers []struct {
			For    string
			Values map[string]string
		}
	}
	if err := toml.Unmarshal([]byte(entry(t, "netlify.toml")), &netlify); err != nil {
		t.Fatal(err)
	}
	if netlify.Build.Publish != "." || netlify.Headers[0].Values["X-Content-Type-Options"] != "nosniff" {
		t.Fatalf("netlify = %+v", netlify)
	}

	var wf map[string]any
	if err := yaml.Unmarshal([]byte(entry(t, ".github/workflows/pages.yml")), &wf); err != nil {
		t.Fatal(err)
	}
	jobs, _ := wf["jobs"].(map[string]any)
	deploy, _ := jobs["deploy"].(map[string]any)
	if deploy["runs-on"] != "ubuntu-latest" || len(deploy["steps"].([]any)) != 4 {
		t.Fatalf("workflow = %v", wf)
	}

	if v := entry(t, "vercel.json"); !strings.Contains(v, `"cleanUrls": true`) {
		t.Fatalf("vercel.json = %s", v)
	}
	script := entry(t, "deploy.sh")
	if !strings.HasPrefix(script, "#!/bin/sh") || !strings.Contains(script, `mkdir -p "$target/etc"`) ||
		!strings.Contains(script, `cp "$src/etc/passwd" "$target/etc/passwd"`) {
		t.Fatalf("deploy.sh = %s", script)
	}
}

func TestSitemap(t *testing.T) {
	sm := entry(t, "sitemap.xml")
	for _, want := range []string{
		`<?xml version="1.0" encoding="UTF-8"?>`,
		`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`,
		"<loc>https://eclair.example.org/</loc>",
		"<loc>https://eclair.example.org/about.html</loc>",
	} {
		if !strings.Contains(sm, want) {
			t.Errorf("sitemap missing %q:\n%s", want, sm)
		}
	}
	if got := SitemapURL("https://x.org/", "blog/my post/index.html"); got != "https://x.org/blog/my%20post/" {
		t.Fatalf("SitemapURL = %q", got)
	}
}

func TestSlug(t *testing.T) {
	tests := map[string]string{
		"Boulangerie Éclair":      "boulangerie-eclair",
		"  Café -- Crème  ":       "cafe-creme",
		"日本語":                     "website",
		"":                        "website",
		"My Site v2.0!":           "my-site-v2-0",
		strings.Repeat("ab ", 40): strings.TrimRight(strings.Repeat("ab-", 20), "-"),
	}
	for in, want := range tests {
		if got := Slug(in); got != want {
			t.Errorf("Slug(%q) = %q, want %q", in, got, want)
		}
	}
	if Filename("Éclair") != "eclair.zip" {
		t.Fatal(Filename("Éclair"))
	}
}

func TestSanitizePath(t *testing.T) {
	tests := map[string]string{
		"../../etc/passwd":   "etc/passwd",
		`C:\site\index.html`: "site/index.html",
		"/a/./b/../c.css":    "a/c.css",
		"..":                 "file",
	}
	for in, want := range tests {
		if got := SanitizePath(in); got != want {
			t.Errorf("SanitizePath(%q) = %q, want %q", in, got, want)
		}
	}
}
