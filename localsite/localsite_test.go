package localsite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/sitegen/sitefile"
)

func writeFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		p := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func paths(records []sitefile.FileRecord) map[string]sitefile.FileType {
	out := make(map[string]sitefile.FileType, len(records))
	for _, r := range records {
		out[r.Path] = r.Type
	}
	return out
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{
		"index.html":             "<h1>hi</h1>",
		"css/style.css":          "body{}",
		"js/app.js":              "console.log(1)",
		"logo.png":               "\x89PNG",
		".git/config":            "[core]",
		"node_modules/x/lib.js":  "x",
		"pages/about/index.html": "<p>about</p>",
	})

	site, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	records, err := site.Load()
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]sitefile.FileType{
		"index.html":             sitefile.TypeHTML,
		"css/style.css":          sitefile.TypeCSS,
		"js/app.js":              sitefile.TypeJavaScript,
		"pages/about/index.html": sitefile.TypeHTML,
	}
	if diff := cmp.Diff(want, paths(records)); diff != "" {
		t.Fatalf("loaded files (-want +got):\n%s", diff)
	}

	only, err := New(root, "**/*.html", "index.html")
	if err != nil {
		t.Fatal(err)
	}
	records, err = only.Load()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d html files, want 2 without duplicates", len(records))
	}
}

func TestLoad_Errors(t *testing.T) {
	root := t.TempDir()
	if _, err := New(root, "[unclosed"); err == nil {
		t.Fatal("invalid pattern accepted")
	}
	if _, err := New(filepath.Join(root, "missing")); err == nil {
		t.Fatal("missing root accepted")
	}
	site, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := site.Load(); !errors.Is(err, ErrNoFiles) {
		t.Fatalf("empty dir: got %v, want ErrNoFiles", err)
	}
}

func TestMatch(t *testing.T) {
	site := &Site{Root: ".", Patterns: []string{"**/*.html"}}
	for rel, want := range map[string]bool{
		"index.html":          true,
		"a/b/c.html":          true,
		"style.css":           false,
		".cache/x.html":       false,
		"a/.hidden.html":      false,
		"node_modules/x.html": false,
	} {
		if got := site.Match(rel); got != want {
			t.Errorf("Match(%q) = %v, want %v", rel, got, want)
		}
	}
}

func TestWrite(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"index.html": "same"})
	site, err := New(root)
	if err != nil {
		t.Fatal(err)
	}
	changed, err := site.Write([]sitefile.FileRecord{
		sitefile.New("index.html", "same", sitefile.TypeHTML),
		sitefile.New("pages/new.html", "<p>new</p>", sitefile.TypeHTML),
		sitefile.New("../escape.html", "x", sitefile.TypeHTML),
	})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"pages/new.html", "escape.html"}, changed); diff != "" {
		t.Fatalf("changed (-want +got):\n%s", diff)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(root), "escape.html")); err == nil {
		t.Fatal("record escaped the site root")
	}
	data, err := os.ReadFile(filepath.Join(root, "pages", "new.html"))
	if err != nil || string(data) != "<p>new</p>" {
		t.Fatalf("pages/new.html = %q, %v", data, err)
	}
}

func TestWatch(t *testing.T) {
	root := t.TempDir()
	writeFiles(t, root, map[string]string{"index.html": "<p>1</p>"})
	site, err := New(root)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var runs atomic.Int32
	fired := make(chan struct{}, 4)
	done := make(chan error, 1)
	go func() {
		done <- site.Watch(ctx, 50*time.Millisecond, nil, func() error {
			runs.Add(1)
			fired <- struct{}{}
			return nil
		})
	}()

	// Give the watcher time to register the root.
	time.Sleep(100 * time.Millisecond)
	writeFiles(t, root, map[string]string{"notes.bin": "ignored"})
	writeFiles(t, root, map[string]string{"index.html": "<p>2</p>", "style.css": "a{}"})

	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("no rebuild after a change")
	}
	time.Sleep(200 * time.Millisecond)
	if n := runs.Load(); n != 1 {
		t.Fatalf("rebuilt %d times, want the burst coalesced into 1", n)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
