package preview

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/sitegen/sitefile"
)

func site() []sitefile.FileRecord {
	return []sitefile.FileRecord{
		sitefile.New("style.css", "body{color:red}", sitefile.TypeCSS),
		sitefile.New("script.js", "console.log('</script>')", sitefile.TypeJavaScript),
		sitefile.New("about.html", `<html><body><a href="index.html#top">home</a></body></html>`, sitefile.TypeHTML),
		sitefile.New("blog/post.html", `<a href="../about.html">about</a><a href="/style.css">raw</a>`, sitefile.TypeHTML),
		sitefile.New("index.html", `<!DOCTYPE html>
<html><head><link rel="stylesheet" href="./style.css"><link rel="icon" href="favicon.ico"></head>
<body><a href="about.html">About</a> <a href="https://example.com/x.html">ext</a>
<img src="assets/images/hero.jpg"><script src="script.js"></script><script>var x = 1;</script>
<p class=unquoted>broken <b>markup</p></body></html>`, sitefile.TypeHTML),
	}
}

func TestPages(t *testing.T) {
	want := []string{"index.html", "about.html", "blog/post.html"}
	if diff := cmp.Diff(want, Pages(site())); diff != "" {
		t.Fatalf("pages (-want +got):\n%s", diff)
	}
}

func TestRender_Index(t *testing.T) {
	out, err := Render(site(), "")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"<style data-href=\"./style.css\">\nbody{color:red}\n</style>",
		`<link rel="icon" href="favicon.ico">`,
		`<a href="?page=about.html">About</a>`,
		`<a href="https://example.com/x.html">ext</a>`,
		"<script>\nconsole.log('<\\/script>')\n</script>",
		`<script>var x = 1;</script>`,
		`<p class=unquoted>broken <b>markup</p>`,
		"https://images.unsplash.com/",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "assets/images") || strings.Contains(out, `src="script.js"`) {
		t.Fatalf("unresolved references left:\n%s", out)
	}
}

func TestRender_RelativeLinks(t *testing.T) {
	out, err := Render(site(), "blog/post.html")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `href="?page=about.html"`) {
		t.Fatalf("relative page link not rewritten:\n%s", out)
	}
	if !strings.Contains(out, `href="/style.css"`) {
		t.Fatalf("non-page link rewritten:\n%s", out)
	}

	out, err = Render(site(), "/about.html")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, `href="?page=index.html#top"`) {
		t.Fatalf("fragment lost:\n%s", out)
	}
}

func TestRender_Errors(t *testing.T) {
	if _, err := Render(site(), "missing.html"); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("missing page: %v", err)
	}
	if _, err := Render(site(), "style.css"); !errors.Is(err, ErrPageNotFound) {
		t.Fatalf("non-html page: %v", err)
	}
	if _, err := Render(nil, ""); !errors.Is(err, ErrNoPages) {
		t.Fatalf("empty project: %v", err)
	}
}
