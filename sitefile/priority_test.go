package sitefile

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSortByPriorityExample(t *testing.T) {
	in := []FileRecord{
		New("style.css", "", ""),
		New("index.html", "", ""),
		New("script.js", "", ""),
		New("README.md", "", ""),
	}
	got := paths(SortByPriority(in))
	want := []string{"index.html", "style.css", "script.js", "README.md"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
	if in[0].Path != "style.css" {
		t.Fatal("input slice was reordered")
	}
}

func TestPriorityBuckets(t *testing.T) {
	tests := []struct {
		path string
		want int
	}{
		{"index.html", 1},
		{"blog/INDEX.HTML", 1},
		{"home.html", 2},
		{"about.html", 3},
		{"main.css", 4},
		{"css/Styles.css", 4},
		{"theme.css", 5},
		{"main.js", 6},
		{"js/scripts.js", 6},
		{"vendor.js", 7},
		{"package.json", 8},
		{"Readme.txt", 9},
		{"README.md", 9},
		{"data.json", 10},
		{"logo.svg", 10},
		{"Makefile", 10},
	}
	for _, tt := range tests {
		if got := Priority(tt.path); got != tt.want {
			t.Errorf("Priority(%q) = %d, want %d", tt.path, got, tt.want)
		}
	}
}

func TestSortByPriorityFull(t *testing.T) {
	in := []FileRecord{
		New("notes.txt", "", ""),
		New("package.json", "", ""),
		New("contact.html", "", ""),
		New("app.js", "", ""),
		New("Home.html", "", ""),
		New("about.html", "", ""),
		New("readme.md", "", ""),
		New("main.js", "", ""),
		New("reset.css", "", ""),
		New("styles.css", "", ""),
		New("index.html", "", ""),
	}
	want := []string{
		"index.html", "Home.html", "about.html", "contact.html",
		"styles.css", "reset.css", "main.js", "app.js",
		"package.json", "readme.md", "notes.txt",
	}
	if diff := cmp.Diff(want, paths(SortByPriority(in))); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
}

func TestSortByPriorityTieBreak(t *testing.T) {
	in := []FileRecord{New("b.txt", "", ""), New("a.txt", "", ""), New("C.txt", "", ""), New("A.txt", "", "")}
	want := []string{"A.txt", "a.txt", "b.txt", "C.txt"}
	if diff := cmp.Diff(want, paths(SortByPriority(in))); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
}

func TestSortPaths(t *testing.T) {
	p := []string{"z.css", "index.html", "a.css"}
	SortPaths(p)
	if diff := cmp.Diff([]string{"index.html", "a.css", "z.css"}, p); diff != "" {
		t.Fatalf("(-want +got):\n%s", diff)
	}
}
