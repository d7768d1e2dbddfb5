package sitefile

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestReconcileScenario(t *testing.T) {
	in := []FileRecord{
		New("a.html", "<p>hi</p>", ""),
		New("a.html", "<html><head></head><body><p>hi</p></body></html>", ""),
		New("style.css", "body{}", ""),
	}
	out, rep := ReconcileReport(in)

	if diff := cmp.Diff([]string{"a.html", "style.css"}, paths(out)); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
	html := out[0]
	if html.Type != TypeHTML {
		t.Fatalf("a.html type = %s", html.Type)
	}
	want := "<!DOCTYPE html>\n<html lang=\"en\"><head></head><body><p>hi</p></body></html>"
	if html.Content != want {
		t.Fatalf("a.html content = %q, want %q", html.Content, want)
	}
	if html.Size != len(html.Content) {
		t.Fatalf("size %d != len %d", html.Size, len(html.Content))
	}
	if out[1].Type != TypeCSS || out[1].Content != "body{}" {
		t.Fatalf("style.css = %+v", out[1])
	}

	wantRep := Report{Input: 3, Output: 2, Duplicates: 1, Repaired: 1}
	if diff := cmp.Diff(wantRep, rep); diff != "" {
		t.Fatalf("report (-want +got):\n%s", diff)
	}
}

func TestReconcileImagesAndTypes(t *testing.T) {
	page := "<main>" + strings.Repeat("<p>Bistro</p>", 5) + `<img src="assets/images/chef.jpg"></main>`
	in := []FileRecord{
		New("logo.png", "binary-ish", ""),
		New("index.html", page, "text/html"),
		New("css/site.css", `.hero{background:url(assets/images/hero.jpg)}`, "css"),
		New(" ", "dropped", ""),
	}
	out, rep := ReconcileReport(in)

	if diff := cmp.Diff([]string{"index.html", "css/site.css", "logo.png"}, paths(out)); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
	if strings.Contains(out[0].Content, "assets/images") {
		t.Fatal("html image reference not fixed")
	}
	if !strings.Contains(out[1].Content, "assets/images/hero.jpg") {
		t.Fatal("css content must not be touched by the image fixer")
	}
	if out[2].Type != TypeOther {
		t.Fatalf("image stored as %s, want OTHER", out[2].Type)
	}
	if rep.Dropped != 1 || rep.ImageRewrites() != 1 || rep.Repaired != 1 {
		t.Fatalf("report = %+v", rep)
	}
	for _, r := range out {
		if r.Size != len(r.Content) {
			t.Fatalf("%s: size %d != len %d", r.Path, r.Size, len(r.Content))
		}
	}
}

func TestReconcileEmpty(t *testing.T) {
	out, rep := ReconcileReport(nil)
	if len(out) != 0 || rep.Output != 0 {
		t.Fatalf("Reconcile(nil) = %v, %+v", out, rep)
	}
}

func TestReconcileDoesNotMutateInput(t *testing.T) {
	in := []FileRecord{New("b.html", "<p>x</p>", ""), New("a.css", "a{}", "")}
	_ = Reconcile(in)
	if in[0].Content != "<p>x</p>" || in[0].Path != "b.html" {
		t.Fatalf("input mutated: %+v", in)
	}
}
