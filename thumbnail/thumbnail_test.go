package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/go-rod/rod/lib/launcher"

	"github.com/hazyhaar/sitegen/preview"
	"github.com/hazyhaar/sitegen/sitefile"
)

func TestCapture_NoPages(t *testing.T) {
	r := New(Config{})
	defer r.Close()
	_, err := r.Capture(context.Background(), []sitefile.FileRecord{sitefile.New("style.css", "x", sitefile.TypeCSS)})
	if !errors.Is(err, preview.ErrNoPages) {
		t.Fatalf("err = %v", err)
	}
	if r.browser != nil {
		t.Fatal("browser launched for a project without pages")
	}
}

func TestCapture_Closed(t *testing.T) {
	r := New(Config{})
	r.Close()
	r.Close()
	_, err := r.Capture(context.Background(), []sitefile.FileRecord{sitefile.New("index.html", "<p>x</p>", sitefile.TypeHTML)})
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("err = %v", err)
	}
}

func TestCapture_Chrome(t *testing.T) {
	if testing.Short() {
		t.Skip("launches chrome")
	}
	if _, ok := launcher.LookPath(); !ok {
		t.Skip("no local chrome")
	}
	r := New(Config{Width: 320, Height: 200})
	defer r.Close()
	png, err := r.Capture(context.Background(), []sitefile.FileRecord{
		sitefile.New("index.html", "<!DOCTYPE html><html><body style=\"background:#b91c1c\"><h1>Hi</h1></body></html>", sitefile.TypeHTML),
	})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(png, []byte("\x89PNG")) {
		t.Fatalf("not a png: % x", png[:8])
	}
}
