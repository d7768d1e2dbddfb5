package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/sitegen/config"
	"github.com/hazyhaar/sitegen/localsite"
	"github.com/hazyhaar/sitegen/sitefile"
	"github.com/hazyhaar/sitegen/store"
)

func execute(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("sitegen %s: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestReconcileDir(t *testing.T) {
	root := t.TempDir()
	for name, content := range map[string]string{
		"index.html": `<h1>Corner Bakery</h1><p>Fresh bread every morning.</p><img src="assets/images/hero.jpg" alt="">`,
		"style.css":  "body{margin:0}",
	} {
		if err := os.WriteFile(filepath.Join(root, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	site, err := localsite.New(root)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := reconcileDir(site, true, &buf); err != nil {
		t.Fatal(err)
	}
	var got reconcileOutput
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode %s: %v", buf.String(), err)
	}
	if diff := cmp.Diff([]string{"index.html", "style.css"}, got.Files); diff != "" {
		t.Fatalf("files (-want +got):\n%s", diff)
	}
	if got.Report.Repaired != 1 || got.Report.ImageRewrites() != 1 {
		t.Fatalf("report = %+v, want one repair and one image rewrite", got.Report)
	}
	if diff := cmp.Diff([]string{"index.html"}, got.Written); diff != "" {
		t.Fatalf("written (-want +got):\n%s", diff)
	}
	data, _ := os.ReadFile(filepath.Join(root, "index.html"))
	if !sitefile.CheckStructure(string(data)).Complete() || sitefile.BrokenImagePattern.Match(data) {
		t.Fatalf("index.html not reconciled:\n%s", data)
	}

	// A second pass over written files changes nothing.
	buf.Reset()
	if err := reconcileDir(site, true, &buf); err != nil {
		t.Fatal(err)
	}
	got = reconcileOutput{}
	json.Unmarshal(buf.Bytes(), &got)
	if len(got.Written) != 0 || got.Report.Repaired != 0 {
		t.Fatalf("second pass = %+v, want no changes", got)
	}
}

func TestFixImages(t *testing.T) {
	var out, report bytes.Buffer
	in := strings.NewReader(`<img src="assets/images/chef.jpg"><img src="logo.svg">`)
	if err := fixImages(in, &out, &report); err != nil {
		t.Fatal(err)
	}
	if sitefile.BrokenImagePattern.MatchString(out.String()) || !strings.Contains(out.String(), `src="logo.svg"`) {
		t.Fatalf("output = %s", out.String())
	}
	if report.String() != "food/chef: 1\n" {
		t.Fatalf("report = %q", report.String())
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger(config.LogConfig{Level: "warn", Format: "text"}, &buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown")
	if s := buf.String(); strings.Contains(s, "hidden") || !strings.Contains(s, "msg=shown") {
		t.Fatalf("log output = %q", s)
	}
	if _, err := newLogger(config.LogConfig{Level: "info", Format: "xml"}, &buf); err == nil {
		t.Fatal("xml format accepted")
	}
	if _, err := newLogger(config.LogConfig{Level: "loud", Format: "json"}, &buf); err == nil {
		t.Fatal("unknown level accepted")
	}
}

func TestMaintenanceCommands(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "sitegen.db")
	cfgPath := filepath.Join(dir, "sitegen.yaml")
	cfgYAML := "database:\n  path: " + dbPath + "\nlog:\n  level: error\n"
	if err := os.WriteFile(cfgPath, []byte(cfgYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	out := execute(t, "--config", cfgPath, "user", "create",
		"--email", "Owner@Example.com", "--password", "correct horse", "--name", "Owner", "--role", "admin")
	userID := strings.TrimSpace(out)
	if !strings.HasPrefix(userID, "usr_") {
		t.Fatalf("user create printed %q, want a user ID", out)
	}

	st, err := store.Open(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	u, err := st.GetUserByEmail(ctx, "owner@example.com")
	if err != nil || u.ID != userID || u.Role != "admin" {
		t.Fatalf("created user = %+v, %v", u, err)
	}
	p := &store.Project{UserID: userID, Name: "Corner Bakery"}
	if err := st.CreateProject(ctx, p); err != nil {
		t.Fatal(err)
	}
	err = st.UpsertFiles(ctx, p.ID, []sitefile.FileRecord{
		sitefile.New("index.html", "<!DOCTYPE html><html><head></head><body>hi</body></html>", sitefile.TypeHTML),
	})
	if err != nil {
		t.Fatal(err)
	}
	st.Close()

	archive := filepath.Join(dir, "site.zip")
	execute(t, "--config", cfgPath, "export", p.ID, "-o", archive)
	zr, err := zip.OpenReader(archive)
	if err != nil {
		t.Fatal(err)
	}
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	if !strings.Contains(strings.Join(names, " "), "index.html") {
		t.Fatalf("archive entries = %v", names)
	}

	if out := execute(t, "--config", cfgPath, "cleanup"); out != "deleted 0 rows\n" {
		t.Fatalf("cleanup printed %q", out)
	}
}
