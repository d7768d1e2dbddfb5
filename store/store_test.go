package store

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/hazyhaar/sitegen/dbopen"
	"github.com/hazyhaar/sitegen/sitefile"

	_ "modernc.org/sqlite"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	return New(dbopen.OpenMemory(t, Schemas()...))
}

func seedProject(t *testing.T, s *Store) (*User, *Project) {
	t.Helper()
	ctx := context.Background()
	u := &User{Email: "Alice@Example.com ", Name: "Alice", PasswordHash: "x"}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatalf("create user: %v", err)
	}
	p := &Project{UserID: u.ID, Name: "Bakery"}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("create project: %v", err)
	}
	return u, p
}

func TestSchemas_CreateAllTables(t *testing.T) {
	s := openTestStore(t)
	for _, table := range []string{"users", "projects", "project_files", "generations",
		"deployments", "rate_limits", "maintenance", "events", "metrics"} {
		var n int
		s.DB.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n)
		if n != 1 {
			t.Fatalf("table %s not found", table)
		}
	}
	var rules int
	s.DB.QueryRow(`SELECT COUNT(*) FROM rate_limits WHERE rule IN ('generate','modify','enhance','deploy','login')`).Scan(&rules)
	if rules != 5 {
		t.Fatalf("seeded rate limits = %d, want 5", rules)
	}
}

func TestUsers(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u, _ := seedProject(t, s)

	if u.Email != "alice@example.com" || u.Role != "user" || u.Provider != "password" {
		t.Fatalf("defaults not applied: %+v", u)
	}
	if err := s.CreateUser(ctx, &User{Email: "ALICE@example.com"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate email: got %v", err)
	}

	got, err := s.GetUserByEmail(ctx, " alice@EXAMPLE.com")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != u.ID {
		t.Fatalf("GetUserByEmail = %s, want %s", got.ID, u.ID)
	}
	if _, err := s.GetUser(ctx, "usr_missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing user: got %v", err)
	}

	if err := s.SetUserRole(ctx, u.ID, "admin"); err != nil {
		t.Fatal(err)
	}
	if err := s.TouchLogin(ctx, u.ID); err != nil {
		t.Fatal(err)
	}
	got, _ = s.GetUser(ctx, u.ID)
	if got.Role != "admin" || got.LastLoginAt == 0 {
		t.Fatalf("role/login not saved: %+v", got)
	}
}

func TestUpsertOAuthUser(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u, _ := seedProject(t, s)

	// Same email links the existing password account.
	linked, err := s.UpsertOAuthUser(ctx, &User{Email: "alice@example.com", Name: "Alice G",
		Provider: "google", ProviderUserID: "g-1", AvatarURL: "https://a/p.png"})
	if err != nil {
		t.Fatal(err)
	}
	if linked.ID != u.ID {
		t.Fatalf("expected link to %s, got %s", u.ID, linked.ID)
	}
	if linked.Provider != "google" || linked.PasswordHash != "x" {
		t.Fatalf("linked account = %+v", linked)
	}

	// Known provider ID finds the same account even with a new email.
	again, err := s.UpsertOAuthUser(ctx, &User{Email: "other@example.com", Provider: "google", ProviderUserID: "g-1"})
	if err != nil {
		t.Fatal(err)
	}
	if again.ID != u.ID || again.Name != "Alice G" {
		t.Fatalf("provider lookup: %+v", again)
	}

	fresh, err := s.UpsertOAuthUser(ctx, &User{Email: "bob@example.com", Name: "Bob", Provider: "google", ProviderUserID: "g-2"})
	if err != nil {
		t.Fatal(err)
	}
	if fresh.ID == u.ID || fresh.Provider != "google" || fresh.PasswordHash != "" {
		t.Fatalf("new oauth user: %+v", fresh)
	}

	users, err := s.ListUsers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(users) != 2 {
		t.Fatalf("users = %d, want 2", len(users))
	}
}

func TestProjects_OwnerScoped(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u, p := seedProject(t, s)

	if p.Status != StatusDraft || p.ID == "" {
		t.Fatalf("defaults: %+v", p)
	}
	if _, err := s.GetProject(ctx, "usr_other", p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign GetProject: got %v", err)
	}
	if _, err := s.GetProject(ctx, "", p.ID); err != nil {
		t.Fatalf("unscoped GetProject: %v", err)
	}

	p.Name = "Bakery 2"
	p.Description = "croissants"
	if err := s.UpdateProject(ctx, p); err != nil {
		t.Fatal(err)
	}
	other := *p
	other.UserID = "usr_other"
	if err := s.UpdateProject(ctx, &other); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign update: got %v", err)
	}

	if err := s.SetProjectStatus(ctx, p.ID, StatusReady); err != nil {
		t.Fatal(err)
	}
	if err := s.SetProjectThumbnail(ctx, p.ID, []byte("\x89PNG")); err != nil {
		t.Fatal(err)
	}
	png, err := s.GetProjectThumbnail(ctx, u.ID, p.ID)
	if err != nil || string(png) != "\x89PNG" {
		t.Fatalf("thumbnail = %q, %v", png, err)
	}
	if err := s.SetProjectDeployURL(ctx, p.ID, "https://bakery.example"); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListProjects(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("projects = %d", len(list))
	}
	got := list[0]
	if got.Name != "Bakery 2" || got.Status != StatusDeployed || !got.HasThumbnail || got.DeployURL == "" {
		t.Fatalf("project = %+v", got)
	}

	if err := s.DeleteProject(ctx, "usr_other", p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign delete: got %v", err)
	}
	if err := s.DeleteProject(ctx, u.ID, p.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetProject(ctx, u.ID, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted project still found: %v", err)
	}
}

func TestFiles_UpsertListPriority(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u, p := seedProject(t, s)

	err := s.UpsertFiles(ctx, p.ID, []sitefile.FileRecord{
		sitefile.New("script.js", "x", sitefile.TypeJavaScript),
		sitefile.New("logo.png", "", sitefile.TypeImage),
		sitefile.New("index.html", "<html></html>", sitefile.TypeHTML),
		sitefile.New("style.css", "body{}", sitefile.TypeCSS),
	})
	if err != nil {
		t.Fatal(err)
	}

	files, err := s.ListFiles(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	var paths []string
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	if diff := cmp.Diff([]string{"index.html", "style.css", "script.js", "logo.png"}, paths); diff != "" {
		t.Fatalf("order (-want +got):\n%s", diff)
	}
	if files[3].Type != sitefile.TypeOther {
		t.Fatalf("IMAGE stored as %q, want OTHER", files[3].Type)
	}

	// Upsert replaces by path and keeps the others.
	if err := s.UpsertFiles(ctx, p.ID, []sitefile.FileRecord{
		sitefile.New("style.css", "body{color:red}", sitefile.TypeCSS),
	}); err != nil {
		t.Fatal(err)
	}
	f, err := s.GetFile(ctx, p.ID, "style.css")
	if err != nil {
		t.Fatal(err)
	}
	if f.Content != "body{color:red}" || f.Size != len("body{color:red}") {
		t.Fatalf("upserted file = %+v", f)
	}
	n, size, err := s.CountFiles(ctx, p.ID)
	if err != nil || n != 4 {
		t.Fatalf("count = %d, %v", n, err)
	}
	if size != int64(1+len("<html></html>")+len("body{color:red}")) {
		t.Fatalf("size = %d", size)
	}

	proj, _ := s.GetProject(ctx, u.ID, p.ID)
	if proj.FileCount != 4 {
		t.Fatalf("project file count = %d", proj.FileCount)
	}

	if err := s.ReplaceFiles(ctx, p.ID, []sitefile.FileRecord{sitefile.New("index.html", "new", sitefile.TypeHTML)}); err != nil {
		t.Fatal(err)
	}
	records, err := s.Records(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Content != "new" {
		t.Fatalf("replace: %+v", records)
	}

	if err := s.DeleteFile(ctx, p.ID, "index.html"); err != nil {
		t.Fatal(err)
	}
	if err := s.DeleteFile(ctx, p.ID, "index.html"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: got %v", err)
	}
	if err := s.UpsertFiles(ctx, "prj_missing", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing project: got %v", err)
	}
}

func TestGenerations_OneRunningPerProject(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u, p := seedProject(t, s)

	g1 := &Generation{ProjectID: p.ID, UserID: u.ID, Mode: "generate", Prompt: "a bakery", Provider: "demo"}
	if err := s.StartGeneration(ctx, g1); err != nil {
		t.Fatal(err)
	}
	g2 := &Generation{ProjectID: p.ID, UserID: u.ID, Mode: "modify", Prompt: "red", Provider: "demo"}
	if err := s.StartGeneration(ctx, g2); !errors.Is(err, ErrGenerationActive) {
		t.Fatalf("second start: got %v", err)
	}

	if err := s.FinishGeneration(ctx, g1.ID, GenerationCompleted, 3, `{"output":3}`, ""); err != nil {
		t.Fatal(err)
	}
	if err := s.FinishGeneration(ctx, g1.ID, GenerationFailed, 0, "", "late"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("finishing twice: got %v", err)
	}
	if err := s.StartGeneration(ctx, g2); err != nil {
		t.Fatalf("start after finish: %v", err)
	}

	list, err := s.ListGenerations(ctx, p.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 {
		t.Fatalf("generations = %d", len(list))
	}
	var done *Generation
	for _, g := range list {
		if g.ID == g1.ID {
			done = g
		}
	}
	if done == nil || done.Status != GenerationCompleted || done.FileCount != 3 || done.FinishedAt == 0 {
		t.Fatalf("finished generation = %+v", done)
	}
}

func TestFailStaleGenerations(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u, p := seedProject(t, s)

	s.SetProjectStatus(ctx, p.ID, StatusGenerating)
	g := &Generation{ProjectID: p.ID, UserID: u.ID, Mode: "generate", Prompt: "x", Provider: "demo"}
	if err := s.StartGeneration(ctx, g); err != nil {
		t.Fatal(err)
	}

	n, err := s.FailStaleGenerations(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("failed %d generations, want 1", n)
	}
	proj, _ := s.GetProject(ctx, u.ID, p.ID)
	if proj.Status != StatusFailed {
		t.Fatalf("project status = %q", proj.Status)
	}
	list, _ := s.ListGenerations(ctx, p.ID, 10)
	if list[0].Status != GenerationFailed || list[0].Error == "" {
		t.Fatalf("generation = %+v", list[0])
	}
}

func TestDeployments(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	u, p := seedProject(t, s)

	d := &Deployment{ProjectID: p.ID, UserID: u.ID, Provider: "vercel"}
	if err := s.CreateDeployment(ctx, d); err != nil {
		t.Fatal(err)
	}
	d.Status = DeploymentReady
	d.URL = "https://bakery.vercel.app"
	d.FileCount = 3
	if err := s.UpdateDeployment(ctx, d); err != nil {
		t.Fatal(err)
	}
	list, err := s.ListDeployments(ctx, p.ID, 0)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]*Deployment{d}, list); diff != "" {
		t.Fatalf("deployments (-want +got):\n%s", diff)
	}
	if err := s.UpdateDeployment(ctx, &Deployment{ID: "dpl_missing"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing deployment: got %v", err)
	}
}
