package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
)

// GitPagesConfig configures the GitHub Pages deployer.
type GitPagesConfig struct {
	RepoURL     string // https://github.com/owner/repo or any git remote
	Branch      string // default gh-pages
	Token       string // sent as HTTP basic auth password
	PagesURL    string // overrides the URL derived from RepoURL
	AuthorName  string // default sitegen
	AuthorEmail string // default sitegen@localhost
	Logger      *slog.Logger
	now         func() time.Time
}

func (c *GitPagesConfig) defaults() {
	if c.Branch == "" {
		c.Branch = "gh-pages"
	}
	if c.AuthorName == "" {
		c.AuthorName = "sitegen"
	}
	if c.AuthorEmail == "" {
		c.AuthorEmail = "sitegen@localhost"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
}

// GitPages publishes a site by force-pushing a single commit holding the
// files to a pages branch. The repository is built in memory; nothing
// touches the local disk.
type GitPages struct {
	cfg GitPagesConfig
}

// NewGitPages returns a GitHub Pages deployer.
func NewGitPages(cfg GitPagesConfig) *GitPages {
	cfg.defaults()
	return &GitPages{cfg: cfg}
}

func (g *GitPages) Name() string { return "github-pages" }

// Deploy commits site and pushes it to the pages branch.
func (g *GitPages) Deploy(ctx context.Context, site Site) (*Result, error) {
	if g.cfg.RepoURL == "" {
		return nil, fmt.Errorf("%w: github pages repository", ErrNotConfigured)
	}
	repo, hash, err := g.buildCommit(site)
	if err != nil {
		return nil, err
	}
	if _, err := repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{g.cfg.RepoURL}}); err != nil {
		return nil, fmt.Errorf("deploy: github pages: remote: %w", err)
	}
	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("deploy: github pages: head: %w", err)
	}

	opts := &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{config.RefSpec(fmt.Sprintf("+%s:%s", head.Name(), plumbing.NewBranchReferenceName(g.cfg.Branch)))},
		Force:      true,
	}
	if g.cfg.Token != "" {
		opts.Auth = &githttp.BasicAuth{Username: "x-access-token", Password: g.cfg.Token}
	}
	err = repo.PushContext(ctx, opts)
	switch {
	case errors.Is(err, git.NoErrAlreadyUpToDate):
	case errors.Is(err, transport.ErrAuthenticationRequired), errors.Is(err, transport.ErrAuthorizationFailed):
		return nil, &ProviderError{Provider: g.Name(), Status: 401, Message: err.Error()}
	case err != nil:
		return nil, fmt.Errorf("deploy: github pages: push: %w", err)
	}
	g.cfg.Logger.Info("deploy: pages branch pushed", "project_id", site.ProjectID, "branch", g.cfg.Branch, "commit", hash.String())

	pagesURL := g.cfg.PagesURL
	if pagesURL == "" {
		pagesURL = PagesURL(g.cfg.RepoURL)
	}
	return &Result{URL: pagesURL, ExternalID: hash.String()}, nil
}

// buildCommit creates an in-memory repository with one commit holding the
// site files plus .nojekyll so that Pages serves them untouched.
func (g *GitPages) buildCommit(site Site) (*git.Repository, plumbing.Hash, error) {
	fs := memfs.New()
	repo, err := git.Init(memory.NewStorage(), fs)
	if err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("deploy: github pages: init: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, plumbing.ZeroHash, err
	}
	write := func(name string, data []byte) error {
		if err := util.WriteFile(fs, name, data, 0o644); err != nil {
			return err
		}
		_, err := wt.Add(name)
		return err
	}
	for _, f := range site.Files {
		if err := write(f.Path, []byte(f.Content)); err != nil {
			return nil, plumbing.ZeroHash, fmt.Errorf("deploy: github pages: add %s: %w", f.Path, err)
		}
	}
	if err := write(".nojekyll", nil); err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("deploy: github pages: add .nojekyll: %w", err)
	}

	hash, err := wt.Commit(fmt.Sprintf("Deploy %s (%d files)", site.Name, len(site.Files)), &git.CommitOptions{
		Author: &object.Signature{Name: g.cfg.AuthorName, Email: g.cfg.AuthorEmail, When: g.cfg.now()},
	})
	if err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("deploy: github pages: commit: %w", err)
	}
	return repo, hash, nil
}

// PagesURL derives the public GitHub Pages URL of a GitHub repository. It
// returns "" for remotes that are not on github.com.
func PagesURL(repoURL string) string {
	var owner, name string
	switch {
	case strings.HasPrefix(repoURL, "git@github.com:"):
		owner, name, _ = strings.Cut(strings.TrimPrefix(repoURL, "git@github.com:"), "/")
	default:
		u, err := url.Parse(repoURL)
		if err != nil || !strings.EqualFold(u.Hostname(), "github.com") {
			return ""
		}
		owner, name, _ = strings.Cut(strings.Trim(u.Path, "/"), "/")
	}
	name = strings.TrimSuffix(strings.TrimSuffix(name, "/"), ".git")
	if owner == "" || name == "" {
		return ""
	}
	owner = strings.ToLower(owner)
	if strings.EqualFold(name, owner+".github.io") {
		return "https://" + owner + ".github.io/"
	}
	return "https://" + owner + ".github.io/" + name + "/"
}
