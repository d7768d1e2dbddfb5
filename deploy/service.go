package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/hazyhaar/sitegen/export"
	"github.com/hazyhaar/sitegen/observability"
	"github.com/hazyhaar/sitegen/sitefile"
	"github.com/hazyhaar/sitegen/store"
)

// ErrProjectBusy is returned while the project is being generated or
// deployed.
var ErrProjectBusy = errors.New("deploy: project is busy")

// ServiceConfig wires the deployment service.
type ServiceConfig struct {
	Store   *store.Store
	Events  *observability.EventLogger
	Metrics *observability.Metrics
	Default string // provider used when a request names none
	Logger  *slog.Logger
}

// Service runs deployments and keeps the deployments table and the project
// status in sync with them.
type Service struct {
	cfg       ServiceConfig
	deployers map[string]Deployer
}

// NewService registers deployers by name. The first one is the default
// unless cfg.Default names another.
func NewService(cfg ServiceConfig, deployers ...Deployer) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("deploy: store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Service{cfg: cfg, deployers: make(map[string]Deployer, len(deployers))}
	for _, d := range deployers {
		s.deployers[d.Name()] = d
		if s.cfg.Default == "" {
			s.cfg.Default = d.Name()
		}
	}
	return s, nil
}

// Names lists registered providers, sorted.
func (s *Service) Names() []string {
	names := make([]string, 0, len(s.deployers))
	for n := range s.deployers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Deploy publishes the project's files with provider ("" for the default)
// and returns the finished deployment row. A failed deployment is returned
// together with the error.
func (s *Service) Deploy(ctx context.Context, userID, projectID, provider string) (*store.Deployment, error) {
	if provider == "" {
		provider = s.cfg.Default
	}
	d, ok := s.deployers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
	project, err := s.cfg.Store.GetProject(ctx, userID, projectID)
	if err != nil {
		return nil, err
	}
	if project.Status == store.StatusGenerating || project.Status == store.StatusDeploying {
		return nil, fmt.Errorf("%w: %s", ErrProjectBusy, project.Status)
	}
	records, err := s.cfg.Store.Records(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNoFiles
	}
	files := sitefile.SortByPriority(records)
	for i, f := range files {
		if f.Type == sitefile.TypeHTML {
			files[i] = f.WithContent(sitefile.FixImageURLs(f.Content))
		}
	}

	dep := &store.Deployment{ProjectID: project.ID, UserID: project.UserID, Provider: provider, FileCount: len(files)}
	if err := s.cfg.Store.CreateDeployment(ctx, dep); err != nil {
		return nil, err
	}
	bctx := context.WithoutCancel(ctx)
	if err := s.cfg.Store.SetProjectStatus(ctx, project.ID, store.StatusDeploying); err != nil {
		return nil, err
	}
	s.cfg.Events.Log(ctx, observability.Event{
		Kind: observability.KindDeployStarted, UserID: userID, ProjectID: project.ID, EntityID: dep.ID, Success: true,
		Message: fmt.Sprintf("deploying %d files to %s", len(files), provider),
		Details: map[string]any{"provider": provider},
	})

	start := time.Now()
	dep.Status = store.DeploymentBuilding
	if err := s.cfg.Store.UpdateDeployment(bctx, dep); err != nil {
		s.cfg.Logger.Error("deploy: update deployment", "deployment", dep.ID, "error", err)
	}
	res, err := d.Deploy(ctx, Site{ProjectID: project.ID, Name: project.Name, Slug: export.Slug(project.Name), Files: files})
	elapsed := time.Since(start)
	labels := map[string]string{"provider": provider}

	if err != nil {
		dep.Status, dep.Error = store.DeploymentFailed, err.Error()
		if uerr := s.cfg.Store.UpdateDeployment(bctx, dep); uerr != nil {
			s.cfg.Logger.Error("deploy: update deployment", "deployment", dep.ID, "error", uerr)
		}
		if serr := s.cfg.Store.SetProjectStatus(bctx, project.ID, project.Status); serr != nil {
			s.cfg.Logger.Error("deploy: restore project status", "project", project.ID, "error", serr)
		}
		s.cfg.Events.Log(bctx, observability.Event{
			Kind: observability.KindDeployFailed, UserID: userID, ProjectID: project.ID, EntityID: dep.ID,
			Message: err.Error(), Details: map[string]any{"provider": provider, "duration_ms": elapsed.Milliseconds()},
		})
		labels["status"] = store.DeploymentFailed
		s.cfg.Metrics.Duration(observability.MetricDeployDuration, elapsed, labels)
		return dep, fmt.Errorf("deploy: %s: %w", provider, err)
	}

	dep.Status, dep.URL, dep.ExternalID = store.DeploymentReady, res.URL, res.ExternalID
	if err := s.cfg.Store.UpdateDeployment(bctx, dep); err != nil {
		s.cfg.Logger.Error("deploy: update deployment", "deployment", dep.ID, "error", err)
	}
	if err := s.cfg.Store.SetProjectDeployURL(bctx, project.ID, res.URL); err != nil {
		s.cfg.Logger.Error("deploy: set deploy url", "project_id", project.ID, "error", err)
	}
	s.cfg.Events.Log(bctx, observability.Event{
		Kind: observability.KindDeploySucceeded, UserID: userID, ProjectID: project.ID, EntityID: dep.ID, Success: true,
		Message: "deployed to " + res.URL,
		Details: map[string]any{"provider": provider, "url": res.URL, "duration_ms": elapsed.Milliseconds()},
	})
	labels["status"] = store.DeploymentReady
	s.cfg.Metrics.Duration(observability.MetricDeployDuration, elapsed, labels)
	return dep, nil
}
