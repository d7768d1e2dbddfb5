// Package deploy publishes a project's files to static hosting providers and
// records every attempt in the deployments table.
package deploy

import (
	"context"
	"errors"
	"fmt"

	"github.com/hazyhaar/sitegen/sitefile"
)

var (
	// ErrNotConfigured is returned by a deployer missing its credentials.
	ErrNotConfigured = errors.New("deploy: provider not configured")
	// ErrUnknownProvider is returned for a provider name nobody registered.
	ErrUnknownProvider = errors.New("deploy: unknown provider")
	// ErrNoFiles is returned when the project has nothing to publish.
	ErrNoFiles = errors.New("deploy: project has no files")
)

// Site is the input of a deployment: files in priority order with image
// references already fixed.
type Site struct {
	ProjectID string
	Name      string
	Slug      string
	Files     []sitefile.FileRecord
}

// Result is what the hosting provider reported.
type Result struct {
	URL        string `json:"url"`
	ExternalID string `json:"external_id,omitempty"`
}

// Deployer publishes a site.
type Deployer interface {
	Name() string
	Deploy(ctx context.Context, site Site) (*Result, error)
}

// DeployerFunc adapts a function to Deployer.
type DeployerFunc struct {
	DeployerName string
	Fn           func(ctx context.Context, site Site) (*Result, error)
}

func (d DeployerFunc) Name() string { return d.DeployerName }

func (d DeployerFunc) Deploy(ctx context.Context, site Site) (*Result, error) {
	return d.Fn(ctx, site)
}

// ProviderError carries a hosting API failure.
type ProviderError struct {
	Provider string
	Status   int
	Message  string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("deploy: %s: status %d: %s", e.Provider, e.Status, e.Message)
}
