// Package deployfile implements the deployment gateway over a YAML history
// file, for environments that are not managed by a deployment service.
//
// Example:
//
//	deployments:
//	  - application: checkout
//	    environment: prod
//	    repository: PROJ/checkout
//	    revision: 4f1c2e...
//	    version: 1.4.0
//	    build_number: 41
//	    deployed_at: 2026-03-01T10:00:00Z
//	  - application: checkout
//	    environment: prod
//	    repository: PROJ/checkout
//	    revision: 9a8b7c...
//	    build_number: 42
//	    status: pending
package deployfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/deploylog/deploylog/internal/gateway"
	"gopkg.in/yaml.v3"
)

// Deployment statuses.
const (
	StatusDeployed = "deployed"
	StatusPending  = "pending"
)

// Entry is one deployment record.
type Entry struct {
	Application string    `yaml:"application"`
	Environment string    `yaml:"environment"`
	Repository  string    `yaml:"repository"`
	Revision    string    `yaml:"revision"`
	Version     string    `yaml:"version,omitempty"`
	BuildNumber int       `yaml:"build_number,omitempty"`
	Status      string    `yaml:"status,omitempty"`
	DeployedAt  time.Time `yaml:"deployed_at,omitempty"`
}

// File is the decoded history file.
type File struct {
	Deployments []Entry `yaml:"deployments"`
}

// Load reads and validates a history file.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening deployments file: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses and validates a history document.
func Decode(r io.Reader) (*File, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing deployments YAML: %w", err)
	}

	for i := range file.Deployments {
		e := &file.Deployments[i]
		e.Status = strings.ToLower(strings.TrimSpace(e.Status))
		if e.Status == "" {
			e.Status = StatusDeployed
		}
		switch {
		case e.Application == "" || e.Environment == "":
			return nil, fmt.Errorf("deployments[%d]: application and environment are required", i)
		case e.Revision == "":
			return nil, fmt.Errorf("deployments[%d]: revision is required", i)
		case e.Status != StatusDeployed && e.Status != StatusPending:
			return nil, fmt.Errorf("deployments[%d]: unknown status %q", i, e.Status)
		}
		if _, err := changelog.ParseRepositoryID(e.Repository); err != nil {
			return nil, fmt.Errorf("deployments[%d]: %w", i, err)
		}
	}
	return &file, nil
}

// Gateway answers deployment questions from a File.
type Gateway struct {
	file *File
}

// New wraps a decoded file.
func New(file *File) *Gateway {
	return &Gateway{file: file}
}

// CurrentRevision returns the latest deployed entry.
func (g *Gateway) CurrentRevision(_ context.Context, application, environment string) (gateway.DeployedRevision, error) {
	return g.nth(application, environment, StatusDeployed, 0)
}

// PreviousRevision returns the deployed entry before the current one.
func (g *Gateway) PreviousRevision(_ context.Context, application, environment string) (gateway.DeployedRevision, error) {
	return g.nth(application, environment, StatusDeployed, 1)
}

// PendingRevision returns the latest pending entry.
func (g *Gateway) PendingRevision(_ context.Context, application, environment string) (gateway.DeployedRevision, error) {
	return g.nth(application, environment, StatusPending, 0)
}

// nth returns the n-th newest entry with the given status.
func (g *Gateway) nth(application, environment, status string, n int) (gateway.DeployedRevision, error) {
	var matches []Entry
	candidates := make(map[string]struct{})
	// Walk backwards so entries appended later win ties below.
	for i := len(g.file.Deployments) - 1; i >= 0; i-- {
		e := g.file.Deployments[i]
		if e.Application != application {
			continue
		}
		candidates[e.Repository] = struct{}{}
		if e.Environment == environment && e.Status == status {
			matches = append(matches, e)
		}
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].BuildNumber != matches[j].BuildNumber {
			return matches[i].BuildNumber > matches[j].BuildNumber
		}
		return matches[i].DeployedAt.After(matches[j].DeployedAt)
	})
	if len(matches) <= n {
		return gateway.DeployedRevision{}, fmt.Errorf("%w: %s has %d %s deployments to %s", gateway.ErrNoHistory, application, len(matches), status, environment)
	}

	e := matches[n]
	repo, _ := changelog.ParseRepositoryID(e.Repository)
	rev := gateway.DeployedRevision{
		Repository:  repo,
		Revision:    e.Revision,
		Version:     e.Version,
		BuildNumber: e.BuildNumber,
	}

	names := make([]string, 0, len(candidates))
	for name := range candidates {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		id, _ := changelog.ParseRepositoryID(name)
		rev.Candidates = append(rev.Candidates, id)
	}
	if len(rev.Candidates) > 1 {
		return rev, fmt.Errorf("%w: %s deploys from %s", gateway.ErrAmbiguous, application, strings.Join(names, ", "))
	}
	return rev, nil
}
