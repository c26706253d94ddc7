// Package spinnaker implements the deployment gateway for Spinnaker Managed
// Delivery through its GraphQL API.
package spinnaker

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/deploylog/deploylog/internal/gateway"
	"github.com/deploylog/deploylog/internal/transport"
)

// GatewayName identifies this gateway in errors and logs.
const GatewayName = "spinnaker"

// Artifact version statuses reported per environment.
const (
	StatusPending  = "PENDING"
	StatusCurrent  = "CURRENT"
	StatusPrevious = "PREVIOUS"
)

const environmentStatesQuery = `query MdEnvironmentStates($appName: String!, $environments: [String!]!) {
  application(appName: $appName) {
    name
    environments(names: $environments) {
      name
      state {
        artifacts {
          name
          reference
          versions(statuses: [PENDING, CURRENT, PREVIOUS]) {
            version
            buildNumber
            status
            gitMetadata {
              commit
              project
              repoName
              branch
            }
          }
        }
      }
    }
  }
}`

// Client reads environment states. Each (application, environment) pair is
// queried once per Client.
type Client struct {
	gql *transport.GraphQL

	mu     sync.Mutex
	states map[string][]version
}

// New wraps a GraphQL client pointed at the Spinnaker gate.
func New(gql *transport.GraphQL) *Client {
	return &Client{gql: gql, states: make(map[string][]version)}
}

// CurrentRevision returns the newest CURRENT version.
func (c *Client) CurrentRevision(ctx context.Context, application, environment string) (gateway.DeployedRevision, error) {
	return c.latest(ctx, application, environment, StatusCurrent)
}

// PreviousRevision returns the newest PREVIOUS version.
func (c *Client) PreviousRevision(ctx context.Context, application, environment string) (gateway.DeployedRevision, error) {
	return c.latest(ctx, application, environment, StatusPrevious)
}

// PendingRevision returns the newest PENDING version.
func (c *Client) PendingRevision(ctx context.Context, application, environment string) (gateway.DeployedRevision, error) {
	return c.latest(ctx, application, environment, StatusPending)
}

func (c *Client) latest(ctx context.Context, application, environment, status string) (gateway.DeployedRevision, error) {
	versions, err := c.environmentVersions(ctx, application, environment)
	if err != nil {
		return gateway.DeployedRevision{}, err
	}

	var (
		best  *version
		found bool
	)
	for i := range versions {
		v := &versions[i]
		if v.Status != status {
			continue
		}
		if !found || newer(*v, *best) {
			best, found = v, true
		}
	}
	if !found {
		return gateway.DeployedRevision{}, fmt.Errorf("%w: no %s version of %s in %s", gateway.ErrNoHistory, status, application, environment)
	}
	if best.GitMetadata == nil || best.GitMetadata.Commit == "" {
		return gateway.DeployedRevision{}, fmt.Errorf("%w: %s version %s of %s has no git metadata", gateway.ErrNoHistory, status, best.Version, application)
	}

	candidates := candidateRepositories(versions)
	rev := gateway.DeployedRevision{
		Repository:  changelog.RepositoryID{Project: best.GitMetadata.Project, Name: best.GitMetadata.RepoName},
		Revision:    best.GitMetadata.Commit,
		Version:     best.Version,
		BuildNumber: buildNumber(best.BuildNumber),
		Candidates:  candidates,
	}
	if len(candidates) > 1 {
		return rev, fmt.Errorf("%w: %s maps to %d repositories", gateway.ErrAmbiguous, application, len(candidates))
	}
	return rev, nil
}

func (c *Client) environmentVersions(ctx context.Context, application, environment string) ([]version, error) {
	key := application + "\x00" + environment

	c.mu.Lock()
	cached, ok := c.states[key]
	c.mu.Unlock()
	if ok {
		return cached, nil
	}

	var data response
	vars := map[string]any{"appName": application, "environments": []string{environment}}
	if err := c.gql.Query(ctx, environmentStatesQuery, vars, &data); err != nil {
		return nil, changelog.WrapGateway(GatewayName, "environment states", err)
	}
	if data.Application == nil {
		return nil, fmt.Errorf("%w: application %s was not found", gateway.ErrNoHistory, application)
	}

	var versions []version
	envFound := false
	for _, env := range data.Application.Environments {
		if env.Name != environment {
			continue
		}
		envFound = true
		for _, artifact := range env.State.Artifacts {
			versions = append(versions, artifact.Versions...)
		}
	}
	if !envFound {
		return nil, fmt.Errorf("%w: application %s has no environment %s", gateway.ErrNoHistory, application, environment)
	}

	c.mu.Lock()
	c.states[key] = versions
	c.mu.Unlock()
	return versions, nil
}

// newer orders by numeric build number when both parse, else lexically.
func newer(a, b version) bool {
	an, aerr := strconv.Atoi(a.BuildNumber)
	bn, berr := strconv.Atoi(b.BuildNumber)
	if aerr == nil && berr == nil {
		return an > bn
	}
	return a.BuildNumber > b.BuildNumber
}

func buildNumber(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

func candidateRepositories(versions []version) []changelog.RepositoryID {
	seen := make(map[changelog.RepositoryID]struct{})
	for _, v := range versions {
		if v.GitMetadata == nil || v.GitMetadata.RepoName == "" {
			continue
		}
		seen[changelog.RepositoryID{Project: v.GitMetadata.Project, Name: v.GitMetadata.RepoName}] = struct{}{}
	}
	out := make([]changelog.RepositoryID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].String() < out[j].String()
	})
	return out
}

type response struct {
	Application *struct {
		Name         string `json:"name"`
		Environments []struct {
			Name  string `json:"name"`
			State struct {
				Artifacts []struct {
					Name      string    `json:"name"`
					Reference string    `json:"reference"`
					Versions  []version `json:"versions"`
				} `json:"artifacts"`
			} `json:"state"`
		} `json:"environments"`
	} `json:"application"`
}

type version struct {
	Version     string       `json:"version"`
	BuildNumber string       `json:"buildNumber"`
	Status      string       `json:"status"`
	GitMetadata *gitMetadata `json:"gitMetadata"`
}

type gitMetadata struct {
	Commit   string `json:"commit"`
	Project  string `json:"project"`
	RepoName string `json:"repoName"`
	Branch   string `json:"branch"`
}

// Ping sends the smallest valid GraphQL query to the gate.
func (c *Client) Ping(ctx context.Context) (string, error) {
	var out struct {
		Typename string `json:"__typename"`
	}
	if err := c.gql.Query(ctx, "query { __typename }", nil, &out); err != nil {
		return "", changelog.WrapGateway(GatewayName, "ping", err)
	}
	return "GraphQL endpoint answered", nil
}
