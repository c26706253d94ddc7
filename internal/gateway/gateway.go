// Package gateway defines the domain-shaped contracts deploylog uses to talk to
// source control, issue trackers and deployment systems.
//
// Gateways translate domain calls into wire calls and back. They hold no
// changelog state, so one gateway value can serve concurrent calls from the
// aggregation engine.
package gateway

import (
	"context"
	"errors"

	"github.com/deploylog/deploylog/internal/changelog"
)

var (
	// ErrNoHistory is returned by a Deployment gateway when the environment
	// has no deployment of the requested kind.
	ErrNoHistory = errors.New("no deployment history")
	// ErrAmbiguous is returned by a Deployment gateway when an application's
	// deployments point at more than one repository.
	ErrAmbiguous = errors.New("ambiguous repository mapping")
)

// SourceControl lists commits and the change-requests that contain them.
type SourceControl interface {
	// ListCommits returns the commits reachable from end but not from start,
	// newest first, without duplicates.
	ListCommits(ctx context.Context, repo changelog.RepositoryID, start, end string) ([]changelog.Commit, error)
	// Exists reports whether revision resolves in repo. A missing revision is
	// (false, nil), not an error.
	Exists(ctx context.Context, repo changelog.RepositoryID, revision string) (bool, error)
	// IsAncestor reports whether ancestor is reachable from descendant.
	IsAncestor(ctx context.Context, repo changelog.RepositoryID, ancestor, descendant string) (bool, error)
	// ListChangeRequestsForCommits returns every change-request containing at
	// least one of revisions. SourceRevisionIDs may name commits outside the
	// requested set.
	ListChangeRequestsForCommits(ctx context.Context, repo changelog.RepositoryID, revisions []string) ([]changelog.ChangeRequest, error)
}

// Tracker resolves the issues a change-request refers to.
type Tracker interface {
	ListIssuesForChangeRequest(ctx context.Context, repo changelog.RepositoryID, cr changelog.ChangeRequest) ([]changelog.Issue, error)
}

// Deployment reports what an application has deployed to an environment.
type Deployment interface {
	CurrentRevision(ctx context.Context, application, environment string) (DeployedRevision, error)
	PreviousRevision(ctx context.Context, application, environment string) (DeployedRevision, error)
}

// BatchSizer is implemented by source-control gateways that know a good batch
// size for ListChangeRequestsForCommits.
type BatchSizer interface {
	RecommendedBatchSize() int
}

// PendingRevisioner is implemented by deployment gateways that can report the
// newest revision waiting to be promoted to an environment.
type PendingRevisioner interface {
	PendingRevision(ctx context.Context, application, environment string) (DeployedRevision, error)
}

// DeployedRevision is one deployment of an application.
//
// Candidates lists every repository the deployment system associates with
// the application. More than one candidate means the mapping is ambiguous and
// Repository should not be trusted.
type DeployedRevision struct {
	Repository  changelog.RepositoryID
	Revision    string
	Version     string
	BuildNumber int
	Candidates  []changelog.RepositoryID
}

// Ambiguous reports whether the deployment maps to other than one repository.
func (d DeployedRevision) Ambiguous() bool {
	if len(d.Candidates) > 1 {
		return true
	}
	return d.Repository.Project == "" || d.Repository.Name == ""
}
