package testutil

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/deploylog/deploylog/internal/gateway"
)

// DelayFunc returns how long a fake call should take. Args are the call's
// keys: revisions for change-request lookups, the change-request ID for
// issue lookups.
type DelayFunc func(method string, args []string) time.Duration

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// FakeSourceControl is an in-memory gateway.SourceControl.
//
// ListCommits always returns Commits. A batch lookup returns every entry of
// ChangeRequests with at least one SourceRevisionID in the batch, with its
// full SourceRevisionIDs, in slice order.
type FakeSourceControl struct {
	Recorder

	Commits        []changelog.Commit
	ChangeRequests []changelog.ChangeRequest
	// Missing revisions make Exists report false.
	Missing map[string]bool
	// Disjoint makes IsAncestor report false.
	Disjoint bool
	// FailRevisions fails any batch containing one of the keys.
	FailRevisions map[string]error
	// ListErr fails ListCommits.
	ListErr   error
	Delay     DelayFunc
	BatchSize int
}

// RecommendedBatchSize implements gateway.BatchSizer when BatchSize is set.
func (f *FakeSourceControl) RecommendedBatchSize() int {
	return f.BatchSize
}

func (f *FakeSourceControl) delay(ctx context.Context, method string, args []string) error {
	if f.Delay == nil {
		return ctx.Err()
	}
	return wait(ctx, f.Delay(method, args))
}

func (f *FakeSourceControl) ListCommits(ctx context.Context, repo changelog.RepositoryID, start, end string) (_ []changelog.Commit, err error) {
	done := f.begin("ListCommits", repo.String(), start, end)
	defer func() { done(err) }()

	if err := f.delay(ctx, "ListCommits", nil); err != nil {
		return nil, err
	}
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return slices.Clone(f.Commits), nil
}

func (f *FakeSourceControl) Exists(ctx context.Context, repo changelog.RepositoryID, revision string) (_ bool, err error) {
	done := f.begin("Exists", repo.String(), revision)
	defer func() { done(err) }()

	if err := f.delay(ctx, "Exists", []string{revision}); err != nil {
		return false, err
	}
	return !f.Missing[revision], nil
}

func (f *FakeSourceControl) IsAncestor(ctx context.Context, repo changelog.RepositoryID, ancestor, descendant string) (_ bool, err error) {
	done := f.begin("IsAncestor", repo.String(), ancestor, descendant)
	defer func() { done(err) }()

	if err := f.delay(ctx, "IsAncestor", nil); err != nil {
		return false, err
	}
	return !f.Disjoint, nil
}

func (f *FakeSourceControl) ListChangeRequestsForCommits(ctx context.Context, repo changelog.RepositoryID, revisions []string) (_ []changelog.ChangeRequest, err error) {
	done := f.begin("ListChangeRequestsForCommits", revisions...)
	defer func() { done(err) }()

	if err := f.delay(ctx, "ListChangeRequestsForCommits", revisions); err != nil {
		return nil, err
	}
	for _, rev := range revisions {
		if ferr, ok := f.FailRevisions[rev]; ok {
			return nil, changelog.WrapGateway("fake", "list change requests", ferr)
		}
	}

	var out []changelog.ChangeRequest
	for _, cr := range f.ChangeRequests {
		for _, rev := range cr.SourceRevisionIDs {
			if slices.Contains(revisions, rev) {
				cp := cr
				cp.SourceRevisionIDs = slices.Clone(cr.SourceRevisionIDs)
				out = append(out, cp)
				break
			}
		}
	}
	return out, nil
}

// FakeTracker is an in-memory gateway.Tracker.
type FakeTracker struct {
	Recorder

	Issues map[changelog.ChangeRequestID][]changelog.Issue
	Fail   map[changelog.ChangeRequestID]error
	Delay  DelayFunc
}

func (f *FakeTracker) ListIssuesForChangeRequest(ctx context.Context, repo changelog.RepositoryID, cr changelog.ChangeRequest) (_ []changelog.Issue, err error) {
	key := strconv.FormatInt(int64(cr.ID), 10)
	done := f.begin("ListIssuesForChangeRequest", key)
	defer func() { done(err) }()

	if f.Delay != nil {
		if err := wait(ctx, f.Delay("ListIssuesForChangeRequest", []string{key})); err != nil {
			return nil, err
		}
	}
	if ferr, ok := f.Fail[cr.ID]; ok {
		return nil, changelog.WrapGateway("fake", "list issues", ferr)
	}
	return slices.Clone(f.Issues[cr.ID]), nil
}

// FakeDeployment is an in-memory gateway.Deployment keyed by
// "application/environment". Missing keys report gateway.ErrNoHistory.
type FakeDeployment struct {
	Recorder

	Current  map[string]gateway.DeployedRevision
	Previous map[string]gateway.DeployedRevision
	Pending  map[string]gateway.DeployedRevision
	// Err, when set for a key, is returned alongside the revision.
	Err map[string]error
}

func (f *FakeDeployment) lookup(method string, m map[string]gateway.DeployedRevision, application, environment string) (gateway.DeployedRevision, error) {
	key := application + "/" + environment
	done := f.begin(method, key)

	rev, ok := m[key]
	var err error
	switch {
	case f.Err[key] != nil:
		err = f.Err[key]
	case !ok:
		err = fmt.Errorf("%w: %s", gateway.ErrNoHistory, key)
	}
	done(err)
	return rev, err
}

func (f *FakeDeployment) CurrentRevision(_ context.Context, application, environment string) (gateway.DeployedRevision, error) {
	return f.lookup("CurrentRevision", f.Current, application, environment)
}

func (f *FakeDeployment) PreviousRevision(_ context.Context, application, environment string) (gateway.DeployedRevision, error) {
	return f.lookup("PreviousRevision", f.Previous, application, environment)
}

func (f *FakeDeployment) PendingRevision(_ context.Context, application, environment string) (gateway.DeployedRevision, error) {
	return f.lookup("PendingRevision", f.Pending, application, environment)
}
