package gateway

import (
	"context"

	"github.com/deploylog/deploylog/internal/changelog"
)

// UnknownStatus is the status reported for issues no tracker was asked about.
const UnknownStatus = "unknown"

// KeyOnlyTracker is an offline Tracker. It reports one issue per key found in
// a change-request's title, description and linked keys, without summaries.
type KeyOnlyTracker struct{}

// ListIssuesForChangeRequest never fails.
func (KeyOnlyTracker) ListIssuesForChangeRequest(_ context.Context, _ changelog.RepositoryID, cr changelog.ChangeRequest) ([]changelog.Issue, error) {
	keys := changelog.MergeIssueKeys(changelog.ExtractIssueKeys(cr.Title, cr.Description), cr.LinkedIssueKeys)
	issues := make([]changelog.Issue, 0, len(keys))
	for _, key := range keys {
		issues = append(issues, changelog.Issue{Key: key, Status: UnknownStatus})
	}
	return issues, nil
}

// IssueKeysFor returns the candidate issue keys of a change-request.
func IssueKeysFor(cr changelog.ChangeRequest) []string {
	return changelog.MergeIssueKeys(changelog.ExtractIssueKeys(cr.Title, cr.Description), cr.LinkedIssueKeys)
}

// NoTracker reports no issues for any change-request.
type NoTracker struct{}

// ListIssuesForChangeRequest never fails.
func (NoTracker) ListIssuesForChangeRequest(context.Context, changelog.RepositoryID, changelog.ChangeRequest) ([]changelog.Issue, error) {
	return nil, nil
}
