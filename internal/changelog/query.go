package changelog

import (
	"sort"
)

// IsEmpty reports whether the changelog contains no commits.
func (c *Changelog) IsEmpty() bool {
	return c == nil || len(c.Commits) == 0
}

// Associations maps each grouped revision ID to its change-request.
func (c *Changelog) Associations() map[string]ChangeRequestID {
	assoc := make(map[string]ChangeRequestID)
	for id, cr := range c.ChangeRequests {
		for _, rev := range cr.SourceRevisionIDs {
			assoc[rev] = id
		}
	}
	return assoc
}

// ChangeRequestFor returns the change-request a revision belongs to.
func (c *Changelog) ChangeRequestFor(revisionID string) (ChangeRequest, bool) {
	for _, cr := range c.ChangeRequests {
		for _, rev := range cr.SourceRevisionIDs {
			if rev == revisionID {
				return cr, true
			}
		}
	}
	return ChangeRequest{}, false
}

// OrderedChangeRequests returns change-requests ordered by the position of
// their first commit in Commits. Change-requests whose commits are all
// missing from Commits sort last, by ID.
func (c *Changelog) OrderedChangeRequests() []ChangeRequest {
	position := make(map[string]int, len(c.Commits))
	for i, commit := range c.Commits {
		position[commit.RevisionID] = i
	}

	first := make(map[ChangeRequestID]int, len(c.ChangeRequests))
	ordered := make([]ChangeRequest, 0, len(c.ChangeRequests))
	for id, cr := range c.ChangeRequests {
		pos := len(c.Commits)
		for _, rev := range cr.SourceRevisionIDs {
			if p, ok := position[rev]; ok && p < pos {
				pos = p
			}
		}
		first[id] = pos
		ordered = append(ordered, cr)
	}

	sort.Slice(ordered, func(i, j int) bool {
		pi, pj := first[ordered[i].ID], first[ordered[j].ID]
		if pi != pj {
			return pi < pj
		}
		return ordered[i].ID < ordered[j].ID
	})
	return ordered
}

// CommitsFor returns the commits of a change-request in changelog order.
func (c *Changelog) CommitsFor(id ChangeRequestID) []Commit {
	cr, ok := c.ChangeRequests[id]
	if !ok {
		return nil
	}
	wanted := make(map[string]struct{}, len(cr.SourceRevisionIDs))
	for _, rev := range cr.SourceRevisionIDs {
		wanted[rev] = struct{}{}
	}

	var commits []Commit
	for _, commit := range c.Commits {
		if _, ok := wanted[commit.RevisionID]; ok {
			commits = append(commits, commit)
		}
	}
	return commits
}

// UngroupedCommits returns the commits not associated with any change-request.
func (c *Changelog) UngroupedCommits() []Commit {
	assoc := c.Associations()
	var commits []Commit
	for _, commit := range c.Commits {
		if _, ok := assoc[commit.RevisionID]; !ok {
			commits = append(commits, commit)
		}
	}
	return commits
}

// IssuesFor returns the issues linked to a change-request, sorted by key.
// Keys without a matching Issue are skipped.
func (c *Changelog) IssuesFor(id ChangeRequestID) []Issue {
	cr, ok := c.ChangeRequests[id]
	if !ok {
		return nil
	}
	keys := append([]string(nil), cr.IssueKeys...)
	sort.Strings(keys)

	var issues []Issue
	for _, key := range keys {
		if issue, ok := c.Issues[key]; ok {
			issues = append(issues, issue)
		}
	}
	return issues
}

// SortedIssueKeys returns every issue key in the changelog, sorted.
func (c *Changelog) SortedIssueKeys() []string {
	keys := make([]string, 0, len(c.Issues))
	for key := range c.Issues {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Authors returns the distinct commit authors in order of first appearance.
func (c *Changelog) Authors() []string {
	seen := make(map[string]struct{})
	var authors []string
	for _, commit := range c.Commits {
		if commit.Author == "" {
			continue
		}
		if _, ok := seen[commit.Author]; ok {
			continue
		}
		seen[commit.Author] = struct{}{}
		authors = append(authors, commit.Author)
	}
	return authors
}
