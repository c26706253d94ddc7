package changelog

import (
	"fmt"
	"strings"
	"time"
)

// RepositoryID identifies a source repository by project (or group path) and name.
type RepositoryID struct {
	Project string `json:"project" yaml:"project"`
	Name    string `json:"name" yaml:"name"`
}

// ParseRepositoryID parses "PROJECT/repo". The last slash separates the name,
// so nested GitLab groups ("group/sub/repo") keep their full project path.
func ParseRepositoryID(s string) (RepositoryID, error) {
	s = strings.Trim(strings.TrimSpace(s), "/")
	idx := strings.LastIndex(s, "/")
	if idx <= 0 || idx == len(s)-1 {
		return RepositoryID{}, fmt.Errorf("invalid repository %q: expected PROJECT/repo", s)
	}
	return RepositoryID{Project: s[:idx], Name: s[idx+1:]}, nil
}

// String returns the PROJECT/repo form.
func (r RepositoryID) String() string {
	if r.Project == "" {
		return r.Name
	}
	return r.Project + "/" + r.Name
}

// IsZero reports whether the repository is unset.
func (r RepositoryID) IsZero() bool {
	return r.Project == "" && r.Name == ""
}

// ResolvedRange is a concrete revision pair ready for aggregation.
// StartRevision is exclusive and EndRevision inclusive.
type ResolvedRange struct {
	Repository    RepositoryID `json:"repository" yaml:"repository"`
	StartRevision string       `json:"startRevision" yaml:"start_revision"`
	EndRevision   string       `json:"endRevision" yaml:"end_revision"`
}

// IsEmpty reports whether start and end name the same revision.
func (r ResolvedRange) IsEmpty() bool {
	return r.StartRevision == r.EndRevision
}

// String returns "PROJECT/repo start..end" with abbreviated revisions.
func (r ResolvedRange) String() string {
	return fmt.Sprintf("%s %s..%s", r.Repository, ShortRevision(r.StartRevision), ShortRevision(r.EndRevision))
}

// Commit is a single source-control commit. Commits are never mutated after
// the source-control gateway creates them.
type Commit struct {
	RevisionID        string    `json:"revisionId" yaml:"revision_id"`
	Author            string    `json:"author" yaml:"author"`
	AuthorEmail       string    `json:"authorEmail,omitempty" yaml:"author_email,omitempty"`
	Message           string    `json:"message" yaml:"message"`
	Timestamp         time.Time `json:"timestamp" yaml:"timestamp"`
	ParentRevisionIDs []string  `json:"parentRevisionIds,omitempty" yaml:"parent_revision_ids,omitempty"`
}

// ShortID returns the abbreviated revision used for display.
func (c Commit) ShortID() string {
	return ShortRevision(c.RevisionID)
}

// Subject returns the first line of the commit message.
func (c Commit) Subject() string {
	subject, _, _ := strings.Cut(strings.TrimSpace(c.Message), "\n")
	return strings.TrimSpace(subject)
}

// IsMerge reports whether the commit has more than one parent.
func (c Commit) IsMerge() bool {
	return len(c.ParentRevisionIDs) > 1
}

// ChangeRequestID identifies a pull/merge request within one repository.
type ChangeRequestID int64

// String returns the "#42" display form.
func (id ChangeRequestID) String() string {
	return fmt.Sprintf("#%d", int64(id))
}

// ChangeRequest is a pull/merge request touching commits in the range.
//
// LinkedIssueKeys are tracker keys the source-control service itself reports
// for the change-request. IssueKeys is filled by the aggregation engine with
// the keys of the issues actually present in the changelog.
type ChangeRequest struct {
	ID                ChangeRequestID `json:"id" yaml:"id"`
	Title             string          `json:"title" yaml:"title"`
	State             string          `json:"state" yaml:"state"`
	Description       string          `json:"description,omitempty" yaml:"description,omitempty"`
	Author            string          `json:"author,omitempty" yaml:"author,omitempty"`
	URL               string          `json:"url,omitempty" yaml:"url,omitempty"`
	SourceRevisionIDs []string        `json:"sourceRevisionIds" yaml:"source_revision_ids"`
	LinkedIssueKeys   []string        `json:"linkedIssueKeys,omitempty" yaml:"linked_issue_keys,omitempty"`
	IssueKeys         []string        `json:"issueKeys,omitempty" yaml:"issue_keys,omitempty"`
}

// Issue is a tracker work item. ChangeRequestIDs lists every change-request
// in the changelog that references it, in ascending order.
type Issue struct {
	Key              string            `json:"key" yaml:"key"`
	Summary          string            `json:"summary" yaml:"summary"`
	Status           string            `json:"status" yaml:"status"`
	URL              string            `json:"url,omitempty" yaml:"url,omitempty"`
	ChangeRequestIDs []ChangeRequestID `json:"changeRequestIds,omitempty" yaml:"change_request_ids,omitempty"`
}

// Changelog is the aggregate root produced by the aggregation engine.
//
// Commits keep the order the source-control gateway returned them in and
// contain no duplicate revision IDs. Every SourceRevisionIDs entry of every
// change-request names a commit present in Commits.
type Changelog struct {
	Range          ResolvedRange                     `json:"range" yaml:"range"`
	Commits        []Commit                          `json:"commits" yaml:"commits"`
	ChangeRequests map[ChangeRequestID]ChangeRequest `json:"changeRequests" yaml:"change_requests"`
	Issues         map[string]Issue                  `json:"issues" yaml:"issues"`
}

// ShortRevision abbreviates full hexadecimal object names to seven characters.
// Anything else (tags, branch names, short hashes) is returned unchanged.
func ShortRevision(rev string) string {
	if len(rev) < 20 || !isHex(rev) {
		return rev
	}
	return rev[:7]
}

func isHex(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'f', r >= 'A' && r <= 'F':
		default:
			return false
		}
	}
	return true
}
