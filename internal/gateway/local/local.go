// Package local implements the source-control gateway over an on-disk git
// repository. Without a hosting service to ask, change-requests are derived
// from the commit messages the common hosts write when merging:
//
//	Merge pull request #12 from jdoe/feature        (GitHub, Bitbucket Server)
//	Merged in feature/x (pull request #12)          (Bitbucket Cloud)
//	See merge request group/app!12                  (GitLab)
//	Add login page (#12)                            (squash merges)
//
// For a true merge commit the change-request also claims the commits the
// merge brought in from its second parent.
package local

import (
	"context"
	"errors"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/deploylog/deploylog/internal/git"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GatewayName identifies this gateway in errors and logs.
const GatewayName = "local"

// StateMerged is the state of every change-request found in history.
const StateMerged = "MERGED"

var (
	subjectPatterns = []*regexp.Regexp{
		regexp.MustCompile(`^Merge pull request #(\d+)\b`),
		regexp.MustCompile(`\(pull request #(\d+)\)`),
		regexp.MustCompile(`\(#(\d+)\)\s*$`),
	}
	mergeRequestPattern = regexp.MustCompile(`(?m)^See merge request \S*!(\d+)\s*$`)
	squashSuffix        = regexp.MustCompile(`\s*\(#\d+\)\s*$`)
)

// Gateway answers source-control questions from a local repository. The
// RepositoryID arguments are not consulted: the gateway serves the one
// repository it was opened on.
type Gateway struct {
	repo *git.Repository
}

// New wraps an opened repository.
func New(repo *git.Repository) *Gateway {
	return &Gateway{repo: repo}
}

// ListCommits walks history locally, newest first.
func (g *Gateway) ListCommits(ctx context.Context, _ changelog.RepositoryID, start, end string) ([]changelog.Commit, error) {
	raw, err := g.repo.Log(ctx, start, end)
	if err != nil {
		return nil, wrap("log", err)
	}
	commits := make([]changelog.Commit, 0, len(raw))
	for _, c := range raw {
		commits = append(commits, toCommit(c))
	}
	return commits, nil
}

// Exists reports whether revision resolves to a commit.
func (g *Gateway) Exists(_ context.Context, _ changelog.RepositoryID, revision string) (bool, error) {
	_, err := g.repo.ResolveRevision(revision)
	if errors.Is(err, git.ErrRevisionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, wrap("resolve revision", err)
	}
	return true, nil
}

// IsAncestor delegates to go-git's reachability walk.
func (g *Gateway) IsAncestor(_ context.Context, _ changelog.RepositoryID, ancestor, descendant string) (bool, error) {
	ok, err := g.repo.IsAncestor(ancestor, descendant)
	if err != nil {
		return false, wrap("is ancestor", err)
	}
	return ok, nil
}

// ListChangeRequestsForCommits parses each revision's message. Revisions that
// do not reference a change-request contribute nothing.
func (g *Gateway) ListChangeRequestsForCommits(ctx context.Context, _ changelog.RepositoryID, revisions []string) ([]changelog.ChangeRequest, error) {
	byID := make(map[changelog.ChangeRequestID]*changelog.ChangeRequest)
	var order []changelog.ChangeRequestID

	for _, rev := range revisions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c, err := g.repo.Commit(rev)
		if err != nil {
			return nil, wrap("read commit", err)
		}
		id, ok := ReferencedChangeRequest(c.Message)
		if !ok {
			continue
		}

		cr, seen := byID[id]
		if !seen {
			title, description := splitMessage(c.Message)
			cr = &changelog.ChangeRequest{
				ID:          id,
				Title:       title,
				State:       StateMerged,
				Description: description,
				Author:      c.Author.Name,
			}
			byID[id] = cr
			order = append(order, id)
		}
		cr.SourceRevisionIDs = appendUnique(cr.SourceRevisionIDs, rev)

		if c.NumParents() > 1 {
			branch, err := g.repo.Log(ctx, c.ParentHashes[0].String(), c.ParentHashes[1].String())
			if err != nil {
				return nil, wrap("log merged branch", err)
			}
			for _, b := range branch {
				cr.SourceRevisionIDs = appendUnique(cr.SourceRevisionIDs, b.Hash.String())
			}
		}
	}

	out := make([]changelog.ChangeRequest, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

// ReferencedChangeRequest finds the change-request number a commit message
// was written for.
func ReferencedChangeRequest(message string) (changelog.ChangeRequestID, bool) {
	subject, _, _ := strings.Cut(strings.TrimSpace(message), "\n")
	for _, re := range subjectPatterns {
		if m := re.FindStringSubmatch(subject); m != nil {
			return parseID(m[1])
		}
	}
	if m := mergeRequestPattern.FindStringSubmatch(message); m != nil {
		return parseID(m[1])
	}
	return 0, false
}

func parseID(s string) (changelog.ChangeRequestID, bool) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return 0, false
	}
	return changelog.ChangeRequestID(n), true
}

// splitMessage picks a title and description for a change-request commit.
// Merge commits carry the title on the first body line; squash commits on
// the subject.
func splitMessage(message string) (title, description string) {
	lines := strings.Split(strings.TrimSpace(message), "\n")
	subject := strings.TrimSpace(lines[0])

	var body []string
	for _, l := range lines[1:] {
		l = strings.TrimSpace(l)
		if strings.HasPrefix(l, "See merge request ") || strings.HasPrefix(l, "* commit '") {
			continue
		}
		body = append(body, l)
	}
	for len(body) > 0 && body[0] == "" {
		body = body[1:]
	}

	isMerge := strings.HasPrefix(subject, "Merge ") || strings.HasPrefix(subject, "Merged in ")
	if isMerge && len(body) > 0 {
		return body[0], strings.TrimSpace(strings.Join(body[1:], "\n"))
	}
	return squashSuffix.ReplaceAllString(subject, ""), strings.TrimSpace(strings.Join(body, "\n"))
}

func appendUnique(list []string, s string) []string {
	if slices.Contains(list, s) {
		return list
	}
	return append(list, s)
}

func toCommit(c *object.Commit) changelog.Commit {
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return changelog.Commit{
		RevisionID:        c.Hash.String(),
		Author:            c.Author.Name,
		AuthorEmail:       c.Author.Email,
		Message:           strings.TrimRight(c.Message, "\n"),
		Timestamp:         c.Author.When.UTC(),
		ParentRevisionIDs: parents,
	}
}

func wrap(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return changelog.WrapGateway(GatewayName, op, err)
}
