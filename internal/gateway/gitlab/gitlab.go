// Package gitlab implements the source-control and tracker gateways for
// GitLab (REST API v4) on top of the official client-go SDK.
//
// Repositories are addressed by their full project path: the RepositoryID
// "group/sub/app" becomes the GitLab project "group/sub/app".
package gitlab

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/deploylog/deploylog/internal/transport"
	gitlab "gitlab.com/gitlab-org/api/client-go"
)

// GatewayName identifies this gateway in errors and logs.
const GatewayName = "gitlab"

const (
	perPage              = 100
	recommendedBatchSize = 10
)

// Options configures the SDK client built by NewSDKClient.
type Options struct {
	BaseURL  string
	Token    string
	Timeout  time.Duration
	RetryMax int
}

// NewSDKClient builds a client-go client for the instance at opts.BaseURL.
// The SDK appends /api/v4 itself.
func NewSDKClient(opts Options) (*gitlab.Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("gitlab base URL is required")
	}
	return gitlab.NewClient(opts.Token,
		gitlab.WithBaseURL(opts.BaseURL),
		gitlab.WithHTTPClient(&http.Client{Timeout: opts.Timeout}),
		gitlab.WithCustomRetryMax(opts.RetryMax),
	)
}

// Client serves both gateway.SourceControl and gateway.Tracker.
type Client struct {
	api *gitlab.Client
}

// New wraps an SDK client.
func New(api *gitlab.Client) *Client {
	return &Client{api: api}
}

// RecommendedBatchSize implements gateway.BatchSizer.
func (c *Client) RecommendedBatchSize() int {
	return recommendedBatchSize
}

func projectPath(repo changelog.RepositoryID) string {
	return "projects/" + url.PathEscape(repo.String())
}

// ListCommits compares start with end. GitLab lists the difference oldest
// first, so the result is reversed.
func (c *Client) ListCommits(ctx context.Context, repo changelog.RepositoryID, start, end string) ([]changelog.Commit, error) {
	raw, err := c.compare(ctx, repo, start, end)
	if err != nil {
		return nil, changelog.WrapGateway(GatewayName, "compare", err)
	}

	commits := make([]changelog.Commit, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, rc := range slices.Backward(raw) {
		if rc == nil {
			continue
		}
		if _, dup := seen[rc.ID]; dup {
			continue
		}
		seen[rc.ID] = struct{}{}
		commits = append(commits, toCommit(rc))
	}
	return commits, nil
}

// Exists reports false when the commit resource is a 404.
func (c *Client) Exists(ctx context.Context, repo changelog.RepositoryID, revision string) (bool, error) {
	path := projectPath(repo) + "/repository/commits/" + url.PathEscape(revision)
	req, err := c.api.NewRequest(http.MethodGet, path, nil, []gitlab.RequestOptionFunc{gitlab.WithContext(ctx)})
	if err != nil {
		return false, changelog.WrapGateway(GatewayName, "get commit", err)
	}

	var out struct {
		ID string `json:"id"`
	}
	resp, err := c.api.Do(req, &out)
	if isNotFound(resp) {
		return false, nil
	}
	if err != nil {
		return false, changelog.WrapGateway(GatewayName, "get commit", err)
	}
	return out.ID != "", nil
}

// IsAncestor holds when comparing descendant to ancestor yields no commits.
func (c *Client) IsAncestor(ctx context.Context, repo changelog.RepositoryID, ancestor, descendant string) (bool, error) {
	raw, err := c.compare(ctx, repo, descendant, ancestor)
	if err != nil {
		return false, changelog.WrapGateway(GatewayName, "compare", err)
	}
	return len(raw) == 0, nil
}

// ListChangeRequestsForCommits asks for the merge requests of each revision.
// A merge request's SourceRevisionIDs are the requested revisions that
// reported it.
func (c *Client) ListChangeRequestsForCommits(ctx context.Context, repo changelog.RepositoryID, revisions []string) ([]changelog.ChangeRequest, error) {
	byID := make(map[changelog.ChangeRequestID]*changelog.ChangeRequest)
	var order []changelog.ChangeRequestID

	for _, rev := range revisions {
		mrs, _, err := c.api.Commits.ListMergeRequestsByCommit(repo.String(), rev, gitlab.WithContext(ctx))
		if err != nil {
			return nil, changelog.WrapGateway(GatewayName, "list merge requests", err)
		}
		for _, mr := range mrs {
			if mr == nil {
				continue
			}
			id := changelog.ChangeRequestID(int64(mr.IID))
			cr, ok := byID[id]
			if !ok {
				cr = &changelog.ChangeRequest{
					ID:          id,
					Title:       mr.Title,
					State:       strings.ToUpper(mr.State),
					Description: mr.Description,
					URL:         mr.WebURL,
				}
				if mr.Author != nil {
					cr.Author = mr.Author.Username
				}
				byID[id] = cr
				order = append(order, id)
			}
			cr.SourceRevisionIDs = append(cr.SourceRevisionIDs, rev)
		}
	}

	out := make([]changelog.ChangeRequest, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

// ListIssuesForChangeRequest returns the issues the merge request closes when
// merged. Issues of the same project are keyed "#IID", others by their full
// reference ("group/other#12").
func (c *Client) ListIssuesForChangeRequest(ctx context.Context, repo changelog.RepositoryID, cr changelog.ChangeRequest) ([]changelog.Issue, error) {
	path := fmt.Sprintf("%s/merge_requests/%d/closes_issues", projectPath(repo), int64(cr.ID))
	raw, err := transport.Pages(ctx, func(ctx context.Context, page int) ([]closedIssue, int, bool, error) {
		opt := struct {
			PerPage int `url:"per_page"`
			Page    int `url:"page,omitempty"`
		}{PerPage: perPage, Page: page}

		req, err := c.api.NewRequest(http.MethodGet, path, &opt, []gitlab.RequestOptionFunc{gitlab.WithContext(ctx)})
		if err != nil {
			return nil, 0, false, err
		}
		var values []closedIssue
		resp, err := c.api.Do(req, &values)
		if isNotFound(resp) {
			return nil, 0, true, nil
		}
		if err != nil {
			return nil, 0, false, err
		}
		return values, int(resp.NextPage), resp.NextPage == 0, nil
	})
	if err != nil {
		return nil, changelog.WrapGateway(GatewayName, "list closed issues", err)
	}

	issues := make([]changelog.Issue, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, ri := range raw {
		issue := ri.toDomain(repo)
		if _, dup := seen[issue.Key]; dup {
			continue
		}
		seen[issue.Key] = struct{}{}
		issues = append(issues, issue)
	}
	slices.SortFunc(issues, func(a, b changelog.Issue) int { return strings.Compare(a.Key, b.Key) })
	return issues, nil
}

func (c *Client) compare(ctx context.Context, repo changelog.RepositoryID, from, to string) ([]*gitlab.Commit, error) {
	cmp, _, err := c.api.Repositories.Compare(repo.String(), &gitlab.CompareOptions{
		From: gitlab.Ptr(from),
		To:   gitlab.Ptr(to),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if cmp == nil {
		return nil, nil
	}
	return cmp.Commits, nil
}

func isNotFound(resp *gitlab.Response) bool {
	return resp != nil && resp.StatusCode == http.StatusNotFound
}

func toCommit(rc *gitlab.Commit) changelog.Commit {
	var ts time.Time
	if rc.AuthoredDate != nil {
		ts = rc.AuthoredDate.UTC()
	}
	return changelog.Commit{
		RevisionID:        rc.ID,
		Author:            rc.AuthorName,
		AuthorEmail:       rc.AuthorEmail,
		Message:           rc.Message,
		Timestamp:         ts,
		ParentRevisionIDs: append([]string(nil), rc.ParentIDs...),
	}
}

type closedIssue struct {
	IID        int64  `json:"iid"`
	Title      string `json:"title"`
	State      string `json:"state"`
	WebURL     string `json:"web_url"`
	References struct {
		Short string `json:"short"`
		Full  string `json:"full"`
	} `json:"references"`
}

func (ri closedIssue) toDomain(repo changelog.RepositoryID) changelog.Issue {
	key := fmt.Sprintf("#%d", ri.IID)
	if full := ri.References.Full; full != "" && !strings.HasPrefix(full, repo.String()+"#") {
		key = full
	}
	return changelog.Issue{
		Key:     key,
		Summary: ri.Title,
		Status:  ri.State,
		URL:     ri.WebURL,
	}
}

// Ping reads the instance version. The endpoint requires a valid token, so
// this also checks the credentials.
func (c *Client) Ping(ctx context.Context) (string, error) {
	v, _, err := c.api.Version.GetVersion(gitlab.WithContext(ctx))
	if err != nil {
		return "", changelog.WrapGateway(GatewayName, "ping", err)
	}
	return "GitLab " + v.Version, nil
}
