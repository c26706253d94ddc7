// Package bitbucket implements the source-control gateway for Bitbucket Server
// and Data Center (REST API "latest").
package bitbucket

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/deploylog/deploylog/internal/transport"
)

// GatewayName identifies this gateway in errors and logs.
const GatewayName = "bitbucket"

const (
	pageLimit = 100
	// One pull-request lookup per commit, so small batches spread better.
	recommendedBatchSize = 10
)

// Client talks to one Bitbucket Server instance.
type Client struct {
	rest *transport.Client
}

// New wraps a REST client whose base URL is the Bitbucket root
// (e.g. https://bitbucket.example.com/).
func New(rest *transport.Client) *Client {
	return &Client{rest: rest}
}

// RecommendedBatchSize implements gateway.BatchSizer.
func (c *Client) RecommendedBatchSize() int {
	return recommendedBatchSize
}

func repoPath(repo changelog.RepositoryID) string {
	return fmt.Sprintf("rest/api/latest/projects/%s/repos/%s", url.PathEscape(repo.Project), url.PathEscape(repo.Name))
}

// ListCommits uses compare/commits, which lists commits reachable from "from"
// and not from "to", newest first.
func (c *Client) ListCommits(ctx context.Context, repo changelog.RepositoryID, start, end string) ([]changelog.Commit, error) {
	raw, err := c.compare(ctx, repo, end, start, 0)
	if err != nil {
		return nil, changelog.WrapGateway(GatewayName, "list commits", err)
	}

	commits := make([]changelog.Commit, 0, len(raw))
	seen := make(map[string]struct{}, len(raw))
	for _, rc := range raw {
		if _, dup := seen[rc.ID]; dup {
			continue
		}
		seen[rc.ID] = struct{}{}
		commits = append(commits, rc.toDomain())
	}
	return commits, nil
}

// Exists reports false for a 404 on the commit resource.
func (c *Client) Exists(ctx context.Context, repo changelog.RepositoryID, revision string) (bool, error) {
	var rc commit
	err := c.rest.GetJSON(ctx, repoPath(repo)+"/commits/"+url.PathEscape(revision), nil, &rc)
	if transport.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, changelog.WrapGateway(GatewayName, "get commit", err)
	}
	return true, nil
}

// IsAncestor holds when no commit is reachable from ancestor but not from
// descendant.
func (c *Client) IsAncestor(ctx context.Context, repo changelog.RepositoryID, ancestor, descendant string) (bool, error) {
	raw, err := c.compare(ctx, repo, ancestor, descendant, 1)
	if err != nil {
		return false, changelog.WrapGateway(GatewayName, "compare commits", err)
	}
	return len(raw) == 0, nil
}

// ListChangeRequestsForCommits asks for the pull requests of each revision in
// turn. A pull request's SourceRevisionIDs are the requested revisions that
// reported it.
func (c *Client) ListChangeRequestsForCommits(ctx context.Context, repo changelog.RepositoryID, revisions []string) ([]changelog.ChangeRequest, error) {
	byID := make(map[changelog.ChangeRequestID]*changelog.ChangeRequest)
	var order []changelog.ChangeRequestID

	for _, rev := range revisions {
		path := repoPath(repo) + "/commits/" + url.PathEscape(rev) + "/pull-requests"
		prs, err := transport.Pages(ctx, pager[pullRequest](c.rest, path, nil, 0))
		if err != nil {
			return nil, changelog.WrapGateway(GatewayName, "list pull requests", err)
		}
		for _, pr := range prs {
			id := changelog.ChangeRequestID(pr.ID)
			cr, ok := byID[id]
			if !ok {
				domain := pr.toDomain()
				cr = &domain
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

// LinkedIssueKeys returns the Jira keys linked to a pull request through the
// Bitbucket Jira integration.
func (c *Client) LinkedIssueKeys(ctx context.Context, repo changelog.RepositoryID, id changelog.ChangeRequestID) ([]string, error) {
	path := fmt.Sprintf("rest/jira/latest/projects/%s/repos/%s/pull-requests/%d/issues",
		url.PathEscape(repo.Project), url.PathEscape(repo.Name), int64(id))

	var links []issueLink
	if err := c.rest.GetJSON(ctx, path, nil, &links); err != nil {
		if transport.IsNotFound(err) {
			return nil, nil
		}
		return nil, changelog.WrapGateway(GatewayName, "list pull request issues", err)
	}

	keys := make([]string, 0, len(links))
	for _, l := range links {
		keys = append(keys, l.Key)
	}
	return changelog.MergeIssueKeys(keys), nil
}

func (c *Client) compare(ctx context.Context, repo changelog.RepositoryID, from, to string, limit int) ([]commit, error) {
	query := url.Values{"from": {from}, "to": {to}}
	path := repoPath(repo) + "/compare/commits"
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
		var p page[commit]
		if err := c.rest.GetJSON(ctx, path, query, &p); err != nil {
			return nil, err
		}
		return p.Values, nil
	}
	return transport.Pages(ctx, pager[commit](c.rest, path, query, pageLimit))
}

// pager adapts Bitbucket's start/nextPageStart/isLastPage paging.
func pager[T any](rest *transport.Client, path string, query url.Values, limit int) transport.PageFunc[T, int] {
	return func(ctx context.Context, start int) ([]T, int, bool, error) {
		q := url.Values{}
		for k, v := range query {
			q[k] = v
		}
		q.Set("start", strconv.Itoa(start))
		if limit > 0 {
			q.Set("limit", strconv.Itoa(limit))
		}

		var p page[T]
		if err := rest.GetJSON(ctx, path, q, &p); err != nil {
			return nil, 0, false, err
		}
		last := p.IsLastPage || p.NextPageStart == nil
		next := start
		if !last {
			next = *p.NextPageStart
		}
		return p.Values, next, last, nil
	}
}

type page[T any] struct {
	Values        []T  `json:"values"`
	Size          int  `json:"size"`
	IsLastPage    bool `json:"isLastPage"`
	Start         int  `json:"start"`
	Limit         int  `json:"limit"`
	NextPageStart *int `json:"nextPageStart"`
}

type person struct {
	Name         string `json:"name"`
	EmailAddress string `json:"emailAddress"`
	DisplayName  string `json:"displayName"`
}

func (p person) display() string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return p.Name
}

type commit struct {
	ID              string   `json:"id"`
	DisplayID       string   `json:"displayId"`
	Author          person   `json:"author"`
	AuthorTimestamp int64    `json:"authorTimestamp"`
	Message         string   `json:"message"`
	Parents         []parent `json:"parents"`
}

type parent struct {
	ID string `json:"id"`
}

func (rc commit) toDomain() changelog.Commit {
	parents := make([]string, 0, len(rc.Parents))
	for _, p := range rc.Parents {
		parents = append(parents, p.ID)
	}
	var ts time.Time
	if rc.AuthorTimestamp > 0 {
		ts = time.UnixMilli(rc.AuthorTimestamp).UTC()
	}
	return changelog.Commit{
		RevisionID:        rc.ID,
		Author:            rc.Author.display(),
		AuthorEmail:       rc.Author.EmailAddress,
		Message:           rc.Message,
		Timestamp:         ts,
		ParentRevisionIDs: parents,
	}
}

type pullRequest struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	State       string `json:"state"`
	Open        bool   `json:"open"`
	Author      struct {
		User person `json:"user"`
	} `json:"author"`
	Links struct {
		Self []struct {
			Href string `json:"href"`
		} `json:"self"`
	} `json:"links"`
}

func (pr pullRequest) toDomain() changelog.ChangeRequest {
	state := pr.State
	if state == "" && pr.Open {
		state = "OPEN"
	}
	var link string
	if len(pr.Links.Self) > 0 {
		link = pr.Links.Self[0].Href
	}
	return changelog.ChangeRequest{
		ID:          changelog.ChangeRequestID(pr.ID),
		Title:       pr.Title,
		State:       state,
		Description: pr.Description,
		Author:      pr.Author.User.display(),
		URL:         link,
	}
}

type issueLink struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// Ping reads the server's application properties and returns its version.
func (c *Client) Ping(ctx context.Context) (string, error) {
	var props struct {
		Version     string `json:"version"`
		DisplayName string `json:"displayName"`
	}
	if err := c.rest.GetJSON(ctx, "rest/api/latest/application-properties", nil, &props); err != nil {
		return "", changelog.WrapGateway(GatewayName, "ping", err)
	}
	return strings.TrimSpace(props.DisplayName + " " + props.Version), nil
}
