// Package jira implements the tracker gateway for Jira (REST API "latest").
package jira

import (
	"context"
	"fmt"
	"net/url"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/deploylog/deploylog/internal/gateway"
	"github.com/deploylog/deploylog/internal/logger"
	"github.com/deploylog/deploylog/internal/transport"
)

// GatewayName identifies this gateway in errors and logs.
const GatewayName = "jira"

// LinkSource reports issue keys a source-control service has linked to a
// change-request, in addition to the keys found in its text.
type LinkSource interface {
	LinkedIssueKeys(ctx context.Context, repo changelog.RepositoryID, id changelog.ChangeRequestID) ([]string, error)
}

// Tracker fetches issues by key.
type Tracker struct {
	rest  *transport.Client
	links LinkSource
	log   *logger.Logger
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLinkSource adds a source of explicitly linked issue keys.
func WithLinkSource(ls LinkSource) Option {
	return func(t *Tracker) {
		t.links = ls
	}
}

// WithLogger sets the logger used for skipped keys.
func WithLogger(l *logger.Logger) Option {
	return func(t *Tracker) {
		t.log = l
	}
}

// New wraps a REST client whose base URL is the Jira root.
func New(rest *transport.Client, opts ...Option) *Tracker {
	t := &Tracker{rest: rest, log: logger.Nop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ListIssuesForChangeRequest looks up every candidate key of cr. Keys Jira
// does not know are skipped: text extraction can match things like "UTF-8".
func (t *Tracker) ListIssuesForChangeRequest(ctx context.Context, repo changelog.RepositoryID, cr changelog.ChangeRequest) ([]changelog.Issue, error) {
	keys := gateway.IssueKeysFor(cr)
	if t.links != nil {
		linked, err := t.links.LinkedIssueKeys(ctx, repo, cr.ID)
		if err != nil {
			return nil, err
		}
		keys = changelog.MergeIssueKeys(keys, linked)
	}

	issues := make([]changelog.Issue, 0, len(keys))
	for _, key := range keys {
		issue, found, err := t.GetIssue(ctx, key)
		if err != nil {
			return nil, err
		}
		if !found {
			t.log.Debug("skipping unknown issue key", "key", key, "change_request", int64(cr.ID))
			continue
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

// GetIssue fetches one issue. A 404 is reported as found == false.
func (t *Tracker) GetIssue(ctx context.Context, key string) (changelog.Issue, bool, error) {
	var raw issue
	query := url.Values{"fields": {"summary,status"}}
	err := t.rest.GetJSON(ctx, "rest/api/latest/issue/"+url.PathEscape(key), query, &raw)
	if transport.IsNotFound(err) {
		return changelog.Issue{}, false, nil
	}
	if err != nil {
		return changelog.Issue{}, false, changelog.WrapGateway(GatewayName, "get issue", err)
	}

	if raw.Key == "" {
		raw.Key = key
	}
	return changelog.Issue{
		Key:     raw.Key,
		Summary: raw.Fields.Summary,
		Status:  raw.Fields.Status.Name,
		URL:     t.rest.URL("browse/"+url.PathEscape(raw.Key), nil),
	}, true, nil
}

type issue struct {
	Key    string `json:"key"`
	Fields struct {
		Summary string `json:"summary"`
		Status  struct {
			Name string `json:"name"`
		} `json:"status"`
	} `json:"fields"`
}

// Ping reads serverInfo, which Jira answers without authentication.
func (t *Tracker) Ping(ctx context.Context) (string, error) {
	var info struct {
		Version     string `json:"version"`
		ServerTitle string `json:"serverTitle"`
	}
	if err := t.rest.GetJSON(ctx, "rest/api/latest/serverInfo", nil, &info); err != nil {
		return "", changelog.WrapGateway(GatewayName, "ping", err)
	}
	return fmt.Sprintf("%s %s", info.ServerTitle, info.Version), nil
}
