// Package transport is the JSON-over-HTTP layer shared by the REST and
// GraphQL gateways. Requests are retried with backoff on connection errors,
// 429 and 5xx responses through go-retryablehttp.
package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/deploylog/deploylog/internal/logger"
	"github.com/hashicorp/go-retryablehttp"
)

const (
	// DefaultTimeout bounds a single attempt when Options.Timeout is zero.
	DefaultTimeout = 5 * time.Second
	// DefaultRetryMax is the retry count used when Options.RetryMax is negative.
	DefaultRetryMax = 2

	maxErrorBody = 512
)

// Auth selects the credentials attached to every request. Username turns on
// basic auth (with Token as the password); otherwise a non-empty Token is
// sent as a bearer token.
type Auth struct {
	Username string
	Token    string
}

// Options configures a Client.
type Options struct {
	BaseURL      string
	Auth         Auth
	Timeout      time.Duration
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	UserAgent    string
	Logger       *logger.Logger
}

// Client issues JSON requests relative to a base URL.
type Client struct {
	base      *url.URL
	auth      Auth
	userAgent string
	http      *retryablehttp.Client
}

// New validates the base URL and builds a client.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL %q: %w", opts.BaseURL, err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q must use http or https", opts.BaseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	rc := retryablehttp.NewClient()
	rc.HTTPClient.Timeout = opts.Timeout
	if rc.HTTPClient.Timeout <= 0 {
		rc.HTTPClient.Timeout = DefaultTimeout
	}
	rc.RetryMax = opts.RetryMax
	if rc.RetryMax < 0 {
		rc.RetryMax = DefaultRetryMax
	}
	if opts.RetryWaitMin > 0 {
		rc.RetryWaitMin = opts.RetryWaitMin
	}
	if opts.RetryWaitMax > 0 {
		rc.RetryWaitMax = opts.RetryWaitMax
	}
	if rc.RetryWaitMax < rc.RetryWaitMin {
		rc.RetryWaitMax = rc.RetryWaitMin
	}
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	if opts.Logger != nil {
		rc.Logger = opts.Logger
	} else {
		rc.Logger = nil
	}

	ua := opts.UserAgent
	if ua == "" {
		ua = "deploylog"
	}

	return &Client{base: base, auth: opts.Auth, userAgent: ua, http: rc}, nil
}

// BaseURL returns the normalized base URL, always ending in a slash.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// URL resolves path against the base URL and attaches query.
func (c *Client) URL(path string, query url.Values) string {
	ref := &url.URL{Path: strings.TrimPrefix(path, "/")}
	u := c.base.ResolveReference(ref)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// HTTPClient exposes the retrying client as a plain *http.Client for
// third-party SDKs.
func (c *Client) HTTPClient() *http.Client {
	return c.http.StandardClient()
}

// GetJSON decodes the response of GET path?query into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, http.MethodGet, path, query, nil, out)
}

// PostJSON encodes body, posts it to path and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out any) error {
	return c.Do(ctx, http.MethodPost, path, nil, body, out)
}

// Do performs one JSON request. A nil out discards the response body. Any
// non-2xx status is returned as a *StatusError.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.URL(path, query)

	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
	}

	var rawBody interface{}
	if payload != nil {
		rawBody = payload
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, rawBody)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req.Header)

	resp, err := c.http.Do(req)
	if resp == nil {
		if err == nil {
			err = fmt.Errorf("no response")
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%s %s: %w", method, redact(target), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{
			Method: method,
			URL:    redact(target),
			Code:   resp.StatusCode,
			Body:   string(bytes.TrimSpace(snippet)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, redact(target), err)
	}
	return nil
}

func (c *Client) authorize(h http.Header) {
	switch {
	case c.auth.Username != "":
		creds := base64.StdEncoding.EncodeToString([]byte(c.auth.Username + ":" + c.auth.Token))
		h.Set("Authorization", "Basic "+creds)
	case c.auth.Token != "":
		h.Set("Authorization", "Bearer "+c.auth.Token)
	}
}

func redact(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.User != nil {
		u.User = url.User(u.User.Username())
	}
	return u.String()
}
