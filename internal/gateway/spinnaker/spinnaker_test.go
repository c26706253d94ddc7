package spinnaker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/deploylog/deploylog/internal/gateway"
	"github.com/deploylog/deploylog/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func v(status, build, commit, repoName string) map[string]any {
	out := map[string]any{"version": "app-" + build, "buildNumber": build, "status": status}
	if commit != "" {
		out["gitMetadata"] = map[string]string{"commit": commit, "project": "PROJ", "repoName": repoName}
	}
	return out
}

func newClient(t *testing.T, data string) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/graphql", r.URL.Path)
		var req struct {
			Query     string         `json:"query"`
			Variables map[string]any `json:"variables"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "checkout", req.Variables["appName"])
		_, _ = w.Write([]byte(data))
	}))
	t.Cleanup(srv.Close)

	rest, err := transport.New(transport.Options{BaseURL: srv.URL, Timeout: time.Second})
	require.NoError(t, err)
	return New(transport.NewGraphQL(rest, "")), &calls
}

func envResponse(t *testing.T, versions ...map[string]any) string {
	t.Helper()
	body := map[string]any{
		"data": map[string]any{
			"application": map[string]any{
				"name": "checkout",
				"environments": []any{map[string]any{
					"name": "prod",
					"state": map[string]any{
						"artifacts": []any{map[string]any{"name": "checkout", "reference": "checkout", "versions": versions}},
					},
				}},
			},
		},
	}
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	return string(raw)
}

func TestRevisions(t *testing.T) {
	t.Parallel()

	data := envResponse(t,
		v(StatusPrevious, "9", "p9", "app"),
		v(StatusPrevious, "10", "p10", "app"),
		v(StatusCurrent, "11", "c11", "app"),
		v(StatusPending, "12", "n12", "app"),
		v(StatusPending, "13", "n13", "app"),
	)
	client, calls := newClient(t, data)
	ctx := context.Background()

	cur, err := client.CurrentRevision(ctx, "checkout", "prod")
	require.NoError(t, err)
	assert.Equal(t, "c11", cur.Revision)
	assert.Equal(t, 11, cur.BuildNumber)
	assert.Equal(t, changelog.RepositoryID{Project: "PROJ", Name: "app"}, cur.Repository)

	prev, err := client.PreviousRevision(ctx, "checkout", "prod")
	require.NoError(t, err)
	assert.Equal(t, "p10", prev.Revision, "numeric build order, not lexical")

	pending, err := client.PendingRevision(ctx, "checkout", "prod")
	require.NoError(t, err)
	assert.Equal(t, "n13", pending.Revision)
	assert.Equal(t, "app-13", pending.Version)

	assert.Equal(t, int32(1), calls.Load(), "environment state is fetched once")
}

func TestRevisions_Errors(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		data    string
		wantErr error
		wantMsg string
	}{
		"application not found": {
			data:    `{"data":{"application":null}}`,
			wantErr: gateway.ErrNoHistory,
			wantMsg: "was not found",
		},
		"environment missing": {
			data:    `{"data":{"application":{"name":"checkout","environments":[]}}}`,
			wantErr: gateway.ErrNoHistory,
			wantMsg: "has no environment prod",
		},
		"no current version": {
			data:    envResponse(t, v(StatusPending, "1", "a", "app")),
			wantErr: gateway.ErrNoHistory,
			wantMsg: "no CURRENT version",
		},
		"missing git metadata": {
			data:    envResponse(t, v(StatusCurrent, "1", "", "")),
			wantErr: gateway.ErrNoHistory,
			wantMsg: "has no git metadata",
		},
		"two repositories": {
			data:    envResponse(t, v(StatusCurrent, "2", "a", "app"), v(StatusPrevious, "1", "b", "other")),
			wantErr: gateway.ErrAmbiguous,
		},
		"graphql error": {
			data:    `{"errors":[{"message":"unauthorized"}]}`,
			wantMsg: "unauthorized",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			client, _ := newClient(t, tt.data)
			_, err := client.CurrentRevision(context.Background(), "checkout", "prod")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.ErrorContains(t, err, tt.wantMsg)
			}
		})
	}
}

func TestAmbiguousCarriesCandidates(t *testing.T) {
	t.Parallel()

	client, _ := newClient(t, envResponse(t, v(StatusCurrent, "2", "a", "app"), v(StatusPrevious, "1", "b", "other")))
	rev, err := client.CurrentRevision(context.Background(), "checkout", "prod")
	assert.ErrorIs(t, err, gateway.ErrAmbiguous)
	assert.True(t, rev.Ambiguous())
	assert.Len(t, rev.Candidates, 2)
}

func TestPing(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		body    string
		wantErr bool
	}{
		"answers":       {body: `{"data":{"__typename":"Query"}}`},
		"graphql error": {body: `{"errors":[{"message":"unauthorized"}]}`, wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)
			rest, err := transport.New(transport.Options{BaseURL: srv.URL, Timeout: time.Second})
			require.NoError(t, err)

			_, err = New(transport.NewGraphQL(rest, "")).Ping(context.Background())
			if tt.wantErr {
				assert.ErrorContains(t, err, "unauthorized")
				return
			}
			assert.NoError(t, err)
		})
	}
}
