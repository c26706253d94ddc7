package git

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/deploylog/deploylog/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// history builds:
//
//	root - a - b ------ m (main)
//	        \          /
//	         f1 - f2 -
func history(t *testing.T) (*testutil.GitRepo, map[string]string) {
	t.Helper()

	g := testutil.NewGitRepo(t)
	h := map[string]string{}
	h["root"] = g.Commit("root")
	h["a"] = g.Commit("a")
	h["f1"] = g.Commit("f1", h["a"])
	h["f2"] = g.Commit("f2", h["f1"])
	h["b"] = g.Commit("b", h["a"])
	h["m"] = g.Commit("Merge pull request #7 from jdoe/feature", h["b"], h["f2"])
	g.Tag("v1", h["a"])
	return g, h
}

func TestLog(t *testing.T) {
	t.Parallel()

	g, h := history(t)
	repo, err := Open(g.Dir)
	require.NoError(t, err)

	tests := map[string]struct {
		start, end string
		want       []string
	}{
		"merged range": {start: "v1", end: h["m"], want: []string{h["m"], h["b"], h["f2"], h["f1"]}},
		"linear":       {start: h["root"], end: h["a"], want: []string{h["a"]}},
		"empty":        {start: h["m"], end: h["m"], want: nil},
		"full history": {start: "", end: h["a"], want: []string{h["a"], h["root"]}},
		"end behind":   {start: h["m"], end: h["a"], want: nil},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			commits, err := repo.Log(context.Background(), tt.start, tt.end)
			require.NoError(t, err)
			var got []string
			for _, c := range commits {
				got = append(got, c.Hash.String())
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLog_Cancelled(t *testing.T) {
	t.Parallel()

	g, h := history(t)
	repo, err := Open(g.Dir)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = repo.Log(ctx, h["root"], h["m"])
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResolveAndAncestry(t *testing.T) {
	t.Parallel()

	g, h := history(t)
	repo, err := Open(filepath.Join(g.Dir))
	require.NoError(t, err)

	got, err := repo.ResolveRevision("v1")
	require.NoError(t, err)
	assert.Equal(t, h["a"], got)

	_, err = repo.ResolveRevision("no-such-branch")
	assert.ErrorIs(t, err, ErrRevisionNotFound)
	_, err = repo.ResolveRevision("")
	assert.ErrorIs(t, err, ErrRevisionNotFound)

	tests := map[string]struct {
		ancestor, descendant string
		want                 bool
	}{
		"through merge": {ancestor: h["f1"], descendant: h["m"], want: true},
		"self":          {ancestor: h["b"], descendant: h["b"], want: true},
		"side branch":   {ancestor: h["b"], descendant: h["f2"], want: false},
		"reversed":      {ancestor: h["m"], descendant: h["root"], want: false},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			ok, err := repo.IsAncestor(tt.ancestor, tt.descendant)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
		})
	}
}

func TestOpen_NotARepository(t *testing.T) {
	t.Parallel()

	_, err := Open(t.TempDir())
	assert.Error(t, err)
}

func TestOpen_Subdirectory(t *testing.T) {
	t.Parallel()

	g, _ := history(t)
	sub := filepath.Join(g.Dir, "nested", "dir")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	repo, err := Open(sub)
	require.NoError(t, err)
	assert.Equal(t, g.Dir, repo.Root())
}

func TestOriginRepository(t *testing.T) {
	t.Parallel()

	g, _ := history(t)
	repo, err := Open(g.Dir)
	require.NoError(t, err)

	_, err = repo.OriginRepository()
	assert.Error(t, err)

	g.SetOrigin("ssh://git@bitbucket.example.com:7999/proj/app.git")
	repo, err = Open(g.Dir)
	require.NoError(t, err)
	id, err := repo.OriginRepository()
	require.NoError(t, err)
	assert.Equal(t, "proj/app", id.String())
}

func TestRepositoryFromURL(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		url     string
		want    string
		wantErr bool
	}{
		"bitbucket ssh":  {url: "ssh://git@bitbucket.example.com:7999/PROJ/app.git", want: "PROJ/app"},
		"bitbucket http": {url: "https://bitbucket.example.com/scm/PROJ/app.git", want: "PROJ/app"},
		"gitlab scp":     {url: "git@gitlab.com:group/sub/app.git", want: "group/sub/app"},
		"gitlab https":   {url: "https://gitlab.com/group/app", want: "group/app"},
		"no path":        {url: "https://gitlab.com", wantErr: true},
		"single segment": {url: "git@host:app.git", wantErr: true},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			id, err := RepositoryFromURL(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id.String())
		})
	}
}

func TestIsSSHURL(t *testing.T) {
	t.Parallel()

	assert.True(t, isSSHURL("git@github.com:a/b.git"))
	assert.True(t, isSSHURL("ssh://host/a/b"))
	assert.True(t, isSSHURL("git+ssh://host/a/b"))
	assert.False(t, isSSHURL("https://host/a/b"))
}

func TestFetch_SkipsSSHWithoutAgent(t *testing.T) {
	t.Setenv("SSH_AUTH_SOCK", "")

	g, _ := history(t)
	g.SetOrigin("git@bitbucket.example.com:PROJ/app.git")
	repo, err := Open(g.Dir)
	require.NoError(t, err)

	assert.NoError(t, repo.Fetch(context.Background(), "origin"))
	assert.Error(t, repo.Fetch(context.Background(), "missing"))
}
