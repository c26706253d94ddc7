package cache

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/deploylog/deploylog/internal/gateway"
	"github.com/deploylog/deploylog/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ gateway.SourceControl = (*SourceControl)(nil)
	_ gateway.BatchSizer    = (*SourceControl)(nil)
	_ gateway.Tracker       = (*Tracker)(nil)

	repo  = changelog.RepositoryID{Project: "PROJ", Name: "app"}
	hashA = strings.Repeat("a", 40)
	hashB = strings.Repeat("b", 40)
)

type brokenStore struct{}

func (brokenStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, errors.New("store down")
}

func (brokenStore) Set(context.Context, string, []byte, time.Duration) error {
	return errors.New("store down")
}

func TestSourceControl_CachesImmutableAnswers(t *testing.T) {
	t.Parallel()

	fake := &testutil.FakeSourceControl{
		Commits:   []changelog.Commit{{RevisionID: hashB, Message: "b"}},
		Missing:   map[string]bool{strings.Repeat("c", 40): true},
		BatchSize: 7,
	}
	sc := NewSourceControl(fake, NewMemoryStore(), "bitbucket")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		commits, err := sc.ListCommits(ctx, repo, hashA, hashB)
		require.NoError(t, err)
		assert.Equal(t, fake.Commits, commits)

		ok, err := sc.Exists(ctx, repo, hashA)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = sc.IsAncestor(ctx, repo, hashA, hashB)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = sc.Exists(ctx, repo, strings.Repeat("c", 40))
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = sc.ListCommits(ctx, repo, "v1", "main")
		require.NoError(t, err)

		_, err = sc.ListChangeRequestsForCommits(ctx, repo, []string{hashB})
		require.NoError(t, err)
	}

	assert.Equal(t, 1+3, fake.Count("ListCommits"), "hash range once, branch range every time")
	assert.Equal(t, 1+3, fake.Count("Exists"), "positive once, negative every time")
	assert.Equal(t, 1, fake.Count("IsAncestor"))
	assert.Equal(t, 3, fake.Count("ListChangeRequestsForCommits"))
	assert.Equal(t, 7, sc.RecommendedBatchSize())
}

func TestSourceControl_StoreFailureFallsThrough(t *testing.T) {
	t.Parallel()

	fake := &testutil.FakeSourceControl{Commits: []changelog.Commit{{RevisionID: hashB}}}
	sc := NewSourceControl(fake, brokenStore{}, "bitbucket")

	for i := 0; i < 2; i++ {
		commits, err := sc.ListCommits(context.Background(), repo, hashA, hashB)
		require.NoError(t, err)
		assert.Len(t, commits, 1)
	}
	assert.Equal(t, 2, fake.Count("ListCommits"))
}

func TestSourceControl_ErrorsAreNotCached(t *testing.T) {
	t.Parallel()

	boom := errors.New("down")
	fake := &testutil.FakeSourceControl{ListErr: boom}
	store := NewMemoryStore()
	sc := NewSourceControl(fake, store, "bitbucket")

	_, err := sc.ListCommits(context.Background(), repo, hashA, hashB)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Len())
}

func TestTracker_TTLAndKeying(t *testing.T) {
	t.Parallel()

	fake := &testutil.FakeTracker{Issues: map[changelog.ChangeRequestID][]changelog.Issue{
		1: {{Key: "PROJ-1", Summary: "Login"}},
	}}
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	tr := NewTracker(fake, store, "jira", WithTTL(time.Hour))
	ctx := context.Background()
	cr := changelog.ChangeRequest{ID: 1, Title: "PROJ-1 login"}

	for i := 0; i < 2; i++ {
		issues, err := tr.ListIssuesForChangeRequest(ctx, repo, cr)
		require.NoError(t, err)
		assert.Equal(t, "Login", issues[0].Summary)
	}
	assert.Equal(t, 1, fake.Count("ListIssuesForChangeRequest"))

	edited := cr
	edited.Title = "PROJ-1 login, PROJ-2 logout"
	_, err := tr.ListIssuesForChangeRequest(ctx, repo, edited)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.Count("ListIssuesForChangeRequest"))

	now = now.Add(2 * time.Hour)
	_, err = tr.ListIssuesForChangeRequest(ctx, repo, cr)
	require.NoError(t, err)
	assert.Equal(t, 3, fake.Count("ListIssuesForChangeRequest"))
}

func TestKeysAreNamespaced(t *testing.T) {
	t.Parallel()

	a := newBase(NewMemoryStore(), "bitbucket", nil)
	b := newBase(NewMemoryStore(), "gitlab", nil)
	assert.NotEqual(t, a.key("exists", "x"), b.key("exists", "x"))
	assert.NotEqual(t, a.key("exists", "ab", "c"), a.key("exists", "a", "bc"))
	assert.True(t, strings.HasPrefix(a.key("exists", "x"), KeyPrefix+":bitbucket:exists:"))
}

func TestIsObjectHash(t *testing.T) {
	t.Parallel()

	assert.True(t, IsObjectHash(hashA))
	assert.True(t, IsObjectHash(strings.Repeat("0", 64)))
	assert.False(t, IsObjectHash("main"))
	assert.False(t, IsObjectHash(strings.Repeat("A", 40)))
	assert.False(t, IsObjectHash(hashA[:39]))
}
