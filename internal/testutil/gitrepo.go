package testutil

import (
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitRepo builds commit graphs in a temporary repository. Commits are empty
// and get strictly increasing timestamps, one minute apart, so committer-time
// ordering is deterministic.
type GitRepo struct {
	t    *testing.T
	Dir  string
	repo *git.Repository
	wt   *git.Worktree
	now  time.Time
}

// NewGitRepo initializes an empty repository in a test temp directory.
func NewGitRepo(t *testing.T) *GitRepo {
	t.Helper()

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		t.Fatalf("git init: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("git worktree: %v", err)
	}
	return &GitRepo{
		t:    t,
		Dir:  dir,
		repo: repo,
		wt:   wt,
		now:  time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

// Commit records an empty commit and returns its hash. Without parents the
// commit goes on top of HEAD (or becomes the root commit).
func (g *GitRepo) Commit(message string, parents ...string) string {
	g.t.Helper()

	g.now = g.now.Add(time.Minute)
	sig := &object.Signature{Name: "Jane Doe", Email: "jane@example.com", When: g.now}
	opts := &git.CommitOptions{
		Author:            sig,
		Committer:         sig,
		AllowEmptyCommits: true,
	}
	for _, p := range parents {
		opts.Parents = append(opts.Parents, plumbing.NewHash(p))
	}

	h, err := g.wt.Commit(message, opts)
	if err != nil {
		g.t.Fatalf("git commit %q: %v", message, err)
	}
	return h.String()
}

// Tag creates a lightweight tag.
func (g *GitRepo) Tag(name, hash string) {
	g.t.Helper()

	if _, err := g.repo.CreateTag(name, plumbing.NewHash(hash), nil); err != nil {
		g.t.Fatalf("git tag %s: %v", name, err)
	}
}

// SetOrigin configures the origin remote URL.
func (g *GitRepo) SetOrigin(url string) {
	g.t.Helper()

	_, err := g.repo.CreateRemote(&config.RemoteConfig{Name: "origin", URLs: []string{url}})
	if err != nil {
		g.t.Fatalf("git remote add origin: %v", err)
	}
}
