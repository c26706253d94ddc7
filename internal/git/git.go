// Package git reads commit history from local repositories with go-git. It
// backs the local source-control gateway and infers the default repository
// from the origin remote.
package git

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/plumbing/transport/ssh"
)

// ErrRevisionNotFound is returned when a revision does not resolve.
var ErrRevisionNotFound = errors.New("revision not found")

// DefaultFetchTimeout bounds Fetch when the caller's context has no deadline.
const DefaultFetchTimeout = 60 * time.Second

// debugLogger is a function that logs debug messages when debug mode is enabled.
// By default, it's a no-op. Set it via SetDebugLogger to enable debug output.
var debugLogger func(format string, args ...any)

// SetDebugLogger configures the debug logger for git operations.
// Pass nil to disable debug logging.
func SetDebugLogger(logger func(format string, args ...any)) {
	debugLogger = logger
}

func logDebug(format string, args ...any) {
	if debugLogger != nil {
		debugLogger(format, args...)
	}
}

// Repository is an opened local repository.
type Repository struct {
	repo *git.Repository
	root string
}

// Open opens the repository containing path, walking up to find .git.
// An empty path means the current working directory.
func Open(path string) (*Repository, error) {
	if path == "" {
		var err error
		path, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting current directory: %w", err)
		}
	}

	logDebug("[git] opening repository at %s", path)

	repo, err := git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", path, err)
	}

	root := path
	if wt, err := repo.Worktree(); err == nil {
		root = wt.Filesystem.Root()
	}
	return &Repository{repo: repo, root: root}, nil
}

// Root returns the worktree root (or the opened path for bare repositories).
func (r *Repository) Root() string {
	return r.root
}

// ResolveRevision resolves a branch, tag or hash to a full commit hash.
func (r *Repository) ResolveRevision(rev string) (string, error) {
	if strings.TrimSpace(rev) == "" {
		return "", fmt.Errorf("%w: empty revision", ErrRevisionNotFound)
	}
	h, err := r.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) || errors.Is(err, plumbing.ErrObjectNotFound) {
			return "", fmt.Errorf("%w: %s", ErrRevisionNotFound, rev)
		}
		return "", fmt.Errorf("resolving %s: %w", rev, err)
	}
	if _, err := r.repo.CommitObject(*h); err != nil {
		return "", fmt.Errorf("%w: %s is not a commit", ErrRevisionNotFound, rev)
	}
	return h.String(), nil
}

// Commit returns one commit by revision.
func (r *Repository) Commit(rev string) (*object.Commit, error) {
	hash, err := r.ResolveRevision(rev)
	if err != nil {
		return nil, err
	}
	return r.repo.CommitObject(plumbing.NewHash(hash))
}

// Log returns the commits reachable from end but not from start, newest
// (by committer time) first. An empty start lists the full history of end.
func (r *Repository) Log(ctx context.Context, start, end string) ([]*object.Commit, error) {
	tip, err := r.Commit(end)
	if err != nil {
		return nil, err
	}

	hidden := make(map[plumbing.Hash]struct{})
	if start != "" {
		base, err := r.Commit(start)
		if err != nil {
			return nil, err
		}
		err = object.NewCommitPreorderIter(base, nil, nil).ForEach(func(c *object.Commit) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			hidden[c.Hash] = struct{}{}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walking history of %s: %w", start, err)
		}
	}

	var out []*object.Commit
	seen := make(map[plumbing.Hash]struct{})
	queue := []*object.Commit{tip}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		c := queue[0]
		queue = queue[1:]
		if _, ok := seen[c.Hash]; ok {
			continue
		}
		seen[c.Hash] = struct{}{}
		if _, ok := hidden[c.Hash]; ok {
			continue
		}
		out = append(out, c)

		err := c.Parents().ForEach(func(p *object.Commit) error {
			queue = append(queue, p)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("reading parents of %s: %w", c.Hash, err)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Committer.When.After(out[j].Committer.When)
	})
	logDebug("[git] Log %s..%s: %d commits", start, end, len(out))
	return out, nil
}

// IsAncestor reports whether ancestor is reachable from descendant. A commit
// is its own ancestor.
func (r *Repository) IsAncestor(ancestor, descendant string) (bool, error) {
	a, err := r.Commit(ancestor)
	if err != nil {
		return false, err
	}
	d, err := r.Commit(descendant)
	if err != nil {
		return false, err
	}
	return a.IsAncestor(d)
}

// OriginRepository derives the repository ID from the "origin" remote URL.
func (r *Repository) OriginRepository() (changelog.RepositoryID, error) {
	remote, err := r.repo.Remote("origin")
	if err != nil {
		return changelog.RepositoryID{}, fmt.Errorf("reading origin remote: %w", err)
	}
	urls := remote.Config().URLs
	if len(urls) == 0 {
		return changelog.RepositoryID{}, errors.New("origin remote has no URL")
	}
	return RepositoryFromURL(urls[0])
}

// RepositoryFromURL parses a clone URL into a repository ID. It understands
// SCP-style SSH ("git@host:group/app.git"), ssh:// and http(s) URLs, and the
// "/scm/" prefix Bitbucket Server uses for HTTP clones.
//
//   - "ssh://git@host:7999/proj/app.git" → proj/app
//   - "https://host/scm/proj/app.git" → proj/app
//   - "git@gitlab.com:group/sub/app.git" → group/sub/app
func RepositoryFromURL(raw string) (changelog.RepositoryID, error) {
	s := strings.TrimSpace(raw)
	switch {
	case strings.Contains(s, "://"):
		_, rest, _ := strings.Cut(s, "://")
		_, path, ok := strings.Cut(rest, "/")
		if !ok {
			return changelog.RepositoryID{}, fmt.Errorf("remote URL %q has no path", raw)
		}
		s = path
	case strings.HasPrefix(s, "git@") || strings.Contains(s, ":"):
		_, path, _ := strings.Cut(s, ":")
		s = path
	}
	s = strings.TrimSuffix(strings.Trim(s, "/"), ".git")
	s = strings.TrimPrefix(s, "scm/")
	return changelog.ParseRepositoryID(s)
}

// Fetch updates the remote-tracking branches of remoteName. An up-to-date
// remote is not an error, and SSH remotes are skipped when no SSH agent is
// available.
func (r *Repository) Fetch(ctx context.Context, remoteName string) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultFetchTimeout)
		defer cancel()
	}

	remote, err := r.repo.Remote(remoteName)
	if err != nil {
		return fmt.Errorf("reading remote %s: %w", remoteName, err)
	}
	remoteConfig := remote.Config()
	if len(remoteConfig.URLs) == 0 {
		return nil
	}
	url := remoteConfig.URLs[0]

	if isSSHURL(url) && !isSSHAgentAvailable() {
		logDebug("[git] skipping fetch from remote '%s': SSH URL without SSH agent available", remoteName)
		return nil
	}

	logDebug("[git] fetching from remote '%s' (%s)", remoteName, url)
	err = r.repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: remoteName,
		Auth:       getAuthForURL(url),
		Tags:       git.AllTags,
		RefSpecs:   []config.RefSpec{config.RefSpec("+refs/heads/*:refs/remotes/" + remoteName + "/*")},
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetching %s: %w", remoteName, err)
	}
	return nil
}

// getAuthForURL returns the appropriate authentication method for a remote URL.
// SSH URLs use SSH agent auth, HTTPS URLs use environment credentials.
func getAuthForURL(url string) transport.AuthMethod {
	if isSSHURL(url) {
		auth, err := ssh.NewSSHAgentAuth("git")
		if err != nil {
			logDebug("[git] SSH agent auth failed: %v", err)
			return nil
		}
		return auth
	}

	username := os.Getenv("GIT_USERNAME")
	password := os.Getenv("GIT_PASSWORD")
	if username != "" {
		return &http.BasicAuth{Username: username, Password: password}
	}
	return nil
}

// isSSHURL detects git@ (SCP-style), ssh:// and git+ssh:// remotes.
func isSSHURL(url string) bool {
	return strings.HasPrefix(url, "git@") ||
		strings.HasPrefix(url, "ssh://") ||
		strings.HasPrefix(url, "git+ssh://")
}

func isSSHAgentAvailable() bool {
	return strings.TrimSpace(os.Getenv("SSH_AUTH_SOCK")) != ""
}
