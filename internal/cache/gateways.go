package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/deploylog/deploylog/internal/gateway"
	"github.com/deploylog/deploylog/internal/logger"
)

// KeyPrefix starts every key written by the decorators.
const KeyPrefix = "deploylog:v1"

// base holds what both decorators share.
type base struct {
	store     Store
	namespace string
	ttl       time.Duration
	log       *logger.Logger
}

func (b base) key(op string, parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return strings.Join([]string{KeyPrefix, b.namespace, op, hex.EncodeToString(h.Sum(nil))[:32]}, ":")
}

// load decodes a cached value into out. Store and decode failures count as
// misses.
func (b base) load(ctx context.Context, key string, out any) bool {
	data, ok, err := b.store.Get(ctx, key)
	if err != nil {
		b.log.Warn("cache read failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, out); err != nil {
		b.log.Warn("cache entry unreadable", "key", key, "error", err)
		return false
	}
	b.log.Debug("cache hit", "key", key)
	return true
}

func (b base) save(ctx context.Context, key string, v any, ttl time.Duration) {
	data, err := json.Marshal(v)
	if err != nil {
		b.log.Warn("cache encode failed", "key", key, "error", err)
		return
	}
	if err := b.store.Set(ctx, key, data, ttl); err != nil {
		b.log.Warn("cache write failed", "key", key, "error", err)
	}
}

// Option configures a decorator.
type Option func(*base)

// WithTTL sets the expiry of tracker entries. Source-control entries never
// expire.
func WithTTL(ttl time.Duration) Option {
	return func(b *base) { b.ttl = ttl }
}

// WithLogger sets the logger cache failures are reported to.
func WithLogger(l *logger.Logger) Option {
	return func(b *base) { b.log = l }
}

func newBase(store Store, namespace string, opts []Option) base {
	b := base{store: store, namespace: namespace, ttl: time.Hour, log: logger.Nop()}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// SourceControl caches the immutable answers of a source-control gateway:
// positive Exists, IsAncestor and ListCommits, and only when every revision
// involved is a full object hash. Change-request lookups always pass through.
type SourceControl struct {
	base
	next gateway.SourceControl
}

// NewSourceControl wraps next. namespace separates instances (for example the
// gateway kind and base URL).
func NewSourceControl(next gateway.SourceControl, store Store, namespace string, opts ...Option) *SourceControl {
	return &SourceControl{base: newBase(store, namespace, opts), next: next}
}

// RecommendedBatchSize forwards the wrapped gateway's recommendation.
func (s *SourceControl) RecommendedBatchSize() int {
	if bs, ok := s.next.(gateway.BatchSizer); ok {
		return bs.RecommendedBatchSize()
	}
	return 0
}

func (s *SourceControl) ListCommits(ctx context.Context, repo changelog.RepositoryID, start, end string) ([]changelog.Commit, error) {
	if !IsObjectHash(start) || !IsObjectHash(end) {
		return s.next.ListCommits(ctx, repo, start, end)
	}
	key := s.key("commits", repo.String(), start, end)
	var commits []changelog.Commit
	if s.load(ctx, key, &commits) {
		return commits, nil
	}
	commits, err := s.next.ListCommits(ctx, repo, start, end)
	if err != nil {
		return nil, err
	}
	s.save(ctx, key, commits, 0)
	return commits, nil
}

func (s *SourceControl) Exists(ctx context.Context, repo changelog.RepositoryID, revision string) (bool, error) {
	if !IsObjectHash(revision) {
		return s.next.Exists(ctx, repo, revision)
	}
	key := s.key("exists", repo.String(), revision)
	var ok bool
	if s.load(ctx, key, &ok) && ok {
		return true, nil
	}
	ok, err := s.next.Exists(ctx, repo, revision)
	if err != nil {
		return false, err
	}
	if ok {
		s.save(ctx, key, true, 0)
	}
	return ok, nil
}

func (s *SourceControl) IsAncestor(ctx context.Context, repo changelog.RepositoryID, ancestor, descendant string) (bool, error) {
	if !IsObjectHash(ancestor) || !IsObjectHash(descendant) {
		return s.next.IsAncestor(ctx, repo, ancestor, descendant)
	}
	key := s.key("ancestor", repo.String(), ancestor, descendant)
	var ok bool
	if s.load(ctx, key, &ok) {
		return ok, nil
	}
	ok, err := s.next.IsAncestor(ctx, repo, ancestor, descendant)
	if err != nil {
		return false, err
	}
	s.save(ctx, key, ok, 0)
	return ok, nil
}

func (s *SourceControl) ListChangeRequestsForCommits(ctx context.Context, repo changelog.RepositoryID, revisions []string) ([]changelog.ChangeRequest, error) {
	return s.next.ListChangeRequestsForCommits(ctx, repo, revisions)
}

// Tracker caches issue lookups per change-request for the configured TTL.
type Tracker struct {
	base
	next gateway.Tracker
}

// NewTracker wraps next.
func NewTracker(next gateway.Tracker, store Store, namespace string, opts ...Option) *Tracker {
	return &Tracker{base: newBase(store, namespace, opts), next: next}
}

func (t *Tracker) ListIssuesForChangeRequest(ctx context.Context, repo changelog.RepositoryID, cr changelog.ChangeRequest) ([]changelog.Issue, error) {
	// The answer depends on the text issue keys are extracted from.
	key := t.key("issues", repo.String(), cr.ID.String(), cr.Title, cr.Description, strings.Join(cr.LinkedIssueKeys, ","))
	var issues []changelog.Issue
	if t.load(ctx, key, &issues) {
		return issues, nil
	}
	issues, err := t.next.ListIssuesForChangeRequest(ctx, repo, cr)
	if err != nil {
		return nil, err
	}
	t.save(ctx, key, issues, t.ttl)
	return issues, nil
}

// IsObjectHash reports whether rev is a full SHA-1 or SHA-256 object name.
func IsObjectHash(rev string) bool {
	if len(rev) != 40 && len(rev) != 64 {
		return false
	}
	for _, r := range rev {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}
