// Package aggregate builds a Changelog from a resolved range: it lists the
// range's commits, fetches their change-requests and issues with bounded
// concurrency, and merges the answers deterministically.
package aggregate

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/deploylog/deploylog/internal/gateway"
	"github.com/deploylog/deploylog/internal/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBatchSize is used when neither the caller nor the source-control
	// gateway picks a batch size.
	DefaultBatchSize = 25
	// DefaultMaxInFlight bounds concurrent gateway calls per stage.
	DefaultMaxInFlight = 4
)

// ProgressFunc is told how many batches of a stage have finished. Calls are
// serialized.
type ProgressFunc func(stage changelog.Stage, done, total int)

// Engine aggregates changelogs. One Engine can serve concurrent calls.
type Engine struct {
	source      gateway.SourceControl
	tracker     gateway.Tracker
	batchSize   int
	maxInFlight int
	log         *logger.Logger
	tracer      trace.Tracer
	progress    ProgressFunc
	progressMu  sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithBatchSize sets how many revisions go into one change-request lookup.
// Values below 1 keep the gateway's recommendation.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.batchSize = n
		}
	}
}

// WithMaxInFlight sets the maximum number of concurrent gateway calls.
func WithMaxInFlight(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.maxInFlight = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithTracer sets the tracer stage and batch spans are recorded with.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.progress = fn }
}

// New creates an Engine. A nil tracker falls back to gateway.KeyOnlyTracker.
func New(source gateway.SourceControl, tracker gateway.Tracker, opts ...Option) *Engine {
	if tracker == nil {
		tracker = gateway.KeyOnlyTracker{}
	}
	e := &Engine{
		source:      source,
		tracker:     tracker,
		maxInFlight: DefaultMaxInFlight,
		log:         logger.Nop(),
		tracer:      noop.NewTracerProvider().Tracer("deploylog/aggregate"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BatchSize returns the effective change-request batch size.
func (e *Engine) BatchSize() int {
	if e.batchSize > 0 {
		return e.batchSize
	}
	if bs, ok := e.source.(gateway.BatchSizer); ok && bs.RecommendedBatchSize() > 0 {
		return bs.RecommendedBatchSize()
	}
	return DefaultBatchSize
}

// Aggregate builds the changelog for rng.
//
// A failed ancestry check or commit listing is fatal. Failed change-request or
// issue batches are collected while the rest of the work completes; the
// assembled changelog is then returned together with a
// *changelog.PartialFetchError carrying it. Cancellation returns the context
// error and no changelog.
func (e *Engine) Aggregate(ctx context.Context, rng changelog.ResolvedRange) (_ *changelog.Changelog, err error) {
	ctx, span := e.tracer.Start(ctx, "aggregate", trace.WithAttributes(
		attribute.String("range.repository", rng.Repository.String()),
		attribute.String("range.start", rng.StartRevision),
		attribute.String("range.end", rng.EndRevision),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	cl := &changelog.Changelog{
		Range:          rng,
		Commits:        []changelog.Commit{},
		ChangeRequests: map[changelog.ChangeRequestID]changelog.ChangeRequest{},
		Issues:         map[string]changelog.Issue{},
	}
	if rng.IsEmpty() {
		return cl, nil
	}

	ok, err := e.source.IsAncestor(ctx, rng.Repository, rng.StartRevision, rng.EndRevision)
	if err != nil {
		return nil, fatal(ctx, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", changelog.ErrDisjointRange, rng)
	}

	commits, err := e.source.ListCommits(ctx, rng.Repository, rng.StartRevision, rng.EndRevision)
	if err != nil {
		return nil, fatal(ctx, err)
	}
	cl.Commits = dedupeCommits(commits)
	span.SetAttributes(attribute.Int("commits", len(cl.Commits)))
	e.log.Debug("listed commits", "range", rng.String(), "commits", len(cl.Commits))
	if len(cl.Commits) == 0 {
		return cl, nil
	}

	crs, failures, err := e.fetchChangeRequests(ctx, rng, cl.Commits)
	if err != nil {
		return nil, err
	}
	cl.ChangeRequests = crs

	issues, issueFailures, err := e.fetchIssues(ctx, rng, cl.ChangeRequests)
	if err != nil {
		return nil, err
	}
	cl.Issues = issues
	failures = append(failures, issueFailures...)

	span.SetAttributes(
		attribute.Int("change_requests", len(cl.ChangeRequests)),
		attribute.Int("issues", len(cl.Issues)),
		attribute.Int("failed_batches", len(failures)),
	)
	if len(failures) > 0 {
		return cl, &changelog.PartialFetchError{Changelog: cl, FailedBatches: failures}
	}
	return cl, nil
}

// fetchChangeRequests runs the batched change-request lookups and merges the
// answers. A revision belongs to the change-request that claimed it in the
// earliest batch; inside one batch the lowest ID wins. Revisions outside the
// range are pruned and change-requests left without revisions are dropped.
func (e *Engine) fetchChangeRequests(ctx context.Context, rng changelog.ResolvedRange, commits []changelog.Commit) (map[changelog.ChangeRequestID]changelog.ChangeRequest, []changelog.BatchFailure, error) {
	ctx, span := e.tracer.Start(ctx, "aggregate.change_requests")
	defer span.End()

	revisions := make([]string, 0, len(commits))
	for _, c := range commits {
		revisions = append(revisions, c.RevisionID)
	}
	batches := partition(revisions, e.BatchSize())
	span.SetAttributes(attribute.Int("batches", len(batches)), attribute.Int("batch_size", e.BatchSize()))

	results := make([][]changelog.ChangeRequest, len(batches))
	errs := make([]error, len(batches))
	e.runBatches(ctx, changelog.StageChangeRequests, len(batches), func(ctx context.Context, i int) error {
		crs, err := e.source.ListChangeRequestsForCommits(ctx, rng.Repository, batches[i])
		results[i], errs[i] = crs, err
		return err
	})
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	inRange := make(map[string]struct{}, len(revisions))
	for _, rev := range revisions {
		inRange[rev] = struct{}{}
	}

	var failures []changelog.BatchFailure
	owner := make(map[string]changelog.ChangeRequestID)
	merged := make(map[changelog.ChangeRequestID]*changelog.ChangeRequest)
	pruned := 0
	for i, crs := range results {
		if errs[i] != nil {
			failures = append(failures, changelog.BatchFailure{
				Stage: changelog.StageChangeRequests,
				Index: i,
				Keys:  slices.Clone(batches[i]),
				Err:   errs[i],
			})
			e.log.Warn("change-request batch failed", "batch", i, "revisions", len(batches[i]), "error", errs[i])
			continue
		}

		sorted := slices.Clone(crs)
		slices.SortStableFunc(sorted, func(a, b changelog.ChangeRequest) int {
			return compareIDs(a.ID, b.ID)
		})
		for _, cr := range sorted {
			m, ok := merged[cr.ID]
			if !ok {
				cp := cr
				cp.SourceRevisionIDs = nil
				cp.IssueKeys = nil
				cp.LinkedIssueKeys = nilIfEmpty(changelog.MergeIssueKeys(cr.LinkedIssueKeys))
				merged[cr.ID] = &cp
			} else {
				m.LinkedIssueKeys = nilIfEmpty(changelog.MergeIssueKeys(m.LinkedIssueKeys, cr.LinkedIssueKeys))
			}
			for _, rev := range cr.SourceRevisionIDs {
				if _, ok := inRange[rev]; !ok {
					pruned++
					continue
				}
				if _, taken := owner[rev]; !taken {
					owner[rev] = cr.ID
				}
			}
		}
	}

	for _, rev := range revisions {
		if id, ok := owner[rev]; ok {
			merged[id].SourceRevisionIDs = append(merged[id].SourceRevisionIDs, rev)
		}
	}

	out := make(map[changelog.ChangeRequestID]changelog.ChangeRequest, len(merged))
	dropped := 0
	for id, cr := range merged {
		if len(cr.SourceRevisionIDs) == 0 {
			dropped++
			continue
		}
		out[id] = *cr
	}

	e.log.Debug("merged change-requests",
		"change_requests", len(out),
		"pruned_revisions", pruned,
		"dropped_change_requests", dropped,
		"failed_batches", len(failures))
	return out, failures, nil
}

// fetchIssues asks the tracker about every retained change-request, one
// batch per change-request in ascending ID order, and deduplicates issues by
// key. An issue keeps the fields of its first report.
func (e *Engine) fetchIssues(ctx context.Context, rng changelog.ResolvedRange, crs map[changelog.ChangeRequestID]changelog.ChangeRequest) (map[string]changelog.Issue, []changelog.BatchFailure, error) {
	ctx, span := e.tracer.Start(ctx, "aggregate.issues")
	defer span.End()

	ids := make([]changelog.ChangeRequestID, 0, len(crs))
	for id := range crs {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, compareIDs)
	span.SetAttributes(attribute.Int("batches", len(ids)))

	results := make([][]changelog.Issue, len(ids))
	errs := make([]error, len(ids))
	e.runBatches(ctx, changelog.StageIssues, len(ids), func(ctx context.Context, i int) error {
		issues, err := e.tracker.ListIssuesForChangeRequest(ctx, rng.Repository, crs[ids[i]])
		results[i], errs[i] = issues, err
		return err
	})
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var failures []changelog.BatchFailure
	issues := make(map[string]*changelog.Issue)
	for i, id := range ids {
		if errs[i] != nil {
			failures = append(failures, changelog.BatchFailure{
				Stage: changelog.StageIssues,
				Index: i,
				Keys:  []string{id.String()},
				Err:   errs[i],
			})
			e.log.Warn("issue batch failed", "change_request", id.String(), "error", errs[i])
			continue
		}

		var keys []string
		for _, issue := range results[i] {
			if issue.Key == "" {
				continue
			}
			existing, ok := issues[issue.Key]
			if !ok {
				cp := issue
				cp.ChangeRequestIDs = nil
				existing = &cp
				issues[issue.Key] = existing
			}
			if !slices.Contains(existing.ChangeRequestIDs, id) {
				existing.ChangeRequestIDs = append(existing.ChangeRequestIDs, id)
			}
			keys = append(keys, issue.Key)
		}

		cr := crs[id]
		cr.IssueKeys = nilIfEmpty(changelog.MergeIssueKeys(keys))
		crs[id] = cr
	}

	out := make(map[string]changelog.Issue, len(issues))
	for key, issue := range issues {
		out[key] = *issue
	}
	return out, failures, nil
}

// runBatches runs fn for every batch index with at most maxInFlight calls at
// once. Batch errors never stop the other batches.
func (e *Engine) runBatches(ctx context.Context, stage changelog.Stage, n int, fn func(ctx context.Context, i int) error) {
	var g errgroup.Group
	g.SetLimit(e.maxInFlight)

	done := 0
	for i := 0; i < n; i++ {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			bctx, span := e.tracer.Start(ctx, "aggregate.batch", trace.WithAttributes(
				attribute.String("stage", string(stage)),
				attribute.Int("batch", i),
			))
			if err := fn(bctx, i); err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
			span.End()

			if e.progress != nil {
				e.progressMu.Lock()
				done++
				e.progress(stage, done, n)
				e.progressMu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
}

func fatal(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func partition(items []string, size int) [][]string {
	if size < 1 {
		size = 1
	}
	batches := make([][]string, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end])
	}
	return batches
}

func dedupeCommits(commits []changelog.Commit) []changelog.Commit {
	out := make([]changelog.Commit, 0, len(commits))
	seen := make(map[string]struct{}, len(commits))
	for _, c := range commits {
		if _, dup := seen[c.RevisionID]; dup || c.RevisionID == "" {
			continue
		}
		seen[c.RevisionID] = struct{}{}
		out = append(out, c)
	}
	return out
}

func compareIDs(a, b changelog.ChangeRequestID) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func nilIfEmpty(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	return s
}
