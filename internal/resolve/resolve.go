// Package resolve turns a CommitSpecifier into a concrete, validated
// ResolvedRange.
package resolve

import (
	"context"
	"errors"
	"fmt"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/deploylog/deploylog/internal/gateway"
	"github.com/deploylog/deploylog/internal/logger"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Resolver resolves specifiers against a source-control gateway and, for
// environment references, a deployment gateway.
type Resolver struct {
	source     gateway.SourceControl
	deployment gateway.Deployment
	log        *logger.Logger
	tracer     trace.Tracer
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDeployment sets the gateway used for environment references.
func WithDeployment(d gateway.Deployment) Option {
	return func(r *Resolver) { r.deployment = d }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// WithTracer sets the tracer spans are recorded with.
func WithTracer(t trace.Tracer) Option {
	return func(r *Resolver) { r.tracer = t }
}

// New creates a Resolver.
func New(source gateway.SourceControl, opts ...Option) *Resolver {
	r := &Resolver{
		source: source,
		log:    logger.Nop(),
		tracer: noop.NewTracerProvider().Tracer("deploylog/resolve"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve produces a range whose revisions both exist in the repository.
func (r *Resolver) Resolve(ctx context.Context, spec changelog.CommitSpecifier) (rng changelog.ResolvedRange, err error) {
	ctx, span := r.tracer.Start(ctx, "resolve", trace.WithAttributes(
		attribute.String("specifier.kind", spec.Kind().String()),
		attribute.String("specifier", spec.String()),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := spec.Validate(); err != nil {
		return changelog.ResolvedRange{}, err
	}

	switch spec.Kind() {
	case changelog.KindExplicitRange:
		er, _ := spec.ExplicitRange()
		rng = changelog.ResolvedRange{
			Repository:    er.Repository,
			StartRevision: er.StartRevision,
			EndRevision:   er.EndRevision,
		}
	case changelog.KindEnvironment:
		ref, _ := spec.EnvironmentReference()
		rng, err = r.resolveEnvironment(ctx, ref)
		if err != nil {
			return changelog.ResolvedRange{}, err
		}
	default:
		return changelog.ResolvedRange{}, fmt.Errorf("%w: unknown kind %s", changelog.ErrInvalidSpecifier, spec.Kind())
	}

	for _, rev := range []string{rng.StartRevision, rng.EndRevision} {
		ok, err := r.source.Exists(ctx, rng.Repository, rev)
		if err != nil {
			return changelog.ResolvedRange{}, err
		}
		if !ok {
			return changelog.ResolvedRange{}, fmt.Errorf("%w: %s in %s", changelog.ErrNotFound, rev, rng.Repository)
		}
	}

	span.SetAttributes(
		attribute.String("range.repository", rng.Repository.String()),
		attribute.String("range.start", rng.StartRevision),
		attribute.String("range.end", rng.EndRevision),
	)
	r.log.Debug("resolved range", "specifier", spec.String(), "range", rng.String())
	return rng, nil
}

// resolveEnvironment builds (previous, current), or (current, pending) for a
// pending reference.
func (r *Resolver) resolveEnvironment(ctx context.Context, ref changelog.EnvironmentReference) (changelog.ResolvedRange, error) {
	if r.deployment == nil {
		return changelog.ResolvedRange{}, fmt.Errorf("%w: no deployment gateway configured", changelog.ErrEnvironmentUnresolvable)
	}

	var startFn, endFn func(context.Context, string, string) (gateway.DeployedRevision, error)
	if ref.Pending {
		pr, ok := r.deployment.(gateway.PendingRevisioner)
		if !ok {
			return changelog.ResolvedRange{}, fmt.Errorf("%w: deployment gateway cannot report pending revisions", changelog.ErrEnvironmentUnresolvable)
		}
		startFn, endFn = r.deployment.CurrentRevision, pr.PendingRevision
	} else {
		startFn, endFn = r.deployment.PreviousRevision, r.deployment.CurrentRevision
	}

	start, err := startFn(ctx, ref.Application, ref.Environment)
	if err != nil {
		return changelog.ResolvedRange{}, translate(ref, err)
	}
	end, err := endFn(ctx, ref.Application, ref.Environment)
	if err != nil {
		return changelog.ResolvedRange{}, translate(ref, err)
	}

	if start.Ambiguous() || end.Ambiguous() || start.Repository != end.Repository {
		return changelog.ResolvedRange{}, fmt.Errorf("%w: %s deploys from %s and %s",
			changelog.ErrAmbiguousRepository, ref.Application, start.Repository, end.Repository)
	}

	r.log.Debug("resolved environment",
		"application", ref.Application,
		"environment", ref.Environment,
		"pending", ref.Pending,
		"start_version", start.Version,
		"end_version", end.Version)

	return changelog.ResolvedRange{
		Repository:    end.Repository,
		StartRevision: start.Revision,
		EndRevision:   end.Revision,
	}, nil
}

func translate(ref changelog.EnvironmentReference, err error) error {
	switch {
	case errors.Is(err, gateway.ErrNoHistory):
		return fmt.Errorf("%w: %s@%s: %v", changelog.ErrEnvironmentUnresolvable, ref.Application, ref.Environment, err)
	case errors.Is(err, gateway.ErrAmbiguous):
		return fmt.Errorf("%w: %s: %v", changelog.ErrAmbiguousRepository, ref.Application, err)
	default:
		return err
	}
}
