package changelog

import (
	"fmt"
	"strings"
)

// SpecifierKind tags the variant held by a CommitSpecifier.
type SpecifierKind int

const (
	// KindExplicitRange selects a revision pair in a named repository.
	KindExplicitRange SpecifierKind = iota + 1
	// KindEnvironment selects what is deployed to an application environment.
	KindEnvironment
)

func (k SpecifierKind) String() string {
	switch k {
	case KindExplicitRange:
		return "explicit-range"
	case KindEnvironment:
		return "environment"
	default:
		return fmt.Sprintf("SpecifierKind(%d)", int(k))
	}
}

// ExplicitRange names a repository and two revisions in it.
type ExplicitRange struct {
	Repository    RepositoryID
	StartRevision string
	EndRevision   string
}

// EnvironmentReference names an application deployed to an environment.
// When Pending is set, the range ends at the newest revision waiting to be
// promoted instead of the currently deployed one.
type EnvironmentReference struct {
	Application string
	Environment string
	Pending     bool
}

// CommitSpecifier is what the caller asks a changelog for. Exactly one variant
// is populated; Kind reports which.
type CommitSpecifier struct {
	kind     SpecifierKind
	explicit ExplicitRange
	env      EnvironmentReference
}

// NewExplicitRange builds a specifier for start (exclusive) to end (inclusive).
func NewExplicitRange(repo RepositoryID, start, end string) CommitSpecifier {
	return CommitSpecifier{
		kind: KindExplicitRange,
		explicit: ExplicitRange{
			Repository:    repo,
			StartRevision: strings.TrimSpace(start),
			EndRevision:   strings.TrimSpace(end),
		},
	}
}

// NewEnvironmentReference builds a specifier for the change between the
// previous and the current deployment of application to environment.
func NewEnvironmentReference(application, environment string) CommitSpecifier {
	return CommitSpecifier{
		kind: KindEnvironment,
		env: EnvironmentReference{
			Application: strings.TrimSpace(application),
			Environment: strings.TrimSpace(environment),
		},
	}
}

// NewPendingEnvironmentReference builds a specifier for the change between
// the current deployment and the newest pending one.
func NewPendingEnvironmentReference(application, environment string) CommitSpecifier {
	s := NewEnvironmentReference(application, environment)
	s.env.Pending = true
	return s
}

// Kind returns the variant tag. The zero CommitSpecifier has kind 0.
func (s CommitSpecifier) Kind() SpecifierKind {
	return s.kind
}

// ExplicitRange returns the explicit-range variant.
func (s CommitSpecifier) ExplicitRange() (ExplicitRange, bool) {
	return s.explicit, s.kind == KindExplicitRange
}

// EnvironmentReference returns the environment variant.
func (s CommitSpecifier) EnvironmentReference() (EnvironmentReference, bool) {
	return s.env, s.kind == KindEnvironment
}

// Validate reports missing fields as ErrInvalidSpecifier.
func (s CommitSpecifier) Validate() error {
	switch s.kind {
	case KindExplicitRange:
		r := s.explicit
		if r.Repository.Project == "" || r.Repository.Name == "" {
			return fmt.Errorf("%w: repository is required", ErrInvalidSpecifier)
		}
		if r.StartRevision == "" || r.EndRevision == "" {
			return fmt.Errorf("%w: start and end revisions are required", ErrInvalidSpecifier)
		}
	case KindEnvironment:
		if s.env.Application == "" || s.env.Environment == "" {
			return fmt.Errorf("%w: application and environment are required", ErrInvalidSpecifier)
		}
	default:
		return fmt.Errorf("%w: unknown kind %s", ErrInvalidSpecifier, s.kind)
	}
	return nil
}

func (s CommitSpecifier) String() string {
	switch s.kind {
	case KindExplicitRange:
		return fmt.Sprintf("%s %s..%s", s.explicit.Repository, s.explicit.StartRevision, s.explicit.EndRevision)
	case KindEnvironment:
		if s.env.Pending {
			return fmt.Sprintf("%s@%s (pending)", s.env.Application, s.env.Environment)
		}
		return fmt.Sprintf("%s@%s", s.env.Application, s.env.Environment)
	default:
		return "<invalid specifier>"
	}
}
