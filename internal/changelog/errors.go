package changelog

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a revision does not exist in the repository.
	ErrNotFound = errors.New("revision not found")
	// ErrDisjointRange is returned when the start revision is not an ancestor
	// of the end revision.
	ErrDisjointRange = errors.New("start revision is not an ancestor of end revision")
	// ErrEnvironmentUnresolvable is returned when an environment has no
	// deployment history to build a range from.
	ErrEnvironmentUnresolvable = errors.New("environment has no resolvable deployment history")
	// ErrAmbiguousRepository is returned when an application does not map to
	// exactly one repository.
	ErrAmbiguousRepository = errors.New("application does not map to exactly one repository")
	// ErrInvalidSpecifier is returned for a specifier with missing fields.
	ErrInvalidSpecifier = errors.New("invalid commit specifier")
)

// GatewayError wraps a failure of a remote service call with the gateway and
// operation that produced it. The cause stays reachable through errors.Is and
// errors.As, so context cancellation is still detectable.
type GatewayError struct {
	Gateway string
	Op      string
	Err     error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Gateway, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// WrapGateway wraps err in a GatewayError. Nil stays nil, and errors that are
// already a GatewayError or a domain sentinel are returned unchanged.
func WrapGateway(gateway, op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return err
	}
	if IsDomainError(err) {
		return err
	}
	return &GatewayError{Gateway: gateway, Op: op, Err: err}
}

// IsDomainError reports whether err matches one of the package sentinels.
func IsDomainError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDisjointRange) ||
		errors.Is(err, ErrEnvironmentUnresolvable) ||
		errors.Is(err, ErrAmbiguousRepository) ||
		errors.Is(err, ErrInvalidSpecifier)
}

// Stage names the aggregation step a batch belongs to.
type Stage string

const (
	StageChangeRequests Stage = "change-requests"
	StageIssues         Stage = "issues"
)

// BatchFailure records one failed batch. Keys are the revision IDs
// (change-request stage) or change-request IDs (issue stage) the batch covered.
type BatchFailure struct {
	Stage Stage
	Index int
	Keys  []string
	Err   error
}

func (f BatchFailure) Error() string {
	return fmt.Sprintf("%s batch %d (%d keys): %v", f.Stage, f.Index, len(f.Keys), f.Err)
}

// PartialFetchError is returned when some batches failed but the rest of the
// changelog was assembled. Changelog holds everything that did succeed.
type PartialFetchError struct {
	Changelog     *Changelog
	FailedBatches []BatchFailure
}

func (e *PartialFetchError) Error() string {
	parts := make([]string, 0, len(e.FailedBatches))
	for _, f := range e.FailedBatches {
		parts = append(parts, f.Error())
	}
	return fmt.Sprintf("partial changelog: %d failed batches: %s", len(e.FailedBatches), strings.Join(parts, "; "))
}

// Unwrap exposes every batch cause to errors.Is and errors.As.
func (e *PartialFetchError) Unwrap() []error {
	errs := make([]error, 0, len(e.FailedBatches))
	for _, f := range e.FailedBatches {
		errs = append(errs, f.Err)
	}
	return errs
}
