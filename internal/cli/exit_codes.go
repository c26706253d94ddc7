package cli

import (
	"errors"
	"fmt"

	clierrors "github.com/deploylog/deploylog/internal/errors"
)

// Exit codes for the deploylog CLI
// These codes support programmatic composition and CI/CD integration
const (
	// ExitSuccess indicates successful command execution
	ExitSuccess = 0

	// ExitFailure indicates a gateway or runtime failure
	ExitFailure = 1

	// ExitPartial indicates a changelog was printed with missing pieces
	ExitPartial = 2

	// ExitInvalidArguments indicates invalid command arguments or configuration
	ExitInvalidArguments = 3

	// ExitNotFound indicates a revision, environment or repository could not be resolved
	ExitNotFound = 4

	// ExitTimeout indicates the run timed out or was interrupted
	ExitTimeout = 5
)

// ExitError carries an exit code for a failure that was already reported
// to the user.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// NewExitError creates an ExitError.
func NewExitError(code int) error {
	return &ExitError{Code: code}
}

// ExitCode maps an error returned by Execute to a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	switch clierrors.FromDomain(err).Category {
	case clierrors.Argument, clierrors.Configuration:
		return ExitInvalidArguments
	case clierrors.NotFound:
		return ExitNotFound
	case clierrors.Partial:
		return ExitPartial
	case clierrors.Cancelled:
		return ExitTimeout
	default:
		return ExitFailure
	}
}
