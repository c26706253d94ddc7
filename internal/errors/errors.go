// Package errors turns deploylog failures into categorized CLI errors with
// actionable remediation.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory represents the type of error that occurred.
type ErrorCategory int

const (
	// Argument errors are caused by invalid or missing command arguments.
	Argument ErrorCategory = iota
	// Configuration errors are caused by invalid or missing configuration.
	Configuration
	// NotFound errors mean a revision, environment or repository could not be resolved.
	NotFound
	// Runtime errors occur while talking to a gateway.
	Runtime
	// Partial errors mean a changelog was produced with missing pieces.
	Partial
	// Cancelled errors mean the run was interrupted or timed out.
	Cancelled
)

func (c ErrorCategory) String() string {
	switch c {
	case Argument:
		return "Argument Error"
	case Configuration:
		return "Configuration Error"
	case NotFound:
		return "Not Found"
	case Runtime:
		return "Runtime Error"
	case Partial:
		return "Partial Result"
	case Cancelled:
		return "Cancelled"
	default:
		return "Error"
	}
}

// CLIError is what the CLI prints for a failed command: a category, the
// message, optional usage for argument errors and the steps that fix it.
// Err keeps the cause reachable for errors.Is and errors.As.
type CLIError struct {
	Category    ErrorCategory
	Message     string
	Remediation []string
	Usage       string
	Err         error
}

func (e *CLIError) Error() string {
	return e.Message
}

func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewArgumentError creates a new argument error with the given message and remediation steps.
func NewArgumentError(message string, remediation ...string) *CLIError {
	return &CLIError{Category: Argument, Message: message, Remediation: remediation}
}

// NewArgumentErrorWithUsage adds the correct command syntax to an argument error.
func NewArgumentErrorWithUsage(message, usage string, remediation ...string) *CLIError {
	return &CLIError{Category: Argument, Message: message, Usage: usage, Remediation: remediation}
}

func NewConfigError(message string, remediation ...string) *CLIError {
	return &CLIError{Category: Configuration, Message: message, Remediation: remediation}
}

// Wrap categorizes err, keeping its message. A nil err stays nil.
func Wrap(err error, category ErrorCategory, remediation ...string) *CLIError {
	if err == nil {
		return nil
	}
	return &CLIError{Category: category, Message: err.Error(), Remediation: remediation, Err: err}
}

// WrapWithMessage is Wrap with message prefixed to err's own.
func WrapWithMessage(err error, category ErrorCategory, message string, remediation ...string) *CLIError {
	if err == nil {
		return nil
	}
	return &CLIError{Category: category, Message: fmt.Sprintf("%s: %v", message, err), Remediation: remediation, Err: err}
}

// AsCLIError returns the first CLIError in err's chain, or nil.
func AsCLIError(err error) *CLIError {
	var cliErr *CLIError
	if errors.As(err, &cliErr) {
		return cliErr
	}
	return nil
}
