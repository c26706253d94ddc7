package errors

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/deploylog/deploylog/internal/transport"
)

// InvalidRepository creates an error for a malformed PROJECT/repo argument.
func InvalidRepository(provided string) *CLIError {
	return NewArgumentErrorWithUsage(
		fmt.Sprintf("invalid repository: %q", provided),
		"deploylog range <PROJECT/repo> <start> <end>",
		"Repositories are named PROJECT/repo (e.g., PAY/payments-api)",
		"Nested GitLab groups keep their full path: group/sub/repo",
	)
}

// UnknownOutputFormat creates an error for an unsupported --output value.
func UnknownOutputFormat(format string, supported []string) *CLIError {
	return NewArgumentError(
		fmt.Sprintf("unknown output format: %q", format),
		fmt.Sprintf("Use one of: %v", supported),
	)
}

// GatewayNotConfigured creates an error for an operation whose gateway is disabled.
func GatewayNotConfigured(kind, key string) *CLIError {
	return NewConfigError(
		fmt.Sprintf("no %s gateway configured", kind),
		fmt.Sprintf("Set '%s' in .deploylog/config.yml", key),
		"Run 'deploylog config keys' to list the allowed values",
	)
}

// FromDomain maps an error returned by the resolver, the aggregation engine
// or a gateway to a CLIError. Errors that already are CLIErrors pass through.
func FromDomain(err error) *CLIError {
	if err == nil {
		return nil
	}
	if cliErr := AsCLIError(err); cliErr != nil {
		return cliErr
	}

	var partial *changelog.PartialFetchError
	var gatewayErr *changelog.GatewayError

	switch {
	case errors.Is(err, context.Canceled):
		return Wrap(err, Cancelled, "The run was interrupted before the changelog was complete")
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, Cancelled,
			"Raise http.timeout or retry when the services respond faster",
			"Lower aggregate.max_in_flight if the service is rate limiting")
	case errors.As(err, &partial):
		return &CLIError{
			Category: Partial,
			Message:  fmt.Sprintf("changelog is incomplete: %d of the lookups failed", len(partial.FailedBatches)),
			Remediation: []string{
				"Re-run to retry the failed lookups",
				"Pass --allow-partial to accept incomplete changelogs",
			},
			Err: err,
		}
	case errors.Is(err, changelog.ErrInvalidSpecifier):
		return Wrap(err, Argument, "Run 'deploylog --help' for command usage")
	case errors.Is(err, changelog.ErrDisjointRange):
		return Wrap(err, Argument,
			"Swap the revisions if they were given in the wrong order",
			"Both revisions must be on the same line of history")
	case errors.Is(err, changelog.ErrNotFound):
		return Wrap(err, NotFound,
			"Check the revision spelling and that it was pushed",
			"For the local source, fetch first: git fetch --all")
	case errors.Is(err, changelog.ErrEnvironmentUnresolvable):
		return Wrap(err, NotFound,
			"Check the application and environment names",
			"The environment needs at least two deployments, or use --pending")
	case errors.Is(err, changelog.ErrAmbiguousRepository):
		return Wrap(err, NotFound,
			"The application deploys from more than one repository",
			"Use 'deploylog range <PROJECT/repo> <start> <end>' with explicit revisions")
	case errors.As(err, &gatewayErr):
		return Wrap(err, Runtime, gatewayRemediation(err, gatewayErr.Gateway)...)
	default:
		return Wrap(err, Runtime)
	}
}

func gatewayRemediation(err error, gateway string) []string {
	switch {
	case transport.HasStatus(err, http.StatusUnauthorized), transport.HasStatus(err, http.StatusForbidden):
		return []string{
			fmt.Sprintf("Check the %s token (DEPLOYLOG_%s__TOKEN)", gateway, strings.ToUpper(gateway)),
		}
	case transport.HasStatus(err, http.StatusTooManyRequests):
		return []string{"Lower aggregate.max_in_flight to reduce the request rate"}
	default:
		return []string{
			fmt.Sprintf("Check that %s is reachable and the configured URL is correct", gateway),
			"Run with --verbose for request logs",
		}
	}
}
