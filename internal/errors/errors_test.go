package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/deploylog/deploylog/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromDomain(t *testing.T) {
	t.Parallel()

	partial := &changelog.PartialFetchError{
		Changelog: &changelog.Changelog{},
		FailedBatches: []changelog.BatchFailure{
			{Stage: changelog.StageIssues, Index: 0, Keys: []string{"#1"}, Err: errors.New("boom")},
		},
	}

	tests := map[string]struct {
		err          error
		wantCategory ErrorCategory
		wantMessage  string
		wantFix      string
	}{
		"cancelled": {
			err:          fmt.Errorf("fetching: %w", context.Canceled),
			wantCategory: Cancelled,
		},
		"deadline": {
			err:          context.DeadlineExceeded,
			wantCategory: Cancelled,
			wantFix:      "http.timeout",
		},
		"partial": {
			err:          partial,
			wantCategory: Partial,
			wantMessage:  "1 of the lookups failed",
			wantFix:      "--allow-partial",
		},
		"not found": {
			err:          fmt.Errorf("end revision %q: %w", "v9", changelog.ErrNotFound),
			wantCategory: NotFound,
			wantMessage:  `end revision "v9"`,
		},
		"disjoint": {
			err:          changelog.ErrDisjointRange,
			wantCategory: Argument,
		},
		"unresolvable": {
			err:          changelog.ErrEnvironmentUnresolvable,
			wantCategory: NotFound,
			wantFix:      "--pending",
		},
		"ambiguous": {
			err:          changelog.ErrAmbiguousRepository,
			wantCategory: NotFound,
			wantFix:      "deploylog range",
		},
		"invalid specifier": {
			err:          changelog.ErrInvalidSpecifier,
			wantCategory: Argument,
		},
		"gateway unauthorized": {
			err:          changelog.WrapGateway("jira", "get issue", &transport.StatusError{Code: 401}),
			wantCategory: Runtime,
			wantFix:      "DEPLOYLOG_JIRA__TOKEN",
		},
		"gateway rate limited": {
			err:          changelog.WrapGateway("bitbucket", "list commits", &transport.StatusError{Code: 429}),
			wantCategory: Runtime,
			wantFix:      "max_in_flight",
		},
		"gateway unreachable": {
			err:          changelog.WrapGateway("gitlab", "compare", errors.New("connection refused")),
			wantCategory: Runtime,
			wantFix:      "gitlab is reachable",
		},
		"plain": {
			err:          errors.New("disk full"),
			wantCategory: Runtime,
			wantMessage:  "disk full",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got := FromDomain(tt.err)
			require.NotNil(t, got)
			assert.Equal(t, tt.wantCategory, got.Category)
			assert.ErrorIs(t, got, tt.err, "cause stays reachable")
			if tt.wantMessage != "" {
				assert.Contains(t, got.Message, tt.wantMessage)
			}
			if tt.wantFix != "" {
				assert.Contains(t, Format(got, true), tt.wantFix)
			}
		})
	}
}

func TestFromDomain_PassesThrough(t *testing.T) {
	t.Parallel()

	assert.Nil(t, FromDomain(nil))

	cliErr := NewConfigError("bad config")
	assert.Same(t, cliErr, FromDomain(fmt.Errorf("loading: %w", cliErr)))
}

func TestFormat_Plain(t *testing.T) {
	t.Parallel()

	got := Format(InvalidRepository("payments"), true)

	assert.Equal(t, `Error [Argument Error]: invalid repository: "payments"

Usage: deploylog range <PROJECT/repo> <start> <end>

To fix this:
  • Repositories are named PROJECT/repo (e.g., PAY/payments-api)
  • Nested GitLab groups keep their full path: group/sub/repo
`, got)
	assert.Empty(t, Format(nil, true))
}

func TestErrorCategory_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Partial Result", Partial.String())
	assert.Equal(t, "Not Found", NotFound.String())
	assert.Equal(t, "Error", ErrorCategory(99).String())
}
