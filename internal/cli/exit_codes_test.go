package cli

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/deploylog/deploylog/internal/changelog"
	clierrors "github.com/deploylog/deploylog/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err  error
		want int
	}{
		"nil":                   {err: nil, want: ExitSuccess},
		"exit error":            {err: NewExitError(ExitPartial), want: ExitPartial},
		"wrapped exit error":    {err: fmt.Errorf("run: %w", NewExitError(ExitTimeout)), want: ExitTimeout},
		"argument error":        {err: clierrors.NewArgumentError("bad"), want: ExitInvalidArguments},
		"config error":          {err: clierrors.NewConfigError("bad config"), want: ExitInvalidArguments},
		"invalid specifier":     {err: fmt.Errorf("%w: empty end", changelog.ErrInvalidSpecifier), want: ExitInvalidArguments},
		"disjoint range":        {err: fmt.Errorf("%w: a..b", changelog.ErrDisjointRange), want: ExitInvalidArguments},
		"revision not found":    {err: fmt.Errorf("%w: v9", changelog.ErrNotFound), want: ExitNotFound},
		"environment not found": {err: fmt.Errorf("%w: app@prod", changelog.ErrEnvironmentUnresolvable), want: ExitNotFound},
		"ambiguous repository":  {err: changelog.ErrAmbiguousRepository, want: ExitNotFound},
		"deadline":              {err: fmt.Errorf("aggregate: %w", context.DeadlineExceeded), want: ExitTimeout},
		"interrupted":           {err: context.Canceled, want: ExitTimeout},
		"partial":               {err: &changelog.PartialFetchError{}, want: ExitPartial},
		"gateway failure":       {err: changelog.WrapGateway("jira", "get issue", errors.New("boom")), want: ExitFailure},
		"plain error":           {err: errors.New("boom"), want: ExitFailure},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ExitCode(tt.err))
		})
	}
}

func TestExitError_Message(t *testing.T) {
	t.Parallel()

	assert.EqualError(t, NewExitError(2), "exit code 2")
}
