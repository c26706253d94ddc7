package cli

import (
	"bytes"
	"testing"

	clierrors "github.com/deploylog/deploylog/internal/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Structure(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "deploylog", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.NotEmpty(t, rootCmd.Example)
	assert.True(t, rootCmd.SilenceUsage)
	assert.True(t, rootCmd.SilenceErrors)
}

func TestRootCmd_PersistentFlags(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		flagName  string
		shorthand string
	}{
		"config flag exists":        {flagName: "config"},
		"output flag exists":        {flagName: "output", shorthand: "o"},
		"plain flag exists":         {flagName: "plain"},
		"batch-size flag exists":    {flagName: "batch-size"},
		"max-in-flight flag exists": {flagName: "max-in-flight"},
		"allow-partial flag exists": {flagName: "allow-partial"},
		"verbose flag exists":       {flagName: "verbose", shorthand: "v"},
		"timeout flag exists":       {flagName: "timeout"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			flag := rootCmd.PersistentFlags().Lookup(tt.flagName)
			require.NotNil(t, flag, "Flag %s should exist", tt.flagName)
			assert.Equal(t, tt.shorthand, flag.Shorthand)
		})
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		name    string
		groupID string
	}{
		"range":   {name: "range", groupID: GroupChangelogs},
		"env":     {name: "env", groupID: GroupChangelogs},
		"render":  {name: "render", groupID: GroupChangelogs},
		"config":  {name: "config", groupID: GroupConfiguration},
		"version": {name: "version", groupID: GroupConfiguration},
		"doctor":  {name: "doctor", groupID: GroupConfiguration},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cmd, _, err := rootCmd.Find([]string{tt.name})
			require.NoError(t, err)
			assert.Equal(t, tt.name, cmd.Name())
			assert.Equal(t, tt.groupID, cmd.GroupID)
		})
	}
}

func TestArgsBetween(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		lo, hi  int
		args    []string
		wantErr string
	}{
		"exact count":       {lo: 2, hi: 2, args: []string{"a", "b"}},
		"within range":      {lo: 2, hi: 3, args: []string{"a", "b", "c"}},
		"too few exact":     {lo: 2, hi: 2, args: []string{"a"}, wantErr: "expected 2 arguments, got 1"},
		"too many in range": {lo: 2, hi: 3, args: []string{"a", "b", "c", "d"}, wantErr: "expected 2 to 3 arguments, got 4"},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cmd := &cobra.Command{Use: "probe <a> <b>"}
			err := argsBetween(tt.lo, tt.hi)(cmd, tt.args)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			cliErr := clierrors.AsCLIError(err)
			require.NotNil(t, cliErr)
			assert.Equal(t, clierrors.Argument, cliErr.Category)
			assert.Equal(t, "probe <a> <b>", cliErr.Usage)
		})
	}
}

func TestExecute_UsageErrors(t *testing.T) {
	isolate(t, t.TempDir())

	tests := map[string]struct {
		args []string
	}{
		"unknown command":    {args: []string{"frobnicate"}},
		"unknown flag":       {args: []string{"range", "--bogus", "a", "b"}},
		"missing arguments":  {args: []string{"env", "payments-api"}},
		"too many arguments": {args: []string{"range", "a", "b", "c", "d"}},
		"bad repository":     {args: []string{"range", "not-a-repo", "v1", "v2"}},
		"bad output format":  {args: []string{"range", "PAY/app", "v1", "v2", "-o", "html"}},
		"negative batch":     {args: []string{"range", "PAY/app", "v1", "v2", "--batch-size", "-1"}},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			_, _, err := runCLI(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitInvalidArguments, ExitCode(err), "error: %v", err)
		})
	}
}

func TestReportError(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		err      error
		wantText string
	}{
		"exit error is silent": {
			err: NewExitError(ExitPartial),
		},
		"cli error prints remediation": {
			err:      clierrors.NewArgumentError("expected 2 arguments, got 1", "Run 'deploylog env --help' for examples"),
			wantText: "deploylog env --help",
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer
			reportError(&buf, tt.err)
			if tt.wantText == "" {
				assert.Empty(t, buf.String())
				return
			}
			assert.Contains(t, buf.String(), tt.wantText)
		})
	}
}
