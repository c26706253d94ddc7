package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	clierrors "github.com/deploylog/deploylog/internal/errors"
	"github.com/deploylog/deploylog/internal/output"
	"github.com/deploylog/deploylog/internal/version"
	"github.com/spf13/cobra"
)

// Command groups shown in help output
const (
	GroupChangelogs    = "changelogs"
	GroupConfiguration = "configuration"
)

var (
	configPath       string
	outputFlag       string
	plainFlag        bool
	batchSizeFlag    int
	maxInFlightFlag  int
	allowPartialFlag bool
	verboseFlag      bool
	timeoutFlag      time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "deploylog",
	Short: "Changelogs between revisions and deployments",
	Long: `deploylog builds changelogs: the commits between two revisions, grouped by
the pull/merge requests they belong to, with the issues those requests refer to.

Ranges are given explicitly or derived from deployment history, so
"what changed in production since the last release" is one command.

Sources:  local git repository, Bitbucket Server, GitLab
Trackers: Jira, GitLab issues, or keys found in request titles
Deploys:  Spinnaker Managed Delivery, or a YAML deployment history file`,
	Example: `  # Changelog between two tags of PAY/payments-api
  deploylog range PAY/payments-api v1.4.0 v1.5.0

  # Same, inferring the repository from the local checkout's origin
  deploylog range v1.4.0 v1.5.0

  # What changed in production with the last deployment
  deploylog env payments-api production

  # What the next promotion to production would ship
  deploylog env payments-api production --pending -o markdown`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: GroupChangelogs, Title: "Changelogs:"},
		&cobra.Group{ID: GroupConfiguration, Title: "Configuration:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Project config file (default .deploylog/config.yml)")
	flags.StringVarP(&outputFlag, "output", "o", "", "Output format: text | json | yaml | markdown")
	flags.BoolVar(&plainFlag, "plain", false, "Plain output without colors or spinner")
	flags.IntVar(&batchSizeFlag, "batch-size", 0, "Commits per change-request lookup (0 = gateway recommendation)")
	flags.IntVar(&maxInFlightFlag, "max-in-flight", 0, "Maximum concurrent gateway calls")
	flags.BoolVar(&allowPartialFlag, "allow-partial", false, "Exit 0 when some lookups failed")
	flags.BoolVarP(&verboseFlag, "verbose", "v", false, "Debug logging on stderr")
	flags.DurationVar(&timeoutFlag, "timeout", 0, "Abort the whole run after this long (0 = no limit)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return clierrors.NewArgumentErrorWithUsage(err.Error(), cmd.UseLine(),
			fmt.Sprintf("Run '%s --help' for usage", cmd.CommandPath()))
	})
}

// Execute runs the root command. Interrupts cancel the run context so
// outstanding gateway calls are abandoned.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := execute(ctx)
	if err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

func execute(ctx context.Context) error {
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && strings.HasPrefix(err.Error(), "unknown command") {
		return clierrors.NewArgumentError(err.Error(), "Run 'deploylog --help' for the list of commands")
	}
	return err
}

// reportError prints err unless it is an ExitError, which was reported
// where it happened.
func reportError(w io.Writer, err error) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return
	}
	plain := plainFlag || !output.IsTerminal(os.Stderr)
	clierrors.FprintError(w, clierrors.FromDomain(err), plain)
}

// argsBetween validates the positional argument count with a usage hint.
func argsBetween(lo, hi int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) >= lo && len(args) <= hi {
			return nil
		}
		var msg string
		switch {
		case lo == hi:
			msg = fmt.Sprintf("expected %d arguments, got %d", lo, len(args))
		default:
			msg = fmt.Sprintf("expected %d to %d arguments, got %d", lo, hi, len(args))
		}
		return clierrors.NewArgumentErrorWithUsage(msg, cmd.UseLine(),
			fmt.Sprintf("Run '%s --help' for examples", cmd.CommandPath()))
	}
}
