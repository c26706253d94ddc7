package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/deploylog/deploylog/internal/aggregate"
	"github.com/deploylog/deploylog/internal/changelog"
	clierrors "github.com/deploylog/deploylog/internal/errors"
	"github.com/deploylog/deploylog/internal/logger"
	"github.com/deploylog/deploylog/internal/output"
	"github.com/deploylog/deploylog/internal/progress"
	"github.com/deploylog/deploylog/internal/resolve"
	"github.com/spf13/cobra"
)

var (
	fetchFlag   bool
	pendingFlag bool
)

var rangeCmd = &cobra.Command{
	Use:   "range [PROJECT/repo] <start> <end>",
	Short: "Changelog between two revisions",
	Long: `Build the changelog for the commits reachable from <end> but not from <start>.

Revisions are anything the source control gateway resolves: tags, branches,
or commit hashes. Without PROJECT/repo the repository is taken from the
origin remote of the local checkout.`,
	Example: `  deploylog range PAY/payments-api v1.4.0 v1.5.0
  deploylog range v1.4.0 HEAD --fetch
  deploylog range group/sub/app 3f2a9c1 main -o json`,
	GroupID: GroupChangelogs,
	Args:    argsBetween(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			var (
				repo changelog.RepositoryID
				err  error
			)
			if len(args) == 3 {
				if repo, err = changelog.ParseRepositoryID(args[0]); err != nil {
					return clierrors.InvalidRepository(args[0])
				}
				args = args[1:]
			} else if repo, err = a.inferRepository(); err != nil {
				return err
			}

			if fetchFlag {
				if err := fetchOrigin(ctx, a); err != nil {
					return err
				}
			}

			r, err := newRunner(cmd, a, false)
			if err != nil {
				return err
			}
			return r.run(ctx, changelog.NewExplicitRange(repo, args[0], args[1]))
		})
	},
}

var envCmd = &cobra.Command{
	Use:   "env <application> <environment>",
	Short: "Changelog of an environment's last deployment",
	Long: `Build the changelog between the previous and the current deployment of an
application to an environment, as reported by the deployment gateway.

With --pending the range runs from the current deployment to the newest
revision waiting to be promoted, previewing what the next promotion ships.`,
	Example: `  deploylog env payments-api production
  deploylog env payments-api production --pending -o markdown`,
	GroupID: GroupChangelogs,
	Args:    argsBetween(2, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			r, err := newRunner(cmd, a, true)
			if err != nil {
				return err
			}
			spec := changelog.NewEnvironmentReference(args[0], args[1])
			if pendingFlag {
				spec = changelog.NewPendingEnvironmentReference(args[0], args[1])
			}
			return r.run(ctx, spec)
		})
	},
}

func init() {
	rangeCmd.Flags().BoolVar(&fetchFlag, "fetch", false, "Fetch origin before resolving (local source only)")
	envCmd.Flags().BoolVar(&pendingFlag, "pending", false, "Compare the current deployment with the pending one")
	rootCmd.AddCommand(rangeCmd)
	rootCmd.AddCommand(envCmd)
}

// withApp builds the app for cmd, applies --timeout and tears everything
// down after fn returns.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if timeoutFlag > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeoutFlag)
		defer cancel()
	}

	a, err := newApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, span := a.telemetry.Tracer("deploylog/cli").Start(ctx, cmd.CommandPath())
	defer span.End()
	return fn(ctx, a)
}

func fetchOrigin(ctx context.Context, a *app) error {
	if a.cfg.Source != "local" {
		a.log.Info("--fetch ignored: source is not local", "source", a.cfg.Source)
		return nil
	}
	repo, err := a.localRepository()
	if err != nil {
		return err
	}
	if err := repo.Fetch(ctx, "origin"); err != nil {
		return clierrors.WrapWithMessage(err, clierrors.Runtime, "fetching origin failed",
			"Check network access to the origin remote, or run without --fetch")
	}
	return nil
}

// runner resolves a specifier, aggregates the range and writes the result.
type runner struct {
	resolver     *resolve.Resolver
	engine       *aggregate.Engine
	display      *progress.Display
	out          io.Writer
	errOut       io.Writer
	format       output.Format
	terminal     bool
	plain        bool
	allowPartial bool
	log          *logger.Logger
}

// newRunner wires the configured gateways. The deployment gateway is only
// built for environment references.
func newRunner(cmd *cobra.Command, a *app, environments bool) (*runner, error) {
	format, err := outputFormat(a.cfg.Output)
	if err != nil {
		return nil, err
	}
	source, err := a.sourceControl()
	if err != nil {
		return nil, err
	}
	tracker, err := a.issueTracker()
	if err != nil {
		return nil, err
	}
	resolveOpts := []resolve.Option{
		resolve.WithLogger(a.log.Named("resolve")),
		resolve.WithTracer(a.telemetry.Tracer("deploylog/resolve")),
	}
	if environments {
		deploy, err := a.deployment()
		if err != nil {
			return nil, err
		}
		if deploy != nil {
			resolveOpts = append(resolveOpts, resolve.WithDeployment(deploy))
		}
	}

	caps := progress.DetectTerminalCapabilities()
	if plainFlag || !isTerminalWriter(cmd.ErrOrStderr()) {
		caps.IsTTY = false
	}
	display := progress.NewDisplay(cmd.ErrOrStderr(), caps)

	engine := aggregate.New(source, tracker,
		aggregate.WithBatchSize(a.cfg.Aggregate.BatchSize),
		aggregate.WithMaxInFlight(a.cfg.Aggregate.MaxInFlight),
		aggregate.WithLogger(a.log.Named("aggregate")),
		aggregate.WithTracer(a.telemetry.Tracer("deploylog/aggregate")),
		aggregate.WithProgress(func(stage changelog.Stage, done, total int) {
			display.Update(string(stage), done, total)
		}),
	)

	out := cmd.OutOrStdout()
	return &runner{
		resolver:     resolve.New(source, resolveOpts...),
		engine:       engine,
		display:      display,
		out:          out,
		errOut:       cmd.ErrOrStderr(),
		format:       format,
		terminal:     !plainFlag && isTerminalWriter(out),
		plain:        plainFlag || !isTerminalWriter(cmd.ErrOrStderr()),
		allowPartial: allowPartialFlag,
		log:          a.log,
	}, nil
}

// run prints the changelog for spec. A partial changelog is still printed;
// the failed lookups are listed on stderr and the run exits with ExitPartial
// unless partial results were allowed.
func (r *runner) run(ctx context.Context, spec changelog.CommitSpecifier) error {
	r.display.Start("Resolving " + spec.String())
	rng, err := r.resolver.Resolve(ctx, spec)
	if err != nil {
		r.display.Stop(false, "Could not resolve "+spec.String())
		return err
	}

	r.display.SetMessage("Building changelog for " + rng.String())
	cl, err := r.engine.Aggregate(ctx, rng)
	var partial *changelog.PartialFetchError
	switch {
	case errors.As(err, &partial):
		r.display.Stop(false, "Changelog incomplete")
		cl = partial.Changelog
	case err != nil:
		r.display.Stop(false, "Changelog failed")
		return err
	default:
		r.display.Stop(true, fmt.Sprintf("%d commits in %s", len(cl.Commits), rng))
	}

	if err := writeChangelog(r.out, cl, r.format, r.terminal); err != nil {
		return err
	}

	if partial != nil {
		r.log.Warn("partial changelog", "failed_batches", len(partial.FailedBatches))
		output.WritePartialSummary(r.errOut, partial.FailedBatches, r.plain)
		if !r.allowPartial {
			return NewExitError(ExitPartial)
		}
	}
	return nil
}

func writeChangelog(w io.Writer, cl *changelog.Changelog, format output.Format, terminal bool) error {
	if err := output.Write(w, cl, output.Options{Format: format, Terminal: terminal}); err != nil {
		return fmt.Errorf("writing changelog: %w", err)
	}
	return nil
}

func outputFormat(s string) (output.Format, error) {
	f, err := output.ParseFormat(s)
	if err != nil {
		return "", clierrors.UnknownOutputFormat(s, output.Formats())
	}
	return f, nil
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && output.IsTerminal(f)
}
