package cli

import (
	"context"
	"fmt"

	"github.com/deploylog/deploylog/internal/cache"
	"github.com/deploylog/deploylog/internal/config"
	"github.com/deploylog/deploylog/internal/gateway/deployfile"
	"github.com/deploylog/deploylog/internal/gateway/jira"
	"github.com/deploylog/deploylog/internal/gateway/spinnaker"
	"github.com/deploylog/deploylog/internal/health"
	"github.com/deploylog/deploylog/internal/transport"
	"github.com/spf13/cobra"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the repository, gateways and cache",
	Long: `Check that every configured gateway can be reached: the local repository
or source-control service, the issue tracker, the deployment history and the
cache backend. Checks run concurrently, each bounded by --timeout when set.`,
	Example: `  deploylog doctor
  DEPLOYLOG_JIRA__TOKEN=... deploylog doctor --timeout 5s`,
	GroupID: GroupConfiguration,
	Args:    argsBetween(0, 0),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			report := health.Run(ctx, a.healthChecks(), timeoutFlag)
			fmt.Fprint(cmd.OutOrStdout(), health.FormatReport(report))
			if !report.Passed {
				return NewExitError(ExitFailure)
			}
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

// healthChecks builds one check per configured concern. Gateways are built
// here, before the checks run concurrently, because the app memoizes them
// without locking.
func (a *app) healthChecks() []health.Check {
	checks := []health.Check{
		health.Static("configuration", fmt.Sprintf("source=%s tracker=%s deployment=%s",
			a.cfg.Source, a.cfg.Tracker, a.cfg.Deployment), nil),
	}

	switch a.cfg.Source {
	case "local":
		id, err := a.inferRepository()
		checks = append(checks, health.Static("repository", fmt.Sprintf("%s at %s", id, a.cfg.Local.Path), err))
	case "bitbucket":
		c, err := a.bitbucketClient()
		checks = append(checks, pingOrFail("bitbucket", c, err))
	case "gitlab":
		c, err := a.gitlabClient()
		checks = append(checks, pingOrFail("gitlab", c, err))
	}

	if a.cfg.Tracker == "jira" {
		rest, err := a.restClient("jira", config.ServiceConfig{URL: a.cfg.Jira.URL, Token: a.cfg.Jira.Token}, a.cfg.Jira.User)
		var tr *jira.Tracker
		if err == nil {
			tr = jira.New(rest)
		}
		checks = append(checks, pingOrFail("jira", tr, err))
	}

	switch a.cfg.Deployment {
	case "file":
		file, err := deployfile.Load(a.cfg.DeploymentsFile)
		msg := ""
		if err == nil {
			msg = fmt.Sprintf("%d deployments in %s", len(file.Deployments), a.cfg.DeploymentsFile)
		}
		checks = append(checks, health.Static("deployments", msg, err))
	case "spinnaker":
		rest, err := a.restClient("spinnaker", a.cfg.Spinnaker, "")
		var sp *spinnaker.Client
		if err == nil {
			sp = spinnaker.New(transport.NewGraphQL(rest, ""))
		}
		checks = append(checks, pingOrFail("spinnaker", sp, err))
	}

	switch a.cfg.Cache.Backend {
	case "memory":
		checks = append(checks, health.Static("cache", "in-memory", nil))
	case "redis":
		checks = append(checks, health.Check{Name: "cache", Run: func(ctx context.Context) (string, error) {
			rs, err := cache.NewRedisStore(a.cfg.Cache.RedisAddr)
			if err != nil {
				return "", err
			}
			defer rs.Close()
			if err := rs.Ping(ctx); err != nil {
				return "", err
			}
			return "redis at " + a.cfg.Cache.RedisAddr, nil
		}})
	}
	return checks
}

func pingOrFail(name string, p health.Pinger, err error) health.Check {
	if err != nil {
		return health.Static(name, "", err)
	}
	return health.PingCheck(name, p)
}
