package cli

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/deploylog/deploylog/internal/cache"
	"github.com/deploylog/deploylog/internal/changelog"
	"github.com/deploylog/deploylog/internal/config"
	clierrors "github.com/deploylog/deploylog/internal/errors"
	"github.com/deploylog/deploylog/internal/gateway"
	"github.com/deploylog/deploylog/internal/gateway/bitbucket"
	"github.com/deploylog/deploylog/internal/gateway/deployfile"
	gitlabgw "github.com/deploylog/deploylog/internal/gateway/gitlab"
	"github.com/deploylog/deploylog/internal/gateway/jira"
	"github.com/deploylog/deploylog/internal/gateway/local"
	"github.com/deploylog/deploylog/internal/gateway/spinnaker"
	"github.com/deploylog/deploylog/internal/git"
	"github.com/deploylog/deploylog/internal/logger"
	"github.com/deploylog/deploylog/internal/observability"
	"github.com/deploylog/deploylog/internal/transport"
	"github.com/deploylog/deploylog/internal/version"
	"github.com/spf13/cobra"
)

const (
	redisPingTimeout  = 2 * time.Second
	telemetryFlushMax = 5 * time.Second
)

// app holds what one command invocation needs: configuration, logging,
// tracing and the gateways, built on first use.
type app struct {
	cfg       *config.Configuration
	log       *logger.Logger
	runID     string
	telemetry *observability.Telemetry
	store     cache.Store
	closers   []func() error

	repo      *git.Repository
	bitbucket *bitbucket.Client
	gitlab    *gitlabgw.Client
	source    gateway.SourceControl
	tracker   gateway.Tracker
	deploy    gateway.Deployment
}

// loadConfig loads configuration and applies the persistent flags the user
// set explicitly.
func loadConfig(cmd *cobra.Command) (*config.Configuration, error) {
	cfg, err := config.LoadWithOptions(config.LoadOptions{
		ProjectConfigPath: configPath,
		WarningWriter:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, clierrors.Wrap(err, clierrors.Configuration,
			"Run 'deploylog config keys' to list valid keys and values",
			"Run 'deploylog config show' to see the merged configuration")
	}
	if err := applyFlagOverrides(cmd, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Configuration) error {
	flags := cmd.Flags()
	if flags.Changed("output") {
		f, err := outputFormat(outputFlag)
		if err != nil {
			return err
		}
		cfg.Output = string(f)
	}
	if flags.Changed("batch-size") {
		if batchSizeFlag < 0 {
			return clierrors.NewArgumentError("--batch-size must not be negative", "Use 0 to let the gateway choose")
		}
		cfg.Aggregate.BatchSize = batchSizeFlag
	}
	if flags.Changed("max-in-flight") {
		if maxInFlightFlag < 1 {
			return clierrors.NewArgumentError("--max-in-flight must be at least 1")
		}
		cfg.Aggregate.MaxInFlight = maxInFlightFlag
	}
	if verboseFlag {
		cfg.Log.Level = "debug"
	}
	return nil
}

// newApp loads configuration and sets up logging and tracing.
func newApp(ctx context.Context, cmd *cobra.Command) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return newAppFromConfig(ctx, cfg, cmd.ErrOrStderr())
}

func newAppFromConfig(ctx context.Context, cfg *config.Configuration, errOut io.Writer) (*app, error) {
	base, err := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	if err != nil {
		return nil, clierrors.Wrap(err, clierrors.Configuration, "Check log.level and log.format")
	}
	runID := logger.NewRunID()
	log := base.With("run_id", runID)

	telemetry, err := observability.Setup(ctx, observability.Options{
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		SampleRatio:    cfg.Tracing.SampleRatio,
		ServiceVersion: version.Version,
		RunID:          runID,
		Writer:         errOut,
	})
	if err != nil {
		return nil, clierrors.Wrap(err, clierrors.Configuration, "Check tracing.exporter and tracing.endpoint")
	}

	gitLog := log.Named("git")
	git.SetDebugLogger(func(format string, args ...any) {
		gitLog.Debug(fmt.Sprintf(format, args...))
	})

	a := &app{cfg: cfg, log: log, runID: runID, telemetry: telemetry}
	a.openCache(ctx)
	log.Debug("configuration loaded",
		"source", cfg.Source,
		"tracker", cfg.Tracker,
		"deployment", cfg.Deployment,
		"cache", cfg.Cache.Backend)
	return a, nil
}

// openCache picks the response store. An unreachable Redis disables caching
// instead of failing the run.
func (a *app) openCache(ctx context.Context) {
	switch a.cfg.Cache.Backend {
	case "memory":
		a.store = cache.NewMemoryStore()
	case "redis":
		rs, err := cache.NewRedisStore(a.cfg.Cache.RedisAddr)
		if err != nil {
			a.log.Warn("redis cache disabled", "error", err)
			return
		}
		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := rs.Ping(pingCtx); err != nil {
			a.log.Warn("redis cache unreachable, continuing without cache", "addr", a.cfg.Cache.RedisAddr, "error", err)
			_ = rs.Close()
			return
		}
		a.store = rs
		a.closers = append(a.closers, rs.Close)
	}
}

// Close flushes traces and releases the cache connection.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.log.Debug("close failed", "error", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), telemetryFlushMax)
	defer cancel()
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.log.Warn("flushing traces failed", "error", err)
	}
	git.SetDebugLogger(nil)
	a.log.Sync()
}

func (a *app) restClient(name string, svc config.ServiceConfig, username string) (*transport.Client, error) {
	rest, err := transport.New(transport.Options{
		BaseURL:   svc.URL,
		Auth:      transport.Auth{Username: username, Token: svc.Token},
		Timeout:   a.cfg.HTTP.Timeout,
		RetryMax:  a.cfg.HTTP.RetryMax,
		UserAgent: version.UserAgent(),
		Logger:    a.log.Named(name),
	})
	if err != nil {
		return nil, clierrors.Wrap(err, clierrors.Configuration,
			fmt.Sprintf("Check %s.url (%s)", name, config.EnvName(name+".url")))
	}
	return rest, nil
}

func (a *app) localRepository() (*git.Repository, error) {
	if a.repo != nil {
		return a.repo, nil
	}
	repo, err := git.Open(a.cfg.Local.Path)
	if err != nil {
		return nil, clierrors.WrapWithMessage(err, clierrors.Configuration,
			fmt.Sprintf("cannot open git repository at %s", a.cfg.Local.Path),
			"Run deploylog inside a clone, or set local.path")
	}
	a.repo = repo
	return repo, nil
}

func (a *app) bitbucketClient() (*bitbucket.Client, error) {
	if a.bitbucket != nil {
		return a.bitbucket, nil
	}
	rest, err := a.restClient("bitbucket", a.cfg.Bitbucket, "")
	if err != nil {
		return nil, err
	}
	a.bitbucket = bitbucket.New(rest)
	return a.bitbucket, nil
}

func (a *app) gitlabClient() (*gitlabgw.Client, error) {
	if a.gitlab != nil {
		return a.gitlab, nil
	}
	api, err := gitlabgw.NewSDKClient(gitlabgw.Options{
		BaseURL:  a.cfg.GitLab.URL,
		Token:    a.cfg.GitLab.Token,
		Timeout:  a.cfg.HTTP.Timeout,
		RetryMax: a.cfg.HTTP.RetryMax,
	})
	if err != nil {
		return nil, clierrors.Wrap(err, clierrors.Configuration, "Check gitlab.url")
	}
	a.gitlab = gitlabgw.New(api)
	return a.gitlab, nil
}

// sourceControl builds the configured source-control gateway, behind the
// response cache when one is configured.
func (a *app) sourceControl() (gateway.SourceControl, error) {
	if a.source != nil {
		return a.source, nil
	}

	var (
		sc        gateway.SourceControl
		namespace string
	)
	switch a.cfg.Source {
	case "local":
		repo, err := a.localRepository()
		if err != nil {
			return nil, err
		}
		sc, namespace = local.New(repo), "local:"+repo.Root()
	case "bitbucket":
		c, err := a.bitbucketClient()
		if err != nil {
			return nil, err
		}
		sc, namespace = c, "bitbucket:"+a.cfg.Bitbucket.URL
	case "gitlab":
		c, err := a.gitlabClient()
		if err != nil {
			return nil, err
		}
		sc, namespace = c, "gitlab:"+a.cfg.GitLab.URL
	default:
		return nil, clierrors.GatewayNotConfigured("source-control", "source")
	}

	if a.store != nil {
		sc = cache.NewSourceControl(sc, a.store, namespace,
			cache.WithLogger(a.log.Named("cache")))
	}
	a.source = sc
	return sc, nil
}

// issueTracker builds the configured issue tracker. Jira picks up the issue links
// Bitbucket keeps on pull requests when Bitbucket is the source.
func (a *app) issueTracker() (gateway.Tracker, error) {
	if a.tracker != nil {
		return a.tracker, nil
	}

	var (
		tr        gateway.Tracker
		namespace string
	)
	switch a.cfg.Tracker {
	case "none":
		a.tracker = gateway.NoTracker{}
		return a.tracker, nil
	case "keyonly":
		a.tracker = gateway.KeyOnlyTracker{}
		return a.tracker, nil
	case "jira":
		rest, err := a.restClient("jira", config.ServiceConfig{URL: a.cfg.Jira.URL, Token: a.cfg.Jira.Token}, a.cfg.Jira.User)
		if err != nil {
			return nil, err
		}
		opts := []jira.Option{jira.WithLogger(a.log.Named("jira"))}
		if a.cfg.Source == "bitbucket" {
			bb, err := a.bitbucketClient()
			if err != nil {
				return nil, err
			}
			opts = append(opts, jira.WithLinkSource(bb))
		}
		tr, namespace = jira.New(rest, opts...), "jira:"+a.cfg.Jira.URL
	case "gitlab":
		c, err := a.gitlabClient()
		if err != nil {
			return nil, err
		}
		tr, namespace = c, "gitlab-issues:"+a.cfg.GitLab.URL
	default:
		return nil, clierrors.GatewayNotConfigured("issue tracker", "tracker")
	}

	if a.store != nil {
		tr = cache.NewTracker(tr, a.store, namespace,
			cache.WithTTL(a.cfg.Cache.TTL),
			cache.WithLogger(a.log.Named("cache")))
	}
	a.tracker = tr
	return tr, nil
}

// deployment builds the deployment history gateway. It returns nil when
// deployment is "none"; environment references then fail to resolve.
func (a *app) deployment() (gateway.Deployment, error) {
	if a.deploy != nil {
		return a.deploy, nil
	}
	switch a.cfg.Deployment {
	case "none":
		return nil, nil
	case "file":
		file, err := deployfile.Load(a.cfg.DeploymentsFile)
		if err != nil {
			return nil, clierrors.Wrap(err, clierrors.Configuration,
				fmt.Sprintf("Check deployments_file (%s)", a.cfg.DeploymentsFile))
		}
		a.deploy = deployfile.New(file)
	case "spinnaker":
		rest, err := a.restClient("spinnaker", a.cfg.Spinnaker, "")
		if err != nil {
			return nil, err
		}
		a.deploy = spinnaker.New(transport.NewGraphQL(rest, ""))
	default:
		return nil, clierrors.GatewayNotConfigured("deployment", "deployment")
	}
	return a.deploy, nil
}

// inferRepository names the repository of the local checkout: the path of its
// origin remote, or "local/<directory>" without one.
func (a *app) inferRepository() (changelog.RepositoryID, error) {
	repo, err := a.localRepository()
	if err != nil {
		return changelog.RepositoryID{}, clierrors.NewArgumentErrorWithUsage(
			"no repository given and the working directory is not a git repository",
			"deploylog range <PROJECT/repo> <start> <end>",
			"Pass the repository explicitly, e.g. PAY/payments-api")
	}
	id, err := repo.OriginRepository()
	if err == nil {
		return id, nil
	}
	if a.cfg.Source != "local" {
		return changelog.RepositoryID{}, clierrors.NewArgumentErrorWithUsage(
			fmt.Sprintf("cannot infer the repository: %v", err),
			"deploylog range <PROJECT/repo> <start> <end>",
			"Pass the repository explicitly, e.g. PAY/payments-api")
	}
	a.log.Debug("no usable origin remote, naming repository after its directory", "error", err)
	root, absErr := filepath.Abs(repo.Root())
	if absErr != nil {
		root = repo.Root()
	}
	return changelog.RepositoryID{Project: "local", Name: filepath.Base(root)}, nil
}
