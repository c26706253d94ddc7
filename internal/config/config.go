package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read as configuration.
// Nested keys are separated by a double underscore: DEPLOYLOG_JIRA__URL.
const EnvPrefix = "DEPLOYLOG_"

// Configuration is the fully merged deploylog configuration.
type Configuration struct {
	Source          string          `koanf:"source" yaml:"source" validate:"oneof=local bitbucket gitlab"`
	Tracker         string          `koanf:"tracker" yaml:"tracker" validate:"oneof=none keyonly jira gitlab"`
	Deployment      string          `koanf:"deployment" yaml:"deployment" validate:"oneof=none file spinnaker"`
	Bitbucket       ServiceConfig   `koanf:"bitbucket" yaml:"bitbucket"`
	GitLab          ServiceConfig   `koanf:"gitlab" yaml:"gitlab"`
	Jira            JiraConfig      `koanf:"jira" yaml:"jira"`
	Spinnaker       ServiceConfig   `koanf:"spinnaker" yaml:"spinnaker"`
	Local           LocalConfig     `koanf:"local" yaml:"local"`
	DeploymentsFile string          `koanf:"deployments_file" yaml:"deployments_file"`
	Aggregate       AggregateConfig `koanf:"aggregate" yaml:"aggregate"`
	HTTP            HTTPConfig      `koanf:"http" yaml:"http"`
	Cache           CacheConfig     `koanf:"cache" yaml:"cache"`
	Log             LogConfig       `koanf:"log" yaml:"log"`
	Tracing         TracingConfig   `koanf:"tracing" yaml:"tracing"`
	Output          string          `koanf:"output" yaml:"output" validate:"oneof=text json yaml markdown"`
}

// ServiceConfig locates a remote service.
type ServiceConfig struct {
	URL   string `koanf:"url" yaml:"url" validate:"omitempty,url"`
	Token string `koanf:"token" yaml:"token,omitempty"`
}

// JiraConfig adds the basic-auth user Jira Server expects alongside a token.
type JiraConfig struct {
	URL   string `koanf:"url" yaml:"url" validate:"omitempty,url"`
	User  string `koanf:"user" yaml:"user,omitempty"`
	Token string `koanf:"token" yaml:"token,omitempty"`
}

// LocalConfig points the local source-control gateway at a working copy.
type LocalConfig struct {
	Path string `koanf:"path" yaml:"path"`
}

// AggregateConfig tunes the aggregation engine. A zero BatchSize defers to
// the gateway's recommendation.
type AggregateConfig struct {
	BatchSize   int `koanf:"batch_size" yaml:"batch_size" validate:"min=0"`
	MaxInFlight int `koanf:"max_in_flight" yaml:"max_in_flight" validate:"min=1,max=64"`
}

// HTTPConfig is handed to every HTTP gateway.
type HTTPConfig struct {
	Timeout  time.Duration `koanf:"timeout" yaml:"timeout" validate:"min=0"`
	RetryMax int           `koanf:"retry_max" yaml:"retry_max" validate:"min=0,max=10"`
}

// CacheConfig selects the gateway response cache.
type CacheConfig struct {
	Backend   string        `koanf:"backend" yaml:"backend" validate:"oneof=none memory redis"`
	RedisAddr string        `koanf:"redis_addr" yaml:"redis_addr"`
	TTL       time.Duration `koanf:"ttl" yaml:"ttl" validate:"min=0"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" yaml:"format" validate:"oneof=console json"`
}

// TracingConfig controls the OpenTelemetry exporter.
type TracingConfig struct {
	Exporter    string  `koanf:"exporter" yaml:"exporter" validate:"oneof=none stdout otlp"`
	Endpoint    string  `koanf:"endpoint" yaml:"endpoint"`
	SampleRatio float64 `koanf:"sample_ratio" yaml:"sample_ratio" validate:"min=0,max=1"`
}

// LoadOptions configures how configuration is loaded.
type LoadOptions struct {
	// ProjectConfigPath overrides the project config lookup (the --config flag).
	ProjectConfigPath string
	// DotEnvPath is the .env file to read. Empty means ".env" in the working
	// directory; a missing file is ignored.
	DotEnvPath string
	// WarningWriter receives warnings about unknown keys. Defaults to os.Stderr.
	WarningWriter io.Writer
	// SkipWarnings suppresses warning output.
	SkipWarnings bool
	// SkipUserConfig ignores the user-level config file. Used by tests.
	SkipUserConfig bool
}

// Load loads configuration from defaults, user config, project config, .env
// and the environment, in increasing priority.
func Load(projectConfigPath string) (*Configuration, error) {
	return LoadWithOptions(LoadOptions{ProjectConfigPath: projectConfigPath})
}

// LoadWithOptions loads configuration with the given options.
func LoadWithOptions(opts LoadOptions) (*Configuration, error) {
	if opts.WarningWriter == nil {
		opts.WarningWriter = os.Stderr
	}

	k := koanf.New(".")

	if err := loadDefaults(k); err != nil {
		return nil, err
	}

	if !opts.SkipUserConfig {
		if err := loadUserConfig(k, opts); err != nil {
			return nil, err
		}
	}

	if err := loadProjectConfig(k, opts); err != nil {
		return nil, err
	}

	if err := loadDotEnv(k, opts.DotEnvPath); err != nil {
		return nil, err
	}

	if err := loadEnvironmentConfig(k); err != nil {
		return nil, err
	}

	return finalizeConfig(k)
}

// loadDefaults loads the built-in default values
func loadDefaults(k *koanf.Koanf) error {
	for key, value := range GetDefaults() {
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("failed to load defaults: %w", err)
		}
	}
	return nil
}

// loadUserConfig loads the user-level config file when present
func loadUserConfig(k *koanf.Koanf, opts LoadOptions) error {
	path, err := UserConfigPath()
	if err != nil || !fileExists(path) {
		return nil
	}
	return loadConfigFile(k, path, "user", opts)
}

// loadProjectConfig loads the project-level config, preferring YAML over JSON.
// An explicit path must exist.
func loadProjectConfig(k *koanf.Koanf, opts LoadOptions) error {
	if opts.ProjectConfigPath != "" {
		if !fileExists(opts.ProjectConfigPath) {
			return fmt.Errorf("config file %s does not exist", opts.ProjectConfigPath)
		}
		return loadConfigFile(k, opts.ProjectConfigPath, "project", opts)
	}

	for _, path := range ProjectConfigPaths() {
		if fileExists(path) {
			return loadConfigFile(k, path, "project", opts)
		}
	}
	return nil
}

// loadConfigFile merges one YAML or JSON file and warns about keys deploylog
// does not know.
func loadConfigFile(k *koanf.Koanf, path, configType string, opts LoadOptions) error {
	fk := koanf.New(".")
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := fk.Load(file.Provider(path), json.Parser()); err != nil {
			return fmt.Errorf("failed to load %s config %s: %w", configType, path, err)
		}
	default:
		if err := checkYAMLSyntax(path); err != nil {
			return err
		}
		if err := fk.Load(file.Provider(path), yaml.Parser()); err != nil {
			return fmt.Errorf("failed to load %s config %s: %w", configType, path, err)
		}
	}

	if !opts.SkipWarnings {
		for _, key := range UnknownKeys(fk.Keys()) {
			fmt.Fprintf(opts.WarningWriter, "Warning: unknown key %q in %s (ignored)\n", key, path)
		}
	}

	if err := k.Merge(fk); err != nil {
		return fmt.Errorf("failed to merge %s config %s: %w", configType, path, err)
	}
	return nil
}

// loadDotEnv reads DEPLOYLOG_ variables from a .env file without touching the
// process environment, so real environment variables loaded next still win.
func loadDotEnv(k *koanf.Koanf, path string) error {
	explicit := path != ""
	if !explicit {
		path = ".env"
	}
	if !fileExists(path) {
		if explicit {
			return fmt.Errorf(".env file %s does not exist", path)
		}
		return nil
	}

	vars, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	for name, value := range vars {
		key := envTransform(name)
		if key == "" {
			continue
		}
		if err := k.Set(key, value); err != nil {
			return fmt.Errorf("failed to apply %s from %s: %w", name, path, err)
		}
	}
	return nil
}

// loadEnvironmentConfig loads environment variable overrides
func loadEnvironmentConfig(k *koanf.Koanf) error {
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return fmt.Errorf("failed to load environment config: %w", err)
	}
	return nil
}

// finalizeConfig unmarshals, validates, and applies final transformations
func finalizeConfig(k *koanf.Koanf) (*Configuration, error) {
	var cfg Configuration
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Local.Path = expandHomePath(cfg.Local.Path)
	cfg.DeploymentsFile = expandHomePath(cfg.DeploymentsFile)

	if err := ValidateConfigValues(&cfg, "config"); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Redacted returns a copy safe to print, with every credential masked.
func (c Configuration) Redacted() Configuration {
	c.Bitbucket.Token = mask(c.Bitbucket.Token)
	c.GitLab.Token = mask(c.GitLab.Token)
	c.Spinnaker.Token = mask(c.Spinnaker.Token)
	c.Jira.Token = mask(c.Jira.Token)
	return c
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}

// fileExists returns true if the file exists and is readable
func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

// envTransform converts environment variable names to config keys.
// Example: DEPLOYLOG_AGGREGATE__BATCH_SIZE -> aggregate.batch_size
// Variables without the prefix map to "" and are skipped.
func envTransform(s string) string {
	if !strings.HasPrefix(s, EnvPrefix) {
		return ""
	}
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// expandHomePath expands ~ to the user's home directory
func expandHomePath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(homeDir, path[2:])
		}
	}
	return path
}
