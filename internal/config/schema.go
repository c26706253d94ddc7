package config

import (
	"sort"
	"strings"
)

// KeySchema describes one configuration key for 'config keys'.
type KeySchema struct {
	Path          string
	Description   string
	AllowedValues []string
	Secret        bool
}

// KnownKeys is the registry of every configuration key, in display order.
var KnownKeys = []KeySchema{
	{Path: "source", Description: "Source-control gateway", AllowedValues: []string{"local", "bitbucket", "gitlab"}},
	{Path: "tracker", Description: "Issue tracker gateway", AllowedValues: []string{"none", "keyonly", "jira", "gitlab"}},
	{Path: "deployment", Description: "Deployment history gateway", AllowedValues: []string{"none", "file", "spinnaker"}},
	{Path: "local.path", Description: "Working copy for the local gateway"},
	{Path: "deployments_file", Description: "Deployment history file for the file gateway"},
	{Path: "bitbucket.url", Description: "Bitbucket Server root URL"},
	{Path: "bitbucket.token", Description: "Bitbucket access token", Secret: true},
	{Path: "gitlab.url", Description: "GitLab root URL"},
	{Path: "gitlab.token", Description: "GitLab access token", Secret: true},
	{Path: "jira.url", Description: "Jira root URL"},
	{Path: "jira.user", Description: "Jira user for basic auth"},
	{Path: "jira.token", Description: "Jira token or password", Secret: true},
	{Path: "spinnaker.url", Description: "Spinnaker Gate root URL"},
	{Path: "spinnaker.token", Description: "Spinnaker bearer token", Secret: true},
	{Path: "aggregate.batch_size", Description: "Commits per change-request lookup (0 = gateway recommendation)"},
	{Path: "aggregate.max_in_flight", Description: "Maximum concurrent gateway calls"},
	{Path: "http.timeout", Description: "Per-attempt HTTP timeout"},
	{Path: "http.retry_max", Description: "HTTP retries on transient failures"},
	{Path: "cache.backend", Description: "Response cache", AllowedValues: []string{"none", "memory", "redis"}},
	{Path: "cache.redis_addr", Description: "Redis address or URL"},
	{Path: "cache.ttl", Description: "Lifetime of cached tracker answers"},
	{Path: "log.level", Description: "Log level", AllowedValues: []string{"debug", "info", "warn", "error"}},
	{Path: "log.format", Description: "Log encoding", AllowedValues: []string{"console", "json"}},
	{Path: "tracing.exporter", Description: "Trace exporter", AllowedValues: []string{"none", "stdout", "otlp"}},
	{Path: "tracing.endpoint", Description: "OTLP/HTTP collector endpoint"},
	{Path: "tracing.sample_ratio", Description: "Fraction of runs traced (0.0-1.0)"},
	{Path: "output", Description: "Default output format", AllowedValues: []string{"text", "json", "yaml", "markdown"}},
}

// EnvName returns the environment variable that overrides key.
func EnvName(key string) string {
	return EnvPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "__"))
}

// UnknownKeys returns the sorted subset of keys not in KnownKeys.
func UnknownKeys(keys []string) []string {
	known := make(map[string]struct{}, len(KnownKeys))
	for _, k := range KnownKeys {
		known[k.Path] = struct{}{}
	}
	var unknown []string
	for _, key := range keys {
		if _, ok := known[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	sort.Strings(unknown)
	return unknown
}
