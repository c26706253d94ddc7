package config

import "time"

// GetDefaultConfigTemplate returns a fully commented config template
// that helps users understand all available options
func GetDefaultConfigTemplate() string {
	return `# deploylog configuration
# See 'deploylog config keys' for all options. Environment variables override
# this file: DEPLOYLOG_<KEY>, with '__' between nested keys (DEPLOYLOG_JIRA__URL).

# Gateways
source: local                         # Source control: local | bitbucket | gitlab
tracker: keyonly                      # Issue tracker: none | keyonly | jira | gitlab
deployment: file                      # Deployment history: none | file | spinnaker

local:
  path: .                             # Working copy used by the local source gateway

deployments_file: .deploylog/deployments.yml

bitbucket:
  url: ""                             # Bitbucket Server root, e.g. https://bitbucket.example.com
  token: ""                           # Prefer DEPLOYLOG_BITBUCKET__TOKEN

gitlab:
  url: https://gitlab.com
  token: ""                           # Prefer DEPLOYLOG_GITLAB__TOKEN

jira:
  url: ""
  user: ""                            # Set for basic auth; empty sends the token as a bearer token
  token: ""

spinnaker:
  url: ""                             # Gate API root; /graphql is appended

# Aggregation
aggregate:
  batch_size: 0                       # Commits per change-request lookup (0 = gateway recommendation)
  max_in_flight: 4                    # Concurrent gateway calls

# HTTP gateways
http:
  timeout: 10s                        # Per-attempt timeout
  retry_max: 2                        # Retries on connection errors, 429 and 5xx (0-10)

# Response cache
cache:
  backend: none                       # none | memory | redis
  redis_addr: localhost:6379          # host:port or redis:// URL
  ttl: 1h                             # Lifetime of cached tracker answers

# Diagnostics
log:
  level: warn                         # debug | info | warn | error
  format: console                     # console | json
tracing:
  exporter: none                      # none | stdout | otlp
  endpoint: ""                        # OTLP/HTTP collector, e.g. localhost:4318
  sample_ratio: 1.0

output: text                          # text | json | yaml | markdown
`
}

// GetDefaults returns the default configuration values
func GetDefaults() map[string]interface{} {
	return map[string]interface{}{
		"source":     "local",
		"tracker":    "keyonly",
		"deployment": "file",
		"local": map[string]interface{}{
			"path": ".",
		},
		"deployments_file": ".deploylog/deployments.yml",
		"gitlab": map[string]interface{}{
			"url": "https://gitlab.com",
		},
		"aggregate": map[string]interface{}{
			"batch_size":    0,
			"max_in_flight": 4,
		},
		"http": map[string]interface{}{
			"timeout":   (10 * time.Second).String(),
			"retry_max": 2,
		},
		"cache": map[string]interface{}{
			"backend":    "none",
			"redis_addr": "localhost:6379",
			"ttl":        time.Hour.String(),
		},
		"log": map[string]interface{}{
			"level":  "warn",
			"format": "console",
		},
		"tracing": map[string]interface{}{
			"exporter":     "none",
			"endpoint":     "",
			"sample_ratio": 1.0,
		},
		"output": "text",
	}
}
