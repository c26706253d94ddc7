// Package health runs the checks behind 'deploylog doctor': the local
// repository, each configured gateway and the cache backend.
package health

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultTimeout bounds a single check.
const DefaultTimeout = 10 * time.Second

// Pinger is implemented by the remote gateways. Ping returns a short
// description of what answered.
type Pinger interface {
	Ping(ctx context.Context) (string, error)
}

// Check is one named probe.
type Check struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

// PingCheck adapts a Pinger to a Check.
func PingCheck(name string, p Pinger) Check {
	return Check{Name: name, Run: p.Ping}
}

// Static is a check that always reports msg, or err when it is set. It
// reports failures found while building the other checks.
func Static(name, msg string, err error) Check {
	return Check{Name: name, Run: func(context.Context) (string, error) { return msg, err }}
}

// CheckResult represents the result of a single health check
type CheckResult struct {
	Name     string
	Passed   bool
	Message  string
	Duration time.Duration
}

// Report contains all check results in the order the checks were given.
type Report struct {
	Checks []CheckResult
	Passed bool
}

// Run executes the checks concurrently. Each check gets its own timeout; a
// check still running when ctx ends fails with the context error.
func Run(ctx context.Context, checks []Check, timeout time.Duration) *Report {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	results := make([]CheckResult, len(checks))
	var g errgroup.Group
	for i, c := range checks {
		g.Go(func() error {
			results[i] = runOne(ctx, c, timeout)
			return nil
		})
	}
	_ = g.Wait()

	report := &Report{Checks: results, Passed: true}
	for _, r := range results {
		if !r.Passed {
			report.Passed = false
		}
	}
	return report
}

func runOne(ctx context.Context, c Check, timeout time.Duration) CheckResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	msg, err := c.Run(ctx)
	res := CheckResult{Name: c.Name, Passed: err == nil, Message: msg, Duration: time.Since(start)}
	if err != nil {
		res.Message = err.Error()
	}
	return res
}

// FormatReport formats the report for console output, one line per check.
func FormatReport(report *Report) string {
	var b strings.Builder
	for _, check := range report.Checks {
		mark := "✓"
		if !check.Passed {
			mark = "✗"
		}
		fmt.Fprintf(&b, "%s %s: %s\n", mark, check.Name, check.Message)
	}
	return b.String()
}
