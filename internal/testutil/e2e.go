// Package testutil provides fakes, git fixtures and end-to-end helpers for
// deploylog tests.
package testutil

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"
)

var (
	// deploylogBinaryPath caches the built deploylog binary path.
	deploylogBinaryPath string
	deploylogBuildOnce  sync.Once
	deploylogBuildErr   error
)

// E2EEnv runs the deploylog binary in an isolated environment: a temporary
// HOME and user config directory, and none of the caller's DEPLOYLOG_
// variables.
type E2EEnv struct {
	t       *testing.T
	tempDir string
	workDir string
	env     map[string]string
}

// CommandResult captures the result of running a deploylog command.
type CommandResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// NewE2EEnv builds the binary (once per test binary) and creates an
// environment whose working directory is a fresh temp directory.
func NewE2EEnv(t *testing.T) *E2EEnv {
	t.Helper()

	deploylogBuildOnce.Do(func() {
		deploylogBinaryPath, deploylogBuildErr = buildDeploylog()
	})
	if deploylogBuildErr != nil {
		t.Fatalf("building deploylog: %v", deploylogBuildErr)
	}

	tempDir := t.TempDir()
	return &E2EEnv{
		t:       t,
		tempDir: tempDir,
		workDir: tempDir,
		env:     make(map[string]string),
	}
}

func buildDeploylog() (string, error) {
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("determining current file location")
	}
	repoRoot := filepath.Join(filepath.Dir(currentFile), "..", "..")

	tmpDir, err := os.MkdirTemp("", "deploylog-build-*")
	if err != nil {
		return "", fmt.Errorf("creating temp dir for build: %w", err)
	}
	binaryPath := filepath.Join(tmpDir, "deploylog")

	cmd := exec.Command("go", "build", "-o", binaryPath, "./cmd/deploylog")
	cmd.Dir = repoRoot
	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("go build: %w\nOutput: %s", err, output)
	}
	return binaryPath, nil
}

// SetWorkDir changes the directory commands run in.
func (e *E2EEnv) SetWorkDir(dir string) {
	e.workDir = dir
}

// Setenv adds a variable to the environment of every following Run.
func (e *E2EEnv) Setenv(key, value string) {
	e.env[key] = value
}

// WriteFile writes content to a path relative to the working directory.
func (e *E2EEnv) WriteFile(rel, content string) string {
	e.t.Helper()

	path := filepath.Join(e.workDir, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		e.t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		e.t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// Run executes deploylog with args in the isolated environment.
func (e *E2EEnv) Run(args ...string) CommandResult {
	e.t.Helper()

	start := time.Now()
	cmd := exec.Command(deploylogBinaryPath, args...)
	cmd.Dir = e.workDir
	cmd.Env = e.buildIsolatedEnv()

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			e.t.Fatalf("running deploylog: %v", err)
		}
	}
	return result
}

func (e *E2EEnv) buildIsolatedEnv() []string {
	env := []string{
		"HOME=" + e.tempDir,
		"XDG_CONFIG_HOME=" + filepath.Join(e.tempDir, ".config"),
		"NO_COLOR=1",
	}

	safeVars := []string{"PATH", "TERM", "LANG", "LC_ALL", "TMPDIR", "TMP", "TEMP", "SSH_AUTH_SOCK"}
	for _, key := range safeVars {
		if val, ok := os.LookupEnv(key); ok {
			env = append(env, key+"="+val)
		}
	}

	for key, val := range e.env {
		env = append(env, key+"="+val)
	}
	return env
}

// TempDir returns the root temp directory for this environment.
func (e *E2EEnv) TempDir() string {
	return e.tempDir
}
