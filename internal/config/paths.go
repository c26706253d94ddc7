package config

import (
	"fmt"
	"os"
	"path/filepath"
)

// projectDir holds the project config and the default deployments file,
// relative to the working directory.
const projectDir = ".deploylog"

// UserConfigPath returns <os.UserConfigDir>/deploylog/config.yml, which is
// $XDG_CONFIG_HOME (or ~/.config) on Linux and ~/Library/Application Support
// on macOS.
func UserConfigPath() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating user config directory: %w", err)
	}
	return filepath.Join(base, "deploylog", "config.yml"), nil
}

// ProjectConfigPath is the file 'deploylog config init' writes.
func ProjectConfigPath() string {
	return filepath.Join(projectDir, "config.yml")
}

// ProjectConfigPaths lists the project config files in lookup order; the
// first one that exists is loaded.
func ProjectConfigPaths() []string {
	return []string{ProjectConfigPath(), filepath.Join(projectDir, "config.json")}
}
