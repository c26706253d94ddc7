// Package version holds the deploylog build information.
// It has no dependencies so any package can import it.
package version

import (
	"fmt"
	"runtime"
)

var (
	// Version information - set via ldflags during build
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// IsDevBuild returns true if running a development build (not a release).
func IsDevBuild() bool {
	return Version == "dev"
}

// UserAgent is sent to every HTTP gateway.
func UserAgent() string {
	return fmt.Sprintf("deploylog/%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}
