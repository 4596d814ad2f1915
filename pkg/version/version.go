// Package version provides build and version information for searchrelay.
package version

import (
	"fmt"
	"runtime"
)

// Version is the current version of searchrelay.
// Set via ldflags at build time, or defaults to dev.
var Version = "dev"

// Build information set via ldflags at build time.
var (
	// Commit is the git commit hash.
	Commit = "unknown"

	// Date is the build date in RFC3339 format.
	Date = "unknown"

	// GoVersion is the Go version used to build the binary (set at runtime).
	GoVersion = runtime.Version()
)

// String returns a human-readable version string.
func String() string {
	return fmt.Sprintf("searchrelay %s (commit %s, built %s, %s)", Version, Commit, Date, GoVersion)
}
