// Package version carries build metadata injected via -ldflags.
package version

import "fmt"

var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info renders a one-line version string.
func Info() string {
	return fmt.Sprintf("chispart %s (commit %s, built %s)", Version, Commit, Date)
}
