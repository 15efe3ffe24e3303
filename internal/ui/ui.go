// Package ui renders pipeline state for the command line: health, sync
// status, queue counters, job listings and search hits. Every renderer has
// a JSON mode for scripting.
package ui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// ciEnvVars mark non-interactive runs where colour codes end up in logs.
var ciEnvVars = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "BUILDKITE"}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || f == nil {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// DetectNoColor reports whether NO_COLOR is set, to any value.
func DetectNoColor() bool {
	_, set := os.LookupEnv("NO_COLOR")
	return set
}

// DetectCI reports whether a known CI variable is set.
func DetectCI() bool {
	for _, v := range ciEnvVars {
		if _, set := os.LookupEnv(v); set {
			return true
		}
	}
	return false
}

// ShouldColor decides styling for output to w. NO_COLOR always wins;
// INDEXSYNC_FORCE_COLOR styles output piped to `less -R` or captured by a
// supervisor that understands ANSI.
func ShouldColor(w io.Writer) bool {
	if DetectNoColor() {
		return false
	}
	if os.Getenv("INDEXSYNC_FORCE_COLOR") != "" {
		return true
	}
	return IsTTY(w) && !DetectCI()
}
