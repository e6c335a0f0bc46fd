// Package ui provides terminal styling and environment detection for the
// CLI output.
package ui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// IsTTY checks if output is a terminal.
func IsTTY(w io.Writer) bool {
	if w == nil {
		return false
	}

	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}

	return false
}

// DetectNoColor checks if the NO_COLOR environment variable is set.
func DetectNoColor() bool {
	_, exists := os.LookupEnv("NO_COLOR")
	return exists
}

// DetectCI checks if running in a CI environment.
func DetectCI() bool {
	ciVars := []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "JENKINS_URL", "TRAVIS"}
	for _, v := range ciVars {
		if _, exists := os.LookupEnv(v); exists {
			return true
		}
	}
	return false
}

// StylesFor picks styles for the given writer, honoring NO_COLOR and CI
// environments and disabling color for non-TTY outputs.
func StylesFor(w io.Writer, noColorFlag bool) Styles {
	if noColorFlag || DetectNoColor() || DetectCI() || !IsTTY(w) {
		return NoColorStyles()
	}
	return DefaultStyles()
}
