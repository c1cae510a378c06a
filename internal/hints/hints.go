// Package hints provides actionable error hints for common failure scenarios.
// Hints are formatted consistently as "\n  hint: <text>" for appending to error messages.
package hints

import (
	"runtime"
	"strings"

	"github.com/alnah/go-mdpreview/internal/fileutil"
)

// IsInContainer detects if running inside a Docker container or similar.
// Checks for /.dockerenv file which Docker creates automatically.
var IsInContainer = func() bool {
	return fileutil.FileExists("/.dockerenv")
}

// ForWatchFailure returns hints for file watch setup errors.
// On Linux the usual cause is an exhausted inotify watch budget.
func ForWatchFailure() string {
	var hints []string

	if runtime.GOOS == "linux" {
		hints = append(hints, "check fs.inotify.max_user_watches if watches are exhausted")
	}
	if IsInContainer() {
		hints = append(hints, "container runtimes often cap inotify instances")
	}

	return formatHints(hints)
}

// ForConfigNotFound returns hints for config file not found errors.
// Suggests --config flag and creating a config in ~/.config/mdpreview/.
func ForConfigNotFound(searchedPaths []string) string {
	hint := "use --config /path/to/file.yaml"

	// Find a user config path (contains .config/mdpreview) to suggest
	for _, p := range searchedPaths {
		if strings.Contains(p, ".config/mdpreview") {
			hint += " or create " + p
			break
		}
	}

	return format(hint)
}

// ForOutputDirectory returns hints for output directory creation errors.
func ForOutputDirectory() string {
	return format("check parent directory exists and is writable")
}

// ForThemeNotFound returns hints for theme not found errors.
func ForThemeNotFound(available []string) string {
	if len(available) == 0 {
		return ""
	}
	return format("available: " + strings.Join(available, ", "))
}

// ForAssetDir returns hints for custom asset directory errors.
func ForAssetDir() string {
	return format("the directory must contain styles/ and templates/ subdirectories")
}

// format creates a single hint string with consistent formatting.
func format(hint string) string {
	if hint == "" {
		return ""
	}
	return "\n  hint: " + hint
}

// formatHints joins multiple hints with consistent formatting.
func formatHints(hints []string) string {
	if len(hints) == 0 {
		return ""
	}
	return format(strings.Join(hints, "; "))
}
