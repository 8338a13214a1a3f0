// Package paths resolves on-disk locations extbridge writes to.
package paths

import (
	"os"
	"path/filepath"
	"strings"
)

// EnvLogDir names the directory error logs are appended under. Unset
// disables the error log.
const EnvLogDir = "EXTBRIDGE_LOG_DIR"

// LogsDir returns the configured error log directory, or "" when none is set.
// A leading ~ is expanded to the home directory.
func LogsDir() string {
	dir := strings.TrimSpace(os.Getenv(EnvLogDir))
	if dir == "" {
		return ""
	}
	return filepath.Clean(ExpandHome(dir))
}

// LogsDirFor anchors a relative log directory at workdir.
func LogsDirFor(workdir string) string {
	base := LogsDir()
	if base == "" || filepath.IsAbs(base) || strings.TrimSpace(workdir) == "" {
		return base
	}
	return filepath.Join(workdir, base)
}

// ExpandHome replaces a leading "~" or "~/" with the user's home directory.
// The path is returned unchanged when the home directory is unknown.
func ExpandHome(path string) string {
	path = strings.TrimSpace(path)
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~/"))
}
