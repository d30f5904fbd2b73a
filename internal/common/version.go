package common

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
)

// Version information (set via -ldflags during build)
var (
	Version   = "dev"
	Build     = "unknown"
	GitCommit = "unknown"
)

// GetVersion returns the release version, preferring a .version file
// dropped next to the binary by the deploy script.
func GetVersion() string {
	if v := fileVersion(); v != "" {
		Version = v
	}
	return Version
}

// GetFullVersion returns the version with build metadata, used by the
// banner and crash reports.
func GetFullVersion() string {
	return fmt.Sprintf("%s (build: %s, commit: %s)", GetVersion(), Build, gitCommit())
}

// gitCommit prefers the -ldflags value and falls back to the VCS
// revision stamped into the Go build info.
func gitCommit() string {
	if GitCommit != "unknown" {
		return GitCommit
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				return setting.Value
			}
		}
	}
	return GitCommit
}

// fileVersion reads the .version file next to the executable, if any.
func fileVersion() string {
	exePath, err := os.Executable()
	if err != nil {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(filepath.Dir(exePath), ".version"))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
