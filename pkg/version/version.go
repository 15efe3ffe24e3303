// Package version reports which indexsync build is running. Release builds
// stamp the variables below with -ldflags; builds from `go install` fall
// back to the module version and VCS settings recorded by the toolchain.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Stamped with -X github.com/Aman-CERP/indexsync/pkg/version.<Name>=<value>.
var (
	Version = "dev"
	Commit  = "unknown"
	// Date is the build time in RFC3339.
	Date = "unknown"
)

// GoVersion is the toolchain that built the binary.
var GoVersion = runtime.Version()

// BuildInfo is what `indexsync version --json` prints.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	Modified  bool   `json:"modified,omitempty"`
	GoVersion string `json:"go_version"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetInfo returns the stamped values, filling unstamped ones from the
// toolchain's build information.
func GetInfo() BuildInfo {
	info := BuildInfo{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		fillFromBuild(&info, bi.Main.Version, bi.Settings)
	}
	return info
}

// fillFromBuild only replaces values still at their unstamped defaults.
func fillFromBuild(info *BuildInfo, moduleVersion string, settings []debug.BuildSetting) {
	if info.Version == "dev" && moduleVersion != "" && moduleVersion != "(devel)" {
		info.Version = strings.TrimPrefix(moduleVersion, "v")
	}
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			if info.Commit == "unknown" && s.Value != "" {
				info.Commit = s.Value
				if len(info.Commit) > 12 {
					info.Commit = info.Commit[:12]
				}
			}
		case "vcs.time":
			if info.Date == "unknown" && s.Value != "" {
				info.Date = s.Value
			}
		case "vcs.modified":
			info.Modified = s.Value == "true"
		}
	}
}

// String is the one-line form printed by `indexsync version`.
func String() string {
	info := GetInfo()
	commit := info.Commit
	if info.Modified {
		commit += "-dirty"
	}
	return fmt.Sprintf("indexsync %s (commit: %s, built: %s, go: %s)",
		info.Version, commit, info.Date, info.GoVersion)
}

// Short returns the version alone.
func Short() string {
	return GetInfo().Version
}
