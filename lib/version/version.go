// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// These variables are set via -ldflags at build time.
var (
	// GitCommit is the short git SHA of the build.
	GitCommit = "unknown"

	// GitDirty indicates whether there were uncommitted changes.
	GitDirty = "false"

	// BuildTime is the UTC timestamp of the build.
	BuildTime = "unknown"

	// Version is the semantic version. This is set manually for releases.
	Version = "0.1.0-dev"
)

// readBuildInfo is replaced in tests.
var readBuildInfo = debug.ReadBuildInfo

// commit returns GitCommit, falling back to the VCS revision the Go
// toolchain embeds when building from a checkout.
func commit() (revision string, dirty bool) {
	if GitCommit != "unknown" {
		return GitCommit, GitDirty == "true"
	}
	info, ok := readBuildInfo()
	if !ok {
		return GitCommit, false
	}
	revision = GitCommit
	for _, setting := range info.Settings {
		switch setting.Key {
		case "vcs.revision":
			revision = setting.Value
			if len(revision) > 7 {
				revision = revision[:7]
			}
		case "vcs.modified":
			dirty = setting.Value == "true"
		}
	}
	return revision, dirty
}

// Info returns a formatted version string suitable for --version output.
func Info() string {
	revision, dirty := commit()
	suffix := ""
	if dirty {
		suffix = "-dirty"
	}
	return fmt.Sprintf("%s (%s%s, %s)", Version, revision, suffix, BuildTime)
}

// Full returns detailed version information including Go version.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version number.
func Short() string {
	return Version
}

// Build is the build information in a form that encodes as a VICI
// message, shaped like the daemon's own version response.
type Build struct {
	Daemon    string `vici:"daemon"`
	Version   string `vici:"version"`
	Commit    string `vici:"commit"`
	Dirty     bool   `vici:"dirty"`
	BuildTime string `vici:"build_time"`
	Sysname   string `vici:"sysname"`
	Machine   string `vici:"machine"`
	GoVersion string `vici:"go_version"`
}

// Describe returns the build information of program.
func Describe(program string) Build {
	revision, dirty := commit()
	return Build{
		Daemon:    program,
		Version:   Version,
		Commit:    revision,
		Dirty:     dirty,
		BuildTime: BuildTime,
		Sysname:   runtime.GOOS,
		Machine:   runtime.GOARCH,
		GoVersion: runtime.Version(),
	}
}
