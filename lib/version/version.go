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
	GitCommit = "unknown"
	GitDirty  = "false"
	BuildTime = "unknown"
	Version   = "0.1.0-dev"
)

// build is what the toolchain recorded; tests replace it.
var build = func() (*debug.BuildInfo, bool) { return debug.ReadBuildInfo() }

// Commit returns the short commit of the build, with a "-dirty"
// suffix for builds from a modified tree.
func Commit() string {
	commit, dirty := GitCommit, GitDirty == "true"
	if commit == "unknown" {
		if info, ok := build(); ok {
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs.revision":
					commit = setting.Value
				case "vcs.modified":
					dirty = setting.Value == "true"
				}
			}
		}
	}
	if len(commit) > 12 {
		commit = commit[:12]
	}
	if dirty {
		commit += "-dirty"
	}
	return commit
}

// Info returns the one-line version for --version output.
func Info() string {
	return fmt.Sprintf("%s (%s, %s)", Version, Commit(), BuildTime)
}

// Full adds the Go version and platform to Info.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns just the version number.
func Short() string {
	return Version
}
