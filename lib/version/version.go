// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// Release builds set these with -ldflags "-X". Left unset, the commit
// and build time come from the VCS stamp the go command embeds.
var (
	Version   = "0.1.0-dev"
	GitCommit = ""
	GitDirty  = ""
	BuildTime = ""
)

// Stamp identifies the source a binary was built from.
type Stamp struct {
	Commit string
	Dirty  bool
	Time   string
}

// Current returns the linker-set stamp, filling unset fields from the
// embedded build info.
func Current() Stamp {
	stamp := Stamp{Commit: GitCommit, Dirty: GitDirty == "true", Time: BuildTime}
	if stamp.Commit != "" && stamp.Time != "" {
		return stamp
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return stamp.orUnknown()
	}
	return stamp.merge(info.Settings).orUnknown()
}

func (s Stamp) merge(settings []debug.BuildSetting) Stamp {
	fromLinker := s.Commit != ""
	for _, setting := range settings {
		switch setting.Key {
		case "vcs.revision":
			if !fromLinker {
				s.Commit = setting.Value
				if len(s.Commit) > 12 {
					s.Commit = s.Commit[:12]
				}
			}
		case "vcs.modified":
			if !fromLinker {
				s.Dirty = setting.Value == "true"
			}
		case "vcs.time":
			if s.Time == "" {
				s.Time = setting.Value
			}
		}
	}
	return s
}

func (s Stamp) orUnknown() Stamp {
	if s.Commit == "" {
		s.Commit = "unknown"
	}
	if s.Time == "" {
		s.Time = "unknown"
	}
	return s
}

// String formats the stamp as "commit[-dirty], time".
func (s Stamp) String() string {
	dirty := ""
	if s.Dirty {
		dirty = "-dirty"
	}
	return fmt.Sprintf("%s%s, %s", s.Commit, dirty, s.Time)
}

// Info returns the --version line: "0.1.0 (abc1234, 2026-10-01T00:00:00Z)".
func Info() string {
	return fmt.Sprintf("%s (%s)", Version, Current())
}

// Full adds the toolchain and platform to Info.
func Full() string {
	return fmt.Sprintf("%s\n  Go: %s\n  Platform: %s/%s",
		Info(), runtime.Version(), runtime.GOOS, runtime.GOARCH)
}

// Short returns the release version alone. The responder writes it
// into the presence flag, where a commit hash would only add noise.
func Short() string {
	return Version
}
