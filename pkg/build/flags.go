// SPDX-License-Identifier: MIT
//
// Package build exposes metadata embedded at link time, for example:
//
//	go build -ldflags "-X musicviz/pkg/build.buildVersion=v0.3.0 \
//	    -X musicviz/pkg/build.buildCommit=$(git rev-parse --short HEAD) \
//	    -X musicviz/pkg/build.buildTime=$(date -u +%FT%TZ)"
//
// Development builds run with defaults.
package build

import (
	"errors"
	"fmt"
)

// ErrMissing is wrapped by Initialize when an ldflag was not set.
var ErrMissing = errors.New("build flag not set")

// Info describes the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
)

var buildInfo = defaultInfo()

func defaultInfo() *Info {
	return &Info{
		Name:        "musicviz",
		Description: "Real-time spectrum and waveform visualizer for live or file audio",
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize copies the ldflags into the build info. Flags that are set
// are applied even when others are missing; the error names the first
// missing one so callers can warn about an untagged build.
func Initialize() error {
	fields := []struct {
		name  string
		value string
		dst   *string
	}{
		{"BuildName", buildName, &buildInfo.Name},
		{"BuildTime", buildTime, &buildInfo.Time},
		{"BuildCommit", buildCommit, &buildInfo.Commit},
		{"BuildVersion", buildVersion, &buildInfo.Version},
	}

	var missing error
	for _, f := range fields {
		if f.value == "" {
			if missing == nil {
				missing = fmt.Errorf("%s: %w", f.name, ErrMissing)
			}
			continue
		}
		*f.dst = f.value
	}
	return missing
}

// Get returns the current build information.
func Get() *Info {
	return buildInfo
}

// String formats the info for --version output.
func (i *Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.Commit, i.Time)
}
