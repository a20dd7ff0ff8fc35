// SPDX-License-Identifier: MIT
//
// Package build carries the metadata linked into the pitchtrack binary:
// application name, build timestamp, Git commit hash and semantic version.
// Values are injected with linker flags, for example:
//
//	go build -ldflags "-X pitchtrack/pkg/build.buildName=pitchtrack \
//	  -X pitchtrack/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds run with the defaults below.
package build

import "fmt"

// Description is the one-line summary shown in the CLI help.
const Description = "Real-time microphone pitch tracker"

// Info is the build metadata of the running binary.
type Info struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// String formats the version line printed by --version.
func (i Info) String() string {
	return fmt.Sprintf("%s (commit %s, built %s)", i.Version, i.Commit, i.Time)
}

// Package-level variables populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &Info{
		Name:        "pitchtrack",
		Description: Description,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
)

// Initialize validates and copies build information from ldflags variables.
// It returns an error naming the first missing flag, in which case the
// development defaults stay in place.
func Initialize() error {
	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *Info {
	return buildFlags
}
