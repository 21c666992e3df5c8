// SPDX-License-Identifier: MIT
//
// Package build exposes the metadata stamped into the binary with -ldflags:
//
//	go build -ldflags "-X spectro/pkg/build.buildName=spectro \
//	  -X spectro/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds run with every field set to "dev".
package build

import (
	"errors"
	"fmt"
)

// Info is the build metadata reported by `spectro version` and logged on
// startup.
type Info struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// String formats the metadata on one line.
func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", i.Name, i.Version, i.Commit, i.Time)
}

var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildInfo    = Info{
		Name:    "dev",
		Time:    "dev",
		Commit:  "dev",
		Version: "dev",
	}
)

// Initialize copies the ldflags variables into the reported Info. Every
// missing flag is named in the returned error and the dev defaults are kept.
func Initialize() error {
	var errs []error
	if buildName == "" {
		errs = append(errs, errors.New("buildName is required"))
	}
	if buildTime == "" {
		errs = append(errs, errors.New("buildTime is required"))
	}
	if buildCommit == "" {
		errs = append(errs, errors.New("buildCommit is required"))
	}
	if buildVersion == "" {
		errs = append(errs, errors.New("buildVersion is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("build: incomplete ldflags: %w", errors.Join(errs...))
	}

	buildInfo = Info{
		Name:    buildName,
		Time:    buildTime,
		Commit:  buildCommit,
		Version: buildVersion,
	}
	return nil
}

// Get returns the current build metadata.
func Get() Info {
	return buildInfo
}
