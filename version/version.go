package version

import (
	"fmt"
	"runtime"

	"github.com/Masterminds/semver/v3"
)

// Build information. These variables are set at build time via ldflags.
var (
	// CommitHash is the git commit hash when the binary was built
	CommitHash = "dev"

	// BuildTime is when the binary was built
	BuildTime = "unknown"

	// Version is the semantic version (if tagged)
	Version = "dev"
)

// Info contains version and build information
type Info struct {
	CommitHash string `json:"commit_hash" yaml:"commit_hash"`
	BuildTime  string `json:"build_time" yaml:"build_time"`
	Version    string `json:"version" yaml:"version"`
	GoVersion  string `json:"go_version" yaml:"go_version"`
	Platform   string `json:"platform" yaml:"platform"`
}

// Get returns the current version information
func Get() Info {
	return Info{
		CommitHash: CommitHash,
		BuildTime:  BuildTime,
		Version:    Version,
		GoVersion:  runtime.Version(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// Semver parses Version. Untagged builds report an error.
func (i Info) Semver() (*semver.Version, error) {
	return semver.NewVersion(i.Version)
}

// IsRelease reports whether the build carries a tagged, non-prerelease version.
func (i Info) IsRelease() bool {
	v, err := i.Semver()
	return err == nil && v.Prerelease() == ""
}

// Satisfies checks the build version against a constraint such as ">= 1.2".
// Development builds satisfy nothing.
func (i Info) Satisfies(constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, err
	}
	v, err := i.Semver()
	if err != nil {
		return false, nil
	}
	return c.Check(v), nil
}

// String returns a human-readable version string
func (i Info) String() string {
	if v, err := i.Semver(); err == nil {
		return fmt.Sprintf("notify v%s (commit %s, built %s)", v.String(), i.Short(), i.BuildTime)
	}
	return fmt.Sprintf("notify dev (commit %s, built %s)", i.Short(), i.BuildTime)
}

// Short returns a short version string with just the commit hash
func (i Info) Short() string {
	if len(i.CommitHash) >= 7 {
		return i.CommitHash[:7]
	}
	return i.CommitHash
}
