// Package version reports the pipefixture build version. Values are injected
// at build time with -ldflags "-X pipefixture/internal/version.Version=...".
package version

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Name is the product name shown in version strings.
const Name = "pipefixture"

// Build information, overridable with -ldflags.
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info describes the running binary.
type Info struct {
	Version   string          `json:"version"`
	GitCommit string          `json:"gitCommit"`
	BuildDate string          `json:"buildDate"`
	GoVersion string          `json:"goVersion"`
	Platform  string          `json:"platform"`
	SemVer    *semver.Version `json:"-"`
}

func parse() (*semver.Version, error) {
	sv, err := semver.NewVersion(Version)
	if err != nil {
		return nil, fmt.Errorf("invalid semantic version '%s': %w", Version, err)
	}
	return sv, nil
}

func known(s string) bool {
	return s != "" && s != "unknown"
}

// GetVersion returns the raw version string.
func GetVersion() string {
	return Version
}

// GetInfo returns the build information, or an error when Version is not a
// semantic version.
func GetInfo() (*Info, error) {
	sv, err := parse()
	if err != nil {
		return nil, err
	}
	return &Info{
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
		SemVer:    sv,
	}, nil
}

// ValidateVersion checks Version is a semantic version.
func ValidateVersion() error {
	_, err := parse()
	return err
}

// GetBaseVersion returns major.minor.patch, or Version unchanged when it does
// not parse.
func GetBaseVersion() string {
	sv, err := parse()
	if err != nil {
		return Version
	}
	return fmt.Sprintf("%d.%d.%d", sv.Major(), sv.Minor(), sv.Patch())
}

// GetBuildMetadata returns the part of Version after "+".
func GetBuildMetadata() string {
	if sv, err := parse(); err == nil {
		return sv.Metadata()
	}
	return ""
}

// GetCommitCount returns N from build metadata of the form N.<sha>, or 0.
func GetCommitCount() int {
	first, _, _ := strings.Cut(GetBuildMetadata(), ".")
	n, err := strconv.Atoi(first)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// IsPrerelease reports whether Version carries a prerelease tag.
func IsPrerelease() bool {
	sv, err := parse()
	return err == nil && sv.Prerelease() != ""
}

// IsDevelopment reports whether the binary was built without release
// information.
func IsDevelopment() bool {
	return !known(GitCommit) || !known(BuildDate)
}

// CompareVersions returns -1, 0 or 1 as v1 is older, equal or newer than v2.
func CompareVersions(v1, v2 string) (int, error) {
	sv1, err := semver.NewVersion(v1)
	if err != nil {
		return 0, fmt.Errorf("invalid version v1 '%s': %w", v1, err)
	}
	sv2, err := semver.NewVersion(v2)
	if err != nil {
		return 0, fmt.Errorf("invalid version v2 '%s': %w", v2, err)
	}
	return sv1.Compare(sv2), nil
}

// Satisfies reports whether Version meets a constraint such as ">= 0.1.0".
// Fixture files use it to declare the tool version they need.
func Satisfies(constraint string) (bool, error) {
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, fmt.Errorf("invalid version constraint '%s': %w", constraint, err)
	}
	sv, err := parse()
	if err != nil {
		return false, err
	}
	return c.Check(sv), nil
}

// GetFormattedVersion returns a one-line version string with the short commit
// and build date when they are known.
func GetFormattedVersion() string {
	if err := ValidateVersion(); err != nil {
		return fmt.Sprintf("%s v%s (invalid version)", Name, Version)
	}
	parts := []string{fmt.Sprintf("%s v%s", Name, Version)}
	if known(GitCommit) {
		commit := GitCommit
		if len(commit) > 7 {
			commit = commit[:7]
		}
		parts = append(parts, "commit "+commit)
	}
	if known(BuildDate) {
		parts = append(parts, "built "+BuildDate)
	}
	return strings.Join(parts, ", ")
}

// GetDetailedVersion returns multi-line version information for bug reports.
func GetDetailedVersion() string {
	info, err := GetInfo()
	if err != nil {
		return fmt.Sprintf("%s v%s (error: %v)", Name, Version, err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s v%s\n", Name, info.Version)
	fmt.Fprintf(&b, "Git Commit: %s\n", info.GitCommit)
	fmt.Fprintf(&b, "Build Date: %s\n", info.BuildDate)
	if n := GetCommitCount(); n > 0 {
		fmt.Fprintf(&b, "Commit Count: %d\n", n)
	}
	if meta := info.SemVer.Metadata(); meta != "" {
		fmt.Fprintf(&b, "Build Metadata: %s\n", meta)
	}
	fmt.Fprintf(&b, "Go Version: %s\n", info.GoVersion)
	fmt.Fprintf(&b, "Platform: %s", info.Platform)
	return b.String()
}

// SetBuildInfo overrides the build variables. Tests use it.
func SetBuildInfo(version, gitCommit, buildDate string) {
	Version = version
	GitCommit = gitCommit
	BuildDate = buildDate
}

var buildDateLayouts = []string{time.RFC3339, time.DateTime, time.DateOnly}

// GetBuildTime parses BuildDate.
func GetBuildTime() (time.Time, error) {
	if !known(BuildDate) {
		return time.Time{}, errors.New("build date not available")
	}
	for _, layout := range buildDateLayouts {
		if t, err := time.Parse(layout, BuildDate); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unable to parse build date '%s'", BuildDate)
}
