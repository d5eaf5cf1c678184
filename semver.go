// Package gitver calculates semantic versions for Git repositories from branch
// topology, tags and merge history.
package gitver

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/blang/semver"
)

// VersionField is the component of a version that an increment bumps.
// Values are ordered so that a larger field is a more significant bump.
type VersionField int

const (
	FieldNone VersionField = iota
	FieldPatch
	FieldMinor
	FieldMajor
)

func (f VersionField) String() string {
	switch f {
	case FieldPatch:
		return "Patch"
	case FieldMinor:
		return "Minor"
	case FieldMajor:
		return "Major"
	default:
		return "None"
	}
}

// PreReleaseTag is the pre-release part of a version, e.g. "beta.4".
type PreReleaseTag struct {
	Name      string
	Number    uint64
	HasNumber bool
}

// IsEmpty reports whether the tag carries neither a name nor a number.
func (t PreReleaseTag) IsEmpty() bool {
	return t.Name == "" && !t.HasNumber
}

func (t PreReleaseTag) String() string {
	switch {
	case t.IsEmpty():
		return ""
	case t.Name == "":
		return strconv.FormatUint(t.Number, 10)
	case !t.HasNumber:
		return t.Name
	}
	return fmt.Sprintf("%s.%d", t.Name, t.Number)
}

// BuildMetaData describes where a calculated version came from.
type BuildMetaData struct {
	CommitsSinceTag       int
	CommitsSinceTagPadded string
	Sha                   string
	ShortSha              string
	Branch                string
	CommitDate            string
}

// String renders the short form used in FullSemVer, the commit count.
func (m BuildMetaData) String() string {
	return strconv.Itoa(m.CommitsSinceTag)
}

// FullString renders the long form: count, branch and sha.
func (m BuildMetaData) FullString() string {
	parts := []string{strconv.Itoa(m.CommitsSinceTag)}
	if m.Branch != "" {
		parts = append(parts, "Branch", sanitizeIdentifier(m.Branch))
	}
	if m.Sha != "" {
		parts = append(parts, "Sha", m.Sha)
	}
	return strings.Join(parts, ".")
}

// SemanticVersion is an immutable semantic version value.
type SemanticVersion struct {
	Major         uint64
	Minor         uint64
	Patch         uint64
	PreReleaseTag PreReleaseTag
	BuildMetaData *BuildMetaData
}

// NewVersion returns a release version with the given components.
func NewVersion(major, minor, patch uint64) SemanticVersion {
	return SemanticVersion{Major: major, Minor: minor, Patch: patch}
}

// ParseVersion parses a version string, tolerating a leading "v" and missing
// minor or patch components. Build metadata in the input is discarded.
func ParseVersion(s string) (SemanticVersion, error) {
	parsed, err := semver.ParseTolerant(s)
	if err != nil {
		return SemanticVersion{}, fmt.Errorf("parsing version %q: %w", s, err)
	}
	return fromSemver(parsed), nil
}

func fromSemver(sv semver.Version) SemanticVersion {
	v := SemanticVersion{Major: sv.Major, Minor: sv.Minor, Patch: sv.Patch}

	pre := sv.Pre
	if n := len(pre); n > 0 {
		if last := pre[n-1]; last.IsNum {
			v.PreReleaseTag.Number = last.VersionNum
			v.PreReleaseTag.HasNumber = true
			pre = pre[:n-1]
		}
		names := make([]string, 0, len(pre))
		for _, p := range pre {
			names = append(names, p.String())
		}
		v.PreReleaseTag.Name = strings.Join(names, ".")
	}

	return v
}

func (v SemanticVersion) toSemver() semver.Version {
	sv := semver.Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch}
	if v.PreReleaseTag.Name != "" {
		for _, part := range strings.Split(v.PreReleaseTag.Name, ".") {
			pr, err := semver.NewPRVersion(part)
			if err != nil {
				pr = semver.PRVersion{VersionStr: part}
			}
			sv.Pre = append(sv.Pre, pr)
		}
	}
	if v.PreReleaseTag.HasNumber {
		sv.Pre = append(sv.Pre, semver.PRVersion{VersionNum: v.PreReleaseTag.Number, IsNum: true})
	}
	return sv
}

// IsRelease reports whether the version has no pre-release tag.
func (v SemanticVersion) IsRelease() bool {
	return v.PreReleaseTag.IsEmpty()
}

// Compare returns -1, 0 or 1 following semantic version precedence.
// Build metadata does not take part in the comparison.
func (v SemanticVersion) Compare(o SemanticVersion) int {
	return v.toSemver().Compare(o.toSemver())
}

// Increment bumps the given field, zeroing less significant components and
// dropping any pre-release tag and build metadata. FieldNone returns the
// version unchanged apart from the build metadata.
func (v SemanticVersion) Increment(field VersionField) SemanticVersion {
	out := SemanticVersion{Major: v.Major, Minor: v.Minor, Patch: v.Patch}
	switch field {
	case FieldMajor:
		out.Major++
		out.Minor = 0
		out.Patch = 0
	case FieldMinor:
		out.Minor++
		out.Patch = 0
	case FieldPatch:
		out.Patch++
	default:
		out.PreReleaseTag = v.PreReleaseTag
	}
	return out
}

// MajorMinorPatch renders "major.minor.patch".
func (v SemanticVersion) MajorMinorPatch() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// String renders the version without build metadata, e.g. "1.2.3-beta.4".
func (v SemanticVersion) String() string {
	if v.PreReleaseTag.IsEmpty() {
		return v.MajorMinorPatch()
	}
	return v.MajorMinorPatch() + "-" + v.PreReleaseTag.String()
}

// FullSemVer renders the version with the short build metadata, e.g. "1.2.3-beta.4+7".
func (v SemanticVersion) FullSemVer() string {
	if v.BuildMetaData == nil {
		return v.String()
	}
	return v.String() + "+" + v.BuildMetaData.String()
}
