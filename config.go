package gitver

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Built-in branch keys.
const (
	DefaultBranchKey     = "default"
	DevelopBranchKey     = "develop"
	ReleaseBranchKey     = "release"
	FeatureBranchKey     = "feature"
	PullRequestBranchKey = "pull-request"
	HotfixBranchKey      = "hotfix"
	SupportBranchKey     = "support"

	// UnknownBranchKey is reported for branches no configuration matches.
	UnknownBranchKey = "unknown"
)

// Built-in branch regexes.
const (
	DefaultBranchRegex     = `^(master|main|default)$`
	DevelopBranchRegex     = `^dev(elop)?(ment)?$`
	ReleaseBranchRegex     = `^releases?[/-]`
	FeatureBranchRegex     = `^features?[/-]`
	PullRequestBranchRegex = `^(pull|pull\-requests|pr)[/-]`
	HotfixBranchRegex      = `^hotfix(es)?[/-]`
	SupportBranchRegex     = `^support[/-]`
)

// UseBranchNameTag makes the pre-release tag the sanitized branch name.
const UseBranchNameTag = "useBranchName"

// Global defaults.
const (
	DefaultTagPrefix                   = "[vV]"
	DefaultMajorPattern                = `\+semver:\s?(breaking|major)`
	DefaultMinorPattern                = `\+semver:\s?(feature|minor)`
	DefaultPatchPattern                = `\+semver:\s?(fix|patch)`
	DefaultNoBumpPattern               = `\+semver:\s?(none|skip)`
	DefaultPadding                     = 4
	DefaultCommitDateFormat            = "2006-01-02"
	DefaultTaggedCommitsLimit          = 10
	DefaultMergeMessageScanDepth       = 1000
	DefaultAssemblyInformationalFormat = "{Major}.{Minor}.{Patch}{PreReleaseTag}{BuildMetaData}.Branch.{BranchName}.Sha.{Sha}"
)

// Base version strategy names, in their default evaluation order.
const (
	StrategyConfigNextVersion    = "ConfigNextVersion"
	StrategyTaggedCommit         = "TaggedCommit"
	StrategyMergeMessage         = "MergeMessage"
	StrategyVersionInBranchName  = "VersionInBranchName"
	StrategyTrackReleaseBranches = "TrackReleaseBranches"
	StrategyMainline             = "Mainline"

	strategyFallback = "Fallback"
)

// DefaultBaseVersionStrategies returns every built-in strategy name.
func DefaultBaseVersionStrategies() []string {
	return []string{
		StrategyConfigNextVersion,
		StrategyTaggedCommit,
		StrategyMergeMessage,
		StrategyVersionInBranchName,
		StrategyTrackReleaseBranches,
		StrategyMainline,
	}
}

// IncrementStrategy is the configured bump for a branch.
type IncrementStrategy int

const (
	IncrementNone IncrementStrategy = iota
	IncrementPatch
	IncrementMinor
	IncrementMajor
	IncrementInherit
)

var incrementStrategyNames = map[IncrementStrategy]string{
	IncrementNone:    "None",
	IncrementPatch:   "Patch",
	IncrementMinor:   "Minor",
	IncrementMajor:   "Major",
	IncrementInherit: "Inherit",
}

func (s IncrementStrategy) String() string { return enumName(s, incrementStrategyNames) }

// VersionField maps a concrete strategy to the field it bumps. Inherit maps
// to FieldNone; resolve it with StaticIncrement first.
func (s IncrementStrategy) VersionField() VersionField {
	switch s {
	case IncrementPatch:
		return FieldPatch
	case IncrementMinor:
		return FieldMinor
	case IncrementMajor:
		return FieldMajor
	default:
		return FieldNone
	}
}

func (s IncrementStrategy) MarshalYAML() (interface{}, error) { return s.String(), nil }

func (s *IncrementStrategy) UnmarshalYAML(value *yaml.Node) error {
	return unmarshalEnum(value, "increment", incrementStrategyNames, s)
}

// VersioningMode selects how pre-release tags evolve across commits.
type VersioningMode int

const (
	ContinuousDelivery VersioningMode = iota
	ContinuousDeployment
	Mainline
)

var versioningModeNames = map[VersioningMode]string{
	ContinuousDelivery:   "ContinuousDelivery",
	ContinuousDeployment: "ContinuousDeployment",
	Mainline:             "Mainline",
}

func (m VersioningMode) String() string { return enumName(m, versioningModeNames) }

func (m VersioningMode) MarshalYAML() (interface{}, error) { return m.String(), nil }

func (m *VersioningMode) UnmarshalYAML(value *yaml.Node) error {
	return unmarshalEnum(value, "mode", versioningModeNames, m)
}

// CommitMessageIncrementMode controls bump-message scanning.
type CommitMessageIncrementMode int

const (
	CommitMessageIncrementEnabled CommitMessageIncrementMode = iota
	CommitMessageIncrementDisabled
	CommitMessageIncrementMergeMessageOnly
)

var commitMessageIncrementNames = map[CommitMessageIncrementMode]string{
	CommitMessageIncrementEnabled:          "Enabled",
	CommitMessageIncrementDisabled:         "Disabled",
	CommitMessageIncrementMergeMessageOnly: "MergeMessageOnly",
}

func (m CommitMessageIncrementMode) String() string { return enumName(m, commitMessageIncrementNames) }

func (m CommitMessageIncrementMode) MarshalYAML() (interface{}, error) { return m.String(), nil }

func (m *CommitMessageIncrementMode) UnmarshalYAML(value *yaml.Node) error {
	return unmarshalEnum(value, "commit-message-incrementing", commitMessageIncrementNames, m)
}

// AssemblyVersioningScheme selects the four part version rendered for
// assembly style consumers.
type AssemblyVersioningScheme int

const (
	AssemblyMajorMinorPatch AssemblyVersioningScheme = iota
	AssemblyMajorMinor
	AssemblyMajor
	AssemblyMajorMinorPatchTag
	AssemblyNone
)

var assemblyVersioningSchemeNames = map[AssemblyVersioningScheme]string{
	AssemblyMajorMinorPatch:    "MajorMinorPatch",
	AssemblyMajorMinor:         "MajorMinor",
	AssemblyMajor:              "Major",
	AssemblyMajorMinorPatchTag: "MajorMinorPatchTag",
	AssemblyNone:               "None",
}

func (s AssemblyVersioningScheme) String() string { return enumName(s, assemblyVersioningSchemeNames) }

func (s AssemblyVersioningScheme) MarshalYAML() (interface{}, error) { return s.String(), nil }

func (s *AssemblyVersioningScheme) UnmarshalYAML(value *yaml.Node) error {
	return unmarshalEnum(value, "assembly-versioning-scheme", assemblyVersioningSchemeNames, s)
}

func enumName[T ~int](v T, names map[T]string) string {
	if name, ok := names[v]; ok {
		return name
	}
	return strconv.Itoa(int(v))
}

func parseEnum[T ~int](field, s string, names map[T]string) (T, error) {
	for v, name := range names {
		if strings.EqualFold(name, strings.TrimSpace(s)) {
			return v, nil
		}
	}
	var zero T
	return zero, &ConfigurationError{Field: field, Reason: fmt.Sprintf("unknown value %q", s)}
}

func unmarshalEnum[T ~int](value *yaml.Node, field string, names map[T]string, out *T) error {
	parsed, err := parseEnum(field, value.Value, names)
	if err != nil {
		return err
	}
	*out = parsed
	return nil
}

// Config is the repository wide configuration. Pointer fields are optional;
// ResolveConfig returns a copy with every field set.
type Config struct {
	AssemblyVersioningScheme         *AssemblyVersioningScheme   `yaml:"assembly-versioning-scheme,omitempty"`
	AssemblyFileVersioningScheme     *AssemblyVersioningScheme   `yaml:"assembly-file-versioning-scheme,omitempty"`
	AssemblyInformationalFormat      string                      `yaml:"assembly-informational-format,omitempty"`
	TagPrefix                        *string                     `yaml:"tag-prefix,omitempty"`
	NextVersion                      string                      `yaml:"next-version,omitempty"`
	VersioningMode                   *VersioningMode             `yaml:"mode,omitempty"`
	Increment                        *IncrementStrategy          `yaml:"increment,omitempty"`
	MajorVersionBumpMessage          *string                     `yaml:"major-version-bump-message,omitempty"`
	MinorVersionBumpMessage          *string                     `yaml:"minor-version-bump-message,omitempty"`
	PatchVersionBumpMessage          *string                     `yaml:"patch-version-bump-message,omitempty"`
	NoBumpMessage                    *string                     `yaml:"no-bump-message,omitempty"`
	CommitMessageIncrementing        *CommitMessageIncrementMode `yaml:"commit-message-incrementing,omitempty"`
	BuildMetaDataPadding             *int                        `yaml:"build-metadata-padding,omitempty"`
	CommitsSinceVersionSourcePadding *int                        `yaml:"commits-since-version-source-padding,omitempty"`
	CommitDateFormat                 string                      `yaml:"commit-date-format,omitempty"`
	BaseVersionStrategies            []string                    `yaml:"base-version-strategies,omitempty"`
	TaggedCommitsLimit               *int                        `yaml:"tagged-commits-limit,omitempty"`
	MergeMessageScanDepth            *int                        `yaml:"merge-message-scan-depth,omitempty"`
	UnprefixedMergeVersions          *bool                       `yaml:"unprefixed-merge-versions,omitempty"`
	MergeMessageVersionPattern       string                      `yaml:"merge-message-version-pattern,omitempty"`
	Branches                         map[string]*BranchConfig    `yaml:"branches,omitempty"`
}

// BranchConfig holds the rules for one kind of branch.
type BranchConfig struct {
	Regex                                 string             `yaml:"regex,omitempty"`
	SourceBranches                        []string           `yaml:"source-branches"`
	IsSourceBranchFor                     []string           `yaml:"is-source-branch-for,omitempty"`
	Tag                                   *string            `yaml:"tag,omitempty"`
	TagNumberPattern                      string             `yaml:"tag-number-pattern,omitempty"`
	Increment                             *IncrementStrategy `yaml:"increment,omitempty"`
	VersioningMode                        *VersioningMode    `yaml:"mode,omitempty"`
	PreventIncrementOfMergedBranchVersion *bool              `yaml:"prevent-increment-of-merged-branch-version,omitempty"`
	// TrackMergeTarget makes version tags on merge commits in other branches
	// count from the merged commit of this branch.
	TrackMergeTarget                      *bool              `yaml:"track-merge-target,omitempty"`
	TracksReleaseBranches                 *bool              `yaml:"tracks-release-branches,omitempty"`
	IsReleaseBranch                       *bool              `yaml:"is-release-branch,omitempty"`
	IsMainline                            *bool              `yaml:"is-mainline,omitempty"`
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := *c
	out.AssemblyVersioningScheme = clonePtr(c.AssemblyVersioningScheme)
	out.AssemblyFileVersioningScheme = clonePtr(c.AssemblyFileVersioningScheme)
	out.TagPrefix = clonePtr(c.TagPrefix)
	out.VersioningMode = clonePtr(c.VersioningMode)
	out.Increment = clonePtr(c.Increment)
	out.MajorVersionBumpMessage = clonePtr(c.MajorVersionBumpMessage)
	out.MinorVersionBumpMessage = clonePtr(c.MinorVersionBumpMessage)
	out.PatchVersionBumpMessage = clonePtr(c.PatchVersionBumpMessage)
	out.NoBumpMessage = clonePtr(c.NoBumpMessage)
	out.CommitMessageIncrementing = clonePtr(c.CommitMessageIncrementing)
	out.BuildMetaDataPadding = clonePtr(c.BuildMetaDataPadding)
	out.CommitsSinceVersionSourcePadding = clonePtr(c.CommitsSinceVersionSourcePadding)
	out.BaseVersionStrategies = cloneStrings(c.BaseVersionStrategies)
	out.TaggedCommitsLimit = clonePtr(c.TaggedCommitsLimit)
	out.MergeMessageScanDepth = clonePtr(c.MergeMessageScanDepth)
	out.UnprefixedMergeVersions = clonePtr(c.UnprefixedMergeVersions)
	if c.Branches != nil {
		out.Branches = make(map[string]*BranchConfig, len(c.Branches))
		for key, branch := range c.Branches {
			out.Branches[key] = branch.Clone()
		}
	}
	return &out
}

// Clone returns a deep copy of the branch configuration.
func (b *BranchConfig) Clone() *BranchConfig {
	if b == nil {
		return nil
	}
	out := *b
	out.SourceBranches = cloneStrings(b.SourceBranches)
	out.IsSourceBranchFor = cloneStrings(b.IsSourceBranchFor)
	out.Tag = clonePtr(b.Tag)
	out.Increment = clonePtr(b.Increment)
	out.VersioningMode = clonePtr(b.VersioningMode)
	out.PreventIncrementOfMergedBranchVersion = clonePtr(b.PreventIncrementOfMergedBranchVersion)
	out.TrackMergeTarget = clonePtr(b.TrackMergeTarget)
	out.TracksReleaseBranches = clonePtr(b.TracksReleaseBranches)
	out.IsReleaseBranch = clonePtr(b.IsReleaseBranch)
	out.IsMainline = clonePtr(b.IsMainline)
	return &out
}

// Point returns a pointer to v, for filling optional configuration fields.
func Point[T any](v T) *T {
	return &v
}

func deref[T any](p *T) T {
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}
