package gitver

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// ConfigurationError reports an invalid or incomplete configuration.
type ConfigurationError struct {
	Branch string
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Branch == "" {
		return fmt.Sprintf("invalid configuration: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("branch configuration %q: %s: %s", e.Branch, e.Field, e.Reason)
}

// archetype holds the built-in defaults for one branch key.
type archetype struct {
	key              string
	regex            string
	sourceBranches   []string
	tag              string
	tagNumberPattern string

	// nil falls back to the global setting
	increment *IncrementStrategy
	mode      *VersioningMode

	preventIncrement      bool
	trackMergeTarget      bool
	tracksReleaseBranches bool
	isReleaseBranch       bool
	isMainline            bool
}

// archetypes returns the built-in branch kinds in matching order.
func archetypes() []archetype {
	everything := []string{DevelopBranchKey, DefaultBranchKey, ReleaseBranchKey, FeatureBranchKey, SupportBranchKey, HotfixBranchKey}

	return []archetype{
		{
			key:                   DevelopBranchKey,
			regex:                 DevelopBranchRegex,
			sourceBranches:        []string{},
			tag:                   "alpha",
			increment:             Point(IncrementMinor),
			mode:                  Point(ContinuousDeployment),
			trackMergeTarget:      true,
			tracksReleaseBranches: true,
		},
		{
			key:              DefaultBranchKey,
			regex:            DefaultBranchRegex,
			sourceBranches:   []string{DevelopBranchKey, ReleaseBranchKey},
			tag:              "",
			increment:        Point(IncrementPatch),
			mode:             Point(Mainline),
			preventIncrement: true,
			isMainline:       true,
		},
		{
			key:              ReleaseBranchKey,
			regex:            ReleaseBranchRegex,
			sourceBranches:   []string{DevelopBranchKey, DefaultBranchKey, SupportBranchKey, ReleaseBranchKey},
			tag:              "beta",
			increment:        Point(IncrementPatch),
			preventIncrement: true,
			isReleaseBranch:  true,
		},
		{
			key:            FeatureBranchKey,
			regex:          FeatureBranchRegex,
			sourceBranches: everything,
			tag:            UseBranchNameTag,
			increment:      Point(IncrementInherit),
		},
		{
			key:              PullRequestBranchKey,
			regex:            PullRequestBranchRegex,
			sourceBranches:   everything,
			tag:              "PullRequest",
			tagNumberPattern: `[/-](?P<number>\d+)`,
			increment:        Point(IncrementInherit),
		},
		{
			key:              HotfixBranchKey,
			regex:            HotfixBranchRegex,
			sourceBranches:   []string{DevelopBranchKey, DefaultBranchKey, SupportBranchKey},
			tag:              "beta",
			increment:        Point(IncrementPatch),
			preventIncrement: true,
		},
		{
			key:              SupportBranchKey,
			regex:            SupportBranchRegex,
			sourceBranches:   []string{DefaultBranchKey},
			tag:              "",
			increment:        Point(IncrementPatch),
			mode:             Point(Mainline),
			preventIncrement: true,
		},
	}
}

func archetypeFor(key string) (archetype, bool) {
	for _, a := range archetypes() {
		if a.key == key {
			return a, true
		}
	}
	return archetype{}, false
}

// userArchetype is the fallback for user declared branches.
func userArchetype(key string, b *BranchConfig) archetype {
	return archetype{
		key:            key,
		regex:          b.Regex,
		sourceBranches: b.SourceBranches,
		tag:            UseBranchNameTag,
	}
}

// ResolveConfig validates a user configuration and returns a new, fully
// defaulted configuration. The input is not modified. Resolving an already
// resolved configuration returns an equal value.
func ResolveConfig(user *Config) (*Config, error) {
	if user == nil {
		user = &Config{}
	}

	if err := validateUserConfig(user); err != nil {
		return nil, err
	}

	resolved := applyGlobalDefaults(user)

	// phase 1: one node per branch key, built from defaults
	nodes := make(map[string]*BranchConfig, len(user.Branches)+len(archetypes()))
	for _, a := range archetypes() {
		nodes[a.key] = applyBranchDefaults(resolved, user.Branches[a.key], a)
	}
	for key, branch := range user.Branches {
		if _, ok := archetypeFor(key); ok {
			continue
		}
		nodes[key] = applyBranchDefaults(resolved, branch, userArchetype(key, branch))
	}

	// phase 2: reverse "is source branch for" edges on a fresh graph
	linked, err := linkSourceBranches(nodes)
	if err != nil {
		return nil, err
	}
	resolved.Branches = linked

	if err := validateResolvedConfig(resolved); err != nil {
		return nil, err
	}

	return resolved, nil
}

func validateUserConfig(user *Config) error {
	for _, key := range sortedKeys(user.Branches) {
		branch := user.Branches[key]
		if strings.TrimSpace(key) == "" {
			return &ConfigurationError{Field: "branches", Reason: "branch key must not be empty"}
		}

		if branch != nil && deref(branch.IsMainline) && key != DefaultBranchKey {
			return &ConfigurationError{
				Branch: key,
				Field:  "is-mainline",
				Reason: "mainline is a repository wide setting and only applies to the " + DefaultBranchKey + " branch",
			}
		}

		if _, ok := archetypeFor(key); ok {
			continue
		}
		if branch == nil || branch.Regex == "" {
			return &ConfigurationError{Branch: key, Field: "regex", Reason: "missing required configuration"}
		}
		if branch.SourceBranches == nil {
			return &ConfigurationError{Branch: key, Field: "source-branches", Reason: "missing required configuration"}
		}
	}
	return nil
}

func applyGlobalDefaults(user *Config) *Config {
	out := &Config{
		AssemblyVersioningScheme:         orDefault(user.AssemblyVersioningScheme, AssemblyMajorMinorPatch),
		AssemblyFileVersioningScheme:     orDefault(user.AssemblyFileVersioningScheme, AssemblyMajorMinorPatch),
		AssemblyInformationalFormat:      firstNonEmpty(user.AssemblyInformationalFormat, DefaultAssemblyInformationalFormat),
		TagPrefix:                        orDefault(user.TagPrefix, DefaultTagPrefix),
		NextVersion:                      strings.TrimSpace(user.NextVersion),
		VersioningMode:                   orDefault(user.VersioningMode, ContinuousDelivery),
		Increment:                        orDefault(user.Increment, IncrementInherit),
		MajorVersionBumpMessage:          orDefault(user.MajorVersionBumpMessage, DefaultMajorPattern),
		MinorVersionBumpMessage:          orDefault(user.MinorVersionBumpMessage, DefaultMinorPattern),
		PatchVersionBumpMessage:          orDefault(user.PatchVersionBumpMessage, DefaultPatchPattern),
		NoBumpMessage:                    orDefault(user.NoBumpMessage, DefaultNoBumpPattern),
		CommitMessageIncrementing:        orDefault(user.CommitMessageIncrementing, CommitMessageIncrementEnabled),
		BuildMetaDataPadding:             orDefault(user.BuildMetaDataPadding, DefaultPadding),
		CommitsSinceVersionSourcePadding: orDefault(user.CommitsSinceVersionSourcePadding, DefaultPadding),
		CommitDateFormat:                 firstNonEmpty(user.CommitDateFormat, DefaultCommitDateFormat),
		BaseVersionStrategies:            cloneStrings(user.BaseVersionStrategies),
		TaggedCommitsLimit:               orDefault(user.TaggedCommitsLimit, DefaultTaggedCommitsLimit),
		MergeMessageScanDepth:            orDefault(user.MergeMessageScanDepth, DefaultMergeMessageScanDepth),
		UnprefixedMergeVersions:          orDefault(user.UnprefixedMergeVersions, true),
		MergeMessageVersionPattern:       user.MergeMessageVersionPattern,
	}
	if len(out.BaseVersionStrategies) == 0 {
		out.BaseVersionStrategies = DefaultBaseVersionStrategies()
	}
	return out
}

// applyBranchDefaults builds a new node: user value, then archetype default,
// then the global setting.
func applyBranchDefaults(global *Config, user *BranchConfig, a archetype) *BranchConfig {
	if user == nil {
		user = &BranchConfig{}
	}

	increment := deref(global.Increment)
	if a.increment != nil {
		increment = *a.increment
	}
	mode := deref(global.VersioningMode)
	if a.mode != nil {
		mode = *a.mode
	}

	sources := cloneStrings(user.SourceBranches)
	if sources == nil {
		sources = cloneStrings(a.sourceBranches)
	}
	if sources == nil {
		sources = []string{}
	}

	return &BranchConfig{
		Regex:                                 firstNonEmpty(user.Regex, a.regex),
		SourceBranches:                        sources,
		IsSourceBranchFor:                     cloneStrings(user.IsSourceBranchFor),
		Tag:                                   orDefault(user.Tag, a.tag),
		TagNumberPattern:                      firstNonEmpty(user.TagNumberPattern, a.tagNumberPattern),
		Increment:                             orDefault(user.Increment, increment),
		VersioningMode:                        orDefault(user.VersioningMode, mode),
		PreventIncrementOfMergedBranchVersion: orDefault(user.PreventIncrementOfMergedBranchVersion, a.preventIncrement),
		TrackMergeTarget:                      orDefault(user.TrackMergeTarget, a.trackMergeTarget),
		TracksReleaseBranches:                 orDefault(user.TracksReleaseBranches, a.tracksReleaseBranches),
		IsReleaseBranch:                       orDefault(user.IsReleaseBranch, a.isReleaseBranch),
		IsMainline:                            orDefault(user.IsMainline, a.isMainline),
	}
}

// linkSourceBranches returns a copy of nodes where every key listed in a
// node's IsSourceBranchFor gains that node as a source branch.
func linkSourceBranches(nodes map[string]*BranchConfig) (map[string]*BranchConfig, error) {
	linked := make(map[string]*BranchConfig, len(nodes))
	for key, node := range nodes {
		linked[key] = node.Clone()
	}

	for _, key := range sortedKeys(nodes) {
		for _, target := range nodes[key].IsSourceBranchFor {
			node, ok := linked[target]
			if !ok {
				return nil, &ConfigurationError{
					Branch: key,
					Field:  "is-source-branch-for",
					Reason: fmt.Sprintf("unknown branch %q", target),
				}
			}
			node.SourceBranches = appendUnique(node.SourceBranches, key)
		}
	}

	return linked, nil
}

func validateResolvedConfig(cfg *Config) error {
	patterns := map[string]string{
		"major-version-bump-message":    deref(cfg.MajorVersionBumpMessage),
		"minor-version-bump-message":    deref(cfg.MinorVersionBumpMessage),
		"patch-version-bump-message":    deref(cfg.PatchVersionBumpMessage),
		"no-bump-message":               deref(cfg.NoBumpMessage),
		"tag-prefix":                    tagPrefixPattern(deref(cfg.TagPrefix)),
		"merge-message-version-pattern": cfg.MergeMessageVersionPattern,
	}
	for _, field := range sortedKeys(patterns) {
		if _, err := regexp.Compile(patterns[field]); err != nil {
			return &ConfigurationError{Field: field, Reason: err.Error()}
		}
	}

	for _, name := range cfg.BaseVersionStrategies {
		if _, ok := strategyByName(name); !ok {
			return &ConfigurationError{Field: "base-version-strategies", Reason: fmt.Sprintf("unknown strategy %q", name)}
		}
	}

	if cfg.NextVersion != "" {
		if _, err := ParseVersion(cfg.NextVersion); err != nil {
			return &ConfigurationError{Field: "next-version", Reason: err.Error()}
		}
	}

	numbers := map[string]int{
		"build-metadata-padding":               deref(cfg.BuildMetaDataPadding),
		"commits-since-version-source-padding": deref(cfg.CommitsSinceVersionSourcePadding),
	}
	for _, field := range sortedKeys(numbers) {
		if numbers[field] < 0 {
			return &ConfigurationError{Field: field, Reason: "must not be negative"}
		}
	}
	if deref(cfg.TaggedCommitsLimit) < 1 {
		return &ConfigurationError{Field: "tagged-commits-limit", Reason: "must be at least 1"}
	}
	if deref(cfg.MergeMessageScanDepth) < 1 {
		return &ConfigurationError{Field: "merge-message-scan-depth", Reason: "must be at least 1"}
	}

	for _, key := range sortedKeys(cfg.Branches) {
		branch := cfg.Branches[key]
		if _, err := regexp.Compile(branch.Regex); err != nil {
			return &ConfigurationError{Branch: key, Field: "regex", Reason: err.Error()}
		}
		if branch.TagNumberPattern != "" {
			if _, err := regexp.Compile(branch.TagNumberPattern); err != nil {
				return &ConfigurationError{Branch: key, Field: "tag-number-pattern", Reason: err.Error()}
			}
		}
		for _, source := range branch.SourceBranches {
			if _, ok := cfg.Branches[source]; !ok {
				return &ConfigurationError{Branch: key, Field: "source-branches", Reason: fmt.Sprintf("unknown branch %q", source)}
			}
		}
	}

	return nil
}

// branchMatcher finds the configuration for a branch name. It is built once
// per calculation from a resolved configuration.
type branchMatcher struct {
	cfg     *Config
	keys    []string
	regexes map[string]*regexp.Regexp
	numbers map[string]*regexp.Regexp
}

func newBranchMatcher(cfg *Config) (*branchMatcher, error) {
	m := &branchMatcher{
		cfg:     cfg,
		regexes: make(map[string]*regexp.Regexp, len(cfg.Branches)),
		numbers: make(map[string]*regexp.Regexp),
	}

	// user keys first, then the built-in kinds in their fixed order
	for _, key := range sortedKeys(cfg.Branches) {
		if _, ok := archetypeFor(key); !ok {
			m.keys = append(m.keys, key)
		}
	}
	for _, a := range archetypes() {
		m.keys = append(m.keys, a.key)
	}

	for _, key := range m.keys {
		branch := cfg.Branches[key]
		re, err := regexp.Compile("(?i)" + branch.Regex)
		if err != nil {
			return nil, &ConfigurationError{Branch: key, Field: "regex", Reason: err.Error()}
		}
		m.regexes[key] = re

		if branch.TagNumberPattern != "" {
			re, err := regexp.Compile(branch.TagNumberPattern)
			if err != nil {
				return nil, &ConfigurationError{Branch: key, Field: "tag-number-pattern", Reason: err.Error()}
			}
			m.numbers[key] = re
		}
	}

	return m, nil
}

// FindBranch returns the key and configuration that apply to a branch name.
// The configuration must come from ResolveConfig.
func (c *Config) FindBranch(name string) (string, *BranchConfig, error) {
	m, err := newBranchMatcher(c)
	if err != nil {
		return "", nil, err
	}
	key, branch := m.find(name)
	return key, branch, nil
}

// find returns the key and configuration for a branch name. Unmatched names
// get a synthesized configuration keyed UnknownBranchKey.
func (m *branchMatcher) find(name string) (string, *BranchConfig) {
	for _, key := range m.keys {
		if m.regexes[key].MatchString(name) {
			return key, m.cfg.Branches[key]
		}
	}
	return UnknownBranchKey, m.unknown()
}

func (m *branchMatcher) unknown() *BranchConfig {
	return &BranchConfig{
		SourceBranches:                        cloneStrings(m.keys),
		Tag:                                   Point(UseBranchNameTag),
		Increment:                             clonePtr(m.cfg.Increment),
		VersioningMode:                        clonePtr(m.cfg.VersioningMode),
		PreventIncrementOfMergedBranchVersion: Point(false),
		TrackMergeTarget:                      Point(false),
		TracksReleaseBranches:                 Point(false),
		IsReleaseBranch:                       Point(false),
		IsMainline:                            Point(false),
	}
}

// trimPrefix removes the part of name matched by the key's regex.
func (m *branchMatcher) trimPrefix(key, name string) string {
	re, ok := m.regexes[key]
	if !ok {
		return name
	}
	loc := re.FindStringIndex(name)
	if loc == nil || loc[0] != 0 {
		return name
	}
	return name[loc[1]:]
}

// tagNumber extracts the "number" group of the key's tag number pattern.
func (m *branchMatcher) tagNumber(key, name string) string {
	re, ok := m.numbers[key]
	if !ok {
		return ""
	}
	match := re.FindStringSubmatch(name)
	if match == nil {
		return ""
	}
	if idx := re.SubexpIndex("number"); idx > 0 {
		return match[idx]
	}
	return ""
}

func (m *branchMatcher) isReleaseBranch(name string) bool {
	_, branch := m.find(name)
	return deref(branch.IsReleaseBranch)
}

// shipsVersion reports whether merging the branch delivers the version it
// names: release branches and hotfixes both do.
func (m *branchMatcher) shipsVersion(name string) bool {
	key, branch := m.find(name)
	return key == HotfixBranchKey || deref(branch.IsReleaseBranch)
}

// branchVersion reads a version from a branch name once the part matched by
// the key's regex is removed, e.g. "release/1.3" is 1.3.0.
func (m *branchMatcher) branchVersion(key, name string) (SemanticVersion, bool) {
	if v, ok := versionFromBranchName(m.trimPrefix(key, name), true, nil); ok {
		return v, true
	}
	return versionFromBranchName(lastSegment(name), true, nil)
}

func tagPrefixPattern(prefix string) string {
	return "^(?:" + prefix + ")?"
}

func orDefault[T any](p *T, def T) *T {
	if p != nil {
		v := *p
		return &v
	}
	return &def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func appendUnique(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
