package gitver

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	mergeBranchPattern         = regexp.MustCompile(`(?i)^Merge branch '(?P<source>[^']+)'(?: of \S+)?(?: into (?P<target>\S+))?`)
	mergeRemoteTrackingPattern = regexp.MustCompile(`(?i)^Merge remote-tracking branch '(?:[^'/]+/)?(?P<source>[^']+)'(?: into (?P<target>\S+))?`)
	mergeTagPattern            = regexp.MustCompile(`(?i)^Merge tag '(?P<source>[^']+)'(?: into (?P<target>\S+))?`)
	pullRequestPattern         = regexp.MustCompile(`(?i)^Merge pull request #(?P<number>\d+) (?:from|in) (?P<repo>\S+?)(?: from (?P<source>\S+?))?(?: to (?P<target>\S+))?\s*$`)
	mergedInPattern            = regexp.MustCompile(`(?i)^Merged in (?P<source>\S+)(?: \(pull request #(?P<number>\d+)\))?`)
	finishPattern              = regexp.MustCompile(`(?i)^Finish (?P<source>\S+)`)

	branchVersionPrefix  = regexp.MustCompile(`(?i)^(?:releases?[-/]|hotfix(?:es)?[-/]|alpha[-/])?[vV]?`)
	branchVersionPattern = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?$`)
)

// MergeMessageOptions tunes how versions are read from merged branch names.
type MergeMessageOptions struct {
	// VersionPattern replaces the built-in branch name rule. The "version"
	// named group is used when present, otherwise the whole match.
	VersionPattern *regexp.Regexp

	// AllowUnprefixed accepts a bare "X.Y.Z" branch name in branch and pull
	// request merges. Tags and Gitflow finish messages always accept it.
	AllowUnprefixed bool
}

// MergeMessage is the structured reading of a merge commit message.
type MergeMessage struct {
	Raw               string
	MergedBranch      string
	TargetBranch      string
	PullRequestNumber int

	version    SemanticVersion
	hasVersion bool
}

// Version returns the version embedded in the merged branch name, if any.
func (m *MergeMessage) Version() (SemanticVersion, bool) {
	if m == nil {
		return SemanticVersion{}, false
	}
	return m.version, m.hasVersion
}

// IsPullRequest reports whether the message came from a pull request merge.
func (m *MergeMessage) IsPullRequest() bool {
	return m != nil && m.PullRequestNumber > 0
}

// ParseMergeMessage reads the first line of a commit message. It reports false
// when the line is not a recognised merge message. A recognised message whose
// branch carries no version is still returned, with Version reporting false.
func ParseMergeMessage(message string, opts MergeMessageOptions) (*MergeMessage, bool) {
	line := strings.TrimSpace(firstLine(message))

	m := &MergeMessage{Raw: message}
	token := ""
	gated := true

	if groups, ok := matchGroups(mergeBranchPattern, line); ok {
		m.MergedBranch = groups["source"]
		m.TargetBranch = groups["target"]
		token = m.MergedBranch
	} else if groups, ok := matchGroups(mergeRemoteTrackingPattern, line); ok {
		m.MergedBranch = groups["source"]
		m.TargetBranch = groups["target"]
		token = m.MergedBranch
	} else if groups, ok := matchGroups(mergeTagPattern, line); ok {
		m.MergedBranch = groups["source"]
		m.TargetBranch = groups["target"]
		token = m.MergedBranch
		gated = false
	} else if groups, ok := matchGroups(pullRequestPattern, line); ok {
		m.PullRequestNumber, _ = strconv.Atoi(groups["number"])
		m.TargetBranch = groups["target"]
		m.MergedBranch = groups["source"]
		if m.MergedBranch == "" {
			m.MergedBranch = stripOwner(groups["repo"])
		}
		token = lastSegment(m.MergedBranch)
	} else if groups, ok := matchGroups(mergedInPattern, line); ok {
		m.PullRequestNumber, _ = strconv.Atoi(groups["number"])
		m.MergedBranch = groups["source"]
		token = m.MergedBranch
	} else if groups, ok := matchGroups(finishPattern, line); ok {
		m.MergedBranch = groups["source"]
		token = m.MergedBranch
		gated = false
	} else {
		return nil, false
	}

	allowUnprefixed := opts.AllowUnprefixed || !gated
	m.version, m.hasVersion = versionFromBranchName(token, allowUnprefixed, opts.VersionPattern)

	return m, true
}

// versionFromBranchName applies the branch name rule: an optional release,
// hotfix or alpha prefix, an optional v, then a 2 or 3 part numeric version.
func versionFromBranchName(name string, allowUnprefixed bool, override *regexp.Regexp) (SemanticVersion, bool) {
	if name == "" {
		return SemanticVersion{}, false
	}

	if override != nil {
		match := override.FindStringSubmatch(name)
		if match == nil {
			return SemanticVersion{}, false
		}
		token := match[0]
		if idx := override.SubexpIndex("version"); idx > 0 && match[idx] != "" {
			token = match[idx]
		}
		v, err := ParseVersion(token)
		if err != nil {
			return SemanticVersion{}, false
		}
		return v, true
	}

	prefix := branchVersionPrefix.FindString(name)
	rest := name[len(prefix):]

	parts := branchVersionPattern.FindStringSubmatch(rest)
	if parts == nil {
		return SemanticVersion{}, false
	}
	if prefix == "" && !allowUnprefixed {
		return SemanticVersion{}, false
	}

	var components [3]uint64
	for i := 0; i < 3; i++ {
		if parts[i+1] == "" {
			continue
		}
		n, err := strconv.ParseUint(parts[i+1], 10, 64)
		if err != nil {
			return SemanticVersion{}, false
		}
		components[i] = n
	}

	return NewVersion(components[0], components[1], components[2]), true
}

func matchGroups(re *regexp.Regexp, s string) (map[string]string, bool) {
	match := re.FindStringSubmatch(s)
	if match == nil {
		return nil, false
	}
	groups := make(map[string]string, len(match))
	for i, name := range re.SubexpNames() {
		if name != "" {
			groups[name] = match[i]
		}
	}
	return groups, true
}

func firstLine(s string) string {
	if i := strings.IndexAny(s, "\r\n"); i >= 0 {
		return s[:i]
	}
	return s
}

func stripOwner(repo string) string {
	if i := strings.Index(repo, "/"); i >= 0 {
		return repo[i+1:]
	}
	return repo
}

func lastSegment(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}
