package gitver

import (
	"fmt"
	"regexp"
)

// maxInheritDepth bounds the walk over source branches for Inherit.
const maxInheritDepth = 10

// StaticIncrement returns the configured increment for a branch. Inherit is
// resolved breadth-first over source branches; Patch is used when nothing
// along the way is concrete.
func StaticIncrement(cfg *Config, branch *BranchConfig) IncrementStrategy {
	if branch == nil {
		return IncrementPatch
	}
	if inc := deref(branch.Increment); branch.Increment != nil && inc != IncrementInherit {
		return inc
	}

	type node struct {
		key   string
		depth int
	}

	visited := make(map[string]bool)
	var queue []node
	for _, key := range branch.SourceBranches {
		queue = append(queue, node{key: key, depth: 1})
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		if visited[n.key] || n.depth > maxInheritDepth {
			continue
		}
		visited[n.key] = true

		source, ok := cfg.Branches[n.key]
		if !ok || source == nil {
			continue
		}
		if source.Increment != nil && *source.Increment != IncrementInherit {
			return *source.Increment
		}
		for _, key := range source.SourceBranches {
			if !visited[key] {
				queue = append(queue, node{key: key, depth: n.depth + 1})
			}
		}
	}

	return IncrementPatch
}

// DetermineIncrement decides which field to bump for a candidate given the
// commits made since its source. cfg must be resolved.
func DetermineIncrement(candidate BaseVersionCandidate, commits []*Commit, branch *BranchConfig, cfg *Config) (VersionField, error) {
	if !candidate.ShouldIncrement {
		return FieldNone, nil
	}

	static := StaticIncrement(cfg, branch).VersionField()

	mode := deref(cfg.CommitMessageIncrementing)
	if mode == CommitMessageIncrementDisabled {
		return static, nil
	}

	patterns, err := bumpPatterns(cfg)
	if err != nil {
		return FieldNone, err
	}

	var scanned []*Commit
	for _, c := range commits {
		if mode == CommitMessageIncrementMergeMessageOnly && !c.IsMerge() {
			continue
		}
		scanned = append(scanned, c)
	}

	for _, p := range patterns {
		for _, c := range scanned {
			if p.re.MatchString(c.Message) {
				return p.field, nil
			}
		}
	}

	return static, nil
}

type bumpPattern struct {
	field VersionField
	re    *regexp.Regexp
}

// bumpPatterns returns the message patterns in precedence order.
func bumpPatterns(cfg *Config) ([]bumpPattern, error) {
	sources := []struct {
		field   string
		pattern string
		bump    VersionField
	}{
		{"major-version-bump-message", deref(cfg.MajorVersionBumpMessage), FieldMajor},
		{"minor-version-bump-message", deref(cfg.MinorVersionBumpMessage), FieldMinor},
		{"patch-version-bump-message", deref(cfg.PatchVersionBumpMessage), FieldPatch},
		{"no-bump-message", deref(cfg.NoBumpMessage), FieldNone},
	}

	patterns := make([]bumpPattern, 0, len(sources))
	for _, s := range sources {
		if s.pattern == "" {
			continue
		}
		re, err := regexp.Compile(s.pattern)
		if err != nil {
			return nil, &ConfigurationError{Field: s.field, Reason: fmt.Sprintf("compiling %q: %v", s.pattern, err)}
		}
		patterns = append(patterns, bumpPattern{field: s.bump, re: re})
	}
	return patterns, nil
}
