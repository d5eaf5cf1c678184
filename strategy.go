package gitver

import (
	"fmt"
	"math"
	"regexp"

	"go.uber.org/zap"
)

// BaseVersionCandidate is a version proposed by a strategy together with the
// commit it was derived from.
type BaseVersionCandidate struct {
	Version SemanticVersion
	// Source is nil when the version does not come from history.
	Source          *Commit
	ShouldIncrement bool
	Strategy        string
}

// BaseVersionStrategy proposes at most one base version for a context.
type BaseVersionStrategy interface {
	Name() string
	BaseVersion(ctx *Context) (BaseVersionCandidate, bool, error)
}

// Context is everything the strategies need for one calculation. It is not
// safe for concurrent use.
type Context struct {
	Repository   Repository
	Config       *Config
	Branch       *BranchHead
	BranchKey    string
	BranchConfig *BranchConfig
	Head         *Commit

	matcher   *branchMatcher
	mergeOpts MergeMessageOptions
	tagPrefix *regexp.Regexp
	logger    *zap.Logger

	tags      map[string][]SemanticVersion
	distances map[string]int
}

// NewContext prepares a calculation. cfg must be resolved. An empty
// branchName uses the repository's current branch.
func NewContext(repo Repository, cfg *Config, branchName string, logger *zap.Logger) (*Context, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	matcher, err := newBranchMatcher(cfg)
	if err != nil {
		return nil, err
	}

	mergeOpts := MergeMessageOptions{AllowUnprefixed: deref(cfg.UnprefixedMergeVersions)}
	if cfg.MergeMessageVersionPattern != "" {
		re, err := regexp.Compile(cfg.MergeMessageVersionPattern)
		if err != nil {
			return nil, &ConfigurationError{Field: "merge-message-version-pattern", Reason: err.Error()}
		}
		mergeOpts.VersionPattern = re
	}

	tagPrefix, err := regexp.Compile(tagPrefixPattern(deref(cfg.TagPrefix)))
	if err != nil {
		return nil, &ConfigurationError{Field: "tag-prefix", Reason: err.Error()}
	}

	if branchName == "" {
		current, err := repo.CurrentBranch()
		if err != nil {
			return nil, fmt.Errorf("getting current branch: %w", err)
		}
		branchName = current.Name
	}

	head, err := repo.CurrentCommit()
	if err != nil {
		return nil, fmt.Errorf("getting current commit: %w", err)
	}
	branch := NewResolvedBranchHead(branchName, head)

	key, branchConfig := matcher.find(branch.Name)
	logger.Debug("matched branch configuration",
		zap.String("branch", branch.Name),
		zap.String("key", key),
		zap.Stringer("mode", deref(branchConfig.VersioningMode)),
	)

	return &Context{
		Repository:   repo,
		Config:       cfg,
		Branch:       branch,
		BranchKey:    key,
		BranchConfig: branchConfig,
		Head:         head,
		matcher:      matcher,
		mergeOpts:    mergeOpts,
		tagPrefix:    tagPrefix,
		logger:       logger,
		distances:    make(map[string]int),
	}, nil
}

// sourceDistance is the number of commits HEAD has on top of a source. A nil
// source is farthest.
func (c *Context) sourceDistance(commit *Commit) (int, error) {
	if commit == nil {
		return math.MaxInt, nil
	}
	if d, ok := c.distances[commit.ID]; ok {
		return d, nil
	}
	d, err := c.Repository.Count(LogQuery{Revision: c.Head.ID, Exclude: commit.ID})
	if err != nil {
		return 0, fmt.Errorf("counting commits since %s: %w", commit.ShortID(), err)
	}
	c.distances[commit.ID] = d
	return d, nil
}

// closest picks a candidate with pickCandidate, measuring ties by
// sourceDistance.
func (c *Context) closest(candidates []BaseVersionCandidate, label string) (BaseVersionCandidate, bool, error) {
	var distanceErr error
	distance := func(commit *Commit) int {
		d, err := c.sourceDistance(commit)
		if err != nil && distanceErr == nil {
			distanceErr = err
		}
		return d
	}
	best, ok := pickCandidate(candidates, distance, label)
	if distanceErr != nil {
		return BaseVersionCandidate{}, false, distanceErr
	}
	return best, ok, nil
}

// versionTags maps commit ids to the versions tagged on them.
func (c *Context) versionTags() (map[string][]SemanticVersion, error) {
	if c.tags != nil {
		return c.tags, nil
	}

	tags, err := c.Repository.Tags()
	if err != nil {
		return nil, fmt.Errorf("reading tags: %w", err)
	}

	c.tags = make(map[string][]SemanticVersion)
	for _, tag := range tags {
		v, ok := c.parseTag(tag.Name)
		if !ok {
			continue
		}
		c.tags[tag.Target] = append(c.tags[tag.Target], v)
	}
	return c.tags, nil
}

func (c *Context) parseTag(name string) (SemanticVersion, bool) {
	loc := c.tagPrefix.FindStringIndex(name)
	if loc == nil {
		return SemanticVersion{}, false
	}
	rest := name[loc[1]:]
	if rest == "" || rest[0] < '0' || rest[0] > '9' {
		return SemanticVersion{}, false
	}
	v, err := ParseVersion(rest)
	if err != nil {
		return SemanticVersion{}, false
	}
	return v, true
}

// mergeBase returns the newest common ancestor of HEAD and other.
func (c *Context) mergeBase(other *Commit) (*Commit, error) {
	base, err := c.Repository.MergeBase(c.Head.ID, other.ID)
	if err != nil {
		return nil, fmt.Errorf("finding merge base with %s: %w", other.ShortID(), err)
	}
	return base, nil
}

// isAncestor reports whether commit is reachable from HEAD.
func (c *Context) isAncestor(commit *Commit) (bool, error) {
	if commit.ID == c.Head.ID {
		return true, nil
	}
	base, err := c.mergeBase(commit)
	if err != nil {
		return false, err
	}
	return base != nil && base.ID == commit.ID, nil
}

// otherBranches lists branches other than the current one with their heads.
func (c *Context) otherBranches() ([]*BranchHead, error) {
	branches, err := c.Repository.Branches()
	if err != nil {
		return nil, fmt.Errorf("listing branches: %w", err)
	}
	others := make([]*BranchHead, 0, len(branches))
	for _, b := range branches {
		if b.Name != c.Branch.Name {
			others = append(others, b)
		}
	}
	return others, nil
}

// CommitsSince lists commits reachable from HEAD but not from source, newest
// first. A nil source returns the whole history.
func (c *Context) CommitsSince(source *Commit) ([]*Commit, error) {
	q := LogQuery{Revision: c.Head.ID}
	if source != nil {
		q.Exclude = source.ID
	}
	commits, err := c.Repository.Log(q)
	if err != nil {
		return nil, fmt.Errorf("reading commits since %s: %w", source.ShortID(), err)
	}
	return commits, nil
}

type configNextVersionStrategy struct{}

func (configNextVersionStrategy) Name() string { return StrategyConfigNextVersion }

func (configNextVersionStrategy) BaseVersion(ctx *Context) (BaseVersionCandidate, bool, error) {
	if ctx.Config.NextVersion == "" {
		return BaseVersionCandidate{}, false, nil
	}
	v, err := ParseVersion(ctx.Config.NextVersion)
	if err != nil {
		return BaseVersionCandidate{}, false, &ConfigurationError{Field: "next-version", Reason: err.Error()}
	}
	return BaseVersionCandidate{Version: v, Strategy: StrategyConfigNextVersion}, true, nil
}

type taggedCommitStrategy struct{}

func (taggedCommitStrategy) Name() string { return StrategyTaggedCommit }

func (taggedCommitStrategy) BaseVersion(ctx *Context) (BaseVersionCandidate, bool, error) {
	tags, err := ctx.versionTags()
	if err != nil {
		return BaseVersionCandidate{}, false, err
	}

	limit := deref(ctx.Config.TaggedCommitsLimit)
	var candidates []BaseVersionCandidate
	err = ctx.Repository.Walk(LogQuery{Revision: ctx.Head.ID}, func(commit *Commit) error {
		versions := tags[commit.ID]
		if len(versions) == 0 {
			return nil
		}
		candidates = append(candidates, BaseVersionCandidate{
			Version:         maxVersion(versions),
			Source:          commit,
			ShouldIncrement: commit.ID != ctx.Head.ID,
			Strategy:        StrategyTaggedCommit,
		})
		if len(candidates) >= limit {
			return ErrStopWalk
		}
		return nil
	})
	if err != nil {
		return BaseVersionCandidate{}, false, fmt.Errorf("reading history: %w", err)
	}

	if deref(ctx.BranchConfig.TrackMergeTarget) {
		merged, err := mergeTargetCandidates(ctx, tags)
		if err != nil {
			return BaseVersionCandidate{}, false, err
		}
		candidates = append(candidates, merged...)
	}

	return ctx.closest(candidates, "")
}

// mergeTargetCandidates finds versions tagged on merge commits outside HEAD's
// history that merged a commit of the current branch. The version applies
// from the merged commit onwards.
func mergeTargetCandidates(ctx *Context, tags map[string][]SemanticVersion) ([]BaseVersionCandidate, error) {
	var candidates []BaseVersionCandidate
	for _, id := range sortedKeys(tags) {
		commit, err := ctx.Repository.GetCommit(id)
		if err != nil {
			return nil, err
		}
		if !commit.IsMerge() {
			continue
		}
		inHistory, err := ctx.isAncestor(commit)
		if err != nil {
			return nil, err
		}
		if inHistory {
			continue
		}

		parents, err := ctx.Repository.Parents(commit)
		if err != nil {
			return nil, err
		}
		for _, parent := range parents {
			ok, err := ctx.isAncestor(parent)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			ctx.logger.Debug("tagged merge target",
				zap.String("merge", commit.ShortID()),
				zap.String("source", parent.ShortID()),
			)
			candidates = append(candidates, BaseVersionCandidate{
				Version:         maxVersion(tags[id]),
				Source:          parent,
				ShouldIncrement: true,
				Strategy:        StrategyTaggedCommit,
			})
		}
	}
	return candidates, nil
}

type mergeMessageStrategy struct{}

func (mergeMessageStrategy) Name() string { return StrategyMergeMessage }

func (mergeMessageStrategy) BaseVersion(ctx *Context) (BaseVersionCandidate, bool, error) {
	var found BaseVersionCandidate
	ok := false

	q := LogQuery{Revision: ctx.Head.ID, Limit: deref(ctx.Config.MergeMessageScanDepth)}
	err := ctx.Repository.Walk(q, func(commit *Commit) error {
		if !commit.IsMerge() {
			return nil
		}
		msg, parsed := ParseMergeMessage(commit.Message, ctx.mergeOpts)
		if !parsed {
			return nil
		}
		v, hasVersion := msg.Version()
		if !hasVersion {
			return nil
		}

		prevent := deref(ctx.BranchConfig.PreventIncrementOfMergedBranchVersion) &&
			ctx.matcher.shipsVersion(msg.MergedBranch)

		found = BaseVersionCandidate{
			Version:         v,
			Source:          commit,
			ShouldIncrement: !prevent,
			Strategy:        StrategyMergeMessage,
		}
		ok = true
		return ErrStopWalk
	})
	if err != nil {
		return BaseVersionCandidate{}, false, fmt.Errorf("reading history: %w", err)
	}
	return found, ok, nil
}

type versionInBranchNameStrategy struct{}

func (versionInBranchNameStrategy) Name() string { return StrategyVersionInBranchName }

func (versionInBranchNameStrategy) BaseVersion(ctx *Context) (BaseVersionCandidate, bool, error) {
	if !deref(ctx.BranchConfig.IsReleaseBranch) {
		return BaseVersionCandidate{}, false, nil
	}

	v, ok := ctx.matcher.branchVersion(ctx.BranchKey, ctx.Branch.Name)
	if !ok {
		return BaseVersionCandidate{}, false, nil
	}

	source, err := branchPoint(ctx)
	if err != nil {
		return BaseVersionCandidate{}, false, err
	}

	return BaseVersionCandidate{
		Version:  v,
		Source:   source,
		Strategy: StrategyVersionInBranchName,
	}, true, nil
}

// branchPoint finds where the current branch left one of its source
// branches: the merge base closest to HEAD.
func branchPoint(ctx *Context) (*Commit, error) {
	others, err := ctx.otherBranches()
	if err != nil {
		return nil, err
	}

	sources := make(map[string]bool, len(ctx.BranchConfig.SourceBranches))
	for _, key := range ctx.BranchConfig.SourceBranches {
		sources[key] = true
	}

	var best *Commit
	bestDistance := 0
	for _, other := range others {
		key, _ := ctx.matcher.find(other.Name)
		if !sources[key] {
			continue
		}
		head, err := other.Head()
		if err != nil {
			return nil, fmt.Errorf("resolving branch %q: %w", other.Name, err)
		}
		base, err := ctx.mergeBase(head)
		if err != nil {
			return nil, err
		}
		if base == nil {
			continue
		}
		d, err := ctx.sourceDistance(base)
		if err != nil {
			return nil, err
		}
		if best == nil || d < bestDistance {
			best, bestDistance = base, d
		}
	}
	return best, nil
}

type trackReleaseBranchesStrategy struct{}

func (trackReleaseBranchesStrategy) Name() string { return StrategyTrackReleaseBranches }

func (trackReleaseBranchesStrategy) BaseVersion(ctx *Context) (BaseVersionCandidate, bool, error) {
	if !deref(ctx.BranchConfig.TracksReleaseBranches) {
		return BaseVersionCandidate{}, false, nil
	}

	others, err := ctx.otherBranches()
	if err != nil {
		return BaseVersionCandidate{}, false, err
	}

	var candidates []BaseVersionCandidate
	for _, other := range others {
		key, branch := ctx.matcher.find(other.Name)
		if !deref(branch.IsReleaseBranch) {
			continue
		}
		v, ok := ctx.matcher.branchVersion(key, other.Name)
		if !ok {
			continue
		}
		head, err := other.Head()
		if err != nil {
			return BaseVersionCandidate{}, false, fmt.Errorf("resolving branch %q: %w", other.Name, err)
		}
		base, err := ctx.mergeBase(head)
		if err != nil {
			return BaseVersionCandidate{}, false, err
		}
		if base == nil {
			continue
		}
		candidates = append(candidates, BaseVersionCandidate{
			Version:         v,
			Source:          base,
			ShouldIncrement: true,
			Strategy:        StrategyTrackReleaseBranches,
		})
	}

	return ctx.closest(candidates, "")
}

type mainlineStrategy struct{}

func (mainlineStrategy) Name() string { return StrategyMainline }

func (mainlineStrategy) BaseVersion(ctx *Context) (BaseVersionCandidate, bool, error) {
	if deref(ctx.BranchConfig.VersioningMode) != Mainline {
		return BaseVersionCandidate{}, false, nil
	}

	tags, err := ctx.versionTags()
	if err != nil {
		return BaseVersionCandidate{}, false, err
	}

	// start from the newest tagged commit, or the beginning of history
	version := NewVersion(0, 1, 0)
	q := LogQuery{Revision: ctx.Head.ID}
	err = ctx.Repository.Walk(q, func(commit *Commit) error {
		versions := tags[commit.ID]
		if len(versions) == 0 {
			return nil
		}
		version = maxVersion(versions)
		q.Exclude = commit.ID
		return ErrStopWalk
	})
	if err != nil {
		return BaseVersionCandidate{}, false, fmt.Errorf("reading history: %w", err)
	}

	since, err := ctx.Repository.Log(q)
	if err != nil {
		return BaseVersionCandidate{}, false, fmt.Errorf("reading history: %w", err)
	}
	byID := make(map[string]*Commit, len(since))
	for _, commit := range since {
		byID[commit.ID] = commit
	}

	// only merges into the mainline itself count, which are the commits on
	// HEAD's first-parent chain
	var chain []*Commit
	for commit := byID[ctx.Head.ID]; commit != nil; {
		chain = append(chain, commit)
		if len(commit.Parents) == 0 {
			break
		}
		commit = byID[commit.Parents[0]]
	}

	var last *Commit
	for i := len(chain) - 1; i >= 0; i-- {
		commit := chain[i]
		if !commit.IsMerge() {
			continue
		}
		msg, ok := ParseMergeMessage(commit.Message, ctx.mergeOpts)
		if !ok {
			continue
		}
		key, branch := ctx.matcher.find(msg.MergedBranch)
		if !isMainlineSource(key, branch) {
			continue
		}
		field := StaticIncrement(ctx.Config, branch).VersionField()
		version = version.Increment(field)
		last = commit
		ctx.logger.Debug("mainline merge",
			zap.String("commit", commit.ShortID()),
			zap.String("branch", msg.MergedBranch),
			zap.Stringer("increment", field),
			zap.String("version", version.String()),
		)
	}

	if last == nil {
		return BaseVersionCandidate{}, false, nil
	}

	return BaseVersionCandidate{
		Version:         version,
		Source:          last,
		ShouldIncrement: last.ID != ctx.Head.ID,
		Strategy:        StrategyMainline,
	}, true, nil
}

func isMainlineSource(key string, branch *BranchConfig) bool {
	switch key {
	case ReleaseBranchKey, HotfixBranchKey, SupportBranchKey:
		return true
	}
	return deref(branch.IsReleaseBranch)
}

func maxVersion(versions []SemanticVersion) SemanticVersion {
	best := versions[0]
	for _, v := range versions[1:] {
		if v.Compare(best) > 0 {
			best = v
		}
	}
	return best
}

func strategyByName(name string) (BaseVersionStrategy, bool) {
	switch name {
	case StrategyConfigNextVersion:
		return configNextVersionStrategy{}, true
	case StrategyTaggedCommit:
		return taggedCommitStrategy{}, true
	case StrategyMergeMessage:
		return mergeMessageStrategy{}, true
	case StrategyVersionInBranchName:
		return versionInBranchNameStrategy{}, true
	case StrategyTrackReleaseBranches:
		return trackReleaseBranchesStrategy{}, true
	case StrategyMainline:
		return mainlineStrategy{}, true
	}
	return nil, false
}

// fallbackCandidate is used when no strategy proposes a version.
func fallbackCandidate() BaseVersionCandidate {
	return BaseVersionCandidate{Version: NewVersion(0, 1, 0), Strategy: strategyFallback}
}

// BaseVersion runs the configured strategies and returns the winning
// candidate. ConfigNextVersion wins outright when it applies.
func (c *Context) BaseVersion() (BaseVersionCandidate, error) {
	var candidates []BaseVersionCandidate
	for _, name := range c.Config.BaseVersionStrategies {
		strategy, ok := strategyByName(name)
		if !ok {
			return BaseVersionCandidate{}, &ConfigurationError{Field: "base-version-strategies", Reason: fmt.Sprintf("unknown strategy %q", name)}
		}

		candidate, ok, err := strategy.BaseVersion(c)
		if err != nil {
			return BaseVersionCandidate{}, fmt.Errorf("running %s strategy: %w", name, err)
		}
		if !ok {
			continue
		}

		c.logger.Debug("base version candidate",
			zap.String("strategy", name),
			zap.String("version", candidate.Version.String()),
			zap.String("source", candidate.Source.ShortID()),
			zap.Bool("increment", candidate.ShouldIncrement),
		)

		if name == StrategyConfigNextVersion {
			return candidate, nil
		}
		candidates = append(candidates, candidate)
	}

	winner, ok, err := c.closest(candidates, preReleaseName(c))
	if err != nil {
		return BaseVersionCandidate{}, err
	}
	if !ok {
		winner = fallbackCandidate()
	}

	c.logger.Debug("base version selected",
		zap.String("strategy", winner.Strategy),
		zap.String("version", winner.Version.String()),
	)
	return winner, nil
}

// pickCandidate returns the highest version. A pre-release tagged with label
// outranks the release of the same major.minor.patch, so a branch continues
// its own pre-release series. Equal versions prefer the source closest to
// HEAD according to distance.
func pickCandidate(candidates []BaseVersionCandidate, distance func(*Commit) int, label string) (BaseVersionCandidate, bool) {
	if len(candidates) == 0 {
		return BaseVersionCandidate{}, false
	}

	best := candidates[0]
	for _, c := range candidates[1:] {
		switch cmp := compareCandidateVersions(c.Version, best.Version, label); {
		case cmp > 0:
			best = c
		case cmp == 0 && distance(c.Source) < distance(best.Source):
			best = c
		}
	}
	return best, true
}

func compareCandidateVersions(a, b SemanticVersion, label string) int {
	if label != "" && a.MajorMinorPatch() == b.MajorMinorPatch() {
		switch {
		case hasLabel(a, label) && b.IsRelease():
			return 1
		case hasLabel(b, label) && a.IsRelease():
			return -1
		}
	}
	return a.Compare(b)
}

func hasLabel(v SemanticVersion, label string) bool {
	return !v.IsRelease() && v.PreReleaseTag.Name == label
}
