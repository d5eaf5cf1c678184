package gitver

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPickCandidate(t *testing.T) {
	near := &Commit{ID: "near"}
	far := &Commit{ID: "far"}
	distance := func(c *Commit) int {
		switch c {
		case near:
			return 1
		case far:
			return 5
		}
		return 100
	}

	t.Run("Empty", func(t *testing.T) {
		_, ok := pickCandidate(nil, distance, "")
		require.False(t, ok)
	})

	t.Run("Highest version wins", func(t *testing.T) {
		best, ok := pickCandidate([]BaseVersionCandidate{
			{Version: NewVersion(1, 0, 0), Source: near, Strategy: "a"},
			{Version: NewVersion(2, 0, 0), Source: far, Strategy: "b"},
			{Version: NewVersion(1, 5, 0), Strategy: "c"},
		}, distance, "")
		require.True(t, ok)
		require.Equal(t, "b", best.Strategy)
	})

	t.Run("Ties prefer the closest source", func(t *testing.T) {
		best, ok := pickCandidate([]BaseVersionCandidate{
			{Version: NewVersion(1, 0, 0), Strategy: "none"},
			{Version: NewVersion(1, 0, 0), Source: far, Strategy: "far"},
			{Version: NewVersion(1, 0, 0), Source: near, Strategy: "near"},
		}, distance, "")
		require.True(t, ok)
		require.Equal(t, "near", best.Strategy)
	})

	t.Run("Release beats pre-release", func(t *testing.T) {
		pre, err := ParseVersion("1.0.0-beta.3")
		require.NoError(t, err)

		best, ok := pickCandidate([]BaseVersionCandidate{
			{Version: pre, Source: near, Strategy: "pre"},
			{Version: NewVersion(1, 0, 0), Source: far, Strategy: "release"},
		}, distance, "")
		require.True(t, ok)
		require.Equal(t, "release", best.Strategy)
	})

	t.Run("Pre-release with the branch label beats its release", func(t *testing.T) {
		pre, err := ParseVersion("1.0.0-beta.1")
		require.NoError(t, err)
		other, err := ParseVersion("1.0.0-alpha.4")
		require.NoError(t, err)

		candidates := []BaseVersionCandidate{
			{Version: NewVersion(1, 0, 0), Source: near, Strategy: "release"},
			{Version: other, Source: near, Strategy: "alpha"},
			{Version: pre, Source: far, Strategy: "beta"},
		}

		best, ok := pickCandidate(candidates, distance, "beta")
		require.True(t, ok)
		require.Equal(t, "beta", best.Strategy)

		best, ok = pickCandidate(candidates, distance, "")
		require.True(t, ok)
		require.Equal(t, "release", best.Strategy)
	})

	t.Run("Label does not outrank a higher release", func(t *testing.T) {
		pre, err := ParseVersion("1.0.0-beta.1")
		require.NoError(t, err)

		best, ok := pickCandidate([]BaseVersionCandidate{
			{Version: pre, Source: near, Strategy: "beta"},
			{Version: NewVersion(1, 1, 0), Source: far, Strategy: "release"},
		}, distance, "beta")
		require.True(t, ok)
		require.Equal(t, "release", best.Strategy)
	})
}

func TestTaggedCommitStrategy(t *testing.T) {
	t.Run("Newest tagged commits", func(t *testing.T) {
		r := newTestRepo(t)
		r.commit("first")
		r.tag("v1.0.0")
		r.commit("second")
		tagged := r.commit("third")
		r.annotatedTag("v1.1.0")
		r.tag("build-42")
		r.commit("fourth")

		candidate, ok, err := taggedCommitStrategy{}.BaseVersion(r.context(nil))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "1.1.0", candidate.Version.String())
		require.Equal(t, tagged.String(), candidate.Source.ID)
		require.True(t, candidate.ShouldIncrement)
	})

	t.Run("Tag on HEAD", func(t *testing.T) {
		r := newTestRepo(t)
		r.commit("first")
		r.tag("1.0.0-beta.2")

		candidate, ok, err := taggedCommitStrategy{}.BaseVersion(r.context(nil))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "1.0.0-beta.2", candidate.Version.String())
		require.False(t, candidate.ShouldIncrement)
	})

	t.Run("Limit", func(t *testing.T) {
		r := newTestRepo(t)
		r.commit("first")
		r.tag("v2.0.0")
		r.commit("second")
		r.tag("v1.1.0")
		r.commit("third")

		candidate, ok, err := taggedCommitStrategy{}.BaseVersion(r.context(nil))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "2.0.0", candidate.Version.String())

		candidate, ok, err = taggedCommitStrategy{}.BaseVersion(r.context(&Config{TaggedCommitsLimit: Point(1)}))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "1.1.0", candidate.Version.String())
	})

	t.Run("Tag prefix", func(t *testing.T) {
		r := newTestRepo(t)
		r.commit("first")
		r.tag("sdk-2.0.0")
		r.commit("second")
		r.tag("v1.0.0")

		candidate, ok, err := taggedCommitStrategy{}.BaseVersion(r.context(&Config{TagPrefix: Point("sdk-")}))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "2.0.0", candidate.Version.String())
	})

	t.Run("No tags", func(t *testing.T) {
		r := newTestRepo(t)
		r.commit("first")

		_, ok, err := taggedCommitStrategy{}.BaseVersion(r.context(nil))
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestTaggedCommitStrategyTracksMergeTarget(t *testing.T) {
	r := newTestRepo(t)
	r.commit("first")
	r.branch("develop")
	merged := r.commit("develop work")
	r.checkout("master")
	r.merge("develop", "Merge branch 'develop'")
	r.tag("v1.0.0")
	r.checkout("develop")
	r.commit("next feature")

	t.Run("Tag on the merge into the target counts from the merged commit", func(t *testing.T) {
		candidate, ok, err := taggedCommitStrategy{}.BaseVersion(r.context(nil))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "1.0.0", candidate.Version.String())
		require.Equal(t, merged.String(), candidate.Source.ID)
		require.True(t, candidate.ShouldIncrement)
	})

	t.Run("Branches that do not track their merge target ignore it", func(t *testing.T) {
		cfg := &Config{
			Branches: map[string]*BranchConfig{
				DevelopBranchKey: {TrackMergeTarget: Point(false)},
			},
		}
		_, ok, err := taggedCommitStrategy{}.BaseVersion(r.context(cfg))
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("Develop continues after the tagged merge", func(t *testing.T) {
		vars := r.calculate(nil)
		require.Equal(t, "1.1.0", vars.SemVer)
		require.Equal(t, merged.String(), vars.VersionSourceSha)
		require.Equal(t, 1, vars.CommitsSinceVersionSource)
	})
}

func TestMergeMessageStrategy(t *testing.T) {
	r := newTestRepo(t)
	r.commit("first")
	r.branch("release/1.3.0")
	r.commit("stabilize")
	r.checkout("master")
	merge := r.merge("release/1.3.0", "Merge branch 'release/1.3.0'")
	r.commit("after merge")

	t.Run("Release merge into a branch that prevents increments", func(t *testing.T) {
		candidate, ok, err := mergeMessageStrategy{}.BaseVersion(r.context(nil))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "1.3.0", candidate.Version.String())
		require.Equal(t, merge.String(), candidate.Source.ID)
		require.False(t, candidate.ShouldIncrement)
	})

	t.Run("Other branches increment", func(t *testing.T) {
		resolved, err := ResolveConfig(nil)
		require.NoError(t, err)
		ctx, err := NewContext(r.gitRepository(), resolved, "bugfix/crash", nil)
		require.NoError(t, err)

		candidate, ok, err := mergeMessageStrategy{}.BaseVersion(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, candidate.ShouldIncrement)
	})

	t.Run("Hotfix merge into a branch that prevents increments", func(t *testing.T) {
		r := newTestRepo(t)
		r.commit("first")
		r.tag("v1.0.0")
		r.branch("hotfix/1.0.1")
		r.commit("fix")
		r.checkout("master")
		r.merge("hotfix/1.0.1", "Merge branch 'hotfix/1.0.1'")

		candidate, ok, err := mergeMessageStrategy{}.BaseVersion(r.context(nil))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, "1.0.1", candidate.Version.String())
		require.False(t, candidate.ShouldIncrement)

		vars := r.calculate(&Config{BaseVersionStrategies: []string{StrategyTaggedCommit, StrategyMergeMessage}})
		require.Equal(t, "1.0.1", vars.SemVer)
	})

	t.Run("Scan depth", func(t *testing.T) {
		_, ok, err := mergeMessageStrategy{}.BaseVersion(r.context(&Config{MergeMessageScanDepth: Point(1)}))
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestVersionInBranchNameStrategy(t *testing.T) {
	r := newTestRepo(t)
	r.commit("first")
	branchPoint := r.commit("second")
	r.branch("release/2.0.0")
	r.commit("stabilize")

	ctx := r.context(nil)
	candidate, ok, err := versionInBranchNameStrategy{}.BaseVersion(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2.0.0", candidate.Version.String())
	require.Equal(t, branchPoint.String(), candidate.Source.ID)
	require.False(t, candidate.ShouldIncrement)

	t.Run("Only release branches", func(t *testing.T) {
		r.checkout("master")
		_, ok, err := versionInBranchNameStrategy{}.BaseVersion(r.context(nil))
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestTrackReleaseBranchesStrategy(t *testing.T) {
	r := newTestRepo(t)
	r.commit("first")
	r.branch("develop")
	branchPoint := r.commit("develop work")
	r.branch("release/1.5.0")
	r.commit("stabilize")
	r.checkout("develop")
	r.commit("next feature")

	candidate, ok, err := trackReleaseBranchesStrategy{}.BaseVersion(r.context(nil))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1.5.0", candidate.Version.String())
	require.Equal(t, branchPoint.String(), candidate.Source.ID)
	require.True(t, candidate.ShouldIncrement)

	t.Run("Only tracking branches", func(t *testing.T) {
		r.checkout("master")
		_, ok, err := trackReleaseBranchesStrategy{}.BaseVersion(r.context(nil))
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestMainlineStrategy(t *testing.T) {
	cfg := &Config{
		Branches: map[string]*BranchConfig{
			ReleaseBranchKey: {Increment: Point(IncrementMinor)},
		},
	}

	r := newTestRepo(t)
	r.commit("first")
	r.tag("v1.0.0")

	r.branch("hotfix/1.0.1")
	r.commit("fix")
	r.checkout("master")
	r.merge("hotfix/1.0.1", "Merge branch 'hotfix/1.0.1'")

	r.branch("feature/ui")
	r.commit("ui")
	r.checkout("master")
	r.merge("feature/ui", "Merge branch 'feature/ui'")

	r.branch("release/1.1.0")
	r.commit("stabilize")
	r.checkout("master")
	last := r.merge("release/1.1.0", "Merge branch 'release/1.1.0'")

	candidate, ok, err := mainlineStrategy{}.BaseVersion(r.context(cfg))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1.1.0", candidate.Version.String())
	require.Equal(t, last.String(), candidate.Source.ID)
	require.False(t, candidate.ShouldIncrement)

	t.Run("Commits after the last merge", func(t *testing.T) {
		r.commit("after")
		candidate, ok, err := mainlineStrategy{}.BaseVersion(r.context(cfg))
		require.NoError(t, err)
		require.True(t, ok)
		require.True(t, candidate.ShouldIncrement)
	})

	t.Run("Only in mainline mode", func(t *testing.T) {
		r.branch("develop")
		_, ok, err := mainlineStrategy{}.BaseVersion(r.context(cfg))
		require.NoError(t, err)
		require.False(t, ok)
	})
}

func TestMainlineStrategyFollowsFirstParents(t *testing.T) {
	r := newTestRepo(t)
	r.commit("first")
	r.tag("v1.0.0")
	r.branch("release/next")
	r.branch("hotfix/crash")
	r.commit("fix")
	r.checkout("release/next")
	r.merge("hotfix/crash", "Merge branch 'hotfix/crash'")
	r.checkout("master")
	last := r.merge("release/next", "Merge branch 'release/next'")

	// the hotfix landed on the release branch, not on master
	candidate, ok, err := mainlineStrategy{}.BaseVersion(r.context(nil))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1.0.1", candidate.Version.String())
	require.Equal(t, last.String(), candidate.Source.ID)
}

func TestMainlineStrategyWithoutMerges(t *testing.T) {
	r := newTestRepo(t)
	r.commit("first")
	r.tag("v1.0.0")
	r.commit("second")

	_, ok, err := mainlineStrategy{}.BaseVersion(r.context(nil))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestContextBaseVersion(t *testing.T) {
	t.Run("Fallback", func(t *testing.T) {
		r := newTestRepo(t)
		r.commit("first")

		winner, err := r.context(nil).BaseVersion()
		require.NoError(t, err)
		require.Equal(t, "0.1.0", winner.Version.String())
		require.Nil(t, winner.Source)
		require.False(t, winner.ShouldIncrement)
		require.Equal(t, "Fallback", winner.Strategy)
	})

	t.Run("Next version short-circuits", func(t *testing.T) {
		r := newTestRepo(t)
		r.commit("first")
		r.tag("v9.0.0")

		winner, err := r.context(&Config{NextVersion: "2.0.0"}).BaseVersion()
		require.NoError(t, err)
		require.Equal(t, "2.0.0", winner.Version.String())
		require.Equal(t, StrategyConfigNextVersion, winner.Strategy)
	})

	t.Run("Strategies can be disabled", func(t *testing.T) {
		r := newTestRepo(t)
		r.commit("first")
		r.tag("v3.0.0")

		winner, err := r.context(&Config{BaseVersionStrategies: []string{StrategyMergeMessage}}).BaseVersion()
		require.NoError(t, err)
		require.Equal(t, "0.1.0", winner.Version.String())
	})

	t.Run("Maximum across strategies", func(t *testing.T) {
		r := newTestRepo(t)
		r.commit("first")
		r.tag("v1.0.0")
		r.branch("release/1.4.0")
		r.commit("stabilize")

		winner, err := r.context(nil).BaseVersion()
		require.NoError(t, err)
		require.Equal(t, "1.4.0", winner.Version.String())
		require.Equal(t, StrategyVersionInBranchName, winner.Strategy)
	})
}
