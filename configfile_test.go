package gitver

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
next-version: 2.0.0
tag-prefix: 'release-'
mode: continuousdeployment
assembly-versioning-scheme: MajorMinor
commit-message-incrementing: MergeMessageOnly
tagged-commits-limit: 5
branches:
  release:
    tag: rc
    increment: Minor
  docs:
    regex: ^docs[/-]
    source-branches: [default]
    is-source-branch-for: [feature]
`

func TestReadConfig(t *testing.T) {
	cfg, err := ReadConfig(strings.NewReader(sampleConfig))
	require.NoError(t, err)

	require.Equal(t, "2.0.0", cfg.NextVersion)
	require.Equal(t, "release-", *cfg.TagPrefix)
	require.Equal(t, ContinuousDeployment, *cfg.VersioningMode)
	require.Equal(t, AssemblyMajorMinor, *cfg.AssemblyVersioningScheme)
	require.Equal(t, CommitMessageIncrementMergeMessageOnly, *cfg.CommitMessageIncrementing)
	require.Equal(t, 5, *cfg.TaggedCommitsLimit)
	require.Nil(t, cfg.Increment)

	require.Equal(t, "rc", *cfg.Branches[ReleaseBranchKey].Tag)
	require.Equal(t, IncrementMinor, *cfg.Branches[ReleaseBranchKey].Increment)
	require.Equal(t, []string{DefaultBranchKey}, cfg.Branches["docs"].SourceBranches)
	require.Equal(t, []string{FeatureBranchKey}, cfg.Branches["docs"].IsSourceBranchFor)

	resolved, err := ResolveConfig(cfg)
	require.NoError(t, err)
	require.Contains(t, resolved.Branches[FeatureBranchKey].SourceBranches, "docs")

	t.Run("Empty document", func(t *testing.T) {
		cfg, err := ReadConfig(strings.NewReader(""))
		require.NoError(t, err)
		require.Equal(t, &Config{}, cfg)
	})

	t.Run("Unknown keys are rejected", func(t *testing.T) {
		_, err := ReadConfig(strings.NewReader("tag-prefx: v\n"))
		require.Error(t, err)
	})

	t.Run("Unknown enum values are rejected", func(t *testing.T) {
		_, err := ReadConfig(strings.NewReader("mode: Sometimes\n"))
		require.ErrorContains(t, err, `unknown value "Sometimes"`)
	})
}

func TestWriteConfig(t *testing.T) {
	cfg := &Config{
		NextVersion:    "1.0.0",
		VersioningMode: Point(Mainline),
		Branches: map[string]*BranchConfig{
			HotfixBranchKey: {Increment: Point(IncrementMinor), SourceBranches: []string{DefaultBranchKey}},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteConfig(&buf, cfg))
	require.Contains(t, buf.String(), "mode: Mainline\n")
	require.Contains(t, buf.String(), "  hotfix:\n    source-branches:\n      - default\n")

	read, err := ReadConfig(&buf)
	require.NoError(t, err)
	require.Equal(t, cfg, read)

	t.Run("Resolved configuration reads back", func(t *testing.T) {
		resolved, err := ResolveConfig(nil)
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, WriteConfig(&buf, resolved))

		read, err := ReadConfig(&buf)
		require.NoError(t, err)
		again, err := ResolveConfig(read)
		require.NoError(t, err)
		require.Equal(t, resolved, again)
	})
}

func TestLoadConfig(t *testing.T) {
	t.Setenv(ConfigEnvVar, "")

	write := func(t *testing.T, dir, content string) string {
		t.Helper()
		path := filepath.Join(dir, DefaultConfigFileName)
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		return path
	}

	t.Run("No file", func(t *testing.T) {
		cfg, path, err := LoadConfig(t.TempDir(), t.TempDir())
		require.NoError(t, err)
		require.Equal(t, "", path)
		require.Equal(t, &Config{}, cfg)
	})

	t.Run("Repository root", func(t *testing.T) {
		root := t.TempDir()
		expected := write(t, root, "next-version: 1.0.0\n")

		cfg, path, err := LoadConfig(t.TempDir(), root)
		require.NoError(t, err)
		require.Equal(t, expected, path)
		require.Equal(t, "1.0.0", cfg.NextVersion)
	})

	t.Run("Working directory wins", func(t *testing.T) {
		root := t.TempDir()
		work := t.TempDir()
		write(t, root, "next-version: 1.0.0\n")
		expected := write(t, work, "next-version: 2.0.0\n")

		cfg, path, err := LoadConfig(work, root)
		require.NoError(t, err)
		require.Equal(t, expected, path)
		require.Equal(t, "2.0.0", cfg.NextVersion)
	})

	t.Run("Environment wins", func(t *testing.T) {
		root := t.TempDir()
		write(t, root, "next-version: 1.0.0\n")
		other := filepath.Join(t.TempDir(), "custom.yml")
		require.NoError(t, os.WriteFile(other, []byte("next-version: 3.0.0\n"), 0o644))
		t.Setenv(ConfigEnvVar, other)

		cfg, path, err := LoadConfig(root, root)
		require.NoError(t, err)
		require.Equal(t, other, path)
		require.Equal(t, "3.0.0", cfg.NextVersion)
	})

	t.Run("Invalid file", func(t *testing.T) {
		root := t.TempDir()
		write(t, root, "branches: [\n")

		_, _, err := LoadConfig("", root)
		require.ErrorContains(t, err, "parsing config file")
	})

	t.Run("Missing file from the environment", func(t *testing.T) {
		t.Setenv(ConfigEnvVar, filepath.Join(t.TempDir(), "missing.yml"))

		_, _, err := LoadConfig("", "")
		require.ErrorContains(t, err, "opening config file")
	})
}
