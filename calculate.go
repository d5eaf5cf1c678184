package gitver

import (
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"
)

// Calculate computes the version variables for the repository snapshot
// described by opts.
func Calculate(opts Options) (*VersionVariables, error) {
	if opts.Repository == nil {
		return nil, errors.New("repository is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	cfg, err := ResolveConfig(opts.Config)
	if err != nil {
		return nil, err
	}

	ctx, err := NewContext(opts.Repository, cfg, opts.Branch, logger)
	if err != nil {
		return nil, err
	}

	winner, err := ctx.BaseVersion()
	if err != nil {
		return nil, fmt.Errorf("determining base version: %w", err)
	}

	commits, err := ctx.CommitsSince(winner.Source)
	if err != nil {
		return nil, err
	}

	field, err := DetermineIncrement(winner, commits, ctx.BranchConfig, cfg)
	if err != nil {
		return nil, fmt.Errorf("determining increment: %w", err)
	}

	version := buildVersion(ctx, winner, field, len(commits))
	vars := newVersionVariables(ctx, winner, version, len(commits))

	if status, ok := opts.Repository.(WorktreeStatus); ok {
		dirty, err := status.IsDirty()
		if err != nil {
			return nil, fmt.Errorf("checking if worktree is dirty: %w", err)
		}
		vars.UncommittedChanges = dirty
	}

	logger.Debug("calculated version",
		zap.String("branch", ctx.Branch.Name),
		zap.String("version", vars.FullSemVer),
	)
	return vars, nil
}

func newVersionVariables(ctx *Context, winner BaseVersionCandidate, v SemanticVersion, commitsSince int) *VersionVariables {
	meta := v.BuildMetaData
	if meta == nil {
		meta = &BuildMetaData{}
	}

	vars := &VersionVariables{
		Major:                           v.Major,
		Minor:                           v.Minor,
		Patch:                           v.Patch,
		PreReleaseTag:                   v.PreReleaseTag.String(),
		PreReleaseLabel:                 v.PreReleaseTag.Name,
		BuildMetaData:                   meta.String(),
		BuildMetaDataPadded:             meta.CommitsSinceTagPadded,
		FullBuildMetaData:               meta.FullString(),
		MajorMinorPatch:                 v.MajorMinorPatch(),
		SemVer:                          v.String(),
		FullSemVer:                      v.FullSemVer(),
		InformationalVersion:            informationalVersion(ctx.Config.AssemblyInformationalFormat, v, commitsSince),
		AssemblySemVer:                  assemblyVersion(deref(ctx.Config.AssemblyVersioningScheme), v),
		AssemblySemFileVer:              assemblyVersion(deref(ctx.Config.AssemblyFileVersioningScheme), v),
		BranchName:                      ctx.Branch.Name,
		Sha:                             meta.Sha,
		ShortSha:                        meta.ShortSha,
		CommitDate:                      meta.CommitDate,
		CommitsSinceVersionSource:       commitsSince,
		CommitsSinceVersionSourcePadded: padNumber(commitsSince, deref(ctx.Config.CommitsSinceVersionSourcePadding)),
		BaseVersionStrategy:             winner.Strategy,
	}
	if !v.PreReleaseTag.IsEmpty() {
		vars.PreReleaseTagWithDash = "-" + v.PreReleaseTag.String()
	}
	if v.PreReleaseTag.HasNumber {
		vars.PreReleaseNumber = strconv.FormatUint(v.PreReleaseTag.Number, 10)
	}
	if winner.Source != nil {
		vars.VersionSourceSha = winner.Source.ID
	}
	return vars
}
