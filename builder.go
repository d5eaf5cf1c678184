package gitver

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// buildVersion applies the increment to the winning candidate and attaches
// the pre-release tag and build metadata for the current branch. A
// pre-release base keeps its major.minor.patch; only its number moves on.
func buildVersion(ctx *Context, winner BaseVersionCandidate, field VersionField, commitsSince int) SemanticVersion {
	meta := buildMetaData(ctx, commitsSince)

	if isExactTag(ctx, winner) {
		v := winner.Version
		v.BuildMetaData = meta
		return v
	}

	v := winner.Version.Increment(FieldNone)
	if winner.Version.IsRelease() {
		v = winner.Version.Increment(field)
	}
	v.BuildMetaData = meta

	v.PreReleaseTag = PreReleaseTag{}
	if tag := preReleaseName(ctx); tag != "" {
		v.PreReleaseTag = PreReleaseTag{
			Name:      tag,
			Number:    preReleaseNumber(ctx, winner, field, tag),
			HasNumber: true,
		}
	}

	if deref(ctx.BranchConfig.VersioningMode) == ContinuousDeployment {
		v.PreReleaseTag = PreReleaseTag{}
		if commitsSince > 1 {
			v.Patch += uint64(commitsSince - 1)
		}
	}

	ctx.logger.Debug("version built",
		zap.String("base", winner.Version.String()),
		zap.Stringer("increment", field),
		zap.String("version", v.FullSemVer()),
	)
	return v
}

// isExactTag reports whether HEAD itself carries the winning tag.
func isExactTag(ctx *Context, winner BaseVersionCandidate) bool {
	return winner.Strategy == StrategyTaggedCommit &&
		winner.Source != nil &&
		winner.Source.ID == ctx.Head.ID
}

// preReleaseName resolves the branch tag: a literal, the branch name, or
// nothing. A number found by the tag number pattern is appended.
func preReleaseName(ctx *Context) string {
	tag := deref(ctx.BranchConfig.Tag)
	if tag == UseBranchNameTag {
		name := ctx.matcher.trimPrefix(ctx.BranchKey, ctx.Branch.Name)
		if name == "" {
			name = ctx.Branch.Name
		}
		tag = sanitizeIdentifier(name)
	}
	if tag == "" {
		return ""
	}
	return tag + ctx.matcher.tagNumber(ctx.BranchKey, ctx.Branch.Name)
}

// preReleaseNumber continues the base version's numbering when it already
// carries the same tag, moving past it once there are commits on top.
func preReleaseNumber(ctx *Context, winner BaseVersionCandidate, field VersionField, tag string) uint64 {
	base := winner.Version.PreReleaseTag
	if base.Name != tag || !base.HasNumber {
		return 1
	}
	if field != FieldNone || (winner.Source != nil && winner.Source.ID != ctx.Head.ID) {
		return base.Number + 1
	}
	return base.Number
}

func buildMetaData(ctx *Context, commitsSince int) *BuildMetaData {
	return &BuildMetaData{
		CommitsSinceTag:       commitsSince,
		CommitsSinceTagPadded: padNumber(commitsSince, deref(ctx.Config.BuildMetaDataPadding)),
		Sha:                   ctx.Head.ID,
		ShortSha:              ctx.Head.ShortID(),
		Branch:                ctx.Branch.Name,
		CommitDate:            ctx.Head.When.Format(ctx.Config.CommitDateFormat),
	}
}

// sanitizeIdentifier replaces characters that are not valid in a semantic
// version identifier with dashes.
func sanitizeIdentifier(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String()
}

func padNumber(n, width int) string {
	return fmt.Sprintf("%0*d", width, n)
}

// informationalVersion renders the configured template.
func informationalVersion(format string, v SemanticVersion, commitsSince int) string {
	meta := v.BuildMetaData
	if meta == nil {
		meta = &BuildMetaData{}
	}

	preRelease := ""
	if !v.PreReleaseTag.IsEmpty() {
		preRelease = "-" + v.PreReleaseTag.String()
	}

	r := strings.NewReplacer(
		"{Major}", strconv.FormatUint(v.Major, 10),
		"{Minor}", strconv.FormatUint(v.Minor, 10),
		"{Patch}", strconv.FormatUint(v.Patch, 10),
		"{PreReleaseTag}", preRelease,
		"{BuildMetaData}", "+"+meta.String(),
		"{Sha}", meta.Sha,
		"{ShortSha}", meta.ShortSha,
		"{CommitDate}", meta.CommitDate,
		"{BranchName}", sanitizeIdentifier(meta.Branch),
		"{SemVer}", v.String(),
		"{FullSemVer}", v.FullSemVer(),
		"{CommitsSinceVersionSource}", strconv.Itoa(commitsSince),
	)
	return r.Replace(format)
}

// assemblyVersion renders a four part version for the scheme.
func assemblyVersion(scheme AssemblyVersioningScheme, v SemanticVersion) string {
	switch scheme {
	case AssemblyMajorMinorPatch:
		return fmt.Sprintf("%d.%d.%d.0", v.Major, v.Minor, v.Patch)
	case AssemblyMajorMinor:
		return fmt.Sprintf("%d.%d.0.0", v.Major, v.Minor)
	case AssemblyMajor:
		return fmt.Sprintf("%d.0.0.0", v.Major)
	case AssemblyMajorMinorPatchTag:
		return fmt.Sprintf("%d.%d.%d.%d", v.Major, v.Minor, v.Patch, v.PreReleaseTag.Number)
	default:
		return ""
	}
}
