package gitver

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Options configures version calculation behavior
type Options struct {
	// Repository is the repository to analyze
	Repository Repository

	// Config is the user configuration. Nil uses the built-in defaults.
	Config *Config

	// Branch overrides the current branch name, e.g. on a detached HEAD in CI
	Branch string

	// Logger receives debug output. Nil disables logging.
	Logger *zap.Logger
}

// VersionVariables is the result of a calculation
type VersionVariables struct {
	Major                           uint64 `json:"Major"`
	Minor                           uint64 `json:"Minor"`
	Patch                           uint64 `json:"Patch"`
	PreReleaseTag                   string `json:"PreReleaseTag"`
	PreReleaseTagWithDash           string `json:"PreReleaseTagWithDash"`
	PreReleaseLabel                 string `json:"PreReleaseLabel"`
	PreReleaseNumber                string `json:"PreReleaseNumber"`
	BuildMetaData                   string `json:"BuildMetaData"`
	BuildMetaDataPadded             string `json:"BuildMetaDataPadded"`
	FullBuildMetaData               string `json:"FullBuildMetaData"`
	MajorMinorPatch                 string `json:"MajorMinorPatch"`
	SemVer                          string `json:"SemVer"`
	FullSemVer                      string `json:"FullSemVer"`
	InformationalVersion            string `json:"InformationalVersion"`
	AssemblySemVer                  string `json:"AssemblySemVer"`
	AssemblySemFileVer              string `json:"AssemblySemFileVer"`
	BranchName                      string `json:"BranchName"`
	Sha                             string `json:"Sha"`
	ShortSha                        string `json:"ShortSha"`
	CommitDate                      string `json:"CommitDate"`
	CommitsSinceVersionSource       int    `json:"CommitsSinceVersionSource"`
	CommitsSinceVersionSourcePadded string `json:"CommitsSinceVersionSourcePadded"`
	VersionSourceSha                string `json:"VersionSourceSha"`
	BaseVersionStrategy             string `json:"BaseVersionStrategy"`
	UncommittedChanges              bool   `json:"UncommittedChanges"`
}

// Variable is a single named output value.
type Variable struct {
	Name  string
	Value string
}

// Variables lists every output value in a stable order.
func (v *VersionVariables) Variables() []Variable {
	return []Variable{
		{"Major", strconv.FormatUint(v.Major, 10)},
		{"Minor", strconv.FormatUint(v.Minor, 10)},
		{"Patch", strconv.FormatUint(v.Patch, 10)},
		{"PreReleaseTag", v.PreReleaseTag},
		{"PreReleaseTagWithDash", v.PreReleaseTagWithDash},
		{"PreReleaseLabel", v.PreReleaseLabel},
		{"PreReleaseNumber", v.PreReleaseNumber},
		{"BuildMetaData", v.BuildMetaData},
		{"BuildMetaDataPadded", v.BuildMetaDataPadded},
		{"FullBuildMetaData", v.FullBuildMetaData},
		{"MajorMinorPatch", v.MajorMinorPatch},
		{"SemVer", v.SemVer},
		{"FullSemVer", v.FullSemVer},
		{"InformationalVersion", v.InformationalVersion},
		{"AssemblySemVer", v.AssemblySemVer},
		{"AssemblySemFileVer", v.AssemblySemFileVer},
		{"BranchName", v.BranchName},
		{"Sha", v.Sha},
		{"ShortSha", v.ShortSha},
		{"CommitDate", v.CommitDate},
		{"CommitsSinceVersionSource", strconv.Itoa(v.CommitsSinceVersionSource)},
		{"CommitsSinceVersionSourcePadded", v.CommitsSinceVersionSourcePadded},
		{"VersionSourceSha", v.VersionSourceSha},
		{"BaseVersionStrategy", v.BaseVersionStrategy},
		{"UncommittedChanges", strconv.FormatBool(v.UncommittedChanges)},
	}
}

// Lookup returns a variable by name, ignoring case.
func (v *VersionVariables) Lookup(name string) (string, bool) {
	for _, variable := range v.Variables() {
		if strings.EqualFold(variable.Name, name) {
			return variable.Value, true
		}
	}
	return "", false
}
