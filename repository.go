package gitver

import (
	"errors"
	"fmt"
	"time"
)

// ErrStopWalk is returned by a Walk callback to end the walk without error.
var ErrStopWalk = errors.New("stop walk")

// Commit is a single commit as seen by the calculator.
type Commit struct {
	ID      string
	Message string
	Parents []string
	When    time.Time
}

// IsMerge reports whether the commit has more than one parent.
func (c *Commit) IsMerge() bool {
	return c != nil && len(c.Parents) > 1
}

// ShortID returns the first seven characters of the commit id.
func (c *Commit) ShortID() string {
	if c == nil {
		return ""
	}
	if len(c.ID) > 7 {
		return c.ID[:7]
	}
	return c.ID
}

// Tag is a tag name and the commit it points at. Annotated tags are peeled.
type Tag struct {
	Name   string
	Target string
}

// LogQuery selects commits reachable from Revision but not from Exclude,
// newest first. A zero Limit means no limit.
type LogQuery struct {
	Revision string
	Exclude  string
	Limit    int
}

// Repository is the read-only view of version control the calculator needs.
type Repository interface {
	// Log lists commits matching the query, newest first.
	Log(q LogQuery) ([]*Commit, error)
	// Walk calls fn for each commit Log would return, in the same order,
	// loading commits as it goes. fn returns ErrStopWalk to stop early.
	Walk(q LogQuery, fn func(*Commit) error) error
	// MergeBase returns the newest common ancestor of two revisions, or nil
	// when their histories are unrelated.
	MergeBase(a, b string) (*Commit, error)
	// Count returns the number of commits Log would return.
	Count(q LogQuery) (int, error)
	// Heads lists the local branch heads.
	Heads() ([]*BranchHead, error)
	CurrentBranch() (*BranchHead, error)
	CurrentCommit() (*Commit, error)
	// Branches lists local and remote tracking branch heads.
	Branches() ([]*BranchHead, error)
	Parents(c *Commit) ([]*Commit, error)
	GetCommit(revision string) (*Commit, error)
	GetBranchHead(name string) (*BranchHead, error)
	Tags() ([]Tag, error)
}

// WorktreeStatus is implemented by repositories that can report local changes.
type WorktreeStatus interface {
	IsDirty() (bool, error)
}

// BranchHeadResolver loads the commit a branch points at.
type BranchHeadResolver interface {
	ResolveBranchHead(name string) (*Commit, error)
}

// BranchHead is a branch name whose head commit is loaded on first use.
type BranchHead struct {
	Name string

	resolver BranchHeadResolver
	head     *Commit
	err      error
	resolved bool
}

// NewBranchHead returns a branch whose head is resolved lazily.
func NewBranchHead(name string, resolver BranchHeadResolver) *BranchHead {
	return &BranchHead{Name: name, resolver: resolver}
}

// NewResolvedBranchHead returns a branch with a known head commit.
func NewResolvedBranchHead(name string, head *Commit) *BranchHead {
	return &BranchHead{Name: name, head: head, resolved: true}
}

// Head returns the head commit, resolving it once.
func (b *BranchHead) Head() (*Commit, error) {
	if b.resolved {
		return b.head, b.err
	}
	b.resolved = true
	if b.resolver == nil {
		b.err = &LookupError{Kind: "branch", Name: b.Name, Err: fmt.Errorf("no resolver")}
		return nil, b.err
	}
	b.head, b.err = b.resolver.ResolveBranchHead(b.Name)
	return b.head, b.err
}

// Resolved reports whether Head has already been loaded.
func (b *BranchHead) Resolved() bool {
	return b.resolved
}

// LookupError reports a branch, commit or reference that could not be found.
type LookupError struct {
	Kind string
	Name string
	Err  error
}

func (e *LookupError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s %q not found", e.Kind, e.Name)
	}
	return fmt.Sprintf("looking up %s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}
