// This file contains code adapted from pulumictl (https://github.com/pulumi/pulumictl)
// which is licensed under the Apache License 2.0. See NOTICE file for full attribution.

package gitver

import (
	"errors"
	"fmt"
	"os/exec"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
)

const remoteBranchPrefix = "refs/remotes/origin/"

// OpenRepository opens a Git repository at the specified path
func OpenRepository(path string) (*git.Repository, error) {
	return git.PlainOpenWithOptions(path, &git.PlainOpenOptions{
		DetectDotGit:          true,
		EnableDotGitCommonDir: true,
	})
}

// GitRepository implements Repository on top of go-git.
type GitRepository struct {
	repo     *git.Repository
	revision string
}

var (
	_ Repository         = (*GitRepository)(nil)
	_ BranchHeadResolver = (*GitRepository)(nil)
	_ WorktreeStatus     = (*GitRepository)(nil)
)

// NewRepository wraps a go-git repository. revision selects the commit to
// version; empty means HEAD.
func NewRepository(repo *git.Repository, revision string) *GitRepository {
	if revision == "" {
		revision = string(plumbing.HEAD)
	}
	return &GitRepository{repo: repo, revision: revision}
}

func (g *GitRepository) commitObject(revision string) (*object.Commit, error) {
	hash, err := g.repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return nil, &LookupError{Kind: "revision", Name: revision, Err: err}
	}

	commit, err := g.repo.CommitObject(*hash)
	if err != nil {
		return nil, &LookupError{Kind: "commit", Name: hash.String(), Err: err}
	}
	return commit, nil
}

func toCommit(c *object.Commit) *Commit {
	parents := make([]string, 0, len(c.ParentHashes))
	for _, p := range c.ParentHashes {
		parents = append(parents, p.String())
	}
	return &Commit{
		ID:      c.Hash.String(),
		Message: c.Message,
		Parents: parents,
		When:    c.Committer.When,
	}
}

func (g *GitRepository) Log(q LogQuery) ([]*Commit, error) {
	var commits []*Commit
	err := g.Walk(q, func(c *Commit) error {
		commits = append(commits, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return commits, nil
}

// Walk visits the commits reachable from the query revision and not from its
// exclusion, newest committer time first.
func (g *GitRepository) Walk(q LogQuery, fn func(*Commit) error) error {
	revision := q.Revision
	if revision == "" {
		revision = g.revision
	}

	from, err := g.commitObject(revision)
	if err != nil {
		return err
	}

	walker := newRangeWalker(g.repo.CommitObject)
	if err := walker.push(from, false); err != nil {
		return err
	}
	if q.Exclude != "" {
		ex, err := g.commitObject(q.Exclude)
		if err != nil {
			return err
		}
		if err := walker.push(ex, true); err != nil {
			return err
		}
	}

	for visited := 0; q.Limit <= 0 || visited < q.Limit; visited++ {
		c, err := walker.next()
		if err != nil {
			return fmt.Errorf("walking history: %w", err)
		}
		if c == nil {
			return nil
		}
		if err := fn(toCommit(c)); err != nil {
			if errors.Is(err, ErrStopWalk) {
				return nil
			}
			return err
		}
	}
	return nil
}

// MergeBase returns the newest best common ancestor of a and b.
func (g *GitRepository) MergeBase(a, b string) (*Commit, error) {
	first, err := g.commitObject(a)
	if err != nil {
		return nil, err
	}
	second, err := g.commitObject(b)
	if err != nil {
		return nil, err
	}

	bases, err := first.MergeBase(second)
	if err != nil {
		return nil, fmt.Errorf("finding merge base of %s and %s: %w", a, b, err)
	}
	if len(bases) == 0 {
		return nil, nil
	}

	best := bases[0]
	for _, base := range bases[1:] {
		if base.Committer.When.After(best.Committer.When) {
			best = base
		}
	}
	return toCommit(best), nil
}

func (g *GitRepository) Count(q LogQuery) (int, error) {
	commits, err := g.Log(q)
	if err != nil {
		return 0, err
	}
	return len(commits), nil
}

func (g *GitRepository) CurrentCommit() (*Commit, error) {
	return g.GetCommit(g.revision)
}

func (g *GitRepository) GetCommit(revision string) (*Commit, error) {
	c, err := g.commitObject(revision)
	if err != nil {
		return nil, err
	}
	return toCommit(c), nil
}

func (g *GitRepository) Parents(c *Commit) ([]*Commit, error) {
	parents := make([]*Commit, 0, len(c.Parents))
	for _, id := range c.Parents {
		p, err := g.repo.CommitObject(plumbing.NewHash(id))
		if err != nil {
			return nil, &LookupError{Kind: "commit", Name: id, Err: err}
		}
		parents = append(parents, toCommit(p))
	}
	return parents, nil
}

// CurrentBranch returns the branch HEAD points at. A detached HEAD is an error;
// callers pass the branch name explicitly in that case.
func (g *GitRepository) CurrentBranch() (*BranchHead, error) {
	ref, err := g.repo.Reference(plumbing.HEAD, false)
	if err != nil {
		return nil, &LookupError{Kind: "reference", Name: string(plumbing.HEAD), Err: err}
	}
	if ref.Type() != plumbing.SymbolicReference {
		return nil, &LookupError{Kind: "branch", Name: string(plumbing.HEAD), Err: errors.New("HEAD is detached")}
	}
	return NewBranchHead(ref.Target().Short(), g), nil
}

// ResolveBranchHead loads the head of a local branch, falling back to the
// origin remote tracking branch.
func (g *GitRepository) ResolveBranchHead(name string) (*Commit, error) {
	candidates := []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(name),
		plumbing.NewRemoteReferenceName("origin", name),
		plumbing.ReferenceName(name),
	}

	var lastErr error
	for _, refName := range candidates {
		ref, err := g.repo.Reference(refName, true)
		if err != nil {
			lastErr = err
			continue
		}
		c, err := g.repo.CommitObject(ref.Hash())
		if err != nil {
			return nil, &LookupError{Kind: "commit", Name: ref.Hash().String(), Err: err}
		}
		return toCommit(c), nil
	}

	return nil, &LookupError{Kind: "branch", Name: name, Err: lastErr}
}

func (g *GitRepository) GetBranchHead(name string) (*BranchHead, error) {
	head, err := g.ResolveBranchHead(name)
	if err != nil {
		return nil, err
	}
	return NewResolvedBranchHead(name, head), nil
}

func (g *GitRepository) Heads() ([]*BranchHead, error) {
	return g.branchHeads(func(ref *plumbing.Reference) (string, bool) {
		if !ref.Name().IsBranch() {
			return "", false
		}
		return ref.Name().Short(), true
	})
}

// Branches lists local branches and origin remote tracking branches. A remote
// branch with a local counterpart is listed once.
func (g *GitRepository) Branches() ([]*BranchHead, error) {
	return g.branchHeads(func(ref *plumbing.Reference) (string, bool) {
		name := ref.Name()
		switch {
		case name.IsBranch():
			return name.Short(), true
		case name.IsRemote():
			s := name.String()
			if len(s) <= len(remoteBranchPrefix) || s[:len(remoteBranchPrefix)] != remoteBranchPrefix {
				return "", false
			}
			short := s[len(remoteBranchPrefix):]
			if short == string(plumbing.HEAD) {
				return "", false
			}
			return short, true
		}
		return "", false
	})
}

func (g *GitRepository) branchHeads(keep func(*plumbing.Reference) (string, bool)) ([]*BranchHead, error) {
	refs, err := g.repo.References()
	if err != nil {
		return nil, fmt.Errorf("listing references: %w", err)
	}

	seen := make(map[string]bool)
	var heads []*BranchHead
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}
		name, ok := keep(ref)
		if !ok || seen[name] {
			return nil
		}
		seen[name] = true
		heads = append(heads, NewBranchHead(name, g))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterating references: %w", err)
	}

	sort.Slice(heads, func(i, j int) bool { return heads[i].Name < heads[j].Name })
	return heads, nil
}

// Tags lists every tag with its target commit. Annotated tags are peeled to
// the commit they point at.
func (g *GitRepository) Tags() ([]Tag, error) {
	iter, err := g.repo.Tags()
	if err != nil {
		return nil, fmt.Errorf("listing tags: %w", err)
	}

	var tags []Tag
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() != plumbing.HashReference {
			return nil
		}

		obj, err := g.repo.TagObject(ref.Hash())
		switch err {
		case nil:
			// Annotated tag
			commit, err := obj.Commit()
			if err != nil {
				// tags of trees or blobs carry no version
				return nil
			}
			tags = append(tags, Tag{Name: ref.Name().Short(), Target: commit.Hash.String()})
		case plumbing.ErrObjectNotFound:
			// Lightweight tag
			tags = append(tags, Tag{Name: ref.Name().Short(), Target: ref.Hash().String()})
		default:
			return err
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterating tags: %w", err)
	}

	sort.Slice(tags, func(i, j int) bool { return tags[i].Name < tags[j].Name })
	return tags, nil
}

// Tag creates a lightweight tag at the repository's revision.
func (g *GitRepository) Tag(name string) error {
	c, err := g.commitObject(g.revision)
	if err != nil {
		return err
	}
	if _, err := g.repo.CreateTag(name, c.Hash, nil); err != nil {
		return fmt.Errorf("creating tag %q: %w", name, err)
	}
	return nil
}

// IsDirty reports whether the worktree has uncommitted changes. Bare
// repositories are never dirty.
func (g *GitRepository) IsDirty() (bool, error) {
	workTree, err := g.repo.Worktree()
	if errors.Is(err, git.ErrIsBareRepository) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("getting worktree: %w", err)
	}

	// Fast path for filesystem storage
	if _, ok := g.repo.Storer.(*filesystem.Storage); ok {
		return checkDirtyWithGitCommand(workTree.Filesystem.Root())
	}

	// Fallback to go-git status check
	status, err := workTree.Status()
	if err != nil {
		return false, fmt.Errorf("getting git status: %w", err)
	}

	return !status.IsClean(), nil
}

func checkDirtyWithGitCommand(repoPath string) (bool, error) {
	// Refresh index first
	cmd := exec.Command("git", "update-index", "-q", "--refresh")
	cmd.Dir = repoPath
	if err := cmd.Run(); err != nil {
		// If update-index fails, assume dirty
		return true, nil
	}

	cmd = exec.Command("git", "diff-files", "--name-status", "--ignore-space-at-eol")
	cmd.Dir = repoPath
	output, err := cmd.Output()
	if err != nil {
		if _, ok := err.(*exec.ExitError); ok {
			return true, nil
		}
		return false, err
	}

	return len(output) > 0, nil
}
