package gitver

import (
	"strconv"
	"testing"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"
)

// testRepoCreate creates a new in-memory git repository for testing
func testRepoCreate() (*git.Repository, error) {
	storage := memory.NewStorage()
	fs := memfs.New()
	return git.Init(storage, fs)
}

// testRepo builds commit graphs. Every commit writes its own file and is one
// minute newer than the previous one, so history order is deterministic.
type testRepo struct {
	t        *testing.T
	repo     *git.Repository
	workTree *git.Worktree
	clock    time.Time
	count    int
}

func newTestRepo(t *testing.T) *testRepo {
	t.Helper()

	repo, err := testRepoCreate()
	require.NoError(t, err)
	return wrapTestRepo(t, repo)
}

func wrapTestRepo(t *testing.T, repo *git.Repository) *testRepo {
	t.Helper()

	workTree, err := repo.Worktree()
	require.NoError(t, err)

	return &testRepo{
		t:        t,
		repo:     repo,
		workTree: workTree,
		clock:    time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func (r *testRepo) signature() *object.Signature {
	r.clock = r.clock.Add(time.Minute)
	return &object.Signature{Name: "test", Email: "test@example.com", When: r.clock}
}

func (r *testRepo) addFile() {
	r.t.Helper()

	r.count++
	name := "file-" + strconv.Itoa(r.count) + ".txt"
	require.NoError(r.t, writeFile(r.workTree.Filesystem, name, "content "+name))
	_, err := r.workTree.Add(name)
	require.NoError(r.t, err)
}

// commit adds a commit on the current branch.
func (r *testRepo) commit(message string) plumbing.Hash {
	r.t.Helper()

	r.addFile()
	hash, err := r.workTree.Commit(message, &git.CommitOptions{Author: r.signature()})
	require.NoError(r.t, err)
	return hash
}

// commits adds n commits with generic messages.
func (r *testRepo) commits(n int) plumbing.Hash {
	r.t.Helper()

	var hash plumbing.Hash
	for i := 0; i < n; i++ {
		hash = r.commit("commit " + strconv.Itoa(r.count+1))
	}
	return hash
}

// branch creates a branch at HEAD and checks it out.
func (r *testRepo) branch(name string) {
	r.t.Helper()

	err := r.workTree.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Create: true,
	})
	require.NoError(r.t, err)
}

func (r *testRepo) checkout(name string) {
	r.t.Helper()

	err := r.workTree.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
	})
	require.NoError(r.t, err)
}

// merge records a merge of the named branch into the current one.
func (r *testRepo) merge(name, message string) plumbing.Hash {
	r.t.Helper()

	head, err := r.repo.Head()
	require.NoError(r.t, err)
	other, err := r.repo.Reference(plumbing.NewBranchReferenceName(name), true)
	require.NoError(r.t, err)

	r.addFile()
	hash, err := r.workTree.Commit(message, &git.CommitOptions{
		Author:  r.signature(),
		Parents: []plumbing.Hash{head.Hash(), other.Hash()},
	})
	require.NoError(r.t, err)
	return hash
}

func (r *testRepo) head() plumbing.Hash {
	r.t.Helper()

	head, err := r.repo.Head()
	require.NoError(r.t, err)
	return head.Hash()
}

// tag creates a lightweight tag at HEAD.
func (r *testRepo) tag(name string) {
	r.t.Helper()

	_, err := r.repo.CreateTag(name, r.head(), nil)
	require.NoError(r.t, err)
}

func (r *testRepo) annotatedTag(name string) {
	r.t.Helper()

	_, err := r.repo.CreateTag(name, r.head(), &git.CreateTagOptions{
		Tagger:  r.signature(),
		Message: "Release " + name,
	})
	require.NoError(r.t, err)
}

func (r *testRepo) gitRepository() *GitRepository {
	return NewRepository(r.repo, "")
}

func (r *testRepo) calculate(cfg *Config) *VersionVariables {
	r.t.Helper()

	vars, err := Calculate(Options{Repository: r.gitRepository(), Config: cfg})
	require.NoError(r.t, err)
	return vars
}

// context builds a strategy context for the current branch.
func (r *testRepo) context(cfg *Config) *Context {
	r.t.Helper()

	resolved, err := ResolveConfig(cfg)
	require.NoError(r.t, err)
	ctx, err := NewContext(r.gitRepository(), resolved, "", nil)
	require.NoError(r.t, err)
	return ctx
}

// writeFile writes content to a file in the given filesystem
func writeFile(fs billy.Filesystem, filename, content string) error {
	file, err := fs.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.Write([]byte(content))
	return err
}
