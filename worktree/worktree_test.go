package worktree_test

import (
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengit/engine/config"
	"github.com/opengit/engine/iofs"
	"github.com/opengit/engine/plumbing/format/index"
	"github.com/opengit/engine/plumbing/object"
	"github.com/opengit/engine/refs"
	"github.com/opengit/engine/storage/objstore"
	"github.com/opengit/engine/worktree"
)

var sig = object.Signature{Name: "tester", Email: "tester@example.test", When: 1700000000}

func newFixture(t *testing.T) (*worktree.Worktree, billy.Filesystem) {
	t.Helper()
	bfs := memfs.New()
	store, err := objstore.New(bfs, 1024)
	require.NoError(t, err)
	refStore := refs.NewStore(bfs)
	idx := index.New(2)
	fs := iofs.New(bfs)
	return worktree.New(store, refStore, idx, fs, bfs, config.Default()), bfs
}

func writeFile(t *testing.T, bfs billy.Filesystem, path, content string) {
	t.Helper()
	f, err := bfs.Create(path)
	require.NoError(t, err)
	_, err = f.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestWorktreeAddStatusCommit(t *testing.T) {
	w, bfs := newFixture(t)
	writeFile(t, bfs, "README.md", "hello\n")

	st, err := w.Status()
	require.NoError(t, err)
	assert.Equal(t, worktree.Untracked, st["README.md"].Worktree)

	require.NoError(t, w.Add("README.md"))

	st, err = w.Status()
	require.NoError(t, err)
	assert.Equal(t, worktree.Added, st["README.md"].Staging)
	assert.Equal(t, worktree.Unmodified, st["README.md"].Worktree)

	id, err := w.Commit("initial commit", sig, sig)
	require.NoError(t, err)
	assert.False(t, id.IsZero())

	st, err = w.Status()
	require.NoError(t, err)
	assert.True(t, st.IsClean())
}

func TestWorktreeModifyAfterCommitShowsUpAsModified(t *testing.T) {
	w, bfs := newFixture(t)
	writeFile(t, bfs, "a.txt", "v1\n")
	require.NoError(t, w.Add("a.txt"))
	_, err := w.Commit("add a", sig, sig)
	require.NoError(t, err)

	writeFile(t, bfs, "a.txt", "v2\n")
	st, err := w.Status()
	require.NoError(t, err)
	assert.Equal(t, worktree.Unmodified, st["a.txt"].Staging)
	assert.Equal(t, worktree.Modified, st["a.txt"].Worktree)
}

func TestWorktreeRemove(t *testing.T) {
	w, bfs := newFixture(t)
	writeFile(t, bfs, "a.txt", "v1\n")
	require.NoError(t, w.Add("a.txt"))
	_, err := w.Commit("add a", sig, sig)
	require.NoError(t, err)

	require.NoError(t, w.Remove("a.txt"))
	_, err = bfs.Stat("a.txt")
	assert.Error(t, err)

	st, err := w.Status()
	require.NoError(t, err)
	assert.Equal(t, worktree.Deleted, st["a.txt"].Staging)
}

func TestWorktreeMove(t *testing.T) {
	w, bfs := newFixture(t)
	writeFile(t, bfs, "old.txt", "content\n")
	require.NoError(t, w.Add("old.txt"))
	_, err := w.Commit("add old", sig, sig)
	require.NoError(t, err)

	require.NoError(t, w.Move("old.txt", "new.txt"))
	_, err = bfs.Stat("old.txt")
	assert.Error(t, err)
	fi, err := bfs.Stat("new.txt")
	require.NoError(t, err)
	assert.False(t, fi.IsDir())
}

func TestWorktreeCheckoutRestoresCommittedContent(t *testing.T) {
	w, bfs := newFixture(t)
	writeFile(t, bfs, "a.txt", "v1\n")
	require.NoError(t, w.Add("a.txt"))
	first, err := w.Commit("v1", sig, sig)
	require.NoError(t, err)

	writeFile(t, bfs, "a.txt", "v2\n")
	require.NoError(t, w.Add("a.txt"))
	_, err = w.Commit("v2", sig, sig)
	require.NoError(t, err)

	require.NoError(t, w.Checkout(first, true))

	f, err := bfs.Open("a.txt")
	require.NoError(t, err)
	buf := make([]byte, 2)
	_, err = f.Read(buf)
	require.NoError(t, err)
	f.Close()
	assert.Equal(t, "v1", string(buf))
}

func TestWorktreeCheckoutRefusesWithUncommittedChanges(t *testing.T) {
	w, bfs := newFixture(t)
	writeFile(t, bfs, "a.txt", "v1\n")
	require.NoError(t, w.Add("a.txt"))
	first, err := w.Commit("v1", sig, sig)
	require.NoError(t, err)

	writeFile(t, bfs, "b.txt", "untracked\n")
	require.NoError(t, w.Add("b.txt"))

	err = w.Checkout(first, false)
	assert.ErrorIs(t, err, worktree.ErrUncommittedChanges)
}

func TestWorktreeRenameDetectedBetweenHeadAndIndex(t *testing.T) {
	w, bfs := newFixture(t)
	writeFile(t, bfs, "orig.txt", "identical content across a rename\n")
	require.NoError(t, w.Add("orig.txt"))
	_, err := w.Commit("add orig", sig, sig)
	require.NoError(t, err)

	require.NoError(t, w.Move("orig.txt", "renamed.txt"))

	st, err := w.Status()
	require.NoError(t, err)
	fs, ok := st["renamed.txt"]
	require.True(t, ok)
	assert.Equal(t, worktree.Renamed, fs.Staging)
	assert.Equal(t, "orig.txt", fs.Extra)
}
