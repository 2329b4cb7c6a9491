package worktree_test

import (
	"strings"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengit/engine/config"
	"github.com/opengit/engine/diff"
	"github.com/opengit/engine/iofs"
	"github.com/opengit/engine/plumbing/format/index"
	"github.com/opengit/engine/refs"
	"github.com/opengit/engine/storage/objstore"
	"github.com/opengit/engine/worktree"
)

func TestMergeCleanDivergedUnrelatedFiles(t *testing.T) {
	bfs := memfs.New()
	store, err := objstore.New(bfs, 1024)
	require.NoError(t, err)
	refStore := refs.NewStore(bfs)
	w := worktree.New(store, refStore, index.New(2), iofs.New(bfs), bfs, config.Default())

	writeFile(t, bfs, "base.txt", "shared\n")
	require.NoError(t, w.Add("base.txt"))
	_, err = w.Commit("base", sig, sig)
	require.NoError(t, err)

	head, err := refStore.Resolve(refs.HEAD)
	require.NoError(t, err)
	baseCommit := head.Hash()

	// ours: adds ours.txt on top of base
	writeFile(t, bfs, "ours.txt", "ours only\n")
	require.NoError(t, w.Add("ours.txt"))
	oursID, err := w.Commit("add ours.txt", sig, sig)
	require.NoError(t, err)

	// theirs: branch from base, adds a different file
	require.NoError(t, w.Checkout(baseCommit, true))
	writeFile(t, bfs, "theirs.txt", "theirs only\n")
	require.NoError(t, w.Add("theirs.txt"))
	theirsID, err := w.Commit("add theirs.txt", sig, sig)
	require.NoError(t, err)

	// move HEAD (and the worktree) back onto ours before merging theirs in.
	require.NoError(t, w.Checkout(oursID, true))

	merger := worktree.NewMerger(w)
	err = merger.BeginMerge(theirsID, diff.Myers)
	require.NoError(t, err)
	assert.Equal(t, worktree.MergeClean, merger.State())

	_, err = bfs.Stat("theirs.txt")
	assert.NoError(t, err)
	_, err = bfs.Stat("ours.txt")
	assert.NoError(t, err)

	id, err := merger.Commit("merge theirs into ours", sig, sig)
	require.NoError(t, err)
	assert.False(t, id.IsZero())
	assert.Equal(t, worktree.MergeIdle, merger.State())
}

func TestMergeConflictingContentProducesMarkers(t *testing.T) {
	bfs := memfs.New()
	store, err := objstore.New(bfs, 1024)
	require.NoError(t, err)
	refStore := refs.NewStore(bfs)
	w := worktree.New(store, refStore, index.New(2), iofs.New(bfs), bfs, config.Default())

	writeFile(t, bfs, "f.txt", "line1\nline2\nline3\n")
	require.NoError(t, w.Add("f.txt"))
	_, err = w.Commit("base", sig, sig)
	require.NoError(t, err)

	head, err := refStore.Resolve(refs.HEAD)
	require.NoError(t, err)
	baseCommit := head.Hash()

	writeFile(t, bfs, "f.txt", "line1\nOURS\nline3\n")
	require.NoError(t, w.Add("f.txt"))
	oursID, err := w.Commit("ours edits line2", sig, sig)
	require.NoError(t, err)

	require.NoError(t, w.Checkout(baseCommit, true))
	writeFile(t, bfs, "f.txt", "line1\nTHEIRS\nline3\n")
	require.NoError(t, w.Add("f.txt"))
	theirsID, err := w.Commit("theirs edits line2", sig, sig)
	require.NoError(t, err)

	require.NoError(t, w.Checkout(oursID, true))

	merger := worktree.NewMerger(w)
	err = merger.BeginMerge(theirsID, diff.Myers)
	require.NoError(t, err)
	assert.Equal(t, worktree.MergeConflicted, merger.State())

	f, err := bfs.Open("f.txt")
	require.NoError(t, err)
	var buf strings.Builder
	chunk := make([]byte, 256)
	for {
		n, rerr := f.Read(chunk)
		buf.Write(chunk[:n])
		if rerr != nil {
			break
		}
	}
	f.Close()
	assert.Contains(t, buf.String(), "<<<<<<<")
	assert.Contains(t, buf.String(), "OURS")
	assert.Contains(t, buf.String(), "THEIRS")

	_, err = merger.Commit("should fail", sig, sig)
	assert.ErrorIs(t, err, worktree.ErrCommitBlocked)

	require.NoError(t, merger.Abort())
	assert.Equal(t, worktree.MergeIdle, merger.State())
}
