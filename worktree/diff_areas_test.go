package worktree

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengit/engine/iofs"
	"github.com/opengit/engine/plumbing/filemode"
	"github.com/opengit/engine/plumbing/format/gitignore"
	"github.com/opengit/engine/plumbing/object"
)

func gitignoreMatcherFor(t *testing.T, lines ...string) *gitignore.Matcher {
	t.Helper()
	patterns := make([]gitignore.Pattern, len(lines))
	for i, line := range lines {
		patterns[i] = gitignore.ParsePattern(line, nil)
	}
	return gitignore.NewMatcher(patterns)
}

func writeWorktreeFile(t *testing.T, fs *iofs.FS, path, content string) *iofs.Stats {
	t.Helper()
	w, err := fs.Write(path)
	require.NoError(t, err)
	_, err = w.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	st, err := fs.Stat(path)
	require.NoError(t, err)
	require.NotNil(t, st)
	return st
}

// TestDiffIndexToWorktreeRehashesWhenRacyAgainstIndexWrite pins
// indexWrittenAt just after the worktree file's own mtime, inside the
// racy threshold: even though size and mtime both still match the staged
// entry, the entry must be re-hashed rather than trusted, because a write
// landing in the index's own timestamp tick is indistinguishable from no
// write at all.
func TestDiffIndexToWorktreeRehashesWhenRacyAgainstIndexWrite(t *testing.T) {
	bfs := memfs.New()
	fs := iofs.New(bfs)
	st := writeWorktreeFile(t, fs, "a.txt", "staged content")

	idx := map[string]treeEntry{
		"a.txt": {Mode: filemode.Regular, ID: object.ID(object.NewBlob([]byte("a different blob than what's on disk")))},
	}
	idxByPath := map[string]indexStatInfo{
		"a.txt": {Size: uint32(st.Size), ModifiedAt: st.Mtime},
	}

	indexWrittenAt := st.Mtime.Add(5 * time.Second)
	s := make(Status)
	err := diffIndexToWorktree(s, fs, idx, idxByPath, indexWrittenAt, 10_000, nil)
	require.NoError(t, err)

	assert.Equal(t, Modified, s["a.txt"].Worktree, "a racy stat match must still be re-hashed against the index")
}

// TestDiffIndexToWorktreeTrustsStatOutsideRacyWindow mirrors the same
// stat-looks-unmodified setup but with indexWrittenAt long after the file's
// mtime, outside the racy threshold: the stat comparison alone is trusted
// and the mismatched blob id is never even consulted.
func TestDiffIndexToWorktreeTrustsStatOutsideRacyWindow(t *testing.T) {
	bfs := memfs.New()
	fs := iofs.New(bfs)
	st := writeWorktreeFile(t, fs, "a.txt", "staged content")

	idx := map[string]treeEntry{
		"a.txt": {Mode: filemode.Regular, ID: object.ID(object.NewBlob([]byte("a different blob than what's on disk")))},
	}
	idxByPath := map[string]indexStatInfo{
		"a.txt": {Size: uint32(st.Size), ModifiedAt: st.Mtime},
	}

	indexWrittenAt := st.Mtime.Add(time.Hour)
	s := make(Status)
	err := diffIndexToWorktree(s, fs, idx, idxByPath, indexWrittenAt, 3000, nil)
	require.NoError(t, err)

	assert.Equal(t, Unmodified, s["a.txt"].Worktree)
}

func TestDiffIndexToWorktreeClassifiesIgnoredPaths(t *testing.T) {
	bfs := memfs.New()
	fs := iofs.New(bfs)
	writeWorktreeFile(t, fs, "build.log", "noise")

	matcher := gitignoreMatcherFor(t, "*.log")

	s := make(Status)
	err := diffIndexToWorktree(s, fs, map[string]treeEntry{}, map[string]indexStatInfo{}, time.Time{}, 3000, matcher)
	require.NoError(t, err)

	require.NotNil(t, s["build.log"])
	assert.Equal(t, Ignored, s["build.log"].Worktree)
	assert.Equal(t, Ignored, s["build.log"].Staging)
}
