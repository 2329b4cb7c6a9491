package diff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengit/engine/diff"
)

const samplePatch = `diff --git a/foo.txt b/foo.txt
index 1234567..89abcde 100644
--- a/foo.txt
+++ b/foo.txt
@@ -1,3 +1,3 @@
 line one
-line two
+line TWO
 line three
`

func TestParsePatchModifyHeaderAndHunk(t *testing.T) {
	patches, err := diff.ParsePatch([]byte(samplePatch))
	require.NoError(t, err)
	require.Len(t, patches, 1)

	fp := patches[0]
	assert.Equal(t, "foo.txt", fp.OldPath)
	assert.Equal(t, "foo.txt", fp.NewPath)
	require.Len(t, fp.Hunks, 1)
	h := fp.Hunks[0]
	assert.Equal(t, 1, h.OldStart)
	assert.Equal(t, 3, h.OldLines)
	assert.Equal(t, 1, h.NewStart)
	assert.Equal(t, 3, h.NewLines)
	require.Len(t, h.Lines, 4)
}

func TestParsePatchAddedFile(t *testing.T) {
	src := `diff --git a/new.txt b/new.txt
new file mode 100644
index 0000000..abc1234
--- /dev/null
+++ b/new.txt
@@ -0,0 +1,2 @@
+hello
+world
`
	patches, err := diff.ParsePatch([]byte(src))
	require.NoError(t, err)
	require.Len(t, patches, 1)
	assert.Equal(t, diff.OpAdd, patches[0].Op)
}

func TestParsePatchDeletedFile(t *testing.T) {
	src := `diff --git a/old.txt b/old.txt
deleted file mode 100644
index abc1234..0000000
--- a/old.txt
+++ /dev/null
@@ -1,2 +0,0 @@
-hello
-world
`
	patches, err := diff.ParsePatch([]byte(src))
	require.NoError(t, err)
	require.Len(t, patches, 1)
	assert.Equal(t, diff.OpDelete, patches[0].Op)
}

func TestParsePatchRename(t *testing.T) {
	src := `diff --git a/old.txt b/new.txt
similarity index 100%
rename from old.txt
rename to new.txt
`
	patches, err := diff.ParsePatch([]byte(src))
	require.NoError(t, err)
	require.Len(t, patches, 1)
	assert.Equal(t, diff.OpRename, patches[0].Op)
	assert.Equal(t, "old.txt", patches[0].OldPath)
	assert.Equal(t, "new.txt", patches[0].NewPath)
}

func TestApplyPatchProducesExpectedContent(t *testing.T) {
	patches, err := diff.ParsePatch([]byte(samplePatch))
	require.NoError(t, err)

	original := []byte("line one\nline two\nline three\n")
	res, err := diff.ApplyPatch(original, patches[0], diff.ApplyOptions{})
	require.NoError(t, err)
	assert.False(t, res.HasConflict)
	assert.Equal(t, "line one\nline TWO\nline three\n", string(res.Content))
}

func TestApplyPatchWithFuzzFindsShiftedContext(t *testing.T) {
	patches, err := diff.ParsePatch([]byte(samplePatch))
	require.NoError(t, err)

	// insert two extra leading lines so the hunk's claimed position is off
	// by two; fuzz should still locate the matching context.
	shifted := []byte("prefix one\nprefix two\nline one\nline two\nline three\n")
	res, err := diff.ApplyPatch(shifted, patches[0], diff.ApplyOptions{MaxFuzz: 4})
	require.NoError(t, err)
	assert.False(t, res.HasConflict)
	assert.Equal(t, "prefix one\nprefix two\nline one\nline TWO\nline three\n", string(res.Content))
}

func TestApplyPatchFailsWithoutFuzzWhenContextMoved(t *testing.T) {
	patches, err := diff.ParsePatch([]byte(samplePatch))
	require.NoError(t, err)

	shifted := []byte("prefix one\nprefix two\nline one\nline two\nline three\n")
	_, err = diff.ApplyPatch(shifted, patches[0], diff.ApplyOptions{MaxFuzz: 0})
	assert.ErrorIs(t, err, diff.ErrFuzzExceeded)
}

func TestApplyPatchAllowConflictsEmitsMarkersAndContinues(t *testing.T) {
	patches, err := diff.ParsePatch([]byte(samplePatch))
	require.NoError(t, err)

	unrelated := []byte("totally\ndifferent\ncontent\n")
	res, err := diff.ApplyPatch(unrelated, patches[0], diff.ApplyOptions{AllowConflicts: true})
	require.NoError(t, err)
	assert.True(t, res.HasConflict)
	assert.Contains(t, string(res.Content), "<<<<<<< OURS")
	assert.Contains(t, string(res.Content), ">>>>>>> PATCH")
}
