package diff_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengit/engine/diff"
)

func TestEncodeDecodeBinaryPatchRoundTrip(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog, repeated enough to span multiple base85 lines\x00\x01\xff")
	encoded := diff.EncodeBinaryPatch(data)

	full := "diff --git a/bin b/bin\n" + string(encoded)
	patches, err := diff.ParsePatch([]byte(full))
	require.NoError(t, err)
	require.Len(t, patches, 1)
	require.True(t, patches[0].IsBinary)
	require.NotNil(t, patches[0].Binary)

	assert.Equal(t, diff.BinaryLiteral, patches[0].Binary.Kind)
	assert.Equal(t, len(data), patches[0].Binary.Size)
	assert.Equal(t, data, patches[0].Binary.Data)
}

func TestEncodeBinaryPatchSmallPayload(t *testing.T) {
	data := []byte("x")
	encoded := diff.EncodeBinaryPatch(data)

	full := "diff --git a/bin b/bin\n" + string(encoded)
	patches, err := diff.ParsePatch([]byte(full))
	require.NoError(t, err)
	require.Len(t, patches, 1)
	assert.Equal(t, data, patches[0].Binary.Data)
}

func TestParseBinaryPatchRejectsBadAlphabet(t *testing.T) {
	// 'A' declares a 1-byte group (5 base85 chars expected); ',' is not in
	// Git's base85 alphabet.
	full := "diff --git a/bin b/bin\nGIT binary patch\nliteral 1\nA,,,,,\n\n"
	_, err := diff.ParsePatch([]byte(full))
	assert.ErrorIs(t, err, diff.ErrInvalidBase85)
}

func TestParseBinaryPatchRejectsSizeMismatch(t *testing.T) {
	data := []byte("ab")
	encoded := diff.EncodeBinaryPatch(data)
	// corrupt the declared size so it no longer matches the decoded body
	corrupted := bytes.Replace(encoded, []byte("literal 2\n"), []byte("literal 99\n"), 1)
	full := "diff --git a/bin b/bin\n" + string(corrupted)
	_, err := diff.ParsePatch([]byte(full))
	assert.ErrorIs(t, err, diff.ErrInvalidBase85)
}
