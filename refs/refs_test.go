package refs_test

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengit/engine/plumbing/hash"
	"github.com/opengit/engine/refs"
)

func commitHash(seed byte) hash.ObjectID {
	return hash.Sum([]byte{seed})
}

func TestSetAndGetHashReference(t *testing.T) {
	s := refs.NewStore(memfs.New())
	h := commitHash(1)

	require.NoError(t, s.SetReference(refs.NewHashReference("refs/heads/main", h)))

	got, err := s.Reference("refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, refs.HashReference, got.Type())
	assert.Equal(t, h, got.Hash())
}

func TestHeadResolvesThroughSymbolicChain(t *testing.T) {
	s := refs.NewStore(memfs.New())
	h := commitHash(2)

	require.NoError(t, s.SetReference(refs.NewHashReference("refs/heads/main", h)))
	require.NoError(t, s.SetReference(refs.NewSymbolicReference(refs.HEAD, "refs/heads/main")))

	head, err := s.Reference(refs.HEAD)
	require.NoError(t, err)
	assert.Equal(t, refs.SymbolicReference, head.Type())
	assert.Equal(t, refs.ReferenceName("refs/heads/main"), head.Target())

	resolved, err := s.Resolve(refs.HEAD)
	require.NoError(t, err)
	assert.Equal(t, refs.HashReference, resolved.Type())
	assert.Equal(t, h, resolved.Hash())
}

func TestResolveDetectsCycle(t *testing.T) {
	s := refs.NewStore(memfs.New())

	require.NoError(t, s.SetReference(refs.NewSymbolicReference("refs/heads/a", "refs/heads/b")))
	require.NoError(t, s.SetReference(refs.NewSymbolicReference("refs/heads/b", "refs/heads/a")))

	_, err := s.Resolve("refs/heads/a")
	assert.ErrorIs(t, err, refs.ErrMaxSymbolicHops)
}

func TestCheckAndSetReferenceRejectsStaleOld(t *testing.T) {
	s := refs.NewStore(memfs.New())
	h1, h2, h3 := commitHash(3), commitHash(4), commitHash(5)

	require.NoError(t, s.SetReference(refs.NewHashReference("refs/heads/main", h1)))

	err := s.CheckAndSetReference(
		refs.NewHashReference("refs/heads/main", h3),
		refs.NewHashReference("refs/heads/main", h2),
	)
	assert.ErrorIs(t, err, refs.ErrReferenceHasChanged)

	require.NoError(t, s.CheckAndSetReference(
		refs.NewHashReference("refs/heads/main", h3),
		refs.NewHashReference("refs/heads/main", h1),
	))

	got, err := s.Reference("refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, h3, got.Hash())
}

func TestRemoveReference(t *testing.T) {
	s := refs.NewStore(memfs.New())
	require.NoError(t, s.SetReference(refs.NewHashReference("refs/heads/doomed", commitHash(6))))

	require.NoError(t, s.RemoveReference("refs/heads/doomed"))
	_, err := s.Reference("refs/heads/doomed")
	assert.ErrorIs(t, err, refs.ErrReferenceNotFound)

	// Removing again is not an error.
	assert.NoError(t, s.RemoveReference("refs/heads/doomed"))
}

func TestIterReferencesIncludesHeadAndLoose(t *testing.T) {
	s := refs.NewStore(memfs.New())
	require.NoError(t, s.SetReference(refs.NewHashReference("refs/heads/main", commitHash(7))))
	require.NoError(t, s.SetReference(refs.NewHashReference("refs/tags/v1", commitHash(8))))
	require.NoError(t, s.SetReference(refs.NewSymbolicReference(refs.HEAD, "refs/heads/main")))

	all, err := s.IterReferences()
	require.NoError(t, err)

	names := make(map[refs.ReferenceName]bool)
	for _, r := range all {
		names[r.Name()] = true
	}
	assert.True(t, names[refs.HEAD])
	assert.True(t, names["refs/heads/main"])
	assert.True(t, names["refs/tags/v1"])
}

func TestPackRefsMovesLooseIntoPackedFile(t *testing.T) {
	s := refs.NewStore(memfs.New())
	h := commitHash(9)
	require.NoError(t, s.SetReference(refs.NewHashReference("refs/heads/main", h)))

	require.NoError(t, s.PackRefs())

	got, err := s.Reference("refs/heads/main")
	require.NoError(t, err)
	assert.Equal(t, h, got.Hash())
}
