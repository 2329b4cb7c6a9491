package loose_test

import (
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengit/engine/plumbing/hash"
	"github.com/opengit/engine/plumbing/object"
	"github.com/opengit/engine/storage/loose"
)

func TestStoreLoadRoundTrip(t *testing.T) {
	s := loose.New(memfs.New())
	blob := object.NewBlob([]byte("hello loose object store"))

	id, err := s.Store(blob)
	require.NoError(t, err)
	assert.Equal(t, object.ID(blob), id)
	assert.True(t, s.Has(id))

	got, err := s.Load(id)
	require.NoError(t, err)
	assert.Equal(t, blob.Bytes(), got.(*object.Blob).Bytes())
}

func TestLoadMissingReturnsErrNotFound(t *testing.T) {
	s := loose.New(memfs.New())
	_, err := s.Load(object.ID(object.NewBlob([]byte("nope"))))
	assert.ErrorIs(t, err, loose.ErrNotFound)
}

func TestStoreIsIdempotent(t *testing.T) {
	s := loose.New(memfs.New())
	blob := object.NewBlob([]byte("same content twice"))

	id1, err := s.Store(blob)
	require.NoError(t, err)
	id2, err := s.Store(blob)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestDeleteAndWalk(t *testing.T) {
	s := loose.New(memfs.New())
	a, err := s.Store(object.NewBlob([]byte("a")))
	require.NoError(t, err)
	b, err := s.Store(object.NewBlob([]byte("b")))
	require.NoError(t, err)

	var seen []string
	require.NoError(t, s.Walk(func(id hash.ObjectID) error {
		seen = append(seen, id.String())
		return nil
	}))
	assert.Len(t, seen, 2)

	require.NoError(t, s.Delete(a))
	assert.False(t, s.Has(a))
	assert.True(t, s.Has(b))
	assert.NoError(t, s.Delete(a)) // deleting twice is not an error
}
