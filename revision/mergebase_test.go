package revision_test

import (
	"errors"
	"testing"

	"github.com/opengit/engine/plumbing/hash"
	"github.com/opengit/engine/plumbing/object"
	"github.com/opengit/engine/revision"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	commits map[hash.ObjectID]*object.Commit
}

func newFakeStore() *fakeStore {
	return &fakeStore{commits: make(map[hash.ObjectID]*object.Commit)}
}

func (f *fakeStore) Get(id hash.ObjectID) (object.Object, error) {
	c, ok := f.commits[id]
	if !ok {
		return nil, errors.New("fakeStore: unknown id")
	}
	return c, nil
}

// add creates a commit with the given parents and a message unique enough
// to derive a distinct id, at commit time t, returning its id.
func (f *fakeStore) add(message string, t int64, parents ...hash.ObjectID) hash.ObjectID {
	c := &object.Commit{
		Parents:   append([]hash.ObjectID(nil), parents...),
		Author:    object.Signature{Name: "a", Email: "a@x.test", When: t},
		Committer: object.Signature{Name: "a", Email: "a@x.test", When: t},
		Message:   message,
	}
	id := object.ID(c)
	f.commits[id] = c
	return id
}

func TestMergeBaseLinearHistory(t *testing.T) {
	s := newFakeStore()
	c1 := s.add("c1", 100)
	c2 := s.add("c2", 101, c1)
	c3 := s.add("c3", 102, c2)

	base, err := revision.MergeBase(s, c1, c3)
	require.NoError(t, err)
	assert.Equal(t, c1, base)

	base, err = revision.MergeBase(s, c3, c3)
	require.NoError(t, err)
	assert.Equal(t, c3, base)
}

func TestMergeBaseDivergedBranches(t *testing.T) {
	s := newFakeStore()
	root := s.add("root", 100)
	a1 := s.add("a1", 101, root)
	a2 := s.add("a2", 102, a1)
	b1 := s.add("b1", 101, root)
	b2 := s.add("b2", 103, b1)

	base, err := revision.MergeBase(s, a2, b2)
	require.NoError(t, err)
	assert.Equal(t, root, base)
}

func TestMergeBaseUnrelatedHistories(t *testing.T) {
	s := newFakeStore()
	a := s.add("a", 100)
	b := s.add("b", 100)

	base, err := revision.MergeBase(s, a, b)
	require.NoError(t, err)
	assert.True(t, base.IsZero())
}

func TestIsAncestor(t *testing.T) {
	s := newFakeStore()
	c1 := s.add("c1", 100)
	c2 := s.add("c2", 101, c1)
	c3 := s.add("c3", 102, c2)
	other := s.add("other", 100)

	ok, err := revision.IsAncestor(s, c1, c3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = revision.IsAncestor(s, c3, c1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = revision.IsAncestor(s, other, c3)
	require.NoError(t, err)
	assert.False(t, ok)
}
