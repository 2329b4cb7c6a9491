// Package revision resolves relationships between commits: ancestry walks
// and lowest-common-ancestor (merge-base) computation, used by three-way
// merge to find the base commit for a pair of branch tips.
package revision

import (
	"errors"

	"github.com/emirpasic/gods/trees/binaryheap"

	"github.com/opengit/engine/plumbing/hash"
	"github.com/opengit/engine/plumbing/object"
)

// CommitGetter is the read access merge-base resolution needs from an
// object store.
type CommitGetter interface {
	Get(id hash.ObjectID) (object.Object, error)
}

// ErrNotACommit is returned when an id expected to be a commit resolves
// to a different object kind.
var ErrNotACommit = errors.New("revision: object is not a commit")

type timedCommit struct {
	id   hash.ObjectID
	when int64
}

// commitTimeOrder orders two timedCommit heap items by descending
// committer time, so the heap pops the most recent frontier commit first
// — the same policy Git's own merge-base walk uses to avoid exploring
// every branch equally deep before converging.
func commitTimeOrder(a, b interface{}) int {
	ca, cb := a.(timedCommit), b.(timedCommit)
	switch {
	case ca.when > cb.when:
		return -1
	case ca.when < cb.when:
		return 1
	default:
		return 0
	}
}

// MergeBase returns the best common ancestor of a and b: the most recent
// commit reachable from both, found by a symmetric frontier walk ordered
// by committer time through a binary heap. Returns the zero id if a and b
// share no ancestor.
func MergeBase(store CommitGetter, a, b hash.ObjectID) (hash.ObjectID, error) {
	if a == b {
		return a, nil
	}

	flagsA := map[hash.ObjectID]bool{a: true}
	flagsB := map[hash.ObjectID]bool{b: true}
	visited := map[hash.ObjectID]bool{}

	heap := binaryheap.NewWith(commitTimeOrder)

	pushCommit := func(id hash.ObjectID) error {
		obj, err := store.Get(id)
		if err != nil {
			return err
		}
		c, ok := obj.(*object.Commit)
		if !ok {
			return ErrNotACommit
		}
		heap.Push(timedCommit{id: id, when: c.Committer.When})
		return nil
	}

	if err := pushCommit(a); err != nil {
		return hash.ObjectID{}, err
	}
	if err := pushCommit(b); err != nil {
		return hash.ObjectID{}, err
	}

	for heap.Size() > 0 {
		top, _ := heap.Pop()
		tc := top.(timedCommit)
		if visited[tc.id] {
			continue
		}
		visited[tc.id] = true

		fromA := flagsA[tc.id]
		fromB := flagsB[tc.id]
		if fromA && fromB {
			return tc.id, nil
		}

		obj, err := store.Get(tc.id)
		if err != nil {
			return hash.ObjectID{}, err
		}
		commit, ok := obj.(*object.Commit)
		if !ok {
			return hash.ObjectID{}, ErrNotACommit
		}

		for _, p := range commit.Parents {
			if fromA {
				flagsA[p] = true
			}
			if fromB {
				flagsB[p] = true
			}
			if !visited[p] {
				if err := pushCommit(p); err != nil {
					return hash.ObjectID{}, err
				}
			}
		}
	}

	return hash.ObjectID{}, nil
}

// IsAncestor reports whether ancestor is reachable from descendant by
// following parent links.
func IsAncestor(store CommitGetter, ancestor, descendant hash.ObjectID) (bool, error) {
	if ancestor == descendant {
		return true, nil
	}
	base, err := MergeBase(store, ancestor, descendant)
	if err != nil {
		return false, err
	}
	return base == ancestor, nil
}
