package worktree

import (
	"path"
	"sort"

	"github.com/opengit/engine/plumbing/filemode"
	"github.com/opengit/engine/plumbing/format/index"
	"github.com/opengit/engine/plumbing/hash"
	"github.com/opengit/engine/plumbing/object"
)

// objectGetter is the read side of objstore.Store that tree-walking needs.
type objectGetter interface {
	Get(id hash.ObjectID) (object.Object, error)
}

// objectPutter is the write side writeTree needs to persist new subtrees.
type objectPutter interface {
	Put(o object.Object) (hash.ObjectID, error)
}

type objectStore interface {
	objectGetter
	objectPutter
}

// treeEntry is a flattened, path-keyed view of a tree, combining blob/tree
// distinction, mode, and id. Directories themselves are not entries; only
// blobs and gitlinks are, matching how the staging index represents a
// tree (leaves only).
type treeEntry struct {
	Mode filemode.FileMode
	ID   hash.ObjectID
}

// flattenTree walks t (rooted at prefix) through store, returning every
// leaf's full path mapped to its mode/id.
func flattenTree(store objectGetter, t *object.Tree, prefix string) (map[string]treeEntry, error) {
	out := make(map[string]treeEntry)
	if err := flattenTreeInto(store, t, prefix, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flattenTreeInto(store objectGetter, t *object.Tree, prefix string, out map[string]treeEntry) error {
	for _, e := range t.Entries {
		p := e.Name
		if prefix != "" {
			p = prefix + "/" + e.Name
		}
		if e.Mode.IsTree() {
			obj, err := store.Get(e.ID)
			if err != nil {
				return err
			}
			sub, ok := obj.(*object.Tree)
			if !ok {
				return &ErrNotATree{Path: p}
			}
			if err := flattenTreeInto(store, sub, p, out); err != nil {
				return err
			}
			continue
		}
		out[p] = treeEntry{Mode: e.Mode, ID: e.ID}
	}
	return nil
}

// ErrNotATree is returned when a tree entry marked as a directory resolves
// to a non-tree object.
type ErrNotATree struct{ Path string }

func (e *ErrNotATree) Error() string { return "worktree: " + e.Path + ": tree entry is not a tree object" }

// indexEntries returns idx's stage-0 (merged) entries as a path-keyed map,
// the shape flattenTree also produces, so both sides compare uniformly.
func indexEntries(idx *index.Index) map[string]treeEntry {
	out := make(map[string]treeEntry, len(idx.Entries))
	for _, e := range idx.Entries {
		if e.Stage != index.Merged {
			continue
		}
		out[e.Name] = treeEntry{Mode: e.Mode, ID: e.ID}
	}
	return out
}

// writeTree persists idx's stage-0 entries as a tree (and the subtrees it
// implies), returning the root tree's id. Entries are grouped by their
// first path segment and recursed into, matching Git's directory-by-
// directory tree construction.
func writeTree(store objectPutter, entries map[string]treeEntry) (hash.ObjectID, error) {
	type child struct {
		name string
		rest string
		leaf *treeEntry
	}

	byDir := make(map[string][]child)
	var order []string

	for p, e := range entries {
		e := e
		seg, rest, isLeaf := splitFirstSegment(p)
		if _, ok := byDir[seg]; !ok {
			order = append(order, seg)
		}
		if isLeaf {
			byDir[seg] = append(byDir[seg], child{name: seg, leaf: &e})
		} else {
			byDir[seg] = append(byDir[seg], child{name: seg, rest: rest})
		}
	}
	sort.Strings(order)

	var result object.Tree
	for _, name := range order {
		kids := byDir[name]
		if len(kids) == 1 && kids[0].leaf != nil {
			result.Entries = append(result.Entries, object.TreeEntry{
				Name: name, Mode: kids[0].leaf.Mode, ID: kids[0].leaf.ID,
			})
			continue
		}

		sub := make(map[string]treeEntry)
		for _, k := range kids {
			if k.leaf != nil {
				// a path collided with a directory of the same name; not
				// representable in one tree and caller error to construct.
				continue
			}
			sub[k.rest] = entries[name+"/"+k.rest]
		}
		subID, err := writeTree(store, sub)
		if err != nil {
			return hash.ObjectID{}, err
		}
		result.Entries = append(result.Entries, object.TreeEntry{Name: name, Mode: filemode.Dir, ID: subID})
	}

	object.SortEntries(result.Entries)
	return store.Put(&result)
}

func splitFirstSegment(p string) (seg, rest string, isLeaf bool) {
	if i := indexByte(p, '/'); i != -1 {
		return p[:i], p[i+1:], false
	}
	return p, "", true
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

// readTree fetches id as a *object.Tree through store.
func readTree(store objectGetter, id hash.ObjectID) (*object.Tree, error) {
	obj, err := store.Get(id)
	if err != nil {
		return nil, err
	}
	t, ok := obj.(*object.Tree)
	if !ok {
		return nil, &ErrNotATree{Path: path.Clean(id.String())}
	}
	return t, nil
}
