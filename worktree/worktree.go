package worktree

import (
	"errors"
	"io"

	"github.com/opengit/engine/config"
	"github.com/opengit/engine/iofs"
	"github.com/opengit/engine/plumbing/format/gitignore"
	"github.com/opengit/engine/plumbing/format/index"
	"github.com/opengit/engine/plumbing/hash"
	"github.com/opengit/engine/plumbing/object"
	"github.com/opengit/engine/refs"

	"github.com/go-git/go-billy/v5"
)

// Worktree ties together the object store, reference store, staging
// index, and filesystem of one working copy, exposing the operations a
// user issues against it: status, stage/unstage, rename, checkout, and
// commit.
type Worktree struct {
	Store  objectStore
	Refs   *refs.Store
	Index  *index.Index
	FS     *iofs.FS
	Billy  billy.Filesystem
	Config *config.Config
}

// New returns a Worktree over the given backing stores. idx may be
// index.New(2) for a freshly initialized repository.
func New(store objectStore, refStore *refs.Store, idx *index.Index, fs *iofs.FS, bfs billy.Filesystem, cfg *config.Config) *Worktree {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Worktree{Store: store, Refs: refStore, Index: idx, FS: fs, Billy: bfs, Config: cfg}
}

// headCommit resolves HEAD to a commit object, returning (nil, nil) if
// HEAD is unborn.
func (w *Worktree) headCommit() (*object.Commit, error) {
	ref, err := w.Refs.Resolve(refs.HEAD)
	if err != nil {
		if errors.Is(err, refs.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if ref.Hash().IsZero() {
		return nil, nil
	}

	obj, err := w.Store.Get(ref.Hash())
	if err != nil {
		return nil, err
	}
	commit, ok := obj.(*object.Commit)
	if !ok {
		return nil, errors.New("worktree: HEAD does not point at a commit")
	}
	return commit, nil
}

// headTree returns HEAD's flattened tree, or nil if HEAD is unborn.
func (w *Worktree) headTree() (map[string]treeEntry, error) {
	commit, err := w.headCommit()
	if err != nil || commit == nil {
		return nil, err
	}
	tree, err := readTree(w.Store, commit.Tree)
	if err != nil {
		return nil, err
	}
	return flattenTree(w.Store, tree, "")
}

// Status computes the three-way status of the worktree against the
// staging index and HEAD's tree, including rename detection between
// HEAD's deletions and the index's additions.
func (w *Worktree) Status() (Status, error) {
	head, err := w.headTree()
	if err != nil {
		return nil, err
	}
	idx := indexEntries(w.Index)

	s := make(Status)
	diffHeadToIndex(s, head, idx)

	statInfo := make(map[string]indexStatInfo, len(w.Index.Entries))
	for _, e := range w.Index.Entries {
		if e.Stage != index.Merged {
			continue
		}
		statInfo[e.Name] = indexStatInfo{Size: e.Size, ModifiedAt: e.ModifiedAt}
	}

	matcher, err := w.ignoreMatcher()
	if err != nil {
		return nil, err
	}

	if err := diffIndexToWorktree(s, w.FS, idx, statInfo, w.Index.WrittenAt, w.Config.Index.RacyThresholdMs, matcher); err != nil {
		return nil, err
	}

	pairs, err := w.detectStagedRenames(s, head, idx)
	if err != nil {
		return nil, err
	}
	for _, p := range pairs {
		s.file(p.To).Staging = Renamed
		s.file(p.To).Extra = p.From
		delete(s, p.From)
	}

	return s, nil
}

// ignoreMatcher layers system, global, and repository exclude patterns the
// way `git status` does: least to most specific, so a repository's own
// .gitignore can override an entry in the user's global excludesfile.
// Errors reading the optional system/global layers are not fatal; a
// worktree with no exclude files configured anywhere still has its
// repository-local patterns applied.
func (w *Worktree) ignoreMatcher() (*gitignore.Matcher, error) {
	var patterns []gitignore.Pattern
	if sys, err := gitignore.LoadSystemPatterns(w.Billy); err == nil {
		patterns = append(patterns, sys...)
	}
	if global, err := gitignore.LoadGlobalPatterns(w.Billy); err == nil {
		patterns = append(patterns, global...)
	}

	local, err := gitignore.ReadPatterns(w.Billy, nil)
	if err != nil {
		return nil, err
	}
	patterns = append(patterns, local...)

	return gitignore.NewMatcher(patterns), nil
}

// detectStagedRenames pairs paths staged as Deleted (in head, absent from
// idx) with paths staged as Added, by blob content similarity.
func (w *Worktree) detectStagedRenames(s Status, head, idx map[string]treeEntry) ([]RenamePair, error) {
	var deleted, added []blobContent
	for p, fs := range s {
		switch fs.Staging {
		case Deleted:
			data, err := w.blobBytes(head[p].ID)
			if err != nil {
				return nil, err
			}
			deleted = append(deleted, blobContent{Path: p, Data: data})
		case Added:
			data, err := w.blobBytes(idx[p].ID)
			if err != nil {
				return nil, err
			}
			added = append(added, blobContent{Path: p, Data: data})
		}
	}
	if len(deleted) == 0 || len(added) == 0 {
		return nil, nil
	}
	return NewRenameDetector().Detect(deleted, added), nil
}

func (w *Worktree) blobBytes(id hash.ObjectID) ([]byte, error) {
	obj, err := w.Store.Get(id)
	if err != nil {
		return nil, err
	}
	blob, ok := obj.(*object.Blob)
	if !ok {
		return nil, &ErrNotATree{Path: id.String()}
	}
	return blob.Content(), nil
}

// Add stages path's current worktree content, creating or updating its
// index entry.
func (w *Worktree) Add(path string) error {
	st, err := w.FS.Stat(path)
	if err != nil {
		return err
	}
	if st == nil {
		return errors.New("worktree: " + path + ": no such file")
	}

	r, err := w.FS.Read(path)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return err
	}

	id, err := w.Store.Put(object.NewBlob(data))
	if err != nil {
		return err
	}

	mode := blobModeOf(false, st.Kind == iofs.KindSymlink)
	w.Index.Upsert(index.Entry{
		Name:       path,
		Stage:      index.Merged,
		Mode:       mode,
		ID:         id,
		Size:       uint32(st.Size),
		ModifiedAt: st.Mtime,
		Dev:        st.Dev,
		Inode:      st.Inode,
		UID:        st.UID,
		GID:        st.GID,
	})
	return nil
}

// Remove unstages path and deletes it from the worktree.
func (w *Worktree) Remove(path string) error {
	w.Index.RemovePath(path)
	return w.FS.Delete(path)
}

// Move renames a tracked path both in the index and on disk.
func (w *Worktree) Move(from, to string) error {
	e, err := w.Index.Get(from)
	if err != nil {
		return err
	}
	moved := *e
	moved.Name = to
	w.Index.RemovePath(from)
	w.Index.Upsert(moved)
	return w.FS.Rename(from, to)
}

// Checkout materializes id's commit tree into the worktree and rewrites
// the index to match, failing with ErrUncommittedChanges unless force is
// set or the worktree is currently clean.
func (w *Worktree) Checkout(id hash.ObjectID, force bool) error {
	if !force {
		st, err := w.Status()
		if err != nil {
			return err
		}
		if !st.IsClean() {
			return ErrUncommittedChanges
		}
	}

	obj, err := w.Store.Get(id)
	if err != nil {
		return err
	}
	commit, ok := obj.(*object.Commit)
	if !ok {
		return errors.New("worktree: checkout target is not a commit")
	}

	tree, err := readTree(w.Store, commit.Tree)
	if err != nil {
		return err
	}
	entries, err := flattenTree(w.Store, tree, "")
	if err != nil {
		return err
	}

	if err := materializeTree(w.Store, w.Billy, "", entries); err != nil {
		return err
	}

	newIdx := index.New(2)
	for p, e := range entries {
		newIdx.Upsert(index.Entry{Name: p, Stage: index.Merged, Mode: e.Mode, ID: e.ID})
	}
	w.Index = newIdx

	return w.Refs.SetReference(refs.NewHashReference(refs.HEAD, id))
}

// Commit writes the staging index as a tree, creates a commit object
// parented on HEAD (if any, plus any extraParents for a merge commit),
// advances HEAD to it, and returns the new commit's id.
func (w *Worktree) Commit(message string, author, committer object.Signature, extraParents ...hash.ObjectID) (hash.ObjectID, error) {
	if paths := w.Index.ConflictedPaths(); len(paths) > 0 {
		return hash.ObjectID{}, errors.New("worktree: cannot commit with unresolved conflicts")
	}

	treeID, err := writeTree(w.Store, indexEntries(w.Index))
	if err != nil {
		return hash.ObjectID{}, err
	}

	var parents []hash.ObjectID
	if parent, err := w.headCommit(); err != nil {
		return hash.ObjectID{}, err
	} else if parent != nil {
		head, err := w.Refs.Resolve(refs.HEAD)
		if err != nil {
			return hash.ObjectID{}, err
		}
		parents = append(parents, head.Hash())
	}
	parents = append(parents, extraParents...)

	commit := &object.Commit{
		Tree:      treeID,
		Parents:   parents,
		Author:    author,
		Committer: committer,
		Message:   message,
	}
	id, err := w.Store.Put(commit)
	if err != nil {
		return hash.ObjectID{}, err
	}

	if err := w.Refs.SetReference(refs.NewHashReference(refs.HEAD, id)); err != nil {
		return hash.ObjectID{}, err
	}
	return id, nil
}
