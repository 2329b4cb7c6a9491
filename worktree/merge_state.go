package worktree

import (
	"errors"

	"github.com/opengit/engine/diff"
	"github.com/opengit/engine/plumbing/format/index"
	"github.com/opengit/engine/plumbing/hash"
	"github.com/opengit/engine/plumbing/object"
	"github.com/opengit/engine/refs"
	"github.com/opengit/engine/revision"
)

// MergeState is the state of an in-progress merge: Idle (no merge
// running), Merging (BeginMerge is computing the merge), Clean (merge applied
// cleanly, not yet committed), or Conflicted (some paths need manual
// resolution before a commit can be made).
type MergeState int

const (
	MergeIdle MergeState = iota
	MergeMerging
	MergeClean
	MergeConflicted
)

func (s MergeState) String() string {
	switch s {
	case MergeIdle:
		return "idle"
	case MergeMerging:
		return "merging"
	case MergeClean:
		return "clean"
	case MergeConflicted:
		return "conflicted"
	default:
		return "unknown"
	}
}

// ErrMergeInProgress is returned by BeginMerge when a merge is already
// running.
var ErrMergeInProgress = errors.New("worktree: a merge is already in progress")

// ErrNoMergeInProgress is returned by ResolveAll outside Merging or
// Conflicted, by Abort in Idle, and by Commit outside Clean or Conflicted.
var ErrNoMergeInProgress = errors.New("worktree: no merge in progress")

// ErrCommitBlocked is returned by Commit while the merge state is
// Conflicted.
var ErrCommitBlocked = errors.New("worktree: cannot commit while conflicts are unresolved")

// Merger drives the Idle -> Merging -> (Clean | Conflicted) -> Idle state
// machine for merging another commit into the worktree's current HEAD.
type Merger struct {
	w     *Worktree
	state MergeState

	// savedHead/savedIndex snapshot the pre-merge state so abort can
	// restore it.
	savedHead  hash.ObjectID
	savedIndex *index.Index

	theirs     hash.ObjectID
	conflicted map[string]bool
}

// NewMerger returns a Merger in the Idle state for w.
func NewMerger(w *Worktree) *Merger {
	return &Merger{w: w, state: MergeIdle}
}

// State reports the current merge state.
func (m *Merger) State() MergeState { return m.state }

// BeginMerge merges theirs into the worktree's current HEAD using algo
// for the underlying three-way diffs, transitioning to Clean if every
// path merges without conflict, or Conflicted (with conflict markers
// written into the worktree and index) otherwise.
func (m *Merger) BeginMerge(theirs hash.ObjectID, algo diff.DiffFunc) error {
	if m.state != MergeIdle {
		return ErrMergeInProgress
	}
	m.state = MergeMerging

	ourCommit, err := m.w.headCommit()
	if err != nil {
		m.state = MergeIdle
		return err
	}
	if ourCommit == nil {
		m.state = MergeIdle
		return errors.New("worktree: cannot merge onto an unborn HEAD")
	}
	head, err := m.w.Refs.Resolve(refs.HEAD)
	if err != nil {
		m.state = MergeIdle
		return err
	}
	ourID := head.Hash()
	m.savedHead = ourID
	m.savedIndex = cloneIndex(m.w.Index)
	m.theirs = theirs

	theirsObj, err := m.w.Store.Get(theirs)
	if err != nil {
		m.state = MergeIdle
		return err
	}
	theirCommit, ok := theirsObj.(*object.Commit)
	if !ok {
		m.state = MergeIdle
		return errors.New("worktree: merge target is not a commit")
	}

	baseID, err := revision.MergeBase(m.w.Store, ourID, theirs)
	if err != nil {
		m.state = MergeIdle
		return err
	}

	baseTree, ourTree, theirTree, err := m.threeTrees(baseID, ourCommit, theirCommit)
	if err != nil {
		m.state = MergeIdle
		return err
	}

	m.conflicted = make(map[string]bool)
	merged, err := m.mergeTrees(baseTree, ourTree, theirTree, algo)
	if err != nil {
		m.state = MergeIdle
		return err
	}

	newIdx := index.New(2)
	for p, e := range merged {
		newIdx.Upsert(index.Entry{Name: p, Stage: index.Merged, Mode: e.Mode, ID: e.ID})
	}
	m.w.Index = newIdx

	if err := materializeTree(m.w.Store, m.w.Billy, "", merged); err != nil {
		m.state = MergeIdle
		return err
	}

	if len(m.conflicted) > 0 {
		m.state = MergeConflicted
		return nil
	}
	m.state = MergeClean
	return nil
}

// threeTrees flattens the base (possibly the zero id, for an unrelated
// history merge), ours, and theirs commits into path-keyed trees.
func (m *Merger) threeTrees(baseID hash.ObjectID, ours, theirs *object.Commit) (base, ourTree, theirTree map[string]treeEntry, err error) {
	if !baseID.IsZero() {
		base, err = m.flattenCommitTree(baseID)
		if err != nil {
			return nil, nil, nil, err
		}
	}
	ourTree, err = m.flattenCommitTreeID(ours.Tree)
	if err != nil {
		return nil, nil, nil, err
	}
	theirTree, err = m.flattenCommitTreeID(theirs.Tree)
	return base, ourTree, theirTree, err
}

func (m *Merger) flattenCommitTreeID(treeID hash.ObjectID) (map[string]treeEntry, error) {
	tree, err := readTree(m.w.Store, treeID)
	if err != nil {
		return nil, err
	}
	return flattenTree(m.w.Store, tree, "")
}

func (m *Merger) flattenCommitTree(commitID hash.ObjectID) (map[string]treeEntry, error) {
	obj, err := m.w.Store.Get(commitID)
	if err != nil {
		return nil, err
	}
	c, ok := obj.(*object.Commit)
	if !ok {
		return nil, errors.New("worktree: merge-base resolved to a non-commit object")
	}
	return m.flattenCommitTreeID(c.Tree)
}

// mergeTrees merges ourTree and theirTree against baseTree path by path,
// resolving each changed file's content with diff.Merge and recording any
// path whose merge produced a conflict.
func (m *Merger) mergeTrees(base, ours, theirs map[string]treeEntry, algo diff.DiffFunc) (map[string]treeEntry, error) {
	out := make(map[string]treeEntry)
	paths := unionPaths(base, ours, theirs)

	for p := range paths {
		be, bOK := base[p]
		oe, oOK := ours[p]
		te, tOK := theirs[p]

		switch {
		case oOK && !tOK && bOK && be.ID == oe.ID:
			continue // theirs deleted, ours unchanged: stays deleted
		case tOK && !oOK && bOK && be.ID == te.ID:
			continue // ours deleted, theirs unchanged: stays deleted
		case oOK && tOK && oe.ID == te.ID:
			out[p] = oe // both sides agree
		case oOK && !tOK && !bOK:
			out[p] = oe // ours added, theirs never had it
		case tOK && !oOK && !bOK:
			out[p] = te // theirs added, ours never had it
		case oOK && tOK:
			merged, conflict, err := m.mergeBlob(p, be, bOK, oe, te, algo)
			if err != nil {
				return nil, err
			}
			if conflict {
				m.conflicted[p] = true
			}
			out[p] = merged
		case oOK:
			out[p] = oe
		case tOK:
			out[p] = te
		}
	}
	return out, nil
}

func (m *Merger) mergeBlob(path string, base treeEntry, haveBase bool, ours, theirs treeEntry, algo diff.DiffFunc) (treeEntry, bool, error) {
	var baseData []byte
	if haveBase {
		var err error
		baseData, err = m.w.blobBytes(base.ID)
		if err != nil {
			return treeEntry{}, false, err
		}
	}
	ourData, err := m.w.blobBytes(ours.ID)
	if err != nil {
		return treeEntry{}, false, err
	}
	theirData, err := m.w.blobBytes(theirs.ID)
	if err != nil {
		return treeEntry{}, false, err
	}

	baseSeq := diff.NewLineSequence(baseData, diff.EqualExact)
	ourSeq := diff.NewLineSequence(ourData, diff.EqualExact)
	theirSeq := diff.NewLineSequence(theirData, diff.EqualExact)

	res := diff.Merge(baseSeq, ourSeq, theirSeq, algo, diff.StrategyMarkers)

	var merged []byte
	for _, line := range res.Lines {
		merged = append(merged, line...)
	}

	id, err := m.w.Store.Put(object.NewBlob(merged))
	if err != nil {
		return treeEntry{}, false, err
	}
	return treeEntry{Mode: ours.Mode, ID: id}, res.HasConflict, nil
}

// ResolveAll accepts the merge's current worktree content for every
// previously conflicted path and transitions Conflicted -> Clean. It is
// the caller's responsibility to have edited those paths (removing
// conflict markers) and re-added them before calling this.
func (m *Merger) ResolveAll() error {
	if m.state != MergeConflicted && m.state != MergeMerging {
		return ErrNoMergeInProgress
	}
	for p := range m.conflicted {
		if err := m.w.Add(p); err != nil {
			return err
		}
	}
	m.conflicted = nil
	m.state = MergeClean
	return nil
}

// Abort restores the index and worktree to their pre-merge snapshot and
// returns to Idle.
func (m *Merger) Abort() error {
	if m.state == MergeIdle {
		return ErrNoMergeInProgress
	}
	m.w.Index = m.savedIndex
	if err := m.w.Checkout(m.savedHead, true); err != nil {
		return err
	}
	m.conflicted = nil
	m.state = MergeIdle
	return nil
}

// Commit commits the merge result, refusing while conflicts remain
// unresolved and returning to Idle on success.
func (m *Merger) Commit(message string, author, committer object.Signature) (hash.ObjectID, error) {
	if m.state == MergeConflicted {
		return hash.ObjectID{}, ErrCommitBlocked
	}
	if m.state != MergeClean {
		return hash.ObjectID{}, ErrNoMergeInProgress
	}

	id, err := m.w.Commit(message, author, committer, m.theirs)
	if err != nil {
		return hash.ObjectID{}, err
	}
	m.state = MergeIdle
	return id, nil
}

func cloneIndex(idx *index.Index) *index.Index {
	clone := index.New(idx.Version)
	clone.Entries = append([]index.Entry(nil), idx.Entries...)
	return clone
}

func unionPaths(maps ...map[string]treeEntry) map[string]bool {
	out := make(map[string]bool)
	for _, m := range maps {
		for p := range m {
			out[p] = true
		}
	}
	return out
}
