// Package index implements Git's DIRC staging index: the file that tracks
// what is about to be committed, sitting between HEAD's tree and the
// worktree. Entries are kept sorted by (path, stage) so
// three-way merge conflicts can be represented as multiple stage-1/2/3
// entries sharing one path, with stage 0 meaning "no conflict".
package index

import (
	"errors"
	"path"
	"sort"
	"time"

	"github.com/opengit/engine/plumbing/filemode"
	"github.com/opengit/engine/plumbing/hash"
)

// Stage identifies which side of a conflict an entry represents.
type Stage uint8

const (
	// Merged is the ordinary, conflict-free stage.
	Merged Stage = 0
	// AncestorStage holds the common ancestor's version during a conflict.
	AncestorStage Stage = 1
	// OurStage holds our side of a conflict.
	OurStage Stage = 2
	// TheirStage holds their side of a conflict.
	TheirStage Stage = 3
)

// Entry is one staged path at one stage.
type Entry struct {
	Name         string
	Stage        Stage
	Mode         filemode.FileMode
	ID           hash.ObjectID
	Size         uint32
	CreatedAt    time.Time
	ModifiedAt   time.Time
	Dev, Inode   uint32
	UID, GID     uint32
	SkipWorktree bool
	IntentToAdd  bool
}

// ErrEntryNotFound is returned by Entry lookups that miss.
var ErrEntryNotFound = errors.New("index: entry not found")

// ErrConflict is returned by Get when path has more than one stage and the
// caller asked for the merged (stage 0) view.
var ErrConflict = errors.New("index: path is conflicted, no single merged entry")

// Index is the in-memory staging index: a sorted, deduplicated set of
// (path, stage) entries.
type Index struct {
	Version uint32
	Entries []Entry

	// WrittenAt is when this index was last mutated (staged, unstaged, or
	// decoded from disk). It anchors the racy-clean check in worktree
	// status: a worktree file whose mtime falls within the racy threshold
	// of WrittenAt can't be trusted from a stat comparison alone, since a
	// write landing in the same filesystem timestamp tick as the index
	// itself would be indistinguishable from no write at all.
	WrittenAt time.Time
}

// New returns an empty index at the given on-disk version (2, 3, or 4).
func New(version uint32) *Index {
	return &Index{Version: version}
}

func entryLess(a, b Entry) bool {
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.Stage < b.Stage
}

// Sort restores canonical (path, stage) ascending order. Callers that build
// an Index by appending entries directly must call this before Encode.
func (idx *Index) Sort() {
	sort.Slice(idx.Entries, func(i, j int) bool { return entryLess(idx.Entries[i], idx.Entries[j]) })
}

// Get returns the merged (stage 0) entry for path.
func (idx *Index) Get(p string) (*Entry, error) {
	p = path.Clean(p)
	for i := range idx.Entries {
		if idx.Entries[i].Name == p {
			if idx.Entries[i].Stage != Merged {
				return nil, ErrConflict
			}
			return &idx.Entries[i], nil
		}
	}
	return nil, ErrEntryNotFound
}

// GetStages returns every stage recorded for path (1 entry if clean, up to 3
// if conflicted), sorted by stage ascending.
func (idx *Index) GetStages(p string) []Entry {
	p = path.Clean(p)
	var out []Entry
	for _, e := range idx.Entries {
		if e.Name == p {
			out = append(out, e)
		}
	}
	return out
}

// IsConflicted reports whether path has any non-Merged stage recorded.
func (idx *Index) IsConflicted(p string) bool {
	for _, e := range idx.GetStages(p) {
		if e.Stage != Merged {
			return true
		}
	}
	return false
}

// Upsert replaces every existing entry at e.Name/e.Stage (if any) with e,
// keeping the index sorted.
func (idx *Index) Upsert(e Entry) {
	e.Name = path.Clean(e.Name)
	idx.WrittenAt = time.Now()
	for i := range idx.Entries {
		if idx.Entries[i].Name == e.Name && idx.Entries[i].Stage == e.Stage {
			idx.Entries[i] = e
			idx.Sort()
			return
		}
	}
	idx.Entries = append(idx.Entries, e)
	idx.Sort()
}

// RemovePath deletes every stage recorded for path, returning how many
// entries were removed.
func (idx *Index) RemovePath(p string) int {
	p = path.Clean(p)
	var kept []Entry
	removed := 0
	for _, e := range idx.Entries {
		if e.Name == p {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	idx.Entries = kept
	if removed > 0 {
		idx.WrittenAt = time.Now()
	}
	return removed
}

// ResolveConflict collapses every stage at path down to a single Merged
// entry, as "git add <path>" does once a conflict has been hand-resolved.
func (idx *Index) ResolveConflict(p string, resolved Entry) {
	idx.RemovePath(p)
	resolved.Name = path.Clean(p)
	resolved.Stage = Merged
	idx.Upsert(resolved)
}

// ConflictedPaths returns the distinct paths that currently have a
// non-Merged stage.
func (idx *Index) ConflictedPaths() []string {
	seen := make(map[string]bool)
	var out []string
	for _, e := range idx.Entries {
		if e.Stage != Merged && !seen[e.Name] {
			seen[e.Name] = true
			out = append(out, e.Name)
		}
	}
	sort.Strings(out)
	return out
}
