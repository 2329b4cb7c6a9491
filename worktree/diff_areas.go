package worktree

import (
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opengit/engine/iofs"
	"github.com/opengit/engine/plumbing/filemode"
	"github.com/opengit/engine/plumbing/format/gitignore"
	"github.com/opengit/engine/plumbing/hash"
	"github.com/opengit/engine/plumbing/object"
)

// diffHeadToIndex classifies every path that differs between head (HEAD's
// flattened tree, nil for an unborn branch) and idx (the staging index),
// writing the result into s's Staging field per path.
func diffHeadToIndex(s Status, head map[string]treeEntry, idx map[string]treeEntry) {
	for p, e := range head {
		ie, ok := idx[p]
		switch {
		case !ok:
			s.file(p).Staging = Deleted
		case ie.ID != e.ID || ie.Mode != e.Mode:
			s.file(p).Staging = Modified
		}
	}
	for p := range idx {
		if _, ok := head[p]; !ok {
			s.file(p).Staging = Added
		}
	}
}

// diffIndexToWorktree classifies every path that differs between idx and
// the worktree filesystem under root, writing the result into s's
// Worktree field. indexWrittenAt is when idx was last staged to or loaded
// from disk; racyThresholdMs guards against "racily clean" files: a
// worktree file whose mtime is no earlier than racyThresholdMs before
// indexWrittenAt (later mtimes included) cannot be trusted from a stat comparison alone, since a write landing in
// the same filesystem timestamp tick as the index itself would be
// indistinguishable from no write at all, so it is re-hashed instead.
// ignoreMatcher classifies untracked paths it excludes as Ignored rather
// than Untracked; a nil matcher (no exclude patterns configured) leaves
// every untracked path as Untracked.
func diffIndexToWorktree(s Status, fs *iofs.FS, idx map[string]treeEntry, idxByPath map[string]indexStatInfo, indexWrittenAt time.Time, racyThresholdMs int, ignoreMatcher *gitignore.Matcher) error {
	present := make(map[string]bool, len(idx))
	racyFloor := indexWrittenAt.Add(-time.Duration(racyThresholdMs) * time.Millisecond)
	var mu sync.Mutex

	err := walkWorktree(fs, "", func(p string, st *iofs.Stats) error {
		e, tracked := idx[p]
		if !tracked {
			ignored := ignoreMatcher != nil && ignoreMatcher.Match(strings.Split(p, "/"), st.Kind == iofs.KindDir)

			mu.Lock()
			present[p] = true
			if ignored {
				s.file(p).Worktree = Ignored
				s.file(p).Staging = Ignored
			} else {
				s.file(p).Worktree = Untracked
				s.file(p).Staging = Untracked
			}
			mu.Unlock()
			return nil
		}

		info := idxByPath[p]
		mu.Lock()
		present[p] = true
		mu.Unlock()

		if !statLooksUnmodified(st, info) {
			mu.Lock()
			s.file(p).Worktree = Modified
			mu.Unlock()
			return nil
		}

		racy := !st.Mtime.Before(racyFloor)
		if racy {
			changed, err := contentDiffers(fs, p, e.ID)
			if err != nil {
				return err
			}
			if changed {
				mu.Lock()
				s.file(p).Worktree = Modified
				mu.Unlock()
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for p := range idx {
		if !present[p] {
			s.file(p).Worktree = Deleted
		}
	}
	return nil
}

// indexStatInfo is the subset of a staging-index entry diffIndexToWorktree
// needs to decide "looks unmodified" without importing the index package's
// full Entry type into this file's signature.
type indexStatInfo struct {
	Size       uint32
	ModifiedAt time.Time
}

func statLooksUnmodified(st *iofs.Stats, info indexStatInfo) bool {
	if st == nil {
		return false
	}
	if st.Kind == iofs.KindDir {
		return true // directories have no content to compare
	}
	return st.Size == int64(info.Size) && st.Mtime.Equal(info.ModifiedAt)
}

func contentDiffers(fs *iofs.FS, p string, want hash.ObjectID) (bool, error) {
	r, err := fs.Read(p)
	if err != nil {
		return true, err
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return true, err
	}
	got := object.ID(object.NewBlob(data))
	return got != want, nil
}

// walkWorktree recursively visits every regular file and symlink under
// dir (skipping ".git"), calling visit with its path relative to the
// worktree root. Sibling subdirectories are walked concurrently, since
// each is an independent subtree of stats and reads; visit itself must be
// safe to call from multiple goroutines at once.
func walkWorktree(fs *iofs.FS, dir string, visit func(path string, st *iofs.Stats) error) error {
	entries, err := fs.List(dir)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	var g errgroup.Group
	for _, e := range entries {
		e := e
		if e.Name == ".git" && dir == "" {
			continue
		}
		p := e.Path
		if dir != "" {
			p = path.Join(dir, e.Name)
		} else {
			p = e.Name
		}

		if e.Kind == iofs.KindDir {
			g.Go(func() error { return walkWorktree(fs, p, visit) })
			continue
		}

		st, err := fs.Stat(p)
		if err != nil {
			return err
		}
		if err := visit(p, st); err != nil {
			return err
		}
	}
	return g.Wait()
}

// blobModeOf maps a filesystem entry's apparent mode to the Git mode a new
// index entry for it should carry.
func blobModeOf(isExec bool, isSymlink bool) filemode.FileMode {
	switch {
	case isSymlink:
		return filemode.Symlink
	case isExec:
		return filemode.Executable
	default:
		return filemode.Regular
	}
}
