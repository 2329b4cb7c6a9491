package worktree

import (
	"bytes"
	"errors"
	"io"
	"os"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/go-git/go-billy/v5"
	"go.uber.org/multierr"

	"github.com/opengit/engine/plumbing/filemode"
	"github.com/opengit/engine/plumbing/object"
)

// ErrUncommittedChanges is returned by Checkout when the worktree is not
// clean and force was not requested.
var ErrUncommittedChanges = errors.New("worktree: uncommitted changes present")

// materializeTree writes every leaf of entries into fs under root,
// rejecting any path that would escape root via a symlink. A failure on one
// path does not stop the rest of the tree from being materialized; every
// per-path failure is collected and returned together.
func materializeTree(store objectGetter, fs billy.Filesystem, root string, entries map[string]treeEntry) error {
	var errs error
	for p, e := range entries {
		if err := materializeEntry(store, fs, root, p, e); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func materializeEntry(store objectGetter, fs billy.Filesystem, root, p string, e treeEntry) error {
	safe, err := securejoin.SecureJoin(root, p)
	if err != nil {
		return err
	}

	switch e.Mode {
	case filemode.Symlink:
		obj, err := store.Get(e.ID)
		if err != nil {
			return err
		}
		blob, ok := obj.(*object.Blob)
		if !ok {
			return &ErrNotATree{Path: p}
		}
		return writeSymlink(fs, safe, string(blob.Content()))

	case filemode.Submodule:
		// gitlinks name a commit in another repository; checking out that
		// repository's worktree is out of scope, so neither the commit nor
		// a placeholder directory is materialized here — callers still get
		// the tree's other entries checked out.
		return nil

	default:
		return writeRegularFile(fs, store, safe, e)
	}
}

func writeRegularFile(fs billy.Filesystem, store objectGetter, path string, e treeEntry) error {
	obj, err := store.Get(e.ID)
	if err != nil {
		return err
	}
	blob, ok := obj.(*object.Blob)
	if !ok {
		return &ErrNotATree{Path: path}
	}

	mode := os.FileMode(0o644)
	if e.Mode == filemode.Executable {
		mode = 0o755
	}

	if dir := parentDir(path); dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	w, err := fs.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err
	}
	defer w.Close()

	_, err = io.Copy(w, bytes.NewReader(blob.Content()))
	return err
}

func writeSymlink(fs billy.Filesystem, path, target string) error {
	if dir := parentDir(path); dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return fs.Symlink(target, path)
}

func parentDir(p string) string {
	for i := len(p) - 1; i >= 0; i-- {
		if p[i] == '/' {
			return p[:i]
		}
	}
	return ""
}
