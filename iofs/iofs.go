// Package iofs is a narrow read/write/stats/list/delete/rename contract
// over a pluggable filesystem backend, wrapping
// github.com/go-git/go-billy/v5.Filesystem rather than reinventing a
// filesystem abstraction.
package iofs

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/sethvargo/go-retry"
)

// renameRetryDelay is the pause between a rename's initial attempt and its
// one retry.
const renameRetryDelay = 5 * time.Millisecond

// ErrorKind classifies an IoError by cause.
type ErrorKind int

const (
	KindOther ErrorKind = iota
	KindNotFound
	KindDenied
	KindConflict
)

// IoError wraps a backend failure with the path it concerns and a coarse
// kind, so callers can branch on category without depending on a specific
// backend's error type.
type IoError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return "iofs: " + e.Path + ": " + e.Err.Error()
}

func (e *IoError) Unwrap() error { return e.Err }

func classify(err error) ErrorKind {
	switch {
	case os.IsNotExist(err):
		return KindNotFound
	case os.IsPermission(err):
		return KindDenied
	case errors.Is(err, os.ErrExist):
		return KindConflict
	default:
		return KindOther
	}
}

func wrap(path string, err error) error {
	if err == nil {
		return nil
	}
	return &IoError{Kind: classify(err), Path: path, Err: err}
}

// Kind identifies what a Stat result names.
type Kind int

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
)

// Stats is the narrow {kind, size, mtime} view returned by a successful
// Stat, plus the Dev/Inode/UID/GID a real filesystem backend can supply for
// populating index entries. Dev/Inode/UID/GID are zero when the backend has
// no notion of them (e.g. an in-memory filesystem).
type Stats struct {
	Kind  Kind
	Size  int64
	Mtime time.Time

	Dev, Inode uint32
	UID, GID   uint32
}

// fillSystemInfo resolves dev/inode/uid/gid for a real on-disk path. It is
// set by stat_unix.go/stat_other.go's init depending on platform, the same
// function-variable-assigned-by-init pattern go-git uses for its own
// per-platform Stat_t field population.
var fillSystemInfo func(path string) (dev, inode, uid, gid uint32, ok bool)

// rooted is implemented by filesystem backends (such as go-billy's osfs)
// that are backed by a real path on disk, as opposed to purely virtual
// backends like memfs.
type rooted interface{ Root() string }

// Entry is one member of a List result: {name, kind, path}.
type Entry struct {
	Name string
	Kind Kind
	Path string
}

// FS is the File API surface this engine depends on everywhere else
// (loose, packs, refs, index, worktree) instead of any one concrete
// backend.
type FS struct {
	billy.Filesystem
}

// New wraps an existing billy filesystem.
func New(fs billy.Filesystem) *FS {
	return &FS{Filesystem: fs}
}

// Read opens path for reading.
func (f *FS) Read(path string) (io.ReadCloser, error) {
	r, err := f.Open(path)
	if err != nil {
		return nil, wrap(path, err)
	}
	return r, nil
}

// Write truncates (or creates) path and returns a handle for writing.
// Writes are durable once Close returns, matching billy's own contract.
func (f *FS) Write(path string) (io.WriteCloser, error) {
	w, err := f.Create(path)
	if err != nil {
		return nil, wrap(path, err)
	}
	return w, nil
}

// Stat returns the narrow Stats view of path, or (nil, nil) if path does
// not exist, so callers can distinguish "absent" from "stat failed"
// without parsing an error.
func (f *FS) Stat(path string) (*Stats, error) {
	fi, err := f.Filesystem.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wrap(path, err)
	}
	st := &Stats{Kind: kindOf(fi), Size: fi.Size(), Mtime: fi.ModTime()}
	if r, isRooted := f.Filesystem.(rooted); isRooted && fillSystemInfo != nil {
		if dev, inode, uid, gid, ok := fillSystemInfo(f.Join(r.Root(), path)); ok {
			st.Dev, st.Inode, st.UID, st.GID = dev, inode, uid, gid
		}
	}
	return st, nil
}

// Exists reports whether path exists.
func (f *FS) Exists(path string) (bool, error) {
	st, err := f.Stat(path)
	if err != nil {
		return false, err
	}
	return st != nil, nil
}

// List returns every entry directly under path.
func (f *FS) List(path string) ([]Entry, error) {
	fis, err := f.ReadDir(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wrap(path, err)
	}

	out := make([]Entry, len(fis))
	for i, fi := range fis {
		out[i] = Entry{Name: fi.Name(), Kind: kindOf(fi), Path: f.Join(path, fi.Name())}
	}
	return out, nil
}

// Delete removes path. Deleting a path that does not exist is a no-op,
// matching the idempotent delete semantics used throughout the object and
// ref stores built on this package.
func (f *FS) Delete(path string) error {
	err := f.Remove(path)
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return wrap(path, err)
}

// Mkdir creates path and any missing parents.
func (f *FS) Mkdir(path string) error {
	return wrap(path, f.MkdirAll(path, 0o755))
}

// Rename is atomic within the backing filesystem. A transient failure (one
// that doesn't mean "from" is simply gone) is retried exactly once before
// giving up.
func (f *FS) Rename(from, to string) error {
	backoff, err := retry.NewConstant(renameRetryDelay)
	if err != nil {
		return wrap(to, err)
	}
	backoff = retry.WithMaxRetries(1, backoff)

	err = retry.Do(context.Background(), backoff, func(ctx context.Context) error {
		renameErr := f.Filesystem.Rename(from, to)
		if renameErr != nil && !os.IsNotExist(renameErr) {
			return retry.RetryableError(renameErr)
		}
		return renameErr
	})
	return wrap(to, err)
}

func kindOf(fi os.FileInfo) Kind {
	switch {
	case fi.Mode()&os.ModeSymlink != 0:
		return KindSymlink
	case fi.IsDir():
		return KindDir
	default:
		return KindFile
	}
}
