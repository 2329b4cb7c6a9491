// Package loose implements Git's loose object store: each object lives at
// objects/ab/cdef... (the id's first two hex characters as a fanout
// directory, the remaining 38 as the filename), zlib-wrapped. Writes land
// in a temp file first and are renamed into place once complete, so a
// crash mid-write never leaves a half-written object at its final path.
package loose

import (
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/go-git/go-billy/v5"

	"github.com/opengit/engine/compress"
	"github.com/opengit/engine/plumbing/hash"
	"github.com/opengit/engine/plumbing/object"
)

// ObjectsDir is the directory, relative to the filesystem root, that holds
// the fanout tree of loose objects.
const ObjectsDir = "objects"

// ErrNotFound is returned when an object id has no loose object on disk.
var ErrNotFound = errors.New("loose: object not found")

// Store is a loose object store rooted at a go-billy filesystem (normally
// $GIT_DIR).
type Store struct {
	fs billy.Filesystem
}

// New returns a Store that reads and writes loose objects under fs.
func New(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

func fanoutPath(id hash.ObjectID) string {
	s := id.String()
	return s[:2] + "/" + s[2:]
}

// Has reports whether id has a loose object on disk.
func (s *Store) Has(id hash.ObjectID) bool {
	_, err := s.fs.Stat(s.fs.Join(ObjectsDir, fanoutPath(id)))
	return err == nil
}

// Load reads and decompresses the object stored at id.
func (s *Store) Load(id hash.ObjectID) (object.Object, error) {
	f, err := s.fs.Open(s.fs.Join(ObjectsDir, fanoutPath(id)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	frame, err := compress.DecompressBlock(raw)
	if err != nil {
		return nil, fmt.Errorf("loose: %s: %w", id, err)
	}

	return object.Parse(frame)
}

// Store writes o as a loose object and returns its id. Writing is
// idempotent: storing an object that already exists on disk is a no-op
// other than recomputing its id.
func (s *Store) Store(o object.Object) (hash.ObjectID, error) {
	id := object.ID(o)
	if s.Has(id) {
		return id, nil
	}

	if err := s.fs.MkdirAll(ObjectsDir, 0o755); err != nil {
		return id, err
	}

	tmp, err := s.fs.TempFile(ObjectsDir, "tmp_obj_")
	if err != nil {
		return id, err
	}
	tmpName := tmp.Name()

	compressed := compress.CompressBlock(object.Frame(o))
	if _, err := tmp.Write(compressed); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return id, err
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return id, err
	}

	dir := s.fs.Join(ObjectsDir, id.String()[:2])
	if err := s.fs.MkdirAll(dir, 0o755); err != nil {
		_ = s.fs.Remove(tmpName)
		return id, err
	}

	final := s.fs.Join(ObjectsDir, fanoutPath(id))
	if err := s.fs.Rename(tmpName, final); err != nil {
		_ = s.fs.Remove(tmpName)
		return id, err
	}
	fixPermissions(s.fs, final)

	return id, nil
}

// Delete removes id's loose object, if present. It is not an error to
// delete an id that has no loose object.
func (s *Store) Delete(id hash.ObjectID) error {
	err := s.fs.Remove(s.fs.Join(ObjectsDir, fanoutPath(id)))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Walk calls fn once for every loose object id on disk, in no particular
// order. fn's error, if non-nil, stops the walk and is returned.
func (s *Store) Walk(fn func(hash.ObjectID) error) error {
	fanouts, err := s.fs.ReadDir(ObjectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, fo := range fanouts {
		if !fo.IsDir() || len(fo.Name()) != 2 {
			continue
		}

		entries, err := s.fs.ReadDir(s.fs.Join(ObjectsDir, fo.Name()))
		if err != nil {
			return err
		}

		for _, fe := range entries {
			if fe.IsDir() || len(fe.Name()) != hash.HexSize-2 {
				continue
			}
			id, err := hash.FromHex(fo.Name() + fe.Name())
			if err != nil {
				continue
			}
			if err := fn(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func fixPermissions(fs billy.Filesystem, path string) {
	if runtime.GOOS == "windows" {
		return
	}
	if chmodFS, ok := fs.(interface{ Chmod(string, os.FileMode) error }); ok {
		_ = chmodFS.Chmod(path, 0o444)
	}
}
