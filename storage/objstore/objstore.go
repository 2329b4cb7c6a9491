// Package objstore is the unified object store facade: a pending-write
// buffer in front of the loose store, with packs consulted last. Lookup
// order for any id is pending -> loose -> packs, matching the priority a
// real Git process gives a just-written object over anything already
// packed.
package objstore

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/go-git/go-billy/v5"
	"golang.org/x/sync/singleflight"

	"github.com/opengit/engine/plumbing/format/idxfile"
	"github.com/opengit/engine/plumbing/format/packfile"
	"github.com/opengit/engine/plumbing/hash"
	"github.com/opengit/engine/plumbing/object"
	"github.com/opengit/engine/storage/loose"
)

// PacksDir is the directory, relative to the filesystem root, holding
// pack-*.pack/.idx pairs.
const PacksDir = "objects/pack"

// ErrNotFound is returned when an id is not present in any tier.
var ErrNotFound = errors.New("objstore: object not found")

type packHandle struct {
	name   string
	idx    *idxfile.Index
	reader *packfile.ReaderAtPack
}

// Store is the object store facade combining a pending-write buffer, a
// loose.Store, and the repository's pack files.
type Store struct {
	fs    billy.Filesystem
	loose *loose.Store

	mu      sync.RWMutex
	pending map[hash.ObjectID]object.Object
	packs   []*packHandle

	cache     *ristretto.Cache[hash.ObjectID, object.Object]
	scanGroup singleflight.Group
	scanned   bool
}

// New returns a Store rooted at fs, with an object cache sized for
// approximately maxObjects cached decoded objects.
func New(fs billy.Filesystem, maxObjects int64) (*Store, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[hash.ObjectID, object.Object]{
		NumCounters: maxObjects * 10,
		MaxCost:     maxObjects,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: %w", err)
	}

	return &Store{
		fs:      fs,
		loose:   loose.New(fs),
		pending: make(map[hash.ObjectID]object.Object),
		cache:   cache,
	}, nil
}

// Stage buffers o for later installation without writing it to disk yet,
// returning its id. A Stage()d object is immediately visible to Get/Has.
func (s *Store) Stage(o object.Object) hash.ObjectID {
	id := object.ID(o)
	s.mu.Lock()
	s.pending[id] = o
	s.mu.Unlock()
	return id
}

// Flush writes every staged object to the loose store and clears the
// pending buffer.
func (s *Store) Flush() error {
	s.mu.Lock()
	pending := s.pending
	s.pending = make(map[hash.ObjectID]object.Object)
	s.mu.Unlock()

	for _, o := range pending {
		if _, err := s.loose.Store(o); err != nil {
			return err
		}
	}
	return nil
}

// Put stages and immediately flushes o, returning its id.
func (s *Store) Put(o object.Object) (hash.ObjectID, error) {
	id := s.Stage(o)
	return id, s.Flush()
}

// Has reports whether id is known to this store in any tier.
func (s *Store) Has(id hash.ObjectID) bool {
	s.mu.RLock()
	_, pending := s.pending[id]
	s.mu.RUnlock()
	if pending {
		return true
	}
	if s.loose.Has(id) {
		return true
	}
	if err := s.ensureScanned(); err != nil {
		return false
	}
	_, _, ok := s.findInPacks(id)
	return ok
}

// Get resolves id through the pending buffer, then the loose store, then
// every known pack, in that order.
func (s *Store) Get(id hash.ObjectID) (object.Object, error) {
	s.mu.RLock()
	if o, ok := s.pending[id]; ok {
		s.mu.RUnlock()
		return o, nil
	}
	s.mu.RUnlock()

	if o, ok := s.cache.Get(id); ok {
		return o, nil
	}

	if s.loose.Has(id) {
		o, err := s.loose.Load(id)
		if err != nil {
			return nil, err
		}
		s.cache.Set(id, o, 1)
		return o, nil
	}

	if err := s.ensureScanned(); err != nil {
		return nil, err
	}

	pack, _, ok := s.findInPacks(id)
	if !ok {
		return nil, ErrNotFound
	}

	o, err := pack.reader.Get(id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(id, o, 1)
	return o, nil
}

func (s *Store) findInPacks(id hash.ObjectID) (*packHandle, uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.packs {
		if off, ok := p.idx.FindOffset(id); ok {
			return p, off, true
		}
	}
	return nil, 0, false
}

// ensureScanned lazily loads every pack-*.idx/.pack pair under objects/pack,
// deduplicating concurrent scans with a singleflight group so N goroutines
// racing to read the first object only pay the directory-listing cost once.
func (s *Store) ensureScanned() error {
	s.mu.RLock()
	done := s.scanned
	s.mu.RUnlock()
	if done {
		return nil
	}

	_, err, _ := s.scanGroup.Do("scan", func() (any, error) {
		s.mu.RLock()
		done := s.scanned
		s.mu.RUnlock()
		if done {
			return nil, nil
		}

		packs, err := s.loadPacks()
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.packs = packs
		s.scanned = true
		s.mu.Unlock()
		return nil, nil
	})
	return err
}

func (s *Store) loadPacks() ([]*packHandle, error) {
	entries, err := s.fs.ReadDir(PacksDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".pack") {
			names = append(names, strings.TrimSuffix(e.Name(), ".pack"))
		}
	}
	sort.Strings(names)

	var handles []*packHandle
	for _, base := range names {
		h, err := s.openPack(base)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

func (s *Store) openPack(base string) (*packHandle, error) {
	idxFile, err := s.fs.Open(s.fs.Join(PacksDir, base+".idx"))
	if err != nil {
		return nil, err
	}
	idxRaw, err := io.ReadAll(idxFile)
	_ = idxFile.Close()
	if err != nil {
		return nil, err
	}

	idx, err := idxfile.Decode(idxRaw)
	if err != nil {
		return nil, fmt.Errorf("objstore: pack %s: %w", base, err)
	}

	packFile, err := s.fs.Open(s.fs.Join(PacksDir, base+".pack"))
	if err != nil {
		return nil, err
	}
	defer packFile.Close()

	// billy.File does not guarantee io.ReaderAt, and packs are small enough
	// in this engine's scope to hold entirely in memory for random access.
	raw, err := io.ReadAll(packFile)
	if err != nil {
		return nil, err
	}

	return &packHandle{
		name:   base,
		idx:    idx,
		reader: packfile.NewReaderAtPack(bytes.NewReader(raw), idx),
	}, nil
}

// InstallPack atomically adds a freshly written pack (already on disk under
// PacksDir as name+".pack"/".idx") to the set this store will search,
// without requiring a full directory rescan.
func (s *Store) InstallPack(name string) error {
	h, err := s.openPack(name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.packs = append(s.packs, h)
	return nil
}

// SweepOrphans removes any loose object that is already present, byte for
// byte, in a known pack — the cleanup a "git gc" performs after packing so
// the same object doesn't sit on disk twice.
func (s *Store) SweepOrphans() (int, error) {
	if err := s.ensureScanned(); err != nil {
		return 0, err
	}

	var removed int
	err := s.loose.Walk(func(id hash.ObjectID) error {
		if _, _, ok := s.findInPacks(id); ok {
			if err := s.loose.Delete(id); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	return removed, err
}

// Repack streams every loose object into a freshly written pack+idx pair
// named name under PacksDir, installs it, and sweeps the now-redundant
// loose objects. It returns the pack's trailing checksum.
func (s *Store) Repack(name string) (hash.ObjectID, error) {
	var ids []hash.ObjectID
	if err := s.loose.Walk(func(id hash.ObjectID) error {
		ids = append(ids, id)
		return nil
	}); err != nil {
		return hash.ZeroID, err
	}
	if len(ids) == 0 {
		return hash.ZeroID, nil
	}

	if err := s.fs.MkdirAll(PacksDir, 0o755); err != nil {
		return hash.ZeroID, err
	}

	packPath := s.fs.Join(PacksDir, name+".pack")
	packFile, err := s.fs.Create(packPath)
	if err != nil {
		return hash.ZeroID, err
	}
	defer packFile.Close()

	sw := packfile.NewStreamWriter(packFile)
	if err := sw.BeginHeader(uint32(len(ids))); err != nil {
		return hash.ZeroID, err
	}

	entries := make([]idxfile.Entry, 0, len(ids))
	for _, id := range ids {
		o, err := s.loose.Load(id)
		if err != nil {
			return hash.ZeroID, err
		}
		offset, crc, err := sw.AddObject(o)
		if err != nil {
			return hash.ZeroID, err
		}
		entries = append(entries, idxfile.Entry{ID: id, Offset: uint64(offset), CRC32: crc})
	}

	sum, err := sw.Finalize()
	if err != nil {
		return hash.ZeroID, err
	}

	idx := idxfile.New(entries, [hash.Size]byte(sum))
	idxRaw, err := idxfile.Encode(idx)
	if err != nil {
		return hash.ZeroID, err
	}
	idxFile, err := s.fs.Create(s.fs.Join(PacksDir, name+".idx"))
	if err != nil {
		return hash.ZeroID, err
	}
	if _, err := idxFile.Write(idxRaw); err != nil {
		idxFile.Close()
		return hash.ZeroID, err
	}
	if err := idxFile.Close(); err != nil {
		return hash.ZeroID, err
	}

	if err := s.InstallPack(name); err != nil {
		return hash.ZeroID, err
	}
	if _, err := s.SweepOrphans(); err != nil {
		return hash.ZeroID, err
	}
	return sum, nil
}
