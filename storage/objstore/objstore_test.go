package objstore_test

import (
	"bytes"
	"testing"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/memfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengit/engine/plumbing/format/idxfile"
	"github.com/opengit/engine/plumbing/format/packfile"
	"github.com/opengit/engine/plumbing/hash"
	"github.com/opengit/engine/plumbing/object"
	"github.com/opengit/engine/storage/objstore"
)

// writePack packs objs into fs under objects/pack/<name>.{pack,idx} and
// returns the id of the first object, for convenience in assertions.
func writePack(t *testing.T, fs billy.Filesystem, name string, objs []object.Object) hash.ObjectID {
	t.Helper()

	var buf bytes.Buffer
	_, err := packfile.Write(&buf, objs)
	require.NoError(t, err)

	scanned, checksum, err := packfile.Scan(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, scanned, len(objs))

	entries := make([]idxfile.Entry, len(objs))
	for i, o := range objs {
		entries[i] = idxfile.Entry{
			ID:     object.ID(o),
			Offset: uint64(scanned[i].Offset),
			CRC32:  scanned[i].CRC32,
		}
	}
	idx := idxfile.New(entries, checksum)
	idxRaw, err := idxfile.Encode(idx)
	require.NoError(t, err)

	require.NoError(t, fs.MkdirAll(objstore.PacksDir, 0o755))

	packFile, err := fs.Create(fs.Join(objstore.PacksDir, name+".pack"))
	require.NoError(t, err)
	_, err = packFile.Write(buf.Bytes())
	require.NoError(t, err)
	require.NoError(t, packFile.Close())

	idxFile, err := fs.Create(fs.Join(objstore.PacksDir, name+".idx"))
	require.NoError(t, err)
	_, err = idxFile.Write(idxRaw)
	require.NoError(t, err)
	require.NoError(t, idxFile.Close())

	return object.ID(objs[0])
}

func TestPendingObjectVisibleBeforeFlush(t *testing.T) {
	s, err := objstore.New(memfs.New(), 1024)
	require.NoError(t, err)

	blob := object.NewBlob([]byte("staged but not flushed"))
	id := s.Stage(blob)

	assert.True(t, s.Has(id))
	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, blob.Bytes(), got.(*object.Blob).Bytes())

	require.NoError(t, s.Flush())
	assert.True(t, s.Has(id))
}

func TestPutRoundTripsThroughLoose(t *testing.T) {
	s, err := objstore.New(memfs.New(), 1024)
	require.NoError(t, err)

	blob := object.NewBlob([]byte("hello objstore"))
	id, err := s.Put(blob)
	require.NoError(t, err)

	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, blob.Bytes(), got.(*object.Blob).Bytes())
}

func TestGetMissingReturnsErrNotFound(t *testing.T) {
	s, err := objstore.New(memfs.New(), 1024)
	require.NoError(t, err)

	_, err = s.Get(object.ID(object.NewBlob([]byte("nowhere"))))
	assert.ErrorIs(t, err, objstore.ErrNotFound)
}

func TestGetResolvesThroughPack(t *testing.T) {
	fs := memfs.New()
	objs := []object.Object{
		object.NewBlob([]byte("packed blob one")),
		object.NewBlob([]byte("packed blob two")),
	}
	first := writePack(t, fs, "pack-test", objs)

	s, err := objstore.New(fs, 1024)
	require.NoError(t, err)

	assert.True(t, s.Has(first))
	got, err := s.Get(first)
	require.NoError(t, err)
	assert.Equal(t, objs[0].(*object.Blob).Bytes(), got.(*object.Blob).Bytes())

	// A second lookup should be served from cache rather than a re-scan;
	// the result must still be identical.
	got2, err := s.Get(first)
	require.NoError(t, err)
	assert.Equal(t, got.(*object.Blob).Bytes(), got2.(*object.Blob).Bytes())
}

func TestInstallPackAddsWithoutRescan(t *testing.T) {
	fs := memfs.New()
	s, err := objstore.New(fs, 1024)
	require.NoError(t, err)

	// Force the initial (empty) scan to happen before the pack exists.
	assert.False(t, s.Has(object.ID(object.NewBlob([]byte("anything")))))

	objs := []object.Object{object.NewBlob([]byte("installed after the fact"))}
	id := writePack(t, fs, "pack-late", objs)

	require.NoError(t, s.InstallPack("pack-late"))
	assert.True(t, s.Has(id))
}

func TestSweepOrphansRemovesPackedLooseDuplicates(t *testing.T) {
	fs := memfs.New()
	s, err := objstore.New(fs, 1024)
	require.NoError(t, err)

	blob := object.NewBlob([]byte("duplicated in both tiers"))
	id, err := s.Put(blob)
	require.NoError(t, err)

	writePack(t, fs, "pack-dup", []object.Object{blob})
	require.NoError(t, s.InstallPack("pack-dup"))

	removed, err := s.SweepOrphans()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	// Still resolvable, now only via the pack.
	got, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, blob.Bytes(), got.(*object.Blob).Bytes())
}

func TestRepackPacksLooseObjectsAndSweepsThem(t *testing.T) {
	fs := memfs.New()
	s, err := objstore.New(fs, 1024)
	require.NoError(t, err)

	blobs := []*object.Blob{
		object.NewBlob([]byte("repack one")),
		object.NewBlob([]byte("repack two")),
		object.NewBlob([]byte("repack three")),
	}
	ids := make([]hash.ObjectID, len(blobs))
	for i, b := range blobs {
		id, err := s.Put(b)
		require.NoError(t, err)
		ids[i] = id
	}

	sum, err := s.Repack("pack-repack")
	require.NoError(t, err)
	assert.False(t, sum.IsZero())

	entries, err := fs.ReadDir(objstore.PacksDir)
	require.NoError(t, err)
	assert.Len(t, entries, 2) // pack-repack.pack + pack-repack.idx

	// A fresh store re-scanning from disk must still resolve every object,
	// now only from the installed pack.
	reopened, err := objstore.New(fs, 1024)
	require.NoError(t, err)
	for i, id := range ids {
		got, err := reopened.Get(id)
		require.NoError(t, err)
		assert.Equal(t, blobs[i].Bytes(), got.(*object.Blob).Bytes())
	}
}

func TestRepackWithNoLooseObjectsIsNoop(t *testing.T) {
	s, err := objstore.New(memfs.New(), 1024)
	require.NoError(t, err)

	sum, err := s.Repack("pack-empty")
	require.NoError(t, err)
	assert.True(t, sum.IsZero())
}
