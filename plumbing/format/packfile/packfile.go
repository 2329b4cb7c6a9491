// Package packfile implements Git's pack file format v2: the 12-byte
// header, a sequence of type+size+delta-framed entries each holding a raw
// deflate stream, and a trailing SHA-1 checksum. Delta
// resolution (OFS_DELTA/REF_DELTA chains) lives in delta.go and reader.go;
// random access over an accompanying idxfile.Index lives in reader.go.
package packfile

import (
	"errors"
	"fmt"
	"hash/crc32"
	"io"

	"github.com/opengit/engine/compress"
	"github.com/opengit/engine/plumbing/hash"
	"github.com/opengit/engine/plumbing/object"
	"github.com/opengit/engine/plumbing/varint"
)

// EntryKind is the type tag stored in a pack entry's object header: the four
// object kinds plus the two delta forms.
type EntryKind byte

const (
	EntryCommit   EntryKind = 1
	EntryTree     EntryKind = 2
	EntryBlob     EntryKind = 3
	EntryTag      EntryKind = 4
	EntryOFSDelta EntryKind = 6
	EntryREFDelta EntryKind = 7
)

func (k EntryKind) IsDelta() bool { return k == EntryOFSDelta || k == EntryREFDelta }

func kindToEntry(k object.Kind) (EntryKind, error) {
	switch k {
	case object.KindCommit:
		return EntryCommit, nil
	case object.KindTree:
		return EntryTree, nil
	case object.KindBlob:
		return EntryBlob, nil
	case object.KindTag:
		return EntryTag, nil
	default:
		return 0, fmt.Errorf("packfile: cannot pack object kind %v", k)
	}
}

func entryToKind(k EntryKind) (object.Kind, error) {
	switch k {
	case EntryCommit:
		return object.KindCommit, nil
	case EntryTree:
		return object.KindTree, nil
	case EntryBlob:
		return object.KindBlob, nil
	case EntryTag:
		return object.KindTag, nil
	default:
		return object.KindInvalid, fmt.Errorf("packfile: entry kind %d is not a storable object kind", k)
	}
}

// ErrMalformed is returned for any structural violation of the pack format.
var ErrMalformed = errors.New("packfile: malformed pack data")

// RawEntry is one decoded-but-not-delta-resolved pack entry, as produced by
// a sequential Scan.
type RawEntry struct {
	Kind   EntryKind
	Size   uint64 // declared uncompressed size
	Offset int64  // byte offset of the entry header within the pack

	// Exactly one of these is set when Kind.IsDelta().
	BaseOffset int64         // OFS_DELTA: the base entry's offset (Offset - BaseOffset is the encoded distance)
	BaseID     hash.ObjectID // REF_DELTA: base object id

	Data  []byte // inflated content: full object bytes, or delta instructions
	CRC32 uint32 // CRC32 of the entry's on-wire bytes (header + compressed data)
}

// Write serializes objects (in the given order, each already flattened to
// whole-object form — delta selection is left to the caller via
// WriteEntries) as a pack, returning the trailing pack checksum.
func Write(w io.Writer, objects []object.Object) (hash.ObjectID, error) {
	entries := make([]RawEntry, len(objects))
	for i, o := range objects {
		k, err := kindToEntry(o.Kind())
		if err != nil {
			return hash.ZeroID, err
		}
		entries[i] = RawEntry{Kind: k, Size: uint64(len(o.Content())), Data: o.Content()}
	}
	return WriteEntries(w, entries)
}

// WriteEntries serializes pre-built entries (which may include OFS_DELTA /
// REF_DELTA forms) as a pack. Offset/CRC32 fields on the input entries are
// ignored and recomputed.
func WriteEntries(w io.Writer, entries []RawEntry) (hash.ObjectID, error) {
	h := hash.New()
	mw := io.MultiWriter(w, h)

	if _, err := mw.Write(varint.EncodePackHeader(uint32(len(entries)))); err != nil {
		return hash.ZeroID, err
	}

	offset := int64(12)
	for i := range entries {
		e := &entries[i]
		e.Offset = offset

		header := varint.EncodeObjectHeader(byte(e.Kind), e.Size)
		n, err := mw.Write(header)
		if err != nil {
			return hash.ZeroID, err
		}
		offset += int64(n)

		switch e.Kind {
		case EntryOFSDelta:
			rel := e.Offset - e.BaseOffset
			if rel <= 0 {
				return hash.ZeroID, fmt.Errorf("%w: ofs-delta base must precede its entry", ErrMalformed)
			}
			b := varint.EncodeOffset(uint64(rel))
			if _, err := mw.Write(b); err != nil {
				return hash.ZeroID, err
			}
			offset += int64(len(b))
		case EntryREFDelta:
			if _, err := mw.Write(e.BaseID.Bytes()); err != nil {
				return hash.ZeroID, err
			}
			offset += hash.Size
		}

		compressed := compress.CompressRaw(e.Data)
		n, err = mw.Write(compressed)
		if err != nil {
			return hash.ZeroID, err
		}
		offset += int64(n)
	}

	sum := hash.FromBytes(h.Sum(nil))
	if _, err := w.Write(sum.Bytes()); err != nil {
		return hash.ZeroID, err
	}
	return sum, nil
}

// Scan sequentially decodes every entry in a pack stream, in storage order.
// It does not resolve deltas; see ReaderAtPack in reader.go for that.
func Scan(r io.Reader) ([]RawEntry, hash.ObjectID, error) {
	h := hash.New()
	cr := &crc32Reader{r: io.TeeReader(r, h)}

	headerBuf := make([]byte, 12)
	if _, err := io.ReadFull(cr, headerBuf); err != nil {
		return nil, hash.ZeroID, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	count, err := varint.DecodePackHeader(headerBuf)
	if err != nil {
		return nil, hash.ZeroID, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	entries := make([]RawEntry, 0, count)
	var offset int64 = 12

	for i := uint32(0); i < count; i++ {
		cr.crc = 0
		entryStart := offset

		typ, size, consumed, err := varint.DecodeObjectHeader(cr)
		if err != nil {
			return nil, hash.ZeroID, fmt.Errorf("%w: entry %d header: %v", ErrMalformed, i, err)
		}
		offset += int64(consumed)

		e := RawEntry{Kind: EntryKind(typ), Size: size, Offset: entryStart}

		switch e.Kind {
		case EntryOFSDelta:
			rel, n, err := varint.DecodeOffset(cr)
			if err != nil {
				return nil, hash.ZeroID, fmt.Errorf("%w: entry %d ofs-delta: %v", ErrMalformed, i, err)
			}
			offset += int64(n)
			e.BaseOffset = entryStart - int64(rel)
		case EntryREFDelta:
			idBuf := make([]byte, hash.Size)
			if _, err := io.ReadFull(cr, idBuf); err != nil {
				return nil, hash.ZeroID, fmt.Errorf("%w: entry %d ref-delta id: %v", ErrMalformed, i, err)
			}
			offset += hash.Size
			e.BaseID = hash.FromBytes(idBuf)
		}

		inflater := compress.NewStreamInflater(cr)
		data, err := io.ReadAll(inflater)
		if err != nil {
			return nil, hash.ZeroID, fmt.Errorf("%w: entry %d inflate: %v", ErrMalformed, i, err)
		}
		if uint64(len(data)) != size {
			return nil, hash.ZeroID, fmt.Errorf("%w: entry %d size mismatch", ErrMalformed, i)
		}
		e.Data = data
		e.CRC32 = cr.crc
		offset += inflater.Consumed()

		entries = append(entries, e)
	}

	trailer := make([]byte, hash.Size)
	if _, err := io.ReadFull(r, trailer); err != nil {
		return nil, hash.ZeroID, fmt.Errorf("%w: trailer: %v", ErrMalformed, err)
	}
	want := hash.FromBytes(h.Sum(nil))
	got := hash.FromBytes(trailer)
	if want.String() != got.String() {
		return nil, hash.ZeroID, fmt.Errorf("%w: checksum mismatch", ErrMalformed)
	}

	return entries, got, nil
}

// crc32Reader tees bytes read through a CRC32 accumulator that the caller
// can reset between entries, tagging each pack entry with its own CRC
// (stored in the index alongside its offset).
type crc32Reader struct {
	r   io.Reader
	crc uint32
}

func (c *crc32Reader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.crc = crc32.Update(c.crc, crc32.IEEETable, p[:n])
	}
	return n, err
}

func (c *crc32Reader) ReadByte() (byte, error) {
	var b [1]byte
	_, err := io.ReadFull(c, b[:])
	return b[0], err
}
