package packfile

import (
	"errors"
	"fmt"
	"io"

	"github.com/opengit/engine/compress"
	"github.com/opengit/engine/plumbing/format/idxfile"
	"github.com/opengit/engine/plumbing/hash"
	"github.com/opengit/engine/plumbing/object"
	"github.com/opengit/engine/plumbing/varint"
)

// MaxDeltaDepth bounds how many delta hops this engine will chase before
// giving up, guarding against cyclic or pathologically long chains in an
// untrusted pack.
const MaxDeltaDepth = 50

// ErrDeltaTooDeep is returned when resolving an object would exceed
// MaxDeltaDepth hops.
var ErrDeltaTooDeep = errors.New("packfile: delta chain exceeds max depth")

// ErrObjectNotFound is returned when an id has no entry in the pack index.
var ErrObjectNotFound = errors.New("packfile: object not found in pack")

// ErrDeltaCycle is returned when a delta chain loops back on an offset it
// has already visited, rather than bottoming out at a non-delta base.
var ErrDeltaCycle = errors.New("packfile: delta chain contains a cycle")

// DeltaErrorKind classifies why a delta chain failed to resolve.
type DeltaErrorKind int

const (
	// DeltaMissingBase means an OFS_DELTA/REF_DELTA entry's base could not
	// be located in the pack.
	DeltaMissingBase DeltaErrorKind = iota
	// DeltaCycleDetected means the chain revisited an offset already on
	// the path from the requested object.
	DeltaCycleDetected
	// DeltaDepthExceeded means the chain is longer than MaxDeltaDepth, cyclic
	// or not.
	DeltaDepthExceeded
	// DeltaLengthMismatch means a delta's declared source or target size
	// disagreed with the data actually produced.
	DeltaLengthMismatch
)

func (k DeltaErrorKind) String() string {
	switch k {
	case DeltaMissingBase:
		return "missing base"
	case DeltaCycleDetected:
		return "cycle"
	case DeltaDepthExceeded:
		return "depth exceeded"
	case DeltaLengthMismatch:
		return "length mismatch"
	default:
		return "unknown delta error"
	}
}

// DeltaError reports why resolving the delta chain rooted at Offset failed.
type DeltaError struct {
	Kind   DeltaErrorKind
	Offset int64
	Err    error
}

func (e *DeltaError) Error() string {
	msg := fmt.Sprintf("packfile: delta chain at offset %d: %s", e.Offset, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeltaError) Unwrap() error { return e.Err }

// ReaderAtPack provides random access into a pack file given its index,
// resolving OFS_DELTA/REF_DELTA chains into whole objects on demand.
type ReaderAtPack struct {
	ra  io.ReaderAt
	idx *idxfile.Index
}

// NewReaderAtPack wraps a seekable pack file and its matching index.
func NewReaderAtPack(ra io.ReaderAt, idx *idxfile.Index) *ReaderAtPack {
	return &ReaderAtPack{ra: ra, idx: idx}
}

// Get resolves id to a parsed Object, chasing delta chains as needed.
func (p *ReaderAtPack) Get(id hash.ObjectID) (object.Object, error) {
	offset, ok := p.idx.FindOffset(id)
	if !ok {
		return nil, ErrObjectNotFound
	}
	kind, content, err := p.resolve(offset, 0, map[int64]bool{})
	if err != nil {
		return nil, err
	}

	switch kind {
	case EntryCommit:
		return object.ParseCommit(content)
	case EntryTree:
		return object.ParseTree(content)
	case EntryBlob:
		return object.NewBlob(content), nil
	case EntryTag:
		return object.ParseTag(content)
	default:
		return nil, fmt.Errorf("packfile: entry at offset %d resolved to non-storable kind %d", offset, kind)
	}
}

// resolve returns the fully-undeltified kind and content of the entry at
// offset, applying at most one delta per recursion level. visited holds
// every offset already on the path from the original request, so a chain
// that loops back on itself is reported as a cycle rather than silently
// recursing until it misreports as depth-exceeded.
func (p *ReaderAtPack) resolve(offset int64, depth int, visited map[int64]bool) (EntryKind, []byte, error) {
	if visited[offset] {
		return 0, nil, &DeltaError{Kind: DeltaCycleDetected, Offset: offset, Err: ErrDeltaCycle}
	}
	if depth > MaxDeltaDepth {
		return 0, nil, &DeltaError{Kind: DeltaDepthExceeded, Offset: offset, Err: ErrDeltaTooDeep}
	}
	visited[offset] = true

	entry, err := readEntryAt(p.ra, offset)
	if err != nil {
		return 0, nil, err
	}

	if !entry.Kind.IsDelta() {
		return entry.Kind, entry.Data, nil
	}

	var baseOffset int64
	if entry.Kind == EntryOFSDelta {
		baseOffset = entry.BaseOffset
	} else {
		off, ok := p.idx.FindOffset(entry.BaseID)
		if !ok {
			return 0, nil, &DeltaError{
				Kind:   DeltaMissingBase,
				Offset: offset,
				Err:    fmt.Errorf("%w: ref-delta base %s", ErrObjectNotFound, entry.BaseID),
			}
		}
		baseOffset = off
	}

	baseKind, baseContent, err := p.resolve(baseOffset, depth+1, visited)
	if err != nil {
		return 0, nil, err
	}

	target, err := ApplyDelta(baseContent, entry.Data)
	if err != nil {
		return 0, nil, &DeltaError{Kind: DeltaLengthMismatch, Offset: offset, Err: err}
	}
	return baseKind, target, nil
}

// readEntryAt decodes a single entry's header and inflates its body starting
// at offset, without needing to scan from the start of the pack.
func readEntryAt(ra io.ReaderAt, offset int64) (RawEntry, error) {
	sr := io.NewSectionReader(ra, offset, 1<<40)
	br := &byteReaderAt{sr: sr}

	typ, size, _, err := varint.DecodeObjectHeader(br)
	if err != nil {
		return RawEntry{}, err
	}
	e := RawEntry{Kind: EntryKind(typ), Size: size, Offset: offset}

	switch e.Kind {
	case EntryOFSDelta:
		rel, _, err := varint.DecodeOffset(br)
		if err != nil {
			return RawEntry{}, err
		}
		e.BaseOffset = offset - int64(rel)
	case EntryREFDelta:
		idBuf := make([]byte, hash.Size)
		if _, err := io.ReadFull(br, idBuf); err != nil {
			return RawEntry{}, err
		}
		e.BaseID = hash.FromBytes(idBuf)
	}

	data, err := io.ReadAll(compress.NewStreamInflater(br))
	if err != nil {
		return RawEntry{}, err
	}
	if uint64(len(data)) != size {
		return RawEntry{}, fmt.Errorf("%w: size mismatch at offset %d", ErrMalformed, offset)
	}
	e.Data = data
	return e, nil
}

// byteReaderAt adapts a *io.SectionReader (itself backed by a ReaderAt) into
// the io.Reader+io.ByteReader pair the varint and deflate decoders need,
// tracking how many bytes have been consumed so each decode call picks up
// exactly where the last left off.
type byteReaderAt struct {
	sr  *io.SectionReader
	pos int64
}

func (b *byteReaderAt) Read(p []byte) (int, error) {
	n, err := b.sr.ReadAt(p, b.pos)
	b.pos += int64(n)
	return n, err
}

func (b *byteReaderAt) ReadByte() (byte, error) {
	var buf [1]byte
	_, err := b.Read(buf[:])
	return buf[0], err
}
