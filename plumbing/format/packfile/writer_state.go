package packfile

import (
	"errors"
	"hash/crc32"
	"io"

	"github.com/opengit/engine/compress"
	"github.com/opengit/engine/plumbing/hash"
	"github.com/opengit/engine/plumbing/object"
	"github.com/opengit/engine/plumbing/varint"
)

// WriterState is a StreamWriter's position in its lifecycle: Open before
// the header is written, AfterHeader between entries, WritingEntry while
// one entry's bytes are being emitted, and Finalized once the trailing
// checksum has been written.
type WriterState int

const (
	WriterOpen WriterState = iota
	WriterAfterHeader
	WriterWritingEntry
	WriterFinalized
)

// ErrWriterFinalized is returned by any call made after Finalize.
var ErrWriterFinalized = errors.New("packfile: writer already finalized")

// ErrHeaderAlreadyWritten is returned by BeginHeader if called twice.
var ErrHeaderAlreadyWritten = errors.New("packfile: header already written")

// ErrHeaderNotWritten is returned by AddObject/Finalize before BeginHeader.
var ErrHeaderNotWritten = errors.New("packfile: header not written yet")

// StreamWriter incrementally emits a pack file one object at a time,
// rather than requiring every object up front the way WriteEntries does.
// It is useful when the object count or the objects themselves are
// produced lazily, such as streaming a repack straight out of a loose
// object walk.
type StreamWriter struct {
	w      io.Writer
	mw     io.Writer
	digest interface {
		io.Writer
		Sum([]byte) []byte
	}
	state WriterState

	offset int64
	count  uint32
	n      uint32
}

// NewStreamWriter returns a StreamWriter in the Open state over w.
func NewStreamWriter(w io.Writer) *StreamWriter {
	digest := hash.New()
	return &StreamWriter{w: w, mw: io.MultiWriter(w, digest), digest: digest}
}

// BeginHeader writes the pack header declaring count objects and
// transitions Open -> AfterHeader.
func (s *StreamWriter) BeginHeader(count uint32) error {
	if s.state == WriterFinalized {
		return ErrWriterFinalized
	}
	if s.state != WriterOpen {
		return ErrHeaderAlreadyWritten
	}
	if _, err := s.mw.Write(varint.EncodePackHeader(count)); err != nil {
		return err
	}
	s.offset = 12
	s.count = count
	s.state = WriterAfterHeader
	return nil
}

// AddObject writes one whole object as a pack entry, transitioning
// AfterHeader -> WritingEntry -> AfterHeader, and returns the entry's
// starting offset and CRC32 (over its on-wire header+data bytes) for the
// caller to record in a pack index. Fails if more than count objects
// (from BeginHeader) are added, or after Finalize.
func (s *StreamWriter) AddObject(o object.Object) (offset int64, crc32Sum uint32, err error) {
	if s.state == WriterFinalized {
		return 0, 0, ErrWriterFinalized
	}
	if s.state == WriterOpen {
		return 0, 0, ErrHeaderNotWritten
	}
	if s.n >= s.count {
		return 0, 0, errors.New("packfile: more objects added than declared in header")
	}
	s.state = WriterWritingEntry
	startOffset := s.offset

	kind, err := kindToEntry(o.Kind())
	if err != nil {
		return 0, 0, err
	}
	content := o.Content()

	crc := crc32.NewIEEE()
	entryW := io.MultiWriter(s.mw, crc)

	header := varint.EncodeObjectHeader(byte(kind), uint64(len(content)))
	n, err := entryW.Write(header)
	if err != nil {
		return 0, 0, err
	}
	s.offset += int64(n)

	compressed := compress.CompressRaw(content)
	n, err = entryW.Write(compressed)
	if err != nil {
		return 0, 0, err
	}
	s.offset += int64(n)

	s.n++
	s.state = WriterAfterHeader
	return startOffset, crc.Sum32(), nil
}

// Finalize writes the trailing pack checksum and transitions to
// Finalized. Any later AddObject call fails with ErrWriterFinalized.
func (s *StreamWriter) Finalize() (hash.ObjectID, error) {
	if s.state == WriterFinalized {
		return hash.ZeroID, ErrWriterFinalized
	}
	if s.state == WriterOpen {
		return hash.ZeroID, ErrHeaderNotWritten
	}
	if s.n != s.count {
		return hash.ZeroID, errors.New("packfile: fewer objects added than declared in header")
	}

	sum := hash.FromBytes(s.digest.Sum(nil))
	if _, err := s.w.Write(sum.Bytes()); err != nil {
		return hash.ZeroID, err
	}
	s.state = WriterFinalized
	return sum, nil
}

// State reports the writer's current lifecycle state.
func (s *StreamWriter) State() WriterState { return s.state }
