// Package compress implements Git's two compression framings: zlib-wrapped
// whole-block compression for loose objects, and raw deflate streams for
// pack entries. Both go through the standard library's compress/zlib and
// compress/flate, since DEFLATE is a standard-library concern with no
// third-party alternative worth reaching for.
package compress

import (
	"bytes"
	"compress/flate"
	"compress/zlib"
	"io"
)

// CompressBlock zlib-compresses b in one shot. Loose objects are always
// zlib-wrapped (not raw deflate).
func CompressBlock(b []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	_, _ = w.Write(b)
	_ = w.Close()
	return buf.Bytes()
}

// DecompressBlock inflates a zlib-wrapped block in one shot.
func DecompressBlock(b []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// CompressRaw deflates b without the zlib wrapper. Pack entries are framed
// this way.
func CompressRaw(b []byte) []byte {
	var buf bytes.Buffer
	w, _ := flate.NewWriter(&buf, flate.DefaultCompression)
	_, _ = w.Write(b)
	_ = w.Close()
	return buf.Bytes()
}

// StreamInflater wraps a raw-deflate reader that can be fed partial input and
// report how many compressed bytes it has consumed so far — needed when
// reading pack entries back-to-back from a single stream, where the caller
// must know exactly where one entry's compressed data ends and the next
// entry's header begins.
type StreamInflater struct {
	cr *countingReader
	fr io.ReadCloser
}

// NewStreamInflater wraps r (positioned at the start of a raw-deflate
// stream) for incremental consumption. The counting wrapper implements
// io.ByteReader, so flate reads it one byte at a time and never reads past
// the end of its own stream into the next pack entry's header — required
// because a pack packs many deflate streams back to back with no length
// prefix.
func NewStreamInflater(r io.Reader) *StreamInflater {
	cr := &countingReader{r: r}
	return &StreamInflater{cr: cr, fr: flate.NewReader(cr)}
}

// Read implements io.Reader, inflating as it goes.
func (s *StreamInflater) Read(p []byte) (int, error) {
	return s.fr.Read(p)
}

// Consumed returns the number of raw compressed bytes read from the
// underlying reader so far.
func (s *StreamInflater) Consumed() int64 {
	return s.cr.n
}

// Close releases the flate reader.
func (s *StreamInflater) Close() error {
	return s.fr.Close()
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (c *countingReader) ReadByte() (byte, error) {
	var b [1]byte
	if _, err := io.ReadFull(c, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}
