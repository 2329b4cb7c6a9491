package packfile_test

import (
	"bytes"
	"testing"

	"github.com/opengit/engine/plumbing/format/idxfile"
	"github.com/opengit/engine/plumbing/format/packfile"
	"github.com/opengit/engine/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteScanRoundTrip(t *testing.T) {
	objs := []object.Object{
		object.NewBlob([]byte("Hello, World!")),
		object.NewBlob([]byte("a second, unrelated blob\n")),
	}

	var buf bytes.Buffer
	checksum, err := packfile.Write(&buf, objs)
	require.NoError(t, err)

	entries, got, err := packfile.Scan(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, checksum, got)
	require.Len(t, entries, 2)

	assert.Equal(t, packfile.EntryBlob, entries[0].Kind)
	assert.Equal(t, []byte("Hello, World!"), entries[0].Data)
	assert.Equal(t, []byte("a second, unrelated blob\n"), entries[1].Data)
}

func TestScanRejectsTamperedChecksum(t *testing.T) {
	var buf bytes.Buffer
	_, err := packfile.Write(&buf, []object.Object{object.NewBlob([]byte("x"))})
	require.NoError(t, err)

	tampered := buf.Bytes()
	tampered[len(tampered)-1] ^= 0xff

	_, _, err = packfile.Scan(bytes.NewReader(tampered))
	assert.ErrorIs(t, err, packfile.ErrMalformed)
}

func TestDeltaRoundTrip(t *testing.T) {
	base := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 20)
	target := append(append([]byte{}, base[:200]...), []byte("AN INSERTED MIDDLE SECTION THAT DOES NOT MATCH")...)
	target = append(target, base[200:]...)

	delta := packfile.EncodeDelta(base, target)
	out, err := packfile.ApplyDelta(base, delta)
	require.NoError(t, err)
	assert.Equal(t, target, out)
	assert.Less(t, len(delta), len(target), "delta should be smaller than a literal copy for mostly-repeated content")
}

func TestOFSDeltaChainResolvesThroughReaderAtPack(t *testing.T) {
	baseContent := []byte("package main\n\nfunc main() {}\n")
	targetContent := []byte("package main\n\nfunc main() {\n\tprintln(\"hi\")\n}\n")

	baseBlob := object.NewBlob(baseContent)

	entries := []packfile.RawEntry{
		{Kind: packfile.EntryBlob, Size: uint64(len(baseContent)), Data: baseContent},
	}
	delta := packfile.EncodeDelta(baseContent, targetContent)
	entries = append(entries, packfile.RawEntry{
		Kind:       packfile.EntryOFSDelta,
		Size:       uint64(len(targetContent)),
		BaseOffset: 12, // the base entry always starts right after the 12-byte pack header
		Data:       delta,
	})

	var buf bytes.Buffer
	_, err := packfile.WriteEntries(&buf, entries)
	require.NoError(t, err)

	scanned, _, err := packfile.Scan(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, scanned, 2)

	targetBlob := object.NewBlob(targetContent)
	idx := idxfile.New([]idxfile.Entry{
		{ID: object.ID(baseBlob), Offset: uint64(scanned[0].Offset), CRC32: scanned[0].CRC32},
		{ID: object.ID(targetBlob), Offset: uint64(scanned[1].Offset), CRC32: scanned[1].CRC32},
	}, [20]byte{})

	reader := packfile.NewReaderAtPack(bytes.NewReader(buf.Bytes()), idx)
	got, err := reader.Get(object.ID(baseBlob))
	require.NoError(t, err)
	assert.Equal(t, baseContent, got.(*object.Blob).Bytes())

	got, err = reader.Get(object.ID(targetBlob))
	require.NoError(t, err)
	assert.Equal(t, targetContent, got.(*object.Blob).Bytes())
}
