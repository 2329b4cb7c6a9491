// Package idxfile implements pack index V2: the fanout table, sorted id
// table, per-entry CRC32s, 32-bit offsets with a 64-bit extension table for
// offsets past 2^31, and the pack+index SHA-1 trailer.
package idxfile

import (
	"encoding/binary"
	"fmt"

	"github.com/opengit/engine/plumbing/hash"
)

// Magic is the 4-byte signature at the start of a V2 index file.
var Magic = [4]byte{0xff, 't', 'O', 'c'}

// Version is the only index version this engine writes.
const Version = 2

const highBit = uint32(1) << 31

// Entry describes one object's placement within a pack, as recorded in the
// index.
type Entry struct {
	ID     hash.ObjectID
	Offset uint64
	CRC32  uint32
}

// Index is an in-memory pack index V2, built from a sorted entry list plus
// the pack's own checksum.
type Index struct {
	Entries          []Entry // sorted by ID ascending
	PackChecksum [hash.Size]byte
	fanout       [256]uint32
}

// ErrCorrupt is returned when an index fails structural validation.
type ErrCorrupt struct{ Reason string }

func (e *ErrCorrupt) Error() string { return "idxfile: corrupt index: " + e.Reason }

// New builds an Index from entries (which need not be pre-sorted) and the
// pack's own trailer checksum.
func New(entries []Entry, packChecksum [hash.Size]byte) *Index {
	sorted := make([]Entry, len(entries))
	copy(sorted, entries)
	sortEntries(sorted)

	idx := &Index{Entries: sorted, PackChecksum: packChecksum}
	idx.buildFanout()
	return idx
}

func sortEntries(e []Entry) {
	for i := 1; i < len(e); i++ {
		for j := i; j > 0 && e[j-1].ID.Compare(e[j].ID) > 0; j-- {
			e[j-1], e[j] = e[j], e[j-1]
		}
	}
}

func (idx *Index) buildFanout() {
	var b byte
	i := 0
	for {
		for i < len(idx.Entries) && idx.Entries[i].ID.Bytes()[0] <= b {
			i++
		}
		idx.fanout[b] = uint32(i)
		if b == 0xff {
			break
		}
		b++
	}
}

// FindOffset binary-searches for id and returns its pack offset.
func (idx *Index) FindOffset(id hash.ObjectID) (uint64, bool) {
	lo := 0
	if id.Bytes()[0] > 0 {
		lo = int(idx.fanout[id.Bytes()[0]-1])
	}
	hi := int(idx.fanout[id.Bytes()[0]])

	for lo < hi {
		mid := (lo + hi) / 2
		c := idx.Entries[mid].ID.Compare(id)
		switch {
		case c == 0:
			return idx.Entries[mid].Offset, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, false
}

// CRC returns the recorded CRC32 for id.
func (idx *Index) CRC(id hash.ObjectID) (uint32, bool) {
	lo, hi := 0, len(idx.Entries)
	for lo < hi {
		mid := (lo + hi) / 2
		c := idx.Entries[mid].ID.Compare(id)
		switch {
		case c == 0:
			return idx.Entries[mid].CRC32, true
		case c < 0:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, false
}

// Enumerate returns every entry in ascending id order.
func (idx *Index) Enumerate() []Entry {
	return idx.Entries
}

// Encode serializes idx to the V2 on-disk format. The returned bytes end with
// the index's own SHA-1 over everything before it.
func Encode(idx *Index) ([]byte, error) {
	var buf []byte
	buf = append(buf, Magic[:]...)
	buf = appendU32(buf, Version)

	for _, v := range idx.fanout {
		buf = appendU32(buf, v)
	}

	for _, e := range idx.Entries {
		buf = append(buf, e.ID.Bytes()...)
	}
	for _, e := range idx.Entries {
		buf = appendU32(buf, e.CRC32)
	}

	var large []uint64
	for _, e := range idx.Entries {
		if e.Offset >= uint64(highBit) {
			buf = appendU32(buf, highBit|uint32(len(large)))
			large = append(large, e.Offset)
		} else {
			buf = appendU32(buf, uint32(e.Offset))
		}
	}
	for _, off := range large {
		buf = appendU64(buf, off)
	}

	buf = append(buf, idx.PackChecksum[:]...)
	idxSum := hash.Sum(buf)
	buf = append(buf, idxSum.Bytes()...)
	return buf, nil
}

// Decode parses a V2 index from buf, validating magic, version, and the
// trailing index SHA-1 against the preceding bytes.
func Decode(buf []byte) (*Index, error) {
	if len(buf) < 8+256*4+hash.Size*2 {
		return nil, &ErrCorrupt{Reason: "too short"}
	}
	if [4]byte(buf[:4]) != Magic {
		return nil, &ErrCorrupt{Reason: "bad magic"}
	}
	version := binary.BigEndian.Uint32(buf[4:8])
	if version != Version {
		return nil, &ErrCorrupt{Reason: fmt.Sprintf("unsupported version %d", version)}
	}

	trailerStart := len(buf) - hash.Size*2
	computed := hash.Sum(buf[:trailerStart])
	if computed.String() != hash.FromBytes(buf[trailerStart+hash.Size:]).String() {
		return nil, &ErrCorrupt{Reason: "index checksum mismatch"}
	}

	pos := 8
	var fanout [256]uint32
	for i := range fanout {
		fanout[i] = binary.BigEndian.Uint32(buf[pos : pos+4])
		pos += 4
	}
	count := int(fanout[255])

	idsStart := pos
	crcStart := idsStart + count*hash.Size
	off32Start := crcStart + count*4
	off64Start := off32Start + count*4

	entries := make([]Entry, count)
	for i := 0; i < count; i++ {
		entries[i].ID = hash.FromBytes(buf[idsStart+i*hash.Size : idsStart+(i+1)*hash.Size])
		entries[i].CRC32 = binary.BigEndian.Uint32(buf[crcStart+i*4 : crcStart+i*4+4])

		raw := binary.BigEndian.Uint32(buf[off32Start+i*4 : off32Start+i*4+4])
		if raw&highBit != 0 {
			li := int(raw &^ highBit)
			off64pos := off64Start + li*8
			if off64pos+8 > trailerStart-hash.Size {
				return nil, &ErrCorrupt{Reason: "64-bit offset table truncated"}
			}
			entries[i].Offset = binary.BigEndian.Uint64(buf[off64pos : off64pos+8])
		} else {
			entries[i].Offset = uint64(raw)
		}
	}

	var packChecksum [hash.Size]byte
	copy(packChecksum[:], buf[trailerStart-hash.Size:trailerStart])

	idx := &Index{Entries: entries, PackChecksum: packChecksum, fanout: fanout}
	return idx, nil
}

func appendU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func appendU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}
