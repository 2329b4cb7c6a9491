package index

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/opengit/engine/plumbing/filemode"
	"github.com/opengit/engine/plumbing/hash"
)

var dircSignature = [4]byte{'D', 'I', 'R', 'C'}

// MinVersion and MaxVersion bound the on-disk index versions this engine
// reads and writes.
const (
	MinVersion = 2
	MaxVersion = 4
)

// ErrUnsupportedVersion is returned for a version outside [MinVersion, MaxVersion].
var ErrUnsupportedVersion = errors.New("index: unsupported version")

// ErrMalformedSignature is returned when the file does not start with "DIRC".
var ErrMalformedSignature = errors.New("index: malformed signature")

// ErrInvalidChecksum is returned when the trailing SHA-1 does not match the
// preceding bytes.
var ErrInvalidChecksum = errors.New("index: invalid checksum")

const (
	entryHeaderLen   = 62 // everything fixed-width before the name: timestamps, dev/ino/mode/uid/gid/size, id, flags
	flagExtendedBit  = 0x4000
	flagStageMask    = 0x3000
	flagNameLenMask  = 0x0fff
	extFlagIntentAdd = 1 << 13
	extFlagSkipWT    = 1 << 14
)

// Decode parses a DIRC index file.
func Decode(r io.Reader) (*Index, error) {
	h := hash.New()
	buf := bufio.NewReader(r)
	tee := io.TeeReader(buf, h)

	var sig [4]byte
	if _, err := io.ReadFull(tee, sig[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}
	if sig != dircSignature {
		return nil, ErrMalformedSignature
	}

	version, err := readU32(tee)
	if err != nil {
		return nil, err
	}
	if version < MinVersion || version > MaxVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	count, err := readU32(tee)
	if err != nil {
		return nil, err
	}

	idx := &Index{Version: version}
	var lastName string
	for i := uint32(0); i < count; i++ {
		e, consumed, err := decodeEntry(tee, version, lastName)
		if err != nil {
			return nil, fmt.Errorf("index: entry %d: %w", i, err)
		}
		if err := padEntry(tee, version, consumed, len(e.Name)); err != nil {
			return nil, err
		}
		idx.Entries = append(idx.Entries, *e)
		lastName = e.Name
	}

	if err := skipExtensions(buf, tee); err != nil {
		return nil, err
	}

	sum := h.Sum(nil)
	var trailer [hash.Size]byte
	if _, err := io.ReadFull(buf, trailer[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidChecksum, err)
	}
	if !bytes.Equal(sum, trailer[:]) {
		return nil, ErrInvalidChecksum
	}

	idx.WrittenAt = time.Now()
	return idx, nil
}

func decodeEntry(r io.Reader, version uint32, lastName string) (*Entry, int, error) {
	var fixed [entryHeaderLen]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, 0, err
	}

	e := &Entry{}
	cSec := binary.BigEndian.Uint32(fixed[0:4])
	cNsec := binary.BigEndian.Uint32(fixed[4:8])
	mSec := binary.BigEndian.Uint32(fixed[8:12])
	mNsec := binary.BigEndian.Uint32(fixed[12:16])
	e.Dev = binary.BigEndian.Uint32(fixed[16:20])
	e.Inode = binary.BigEndian.Uint32(fixed[20:24])
	e.Mode = filemode.FileMode(binary.BigEndian.Uint32(fixed[24:28]))
	e.UID = binary.BigEndian.Uint32(fixed[28:32])
	e.GID = binary.BigEndian.Uint32(fixed[32:36])
	e.Size = binary.BigEndian.Uint32(fixed[36:40])
	e.ID = hash.FromBytes(fixed[40:60])
	flags := binary.BigEndian.Uint16(fixed[60:62])

	if cSec != 0 || cNsec != 0 {
		e.CreatedAt = timeFromUnix(cSec, cNsec)
	}
	if mSec != 0 || mNsec != 0 {
		e.ModifiedAt = timeFromUnix(mSec, mNsec)
	}
	e.Stage = Stage((flags & flagStageMask) >> 12)

	consumed := entryHeaderLen
	if flags&flagExtendedBit != 0 {
		extFlags, err := readU16(r)
		if err != nil {
			return nil, 0, err
		}
		consumed += 2
		e.IntentToAdd = extFlags&extFlagIntentAdd != 0
		e.SkipWorktree = extFlags&extFlagSkipWT != 0
	}

	switch version {
	case 2, 3:
		n := int(flags & flagNameLenMask)
		name := make([]byte, n)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, 0, err
		}
		e.Name = string(name)
	case 4:
		stripLen, n, err := readVarint(r)
		if err != nil {
			return nil, 0, err
		}
		consumed += n
		var base string
		if int(stripLen) <= len(lastName) {
			base = lastName[:len(lastName)-int(stripLen)]
		}
		suffix, n, err := readCString(r)
		if err != nil {
			return nil, 0, err
		}
		consumed += n
		e.Name = base + suffix
	default:
		return nil, 0, ErrUnsupportedVersion
	}

	return e, consumed, nil
}

// padEntry discards the zero bytes that pad a v2/v3 entry out to the next
// 8-byte boundary. v4 entries (NUL-terminated names) are never padded.
func padEntry(r io.Reader, version uint32, headerConsumed int, nameLen int) error {
	if version == 4 {
		return nil
	}
	total := headerConsumed + nameLen
	pad := 8 - total%8
	_, err := io.CopyN(io.Discard, r, int64(pad))
	return err
}

func skipExtensions(peeker *bufio.Reader, r io.Reader) error {
	peekLen := 4 + 4 + hash.Size
	for {
		peeked, err := peeker.Peek(peekLen)
		if len(peeked) < peekLen || err != nil {
			return nil
		}
		var sig [4]byte
		if _, err := io.ReadFull(r, sig[:]); err != nil {
			return err
		}
		size, err := readU32(r)
		if err != nil {
			return err
		}
		if sig[0] < 'A' || sig[0] > 'Z' {
			return fmt.Errorf("index: mandatory extension %q is not supported", sig)
		}
		if _, err := io.CopyN(io.Discard, r, int64(size)); err != nil {
			return err
		}
	}
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func readU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func readVarint(r io.Reader) (uint64, int, error) {
	var v uint64
	n := 0
	for {
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, 0, err
		}
		n++
		v = (v << 7) | uint64(b[0]&0x7f)
		if b[0]&0x80 == 0 {
			break
		}
		v++
	}
	return v, n, nil
}

func timeFromUnix(sec, nsec uint32) time.Time {
	return time.Unix(int64(sec), int64(nsec))
}

func readCString(r io.Reader) (string, int, error) {
	var buf []byte
	n := 0
	for {
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return "", 0, err
		}
		n++
		if b[0] == 0 {
			break
		}
		buf = append(buf, b[0])
	}
	return string(buf), n, nil
}
