package index

import (
	"bytes"
	"encoding/binary"
	"io"
	"time"

	"github.com/opengit/engine/plumbing/hash"
)

// Encode serializes idx in its own Version (2, 3, or 4, the last with
// prefix-compressed entry names) and appends the trailing SHA-1 checksum.
func Encode(w io.Writer, idx *Index) error {
	if idx.Version == 4 {
		return encode(w, idx, true)
	}
	return encode(w, idx, false)
}

func encode(w io.Writer, idx *Index, v4 bool) error {
	var buf bytes.Buffer
	buf.Write(dircSignature[:])
	writeU32(&buf, idx.Version)
	writeU32(&buf, uint32(len(idx.Entries)))

	var lastName string
	for _, e := range idx.Entries {
		if err := encodeEntry(&buf, e, v4, lastName); err != nil {
			return err
		}
		lastName = e.Name
	}

	h := hash.New()
	h.Write(buf.Bytes())
	sum := h.Sum(nil)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(sum)
	return err
}

func encodeEntry(buf *bytes.Buffer, e Entry, v4 bool, lastName string) error {
	start := buf.Len()

	writeUnixTime(buf, e.CreatedAt)
	writeUnixTime(buf, e.ModifiedAt)
	writeU32(buf, e.Dev)
	writeU32(buf, e.Inode)
	writeU32(buf, uint32(e.Mode))
	writeU32(buf, e.UID)
	writeU32(buf, e.GID)
	writeU32(buf, e.Size)
	buf.Write(e.ID.Bytes())

	extended := e.IntentToAdd || e.SkipWorktree
	flags := uint16(e.Stage&0x3) << 12
	if !v4 {
		nameLen := len(e.Name)
		if nameLen > flagNameLenMask {
			nameLen = flagNameLenMask
		}
		flags |= uint16(nameLen)
	}
	if extended {
		flags |= flagExtendedBit
	}
	writeU16(buf, flags)

	if extended {
		var extFlags uint16
		if e.IntentToAdd {
			extFlags |= extFlagIntentAdd
		}
		if e.SkipWorktree {
			extFlags |= extFlagSkipWT
		}
		writeU16(buf, extFlags)
	}

	if v4 {
		strip := commonPrefixLen(lastName, e.Name)
		writeVarint(buf, uint64(len(lastName)-strip))
		buf.WriteString(e.Name[strip:])
		buf.WriteByte(0)
		return nil
	}

	buf.WriteString(e.Name)
	consumed := buf.Len() - start
	pad := 8 - consumed%8
	for i := 0; i < pad; i++ {
		buf.WriteByte(0)
	}
	return nil
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUnixTime(buf *bytes.Buffer, t time.Time) {
	if t.IsZero() {
		writeU32(buf, 0)
		writeU32(buf, 0)
		return
	}
	writeU32(buf, uint32(t.Unix()))
	writeU32(buf, uint32(t.Nanosecond()))
}

// writeVarint encodes v using the same +1-per-continuation-byte big-endian
// base-128 scheme as the OFS_DELTA offset (see plumbing/varint), which Git
// reuses for v4's prefix-strip length.
func writeVarint(buf *bytes.Buffer, v uint64) {
	var stack []byte
	stack = append(stack, byte(v&0x7f))
	v >>= 7
	for v != 0 {
		v--
		stack = append(stack, byte(v&0x7f)|0x80)
		v >>= 7
	}
	for i := len(stack) - 1; i >= 0; i-- {
		buf.WriteByte(stack[i])
	}
}
