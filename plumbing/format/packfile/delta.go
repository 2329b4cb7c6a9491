package packfile

import (
	"errors"
)

// Delta instructions operate on two bit patterns: a leading-bit-set byte
// starts a copy-from-base command (offset/size fields selected by the low 7
// bits), a leading-bit-clear nonzero byte is an insert-from-delta command
// whose value is the literal byte count.
const (
	copyCmdBit  = 0x80
	maxCopySize = 0x10000
)

var deltaOffsetBits = []struct {
	mask  byte
	shift uint
}{
	{0x01, 0}, {0x02, 8}, {0x04, 16}, {0x08, 24},
}

var deltaSizeBits = []struct {
	mask  byte
	shift uint
}{
	{0x10, 0}, {0x20, 8}, {0x40, 16},
}

// ErrInvalidDelta is returned when delta bytes are malformed or inconsistent
// with the declared source/target sizes.
var ErrInvalidDelta = errors.New("packfile: invalid delta")

// ApplyDelta reconstructs a target object by replaying delta's copy/insert
// instructions against base.
func ApplyDelta(base, delta []byte) ([]byte, error) {
	srcSize, delta, err := decodeDeltaSize(delta)
	if err != nil {
		return nil, err
	}
	if srcSize != uint64(len(base)) {
		return nil, ErrInvalidDelta
	}

	targetSize, delta, err := decodeDeltaSize(delta)
	if err != nil {
		return nil, err
	}

	dst := make([]byte, 0, targetSize)
	for len(dst) < int(targetSize) {
		if len(delta) == 0 {
			return nil, ErrInvalidDelta
		}
		cmd := delta[0]
		delta = delta[1:]

		switch {
		case cmd&copyCmdBit != 0:
			var offset, size uint64
			for _, b := range deltaOffsetBits {
				if cmd&b.mask != 0 {
					if len(delta) == 0 {
						return nil, ErrInvalidDelta
					}
					offset |= uint64(delta[0]) << b.shift
					delta = delta[1:]
				}
			}
			for _, b := range deltaSizeBits {
				if cmd&b.mask != 0 {
					if len(delta) == 0 {
						return nil, ErrInvalidDelta
					}
					size |= uint64(delta[0]) << b.shift
					delta = delta[1:]
				}
			}
			if size == 0 {
				size = maxCopySize
			}
			if offset+size > srcSize || offset+size < offset {
				return nil, ErrInvalidDelta
			}
			dst = append(dst, base[offset:offset+size]...)

		case cmd != 0:
			size := int(cmd)
			if len(delta) < size {
				return nil, ErrInvalidDelta
			}
			dst = append(dst, delta[:size]...)
			delta = delta[size:]

		default:
			return nil, ErrInvalidDelta
		}
	}
	if len(dst) != int(targetSize) {
		return nil, ErrInvalidDelta
	}
	return dst, nil
}

func decodeDeltaSize(b []byte) (uint64, []byte, error) {
	var size uint64
	var shift uint
	for {
		if len(b) == 0 {
			return 0, nil, ErrInvalidDelta
		}
		c := b[0]
		b = b[1:]
		size |= uint64(c&0x7f) << shift
		shift += 7
		if c&0x80 == 0 {
			break
		}
	}
	return size, b, nil
}

func encodeDeltaSize(size int) []byte {
	var out []byte
	c := size & 0x7f
	size >>= 7
	for size != 0 {
		out = append(out, byte(c|0x80))
		c = size & 0x7f
		size >>= 7
	}
	return append(out, byte(c))
}

const minMatchLen = 16

// maxCopyChunk mirrors Git's own packer: a single copy instruction never
// asks for more than 0xffff bytes, even though the size fields could in
// principle encode more, so that a size of exactly 0 unambiguously means
// "copy maxCopySize bytes" on decode.
const maxCopyChunk = 0xffff

// EncodeDelta produces a Git-format delta transforming base into target,
// using a block-hash index over base to find copyable runs.
func EncodeDelta(base, target []byte) []byte {
	out := append(encodeDeltaSize(len(base)), encodeDeltaSize(len(target))...)

	index := indexBlocks(base)

	var pending []byte
	flushInsert := func() {
		for len(pending) > 0 {
			n := len(pending)
			if n > 127 {
				n = 127
			}
			out = append(out, byte(n))
			out = append(out, pending[:n]...)
			pending = pending[n:]
		}
	}

	i := 0
	for i < len(target) {
		if i+minMatchLen > len(target) {
			pending = append(pending, target[i:]...)
			break
		}
		key := blockKey(target[i : i+minMatchLen])
		candidates := index[key]
		bestOff, bestLen := -1, 0
		for _, off := range candidates {
			l := matchLen(base[off:], target[i:])
			if l > bestLen {
				bestOff, bestLen = off, l
			}
		}
		if bestLen >= minMatchLen {
			flushInsert()
			off, remaining := bestOff, bestLen
			for remaining > 0 {
				n := remaining
				if n > maxCopyChunk {
					n = maxCopyChunk
				}
				out = append(out, encodeCopy(off, n)...)
				off += n
				remaining -= n
			}
			i += bestLen
		} else {
			pending = append(pending, target[i])
			i++
		}
	}
	flushInsert()
	return out
}

func indexBlocks(base []byte) map[uint64][]int {
	index := make(map[uint64][]int)
	if len(base) < minMatchLen {
		return index
	}
	for i := 0; i+minMatchLen <= len(base); i++ {
		key := blockKey(base[i : i+minMatchLen])
		index[key] = append(index[key], i)
	}
	return index
}

func blockKey(b []byte) uint64 {
	var h uint64 = 1469598103934665603
	for _, c := range b {
		h ^= uint64(c)
		h *= 1099511628211
	}
	return h
}

func matchLen(a, b []byte) int {
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

func encodeCopy(offset, size int) []byte {
	var code byte = copyCmdBit
	var fields []byte

	for _, b := range deltaOffsetBits {
		v := byte(offset >> b.shift)
		if v != 0 {
			fields = append(fields, v)
			code |= b.mask
		}
	}
	remaining := size
	for _, b := range deltaSizeBits {
		v := byte(remaining >> b.shift)
		if v != 0 {
			fields = append(fields, v)
			code |= b.mask
		}
	}
	return append([]byte{code}, fields...)
}
