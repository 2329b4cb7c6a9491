// Package hash provides the SHA-1 object-id primitive used across the
// engine: streaming and one-shot digests, and hex <-> bytes conversion in
// Git's canonical lowercase form.
package hash

import (
	"encoding/hex"
	"hash"

	"github.com/pjbgf/sha1cd"
)

// Size is the number of bytes in an object id.
const Size = 20

// HexSize is the number of hex characters in the string form of an object id.
const HexSize = Size * 2

// ObjectID is a 20-byte SHA-1 object id.
type ObjectID [Size]byte

// ZeroID is the all-zero object id, used as a sentinel (e.g. unresolved
// parent, deleted ref target).
var ZeroID ObjectID

// New returns a new streaming SHA-1 hasher. It uses sha1cd, which detects
// and hardens against SHAttered-style collision attacks for every object
// id computed.
func New() hash.Hash {
	return sha1cd.New()
}

// Sum computes the object id of b in one shot.
func Sum(b []byte) ObjectID {
	h := New()
	h.Write(b)
	var id ObjectID
	copy(id[:], h.Sum(nil))
	return id
}

// String returns the lowercase hex representation of id.
func (id ObjectID) String() string {
	return hex.EncodeToString(id[:])
}

// IsZero reports whether id is the all-zero id.
func (id ObjectID) IsZero() bool {
	return id == ZeroID
}

// Bytes returns the 20 raw bytes of id.
func (id ObjectID) Bytes() []byte {
	return id[:]
}

// Compare orders two object ids lexicographically by byte value, matching
// Git's canonical sort order for object ids (used by pack index fanout and
// sorted-id tables).
func (id ObjectID) Compare(other ObjectID) int {
	for i := range id {
		if id[i] != other[i] {
			if id[i] < other[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}

// FromHex parses a 40-character lowercase (or uppercase) hex string into an
// ObjectID. It rejects strings of the wrong length or with non-hex runes.
func FromHex(s string) (ObjectID, error) {
	var id ObjectID
	if len(s) != HexSize {
		return id, &ErrInvalidHex{Value: s}
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, &ErrInvalidHex{Value: s}
	}
	copy(id[:], b)
	return id, nil
}

// FromBytes copies 20 bytes into a new ObjectID. It panics if b is not
// exactly Size bytes, mirroring Git's own internal invariant that object ids
// are always fixed-width.
func FromBytes(b []byte) ObjectID {
	if len(b) != Size {
		panic("hash: FromBytes requires exactly 20 bytes")
	}
	var id ObjectID
	copy(id[:], b)
	return id
}

// ErrInvalidHex is returned when a string cannot be parsed as a hex object id.
type ErrInvalidHex struct {
	Value string
}

func (e *ErrInvalidHex) Error() string {
	return "hash: invalid hex object id: " + e.Value
}
