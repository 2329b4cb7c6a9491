// Package object implements Git's four object kinds — blob, tree, commit,
// tag — as a tagged variant, with the canonical serialization whose SHA-1
// digest is the object's id. parse(serialize(x)) == x byte-for-byte is
// the load-bearing invariant here: ids are hashes of the serialized form,
// so any drift breaks identity for every object that embeds one.
package object

import (
	"bytes"
	"fmt"

	"github.com/opengit/engine/plumbing/hash"
)

// Kind identifies which of the four object variants a Frame holds.
type Kind int8

const (
	KindInvalid Kind = iota
	KindBlob
	KindTree
	KindCommit
	KindTag
)

func (k Kind) String() string {
	switch k {
	case KindBlob:
		return "blob"
	case KindTree:
		return "tree"
	case KindCommit:
		return "commit"
	case KindTag:
		return "tag"
	default:
		return "invalid"
	}
}

// ParseKind maps a type token (as found in a frame header or pack type
// table) to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "blob":
		return KindBlob, nil
	case "tree":
		return KindTree, nil
	case "commit":
		return KindCommit, nil
	case "tag":
		return KindTag, nil
	default:
		return KindInvalid, fmt.Errorf("object: unknown type %q", s)
	}
}

// Object is the common interface every object kind satisfies: it can
// compute its wire content (the part after "type len\0") and be identified
// by the id of its canonical frame.
type Object interface {
	Kind() Kind
	// Content returns the object's canonical content bytes (without the
	// "type len\0" header).
	Content() []byte
}

// Frame returns the canonical "{type} {len}\0{content}" framing of o, whose
// SHA-1 is the object's id.
func Frame(o Object) []byte {
	content := o.Content()
	header := fmt.Sprintf("%s %d\x00", o.Kind(), len(content))
	buf := make([]byte, 0, len(header)+len(content))
	buf = append(buf, header...)
	buf = append(buf, content...)
	return buf
}

// ID computes the object id of o: SHA-1 over its canonical frame.
func ID(o Object) hash.ObjectID {
	return hash.Sum(Frame(o))
}

// ErrCorrupt is returned when a frame fails to parse as a well-formed
// object of its declared kind.
type ErrCorrupt struct {
	Kind   Kind
	Reason string
}

func (e *ErrCorrupt) Error() string {
	return fmt.Sprintf("object: corrupt %s: %s", e.Kind, e.Reason)
}

// ParseFrame splits a canonical frame into its declared kind and content,
// validating the declared length against the actual content length.
func ParseFrame(frame []byte) (Kind, []byte, error) {
	sp := bytes.IndexByte(frame, ' ')
	if sp < 0 {
		return KindInvalid, nil, &ErrCorrupt{Reason: "missing type/length separator"}
	}
	nul := bytes.IndexByte(frame[sp+1:], 0)
	if nul < 0 {
		return KindInvalid, nil, &ErrCorrupt{Reason: "missing NUL after length"}
	}
	nul += sp + 1

	kind, err := ParseKind(string(frame[:sp]))
	if err != nil {
		return KindInvalid, nil, &ErrCorrupt{Reason: err.Error()}
	}

	declared := frame[sp+1 : nul]
	content := frame[nul+1:]
	if fmt.Sprintf("%d", len(content)) != string(declared) {
		return kind, nil, &ErrCorrupt{Kind: kind, Reason: "declared length does not match content"}
	}
	return kind, content, nil
}

// Parse parses a canonical frame into a concrete Object of the right kind.
func Parse(frame []byte) (Object, error) {
	kind, content, err := ParseFrame(frame)
	if err != nil {
		return nil, err
	}
	switch kind {
	case KindBlob:
		return NewBlob(content), nil
	case KindTree:
		return ParseTree(content)
	case KindCommit:
		return ParseCommit(content)
	case KindTag:
		return ParseTag(content)
	default:
		return nil, &ErrCorrupt{Kind: kind, Reason: "unsupported kind"}
	}
}
