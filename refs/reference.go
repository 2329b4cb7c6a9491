// Package refs implements Git's reference store: direct and symbolic refs
// under refs/, HEAD, and the packed-refs compaction file, with atomic
// lock-file updates.
package refs

import (
	"fmt"
	"strings"

	"github.com/opengit/engine/plumbing/hash"
)

// ReferenceType distinguishes a direct (hash) reference from a symbolic one.
type ReferenceType int8

const (
	InvalidReference ReferenceType = iota
	HashReference
	SymbolicReference
)

func (t ReferenceType) String() string {
	switch t {
	case HashReference:
		return "hash-reference"
	case SymbolicReference:
		return "symbolic-reference"
	default:
		return "invalid-reference"
	}
}

// ReferenceName is a slash-separated reference path, e.g. "refs/heads/main".
type ReferenceName string

// HEAD is the name of the reference that tracks the current checkout.
const HEAD ReferenceName = "HEAD"

const (
	refHeadPrefix   = "refs/heads/"
	refTagPrefix    = "refs/tags/"
	refRemotePrefix = "refs/remotes/"
	refNotePrefix   = "refs/notes/"
)

func (n ReferenceName) String() string { return string(n) }

func (n ReferenceName) IsBranch() bool { return strings.HasPrefix(string(n), refHeadPrefix) }
func (n ReferenceName) IsTag() bool    { return strings.HasPrefix(string(n), refTagPrefix) }
func (n ReferenceName) IsRemote() bool { return strings.HasPrefix(string(n), refRemotePrefix) }
func (n ReferenceName) IsNote() bool   { return strings.HasPrefix(string(n), refNotePrefix) }

// Short returns the last path component, e.g. "main" for "refs/heads/main".
func (n ReferenceName) Short() string {
	s := string(n)
	if i := strings.LastIndexByte(s, '/'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Reference is a named pointer to either an object id (a hash reference) or
// to another reference (a symbolic reference, such as HEAD usually is).
type Reference struct {
	t      ReferenceType
	name   ReferenceName
	hash   hash.ObjectID
	target ReferenceName
}

// NewHashReference builds a direct reference from name to hash.
func NewHashReference(name ReferenceName, h hash.ObjectID) *Reference {
	return &Reference{t: HashReference, name: name, hash: h}
}

// NewSymbolicReference builds a reference from name that points at target.
func NewSymbolicReference(name, target ReferenceName) *Reference {
	return &Reference{t: SymbolicReference, name: name, target: target}
}

func (r *Reference) Type() ReferenceType   { return r.t }
func (r *Reference) Name() ReferenceName   { return r.name }
func (r *Reference) Hash() hash.ObjectID   { return r.hash }
func (r *Reference) Target() ReferenceName { return r.target }

func (r *Reference) String() string {
	switch r.t {
	case HashReference:
		return fmt.Sprintf("%s %s", r.hash, r.name)
	case SymbolicReference:
		return fmt.Sprintf("ref: %s %s", r.target, r.name)
	default:
		return "<invalid reference>"
	}
}

// content returns the bytes a loose reference file holds for r.
func (r *Reference) content() string {
	switch r.t {
	case SymbolicReference:
		return fmt.Sprintf("ref: %s\n", r.target)
	case HashReference:
		return r.hash.String() + "\n"
	default:
		return ""
	}
}

// parseReferenceLine parses either form a loose ref file's single
// meaningful line can take: "ref: <target>" or a bare hex object id.
func parseReferenceLine(name ReferenceName, line string) (*Reference, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("refs: empty reference file for %s", name)
	}

	if strings.HasPrefix(line, "ref: ") {
		target := strings.TrimSpace(strings.TrimPrefix(line, "ref: "))
		return NewSymbolicReference(name, ReferenceName(target)), nil
	}

	h, err := hash.FromHex(line)
	if err != nil {
		return nil, fmt.Errorf("refs: malformed reference %s: %w", name, err)
	}
	return NewHashReference(name, h), nil
}
