package object

import (
	"bytes"
	"fmt"

	"github.com/opengit/engine/plumbing/filemode"
	"github.com/opengit/engine/plumbing/hash"
)

// TreeEntry is one named, moded, id-bearing slot in a Tree.
type TreeEntry struct {
	Name string
	Mode filemode.FileMode
	ID   hash.ObjectID
}

// Tree is an ordered set of named entries, each pointing at a blob,
// subtree, or gitlink.
type Tree struct {
	Entries []TreeEntry
}

// NewTree sorts entries into canonical order and returns the Tree. It does
// not check for duplicate names; use Validate for that.
func NewTree(entries []TreeEntry) *Tree {
	sorted := make([]TreeEntry, len(entries))
	copy(sorted, entries)
	SortEntries(sorted)
	return &Tree{Entries: sorted}
}

func (t *Tree) Kind() Kind { return KindTree }

// Content serializes the tree's entries in canonical order:
// "{modeOctal} {name}\0{20-byte id}" concatenated, no separators between
// entries.
func (t *Tree) Content() []byte {
	var buf bytes.Buffer
	for _, e := range t.Entries {
		fmt.Fprintf(&buf, "%s %s\x00", e.Mode.String(), e.Name)
		buf.Write(e.ID.Bytes())
	}
	return buf.Bytes()
}

// Validate rejects embedded '/' or NUL in any entry name and any duplicate
// name, and confirms entries are in canonical sorted order.
func (t *Tree) Validate() error {
	seen := make(map[string]bool, len(t.Entries))
	for i, e := range t.Entries {
		if bytes.ContainsAny([]byte(e.Name), "/\x00") {
			return &ErrCorrupt{Kind: KindTree, Reason: fmt.Sprintf("entry name %q contains '/' or NUL", e.Name)}
		}
		if seen[e.Name] {
			return &ErrCorrupt{Kind: KindTree, Reason: fmt.Sprintf("duplicate entry name %q", e.Name)}
		}
		seen[e.Name] = true
		if i > 0 && compareEntryNames(t.Entries[i-1], e) >= 0 {
			return &ErrCorrupt{Kind: KindTree, Reason: "entries not in canonical sorted order"}
		}
	}
	return nil
}

// SortEntries orders entries the way Git compares tree entry names: byte by
// byte, except that a directory entry's name is compared as though
// suffixed with '/'. This makes "a" sort after "a.txt" but before "a/",
// matching git's base_name_compare semantics.
func SortEntries(entries []TreeEntry) {
	sortEntriesStable(entries)
}

func sortEntriesStable(entries []TreeEntry) {
	// insertion sort is fine: tree entry counts per directory are small in
	// practice, and this keeps the comparator easy to audit against the
	// spec's definition.
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && compareEntryNames(entries[j-1], entries[j]) > 0; j-- {
			entries[j-1], entries[j] = entries[j], entries[j-1]
		}
	}
}

func compareEntryNames(a, b TreeEntry) int {
	an, bn := []byte(a.Name), []byte(b.Name)
	if a.Mode.IsTree() {
		an = append(append([]byte{}, an...), '/')
	}
	if b.Mode.IsTree() {
		bn = append(append([]byte{}, bn...), '/')
	}
	return bytes.Compare(an, bn)
}

// ParseTree parses tree content (the bytes after "tree len\0") into a Tree,
// validating canonical sort order and rejecting malformed entries.
func ParseTree(content []byte) (*Tree, error) {
	var entries []TreeEntry
	for len(content) > 0 {
		sp := bytes.IndexByte(content, ' ')
		if sp < 0 {
			return nil, &ErrCorrupt{Kind: KindTree, Reason: "missing mode/name separator"}
		}
		mode, err := filemode.ParseOctal(string(content[:sp]))
		if err != nil {
			return nil, &ErrCorrupt{Kind: KindTree, Reason: err.Error()}
		}

		rest := content[sp+1:]
		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return nil, &ErrCorrupt{Kind: KindTree, Reason: "missing NUL after name"}
		}
		name := string(rest[:nul])
		if name == "" || bytes.ContainsRune([]byte(name), '/') {
			return nil, &ErrCorrupt{Kind: KindTree, Reason: "entry name empty or contains '/'"}
		}

		idStart := nul + 1
		if idStart+hash.Size > len(rest) {
			return nil, &ErrCorrupt{Kind: KindTree, Reason: "truncated entry id"}
		}
		id := hash.FromBytes(rest[idStart : idStart+hash.Size])

		entries = append(entries, TreeEntry{Name: name, Mode: mode, ID: id})
		content = rest[idStart+hash.Size:]
	}

	t := &Tree{Entries: entries}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return t, nil
}
