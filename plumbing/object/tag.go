package object

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/opengit/engine/plumbing/hash"
)

// Tag is an annotated tag: a named, signed-or-not pointer at another
// object, usually a commit.
type Tag struct {
	Target     hash.ObjectID
	TargetKind Kind
	Name       string
	Tagger     *Signature // nil for a lightweight-style annotated tag with no tagger line
	Message    string
}

func (t *Tag) Kind() Kind { return KindTag }

// Content serializes the tag in Git's header/blank-line/message layout.
func (t *Tag) Content() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.Target)
	fmt.Fprintf(&buf, "type %s\n", t.TargetKind)
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	if t.Tagger != nil {
		fmt.Fprintf(&buf, "tagger %s\n", *t.Tagger)
	}
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes()
}

// ParseTag parses tag content (the bytes after "tag len\0").
func ParseTag(content []byte) (*Tag, error) {
	t := &Tag{}
	lines := splitHeaderBlock(content)
	if lines == nil {
		return nil, &ErrCorrupt{Kind: KindTag, Reason: "missing header/message blank-line separator"}
	}

	var haveObject, haveType, haveName bool
	for _, line := range lines.headers {
		key, value, ok := splitHeaderLine([]byte(line))
		if !ok {
			return nil, &ErrCorrupt{Kind: KindTag, Reason: "malformed header line"}
		}
		switch key {
		case "object":
			id, err := hash.FromHex(value)
			if err != nil {
				return nil, &ErrCorrupt{Kind: KindTag, Reason: "bad object id"}
			}
			t.Target = id
			haveObject = true
		case "type":
			kind, err := ParseKind(strings.TrimSpace(value))
			if err != nil {
				return nil, &ErrCorrupt{Kind: KindTag, Reason: err.Error()}
			}
			t.TargetKind = kind
			haveType = true
		case "tag":
			t.Name = value
			haveName = true
		case "tagger":
			sig, err := ParseSignature(value)
			if err != nil {
				return nil, &ErrCorrupt{Kind: KindTag, Reason: err.Error()}
			}
			t.Tagger = &sig
		}
	}

	if !haveObject || !haveType || !haveName {
		return nil, &ErrCorrupt{Kind: KindTag, Reason: "missing required header"}
	}
	t.Message = lines.message
	return t, nil
}
