package object

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/opengit/engine/plumbing/hash"
)

// Commit is a snapshot (via its Tree), its parent(s), and who/when/why.
type Commit struct {
	Tree      hash.ObjectID
	Parents   []hash.ObjectID
	Author    Signature
	Committer Signature
	// GPGSig carries an optional signing header verbatim (unfolded: no
	// continuation-line prefix). Signatures are not verified, but they
	// must round-trip byte-for-byte since they are part of the hashed
	// content.
	GPGSig  string
	Message string
}

func (c *Commit) Kind() Kind { return KindCommit }

// Content serializes the commit in Git's header/blank-line/message layout.
func (c *Commit) Content() []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.Tree)
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p)
	}
	fmt.Fprintf(&buf, "author %s\n", c.Author)
	fmt.Fprintf(&buf, "committer %s\n", c.Committer)
	if c.GPGSig != "" {
		buf.WriteString("gpgsig ")
		buf.WriteString(foldHeaderValue(c.GPGSig))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes()
}

// foldHeaderValue re-indents a multi-line header value (e.g. a PGP
// signature block) the way Git folds it into a commit header: every line
// after the first gets a single leading space so it isn't mistaken for a
// new header.
func foldHeaderValue(v string) string {
	lines := strings.Split(v, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = " " + lines[i]
	}
	return strings.Join(lines, "\n")
}

// unfoldHeaderValue reverses foldHeaderValue.
func unfoldHeaderValue(v string) string {
	lines := strings.Split(v, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = strings.TrimPrefix(lines[i], " ")
	}
	return strings.Join(lines, "\n")
}

// ParseCommit parses commit content (the bytes after "commit len\0").
func ParseCommit(content []byte) (*Commit, error) {
	c := &Commit{}

	lines := splitHeaderBlock(content)
	if lines == nil {
		return nil, &ErrCorrupt{Kind: KindCommit, Reason: "missing header/message blank-line separator"}
	}

	var haveTree, haveAuthor, haveCommitter bool
	i := 0
	for i < len(lines.headers) {
		line := lines.headers[i]
		key, value, ok := splitHeaderLine([]byte(line))
		if !ok {
			return nil, &ErrCorrupt{Kind: KindCommit, Reason: "malformed header line"}
		}

		// fold continuation lines (header values whose following lines
		// start with a single space) back into value before consuming them.
		j := i + 1
		var cont []string
		for j < len(lines.headers) && strings.HasPrefix(lines.headers[j], " ") {
			cont = append(cont, lines.headers[j])
			j++
		}
		if len(cont) > 0 {
			value = value + "\n" + strings.Join(cont, "\n")
		}

		switch key {
		case "tree":
			id, err := hash.FromHex(strings.TrimSuffix(value, "\n"))
			if err != nil {
				return nil, &ErrCorrupt{Kind: KindCommit, Reason: "bad tree id"}
			}
			c.Tree = id
			haveTree = true
		case "parent":
			id, err := hash.FromHex(value)
			if err != nil {
				return nil, &ErrCorrupt{Kind: KindCommit, Reason: "bad parent id"}
			}
			c.Parents = append(c.Parents, id)
		case "author":
			sig, err := ParseSignature(value)
			if err != nil {
				return nil, &ErrCorrupt{Kind: KindCommit, Reason: err.Error()}
			}
			c.Author = sig
			haveAuthor = true
		case "committer":
			sig, err := ParseSignature(value)
			if err != nil {
				return nil, &ErrCorrupt{Kind: KindCommit, Reason: err.Error()}
			}
			c.Committer = sig
			haveCommitter = true
		case "gpgsig":
			c.GPGSig = unfoldHeaderValue(value)
		default:
			// Unknown headers are dropped: only
			// tree/parent/author/committer/gpgsig are modeled.
		}
		i = j
	}

	if !haveTree || !haveAuthor || !haveCommitter {
		return nil, &ErrCorrupt{Kind: KindCommit, Reason: "missing required header"}
	}

	c.Message = lines.message
	return c, nil
}

type headerBlock struct {
	headers []string
	message string
}

// splitHeaderBlock splits "headers\n\nmessage" into individual header
// lines and the message tail. Returns nil if there is no blank-line
// separator.
func splitHeaderBlock(content []byte) *headerBlock {
	sep := []byte("\n\n")
	idx := bytes.Index(content, sep)
	if idx < 0 {
		return nil
	}
	head := string(content[:idx])
	msg := string(content[idx+2:])

	var headers []string
	if head != "" {
		headers = strings.Split(head, "\n")
	}
	return &headerBlock{headers: headers, message: msg}
}
