// Package diff implements the line-oriented diff and three-way merge
// engine: a line sequence with configurable equality modes, Myers and
// Histogram diff producing an EditList, three-way merge with
// OURS/THEIRS/UNION/conflict-marker strategies, a unified-diff patch
// applier, and Git binary-patch base85 framing. The diff algorithms work
// against an indexable per-line EditList rather than an unstructured text
// diff, since three-way merge and patch hunks both need to address
// specific line ranges on either side of an edit.
package diff

import "bytes"

// EqualityMode controls how two lines are compared for diff purposes.
type EqualityMode int

const (
	EqualExact EqualityMode = iota
	EqualIgnoreAllWhitespace
	EqualIgnoreLeadingWhitespace
	EqualIgnoreTrailingWhitespace
	EqualIgnoreChange
)

// LineSequence splits a byte slice into lines at '\n', retaining each
// line's raw bytes (including its trailing '\n', except possibly the
// last line).
type LineSequence struct {
	lines [][]byte
	mode  EqualityMode
}

// NewLineSequence splits content into lines under mode.
func NewLineSequence(content []byte, mode EqualityMode) *LineSequence {
	var lines [][]byte
	start := 0
	for i, b := range content {
		if b == '\n' {
			lines = append(lines, content[start:i+1])
			start = i + 1
		}
	}
	if start < len(content) {
		lines = append(lines, content[start:])
	}
	return &LineSequence{lines: lines, mode: mode}
}

// Len returns the number of lines.
func (s *LineSequence) Len() int { return len(s.lines) }

// Line returns the raw bytes of line i.
func (s *LineSequence) Line(i int) []byte { return s.lines[i] }

// Equal reports whether line i of s equals line j of other under s's
// equality mode.
func (s *LineSequence) Equal(i int, other *LineSequence, j int) bool {
	return bytes.Equal(normalize(s.lines[i], s.mode), normalize(other.lines[j], s.mode))
}

func normalize(line []byte, mode EqualityMode) []byte {
	switch mode {
	case EqualIgnoreAllWhitespace:
		out := make([]byte, 0, len(line))
		for _, b := range line {
			if b == ' ' || b == '\t' || b == '\n' || b == '\r' {
				continue
			}
			out = append(out, b)
		}
		return out
	case EqualIgnoreLeadingWhitespace:
		return bytes.TrimLeft(line, " \t")
	case EqualIgnoreTrailingWhitespace:
		trimmed := bytes.TrimRight(line, " \t\r\n")
		// preserve the line terminator distinction but ignore trailing
		// horizontal whitespace before it
		if bytes.HasSuffix(line, []byte("\n")) {
			return append(append([]byte{}, trimmed...), '\n')
		}
		return trimmed
	case EqualIgnoreChange:
		fields := bytes.Fields(line)
		return bytes.Join(fields, []byte(" "))
	default:
		return line
	}
}
