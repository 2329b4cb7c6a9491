// Package gitignore implements Git's exclude-pattern matching: .gitignore
// files, $GIT_DIR/info/exclude, and the global/system excludesfile, layered
// the way `git status` and `git add` consult them.
package gitignore

import (
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MatchResult is the three-valued outcome of matching a path against a
// single Pattern. Unlike a plain boolean, it distinguishes "this pattern
// says nothing about this path" from "this pattern re-includes it" so a
// Matcher can let a later `!pattern` override an earlier exclusion.
type MatchResult int

const (
	// NoMatch means the pattern has no opinion about the path.
	NoMatch MatchResult = iota
	// Exclude means the pattern ignores the path.
	Exclude
	// Include means the pattern (a leading "!" negation) un-ignores the path.
	Include
)

// Pattern is a single parsed line from a .gitignore-style file.
type Pattern interface {
	Match(path []string, isDir bool) MatchResult
}

type pattern struct {
	domain   []string
	segments []string
	negate   bool
	dirOnly  bool
	anchored bool
	invalid  bool
}

// ParsePattern parses a single exclude-file line into a Pattern. Callers
// skip blank and comment lines before calling it. The line is used as
// given: surrounding whitespace is not trimmed, and backslash escapes (such
// as "\!" or "\#") are not interpreted.
// domain scopes the pattern to paths starting with that prefix, the way a
// nested .gitignore only governs paths below its own directory.
func ParsePattern(line string, domain []string) Pattern {
	p := &pattern{domain: normalizeSegments(domain)}

	if strings.HasPrefix(line, "!") {
		p.negate = true
		line = line[1:]
	}
	if strings.HasPrefix(line, "/") {
		p.anchored = true
		line = line[1:]
	}
	if strings.HasSuffix(line, "/") {
		p.dirOnly = true
		line = line[:len(line)-1]
	}

	p.segments = normalizeSegments(strings.Split(line, "/"))
	if len(p.segments) > 1 {
		p.anchored = true
	}

	for _, s := range p.segments {
		if s != "**" && strings.Contains(s, "**") {
			// "**" only carries its wildcard-depth meaning as a whole path
			// segment; anywhere else it's a pattern Git itself rejects, so
			// treat it as permanently unmatchable rather than guessing.
			p.invalid = true
		}
	}

	return p
}

// normalizeSegments NFC-normalizes every path segment so that a pattern
// parsed from one decomposition form still matches a worktree path produced
// in another; filesystems that store names in NFD (common on macOS) would
// otherwise never match a .gitignore line written in NFC, or vice versa.
func normalizeSegments(segs []string) []string {
	if segs == nil {
		return nil
	}
	out := make([]string, len(segs))
	for i, s := range segs {
		out[i] = norm.NFC.String(s)
	}
	return out
}

func (p *pattern) Match(path []string, isDir bool) MatchResult {
	if p.invalid {
		return NoMatch
	}
	path = normalizeSegments(path)
	if len(path) <= len(p.domain) {
		return NoMatch
	}
	for i, e := range p.domain {
		if path[i] != e {
			return NoMatch
		}
	}
	working := path[len(p.domain):]

	matched := false
	if p.anchored {
		matched = p.matchAt(working, 0, isDir)
	} else {
		for i := range working {
			if p.matchAt(working, i, isDir) {
				matched = true
				break
			}
		}
	}

	if !matched {
		return NoMatch
	}
	if p.negate {
		return Include
	}
	return Exclude
}

// matchAt reports whether p.segments matches working starting at offset off,
// accepting either a match that ends exactly at the end of working (subject
// to the dirOnly/isDir check) or one that ends short of it, which always
// implies a directory (there is more path below the matched point).
func (p *pattern) matchAt(working []string, off int, isDir bool) bool {
	ends := possibleEnds(p.segments, working[off:])
	full := len(working) - off
	for k := range ends {
		abs := off + k
		if abs < len(working) {
			return true
		}
		if abs == len(working) {
			if !p.dirOnly || isDir {
				return true
			}
		}
	}
	_ = full
	return false
}

// possibleEnds returns every prefix length k (0 <= k <= len(path)) such that
// segs matches path[:k] in full, treating a lone "**" segment as "zero or
// more path elements" and every other segment as a one-element glob match.
func possibleEnds(segs []string, path []string) map[int]struct{} {
	if len(segs) == 0 {
		return map[int]struct{}{0: {}}
	}

	head, rest := segs[0], segs[1:]
	out := map[int]struct{}{}

	if head == "**" {
		for j := 0; j <= len(path); j++ {
			for k := range possibleEnds(rest, path[j:]) {
				out[j+k] = struct{}{}
			}
		}
		return out
	}

	if len(path) == 0 {
		return out
	}
	ok, err := filepath.Match(head, path[0])
	if err != nil || !ok {
		return out
	}
	for k := range possibleEnds(rest, path[1:]) {
		out[1+k] = struct{}{}
	}
	return out
}
