package gitignore

// Matcher layers a set of patterns the way Git evaluates exclude rules:
// later patterns in the slice take precedence over earlier ones, so a
// nested .gitignore's "!keep-me" can re-include something a parent
// directory's pattern excluded.
type Matcher struct {
	patterns []Pattern
}

// NewMatcher builds a Matcher from patterns in the order they should be
// consulted (least to most specific — typically system, then global, then
// $GIT_DIR/info/exclude, then each directory's .gitignore root-to-leaf).
func NewMatcher(patterns []Pattern) *Matcher {
	return &Matcher{patterns: patterns}
}

// Match reports whether path is ignored: the last pattern with an opinion
// wins, so an Include from a later, more specific pattern overrides an
// earlier Exclude.
func (m *Matcher) Match(path []string, isDir bool) bool {
	result := NoMatch
	for _, p := range m.patterns {
		if r := p.Match(path, isDir); r != NoMatch {
			result = r
		}
	}
	return result == Exclude
}
