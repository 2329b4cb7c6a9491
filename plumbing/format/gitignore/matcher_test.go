package gitignore

import "testing"

func TestMatcherMatch(t *testing.T) {
	ps := []Pattern{
		ParsePattern("**/middle/v[uo]l?ano", nil),
		ParsePattern("!volcano", nil),
	}

	m := NewMatcher(ps)
	if !m.Match([]string{"head", "middle", "vulkano"}, false) {
		t.Error("expected vulkano to be ignored")
	}
	if m.Match([]string{"head", "middle", "volcano"}, false) {
		t.Error("expected volcano to be re-included by the negated pattern")
	}
}
