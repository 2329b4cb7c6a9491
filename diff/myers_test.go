package diff_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opengit/engine/diff"
)

func comparatorFor(a, b string) diff.SequenceComparator {
	sa := diff.NewHashedSequence(diff.NewLineSequence([]byte(a), diff.EqualExact))
	sb := diff.NewHashedSequence(diff.NewLineSequence([]byte(b), diff.EqualExact))
	return diff.NewComparator(sa, sb)
}

func applyEdits(a string, edits diff.EditList, b string) string {
	sa := diff.NewLineSequence([]byte(a), diff.EqualExact)
	sb := diff.NewLineSequence([]byte(b), diff.EqualExact)

	var out []byte
	aIdx := 0
	for _, e := range edits {
		for aIdx < e.BeginA {
			out = append(out, sa.Line(aIdx)...)
			aIdx++
		}
		for j := e.BeginB; j < e.EndB; j++ {
			out = append(out, sb.Line(j)...)
		}
		aIdx = e.EndA
	}
	for aIdx < sa.Len() {
		out = append(out, sa.Line(aIdx)...)
		aIdx++
	}
	return string(out)
}

func TestMyersIdenticalSequencesProduceNoEdits(t *testing.T) {
	edits := diff.Myers(comparatorFor("a\nb\nc\n", "a\nb\nc\n"))
	assert.Empty(t, edits)
}

func TestMyersAppliedEditsReconstructB(t *testing.T) {
	a := "a\nb\nc\nd\n"
	b := "a\nx\nc\ny\nd\n"
	edits := diff.Myers(comparatorFor(a, b))
	require.NotEmpty(t, edits)
	assert.Equal(t, b, applyEdits(a, edits, b))
}

func TestMyersPureInsertion(t *testing.T) {
	a := "a\nc\n"
	b := "a\nb\nc\n"
	edits := diff.Myers(comparatorFor(a, b))
	assert.Equal(t, b, applyEdits(a, edits, b))
}

func TestMyersPureDeletion(t *testing.T) {
	a := "a\nb\nc\n"
	b := "a\nc\n"
	edits := diff.Myers(comparatorFor(a, b))
	assert.Equal(t, b, applyEdits(a, edits, b))
}

func TestMyersEmptyToNonEmpty(t *testing.T) {
	a := ""
	b := "a\nb\n"
	edits := diff.Myers(comparatorFor(a, b))
	assert.Equal(t, b, applyEdits(a, edits, b))
}
