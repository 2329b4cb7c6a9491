package diff

import "bytes"

// MergeStrategy selects how a conflicting region of a three-way merge is
// resolved. The zero value requests explicit conflict markers.
type MergeStrategy int

const (
	StrategyMarkers MergeStrategy = iota
	StrategyOurs
	StrategyTheirs
	StrategyUnion
)

// ConflictRegion records the line ranges (in ours/theirs, against the
// merged output) of one unresolved conflict.
type ConflictRegion struct {
	OursBegin, OursEnd     int
	TheirsBegin, TheirsEnd int
}

// MergeResult is the output of a three-way merge: the merged line
// sequence plus every conflict region that was marked rather than
// resolved.
type MergeResult struct {
	Lines       [][]byte
	HasConflict bool
	Conflicts   []ConflictRegion
}

// DiffFunc is Myers or Histogram, parameterized so Merge can use either.
type DiffFunc func(SequenceComparator) EditList

// Merge performs a three-way merge of base/ours/theirs using algo to diff
// base against each side: common regions pass through unchanged,
// one-sided edits apply cleanly, and regions both sides touched are
// compared content-wise — identical edits are not a conflict, differing
// edits are resolved by strategy (or left marked).
func Merge(base, ours, theirs *LineSequence, algo DiffFunc, strategy MergeStrategy) *MergeResult {
	hBase := NewHashedSequence(base)
	hOurs := NewHashedSequence(ours)
	hTheirs := NewHashedSequence(theirs)

	oursEdits := algo(NewComparator(hBase, hOurs))
	theirsEdits := algo(NewComparator(hBase, hTheirs))

	return mergeEdits(base, ours, theirs, oursEdits, theirsEdits, strategy)
}

func mergeEdits(base, ours, theirs *LineSequence, oursEdits, theirsEdits EditList, strategy MergeStrategy) *MergeResult {
	res := &MergeResult{}
	baseIdx := 0
	oi, ti := 0, 0

	for baseIdx < base.Len() || oi < len(oursEdits) || ti < len(theirsEdits) {
		touchedByOurs := oi < len(oursEdits) && oursEdits[oi].BeginA == baseIdx
		touchedByTheirs := ti < len(theirsEdits) && theirsEdits[ti].BeginA == baseIdx

		switch {
		case !touchedByOurs && !touchedByTheirs:
			// common region: copy one base line through unchanged.
			res.Lines = append(res.Lines, base.Line(baseIdx))
			baseIdx++

		case touchedByOurs && !touchedByTheirs:
			e := oursEdits[oi]
			appendLines(res, ours, e.BeginB, e.EndB)
			baseIdx = e.EndA
			oi++

		case !touchedByOurs && touchedByTheirs:
			e := theirsEdits[ti]
			appendLines(res, theirs, e.BeginB, e.EndB)
			baseIdx = e.EndA
			ti++

		default:
			eo := oursEdits[oi]
			et := theirsEdits[ti]
			// Both sides touch an overlapping base region. Only a
			// matching base extent is compared as one conflict unit;
			// extend each side's edit to the other's base range.
			endA := eo.EndA
			if et.EndA > endA {
				endA = et.EndA
			}

			oursLines := linesIn(ours, eo.BeginB, eo.EndB)
			theirsLines := linesIn(theirs, et.BeginB, et.EndB)

			if sameContent(oursLines, theirsLines) {
				res.Lines = append(res.Lines, oursLines...)
			} else {
				resolveConflict(res, oursLines, theirsLines, strategy)
			}

			baseIdx = endA
			oi++
			ti++
		}
	}

	return res
}

func appendLines(res *MergeResult, seq *LineSequence, from, to int) {
	for i := from; i < to; i++ {
		res.Lines = append(res.Lines, seq.Line(i))
	}
}

func linesIn(seq *LineSequence, from, to int) [][]byte {
	out := make([][]byte, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, seq.Line(i))
	}
	return out
}

func sameContent(a, b [][]byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !bytes.Equal(a[i], b[i]) {
			return false
		}
	}
	return true
}

func resolveConflict(res *MergeResult, ours, theirs [][]byte, strategy MergeStrategy) {
	switch strategy {
	case StrategyOurs:
		res.Lines = append(res.Lines, ours...)
		return
	case StrategyTheirs:
		res.Lines = append(res.Lines, theirs...)
		return
	case StrategyUnion:
		res.Lines = append(res.Lines, ours...)
		for _, l := range theirs {
			if !containsLine(ours, l) {
				res.Lines = append(res.Lines, l)
			}
		}
		return
	}

	res.HasConflict = true
	oursBegin := len(res.Lines) + 1 // +1 for the marker line about to be added
	res.Lines = append(res.Lines, []byte("<<<<<<< OURS\n"))
	res.Lines = append(res.Lines, ours...)
	oursEnd := len(res.Lines)
	res.Lines = append(res.Lines, []byte("=======\n"))
	theirsBegin := len(res.Lines) // the separator line is already in place
	res.Lines = append(res.Lines, theirs...)
	theirsEnd := len(res.Lines)
	res.Lines = append(res.Lines, []byte(">>>>>>> THEIRS\n"))

	res.Conflicts = append(res.Conflicts, ConflictRegion{
		OursBegin: oursBegin, OursEnd: oursEnd,
		TheirsBegin: theirsBegin, TheirsEnd: theirsEnd,
	})
}

func containsLine(lines [][]byte, l []byte) bool {
	for _, line := range lines {
		if bytes.Equal(line, l) {
			return true
		}
	}
	return false
}
