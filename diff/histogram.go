package diff

// Histogram computes an EditList using an anchor-based diff: it picks the
// common line occurring least often on the A side (ties broken by first
// occurrence), expands it to the longest equal run around it, and
// recurses on the unmatched regions before and after. When no common
// element anchors a split, it falls back to Myers — this is also Myers'
// own behavior for any two sequences with no common elements at all.
func Histogram(cmp SequenceComparator) EditList {
	ops := histogramOps(cmp, 0, cmp.LenA(), 0, cmp.LenB())
	return opsToEdits(ops)
}

func histogramOps(cmp SequenceComparator, aLo, aHi, bLo, bHi int) []op {
	if aLo == aHi && bLo == bHi {
		return nil
	}
	if aLo == aHi {
		return insertRun(bLo, bHi)
	}
	if bLo == bHi {
		return deleteRun(aLo, aHi)
	}

	aStart, aEnd, bStart, bEnd, ok := findAnchor(cmp, aLo, aHi, bLo, bHi)
	if !ok {
		return myersOps(cmp, aLo, aHi, bLo, bHi)
	}

	before := histogramOps(cmp, aLo, aStart, bLo, bStart)
	var common []op
	for i := 0; i < aEnd-aStart; i++ {
		common = append(common, op{kind: opCommon, aIdx: aStart + i, bIdx: bStart + i})
	}
	after := histogramOps(cmp, aEnd, aHi, bEnd, bHi)

	out := make([]op, 0, len(before)+len(common)+len(after))
	out = append(out, before...)
	out = append(out, common...)
	out = append(out, after...)
	return out
}

func insertRun(bLo, bHi int) []op {
	ops := make([]op, 0, bHi-bLo)
	for j := bLo; j < bHi; j++ {
		ops = append(ops, op{kind: opInsert, bIdx: j})
	}
	return ops
}

func deleteRun(aLo, aHi int) []op {
	ops := make([]op, 0, aHi-aLo)
	for i := aLo; i < aHi; i++ {
		ops = append(ops, op{kind: opDelete, aIdx: i})
	}
	return ops
}

// findAnchor locates the rarest line (by occurrence count within
// [aLo,aHi)) that also occurs in [bLo,bHi), then expands it to the
// longest equal run containing it. Returns ok=false if the two ranges
// share no common line at all.
func findAnchor(cmp SequenceComparator, aLo, aHi, bLo, bHi int) (aStart, aEnd, bStart, bEnd int, ok bool) {
	bucket, useHash := cmp.(hashBucketer)

	aCount := make(map[uint32]int)
	if useHash {
		for i := aLo; i < aHi; i++ {
			aCount[bucket.HashA(i)]++
		}
	}

	bestCount := -1
	bestA, bestB := -1, -1

	for j := bLo; j < bHi; j++ {
		for i := aLo; i < aHi; i++ {
			if !cmp.Equal(i, j) {
				continue
			}
			count := 0
			if useHash {
				count = aCount[bucket.HashB(j)]
			}
			if bestCount == -1 || count < bestCount {
				bestCount = count
				bestA, bestB = i, j
			}
			break // first A match for this j is enough to consider the anchor
		}
	}

	if bestA == -1 {
		return 0, 0, 0, 0, false
	}

	// expand the anchor to the longest equal run through (bestA,bestB)
	start := 0
	for bestA-start-1 >= aLo && bestB-start-1 >= bLo && cmp.Equal(bestA-start-1, bestB-start-1) {
		start++
	}
	end := 1
	for bestA+end < aHi && bestB+end < bHi && cmp.Equal(bestA+end, bestB+end) {
		end++
	}

	return bestA - start, bestA + end, bestB - start, bestB + end, true
}

