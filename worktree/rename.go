package worktree

import (
	"github.com/sergi/go-diff/diffmatchpatch"
)

// SimilarityThreshold is the default minimum similarity (0..1) two
// deleted/added blobs must share to be reported as a rename rather than an
// independent delete+add, matching Git's default 50% rename threshold.
const SimilarityThreshold = 0.5

// RenameDetector finds renames among a set of deleted and added paths by
// byte-content similarity, scoring each deleted/added pair with
// diffmatchpatch's Levenshtein distance over the two blobs' text,
// normalized by the longer blob's length into a [0,1] similarity.
type RenameDetector struct {
	Threshold float64
}

// NewRenameDetector returns a detector using SimilarityThreshold.
func NewRenameDetector() *RenameDetector {
	return &RenameDetector{Threshold: SimilarityThreshold}
}

// RenamePair is one detected deleted->added rename, with its similarity
// score in [0,1].
type RenamePair struct {
	From       string
	To         string
	Similarity float64
}

// blobContent is the minimal content-bearing shape rename detection reads
// from; both the deleted and added sides provide it.
type blobContent struct {
	Path string
	Data []byte
}

// Detect pairs each deleted blob with its best-matching added blob (above
// the detector's threshold), consuming both sides greedily by descending
// similarity — the simplest rename-detection policy, adequate since
// Git's own heuristic is also a greedy bipartite match in the common
// case (few renames per commit).
func (d *RenameDetector) Detect(deleted, added []blobContent) []RenamePair {
	type candidate struct {
		i, j  int
		score float64
	}

	var candidates []candidate
	for i, del := range deleted {
		for j, add := range added {
			if len(del.Data) == 0 && len(add.Data) == 0 {
				continue
			}
			candidates = append(candidates, candidate{i: i, j: j, score: similarity(del.Data, add.Data)})
		}
	}

	// selection sort by descending score, skipping already-consumed
	// indices — candidates lists are small (renames per commit), so O(n^2)
	// selection is simpler to audit than a full sort plus a seen-set pass.
	usedDel := make(map[int]bool)
	usedAdd := make(map[int]bool)
	var pairs []RenamePair

	for {
		best := -1
		for k, c := range candidates {
			if usedDel[c.i] || usedAdd[c.j] || c.score < d.Threshold {
				continue
			}
			if best == -1 || c.score > candidates[best].score {
				best = k
			}
		}
		if best == -1 {
			break
		}
		c := candidates[best]
		usedDel[c.i] = true
		usedAdd[c.j] = true
		pairs = append(pairs, RenamePair{From: deleted[c.i].Path, To: added[c.j].Path, Similarity: c.score})
	}

	return pairs
}

// similarity scores two byte slices in [0,1] using diffmatchpatch's
// Levenshtein distance over their diff, normalized by the longer length.
func similarity(a, b []byte) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(string(a), string(b), false)
	dist := dmp.DiffLevenshtein(diffs)

	maxLen := len(a)
	if len(b) > maxLen {
		maxLen = len(b)
	}
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(dist)/float64(maxLen)
}
