package diff

// hashLine is a djb2 variant hash over a normalized line, used to
// short-circuit comparisons before falling back to a byte-for-byte check.
func hashLine(line []byte, mode EqualityMode) uint32 {
	h := uint32(5381)
	for _, b := range normalize(line, mode) {
		h = h*33 + uint32(b)
	}
	return h
}

// HashedSequence wraps a LineSequence with a precomputed per-line hash, so
// that repeated comparisons (as Myers/Histogram perform) skip the
// normalize+compare path whenever the hashes already disagree.
type HashedSequence struct {
	*LineSequence
	hashes []uint32
}

// NewHashedSequence precomputes every line's hash under seq's mode.
func NewHashedSequence(seq *LineSequence) *HashedSequence {
	hashes := make([]uint32, seq.Len())
	for i := range hashes {
		hashes[i] = hashLine(seq.lines[i], seq.mode)
	}
	return &HashedSequence{LineSequence: seq, hashes: hashes}
}

// Equal reports whether line i of h equals line j of other, consulting
// hashes first.
func (h *HashedSequence) Equal(i int, other *HashedSequence, j int) bool {
	if h.hashes[i] != other.hashes[j] {
		return false
	}
	return h.LineSequence.Equal(i, other.LineSequence, j)
}

// SequenceComparator is the minimal interface Myers and Histogram need:
// two sequence lengths and a positional equality test.
type SequenceComparator interface {
	LenA() int
	LenB() int
	Equal(i, j int) bool
}

// hashBucketer is implemented by comparators that can report a cheap hash
// for bucketing (HashedSequence pairs); Histogram uses it to avoid an
// O(n*m) scan when looking for the rarest common line.
type hashBucketer interface {
	HashA(i int) uint32
	HashB(j int) uint32
}

// pairComparator adapts two HashedSequences into a SequenceComparator.
type pairComparator struct {
	a, b *HashedSequence
}

// NewComparator builds the SequenceComparator Myers/Histogram operate on
// from two already-hashed line sequences.
func NewComparator(a, b *HashedSequence) SequenceComparator {
	return &pairComparator{a: a, b: b}
}

func (p *pairComparator) LenA() int { return p.a.Len() }
func (p *pairComparator) LenB() int { return p.b.Len() }
func (p *pairComparator) Equal(i, j int) bool {
	return p.a.Equal(i, p.b, j)
}
func (p *pairComparator) HashA(i int) uint32 { return p.a.hashes[i] }
func (p *pairComparator) HashB(j int) uint32 { return p.b.hashes[j] }
