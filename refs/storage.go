package refs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/go-git/go-billy/v5"
)

const (
	packedRefsPath = "packed-refs"
	refsDir        = "refs"

	// maxSymbolicHops bounds how many symbolic references Resolve will
	// follow before giving up; a real chain is never this long, so
	// hitting it means a cycle.
	maxSymbolicHops = 5
)

// ErrReferenceNotFound is returned when a name has no reference, loose or
// packed.
var ErrReferenceNotFound = errors.New("refs: reference not found")

// ErrReferenceHasChanged is returned by CheckAndSetReference when the
// stored value no longer matches the expected old value.
var ErrReferenceHasChanged = errors.New("refs: reference has changed")

// ErrMaxSymbolicHops is returned by Resolve when a symbolic reference chain
// is a cycle or simply too long to be legitimate.
var ErrMaxSymbolicHops = errors.New("refs: too many symbolic reference hops")

// Store is a reference store rooted at a go-billy filesystem (normally
// $GIT_DIR).
type Store struct {
	fs billy.Filesystem
}

// NewStore returns a Store reading and writing references under fs.
func NewStore(fs billy.Filesystem) *Store {
	return &Store{fs: fs}
}

// SetReference writes r unconditionally.
func (s *Store) SetReference(r *Reference) error {
	return s.setRef(r, nil)
}

// CheckAndSetReference writes new only if the reference currently named
// new.Name() equals old (or old is nil). It returns ErrReferenceHasChanged
// otherwise, matching Git's compare-and-swap ref update semantics.
func (s *Store) CheckAndSetReference(new, old *Reference) error {
	return s.setRef(new, old)
}

func (s *Store) setRef(r, old *Reference) error {
	path := string(r.Name())

	mode := os.O_RDWR | os.O_CREATE
	if old == nil {
		mode |= os.O_TRUNC
	}

	if dir := pathDir(path); len(dir) > 0 {
		if err := s.fs.MkdirAll(s.fs.Join(dir...), 0o755); err != nil {
			return err
		}
	}

	f, err := s.fs.OpenFile(path, mode, 0o666)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Lock(); err != nil {
		return err
	}

	if old != nil {
		current, err := s.readReferenceFrom(f, r.Name())
		if err != nil && !errors.Is(err, errEmptyRefFile) {
			return err
		}

		if errors.Is(err, errEmptyRefFile) || current == nil {
			// Nothing unpacked at this name; the expected old value, if
			// any, can only live in packed-refs.
			return s.checkAndReplacePacked(r, old)
		}

		if !sameTarget(current, old) {
			return ErrReferenceHasChanged
		}

		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if err := f.Truncate(0); err != nil {
			return err
		}
	}

	_, err = f.Write([]byte(r.content()))
	return err
}

// checkAndReplacePacked handles the case where CheckAndSetReference expects
// an old value but the loose file was empty: the expected ref may still be
// sitting in packed-refs, in which case it must be scrubbed from there once
// the new loose value is written.
func (s *Store) checkAndReplacePacked(r, old *Reference) error {
	packed, err := s.readPackedRefs()
	if err != nil {
		return err
	}

	found := false
	for _, ref := range packed {
		if ref.Name() != old.Name() {
			continue
		}
		if !sameTarget(ref, old) {
			return ErrReferenceHasChanged
		}
		found = true
		break
	}
	if !found {
		return ErrReferenceHasChanged
	}

	f, err := s.fs.Create(string(r.Name()))
	if err != nil {
		return err
	}
	if _, err := f.Write([]byte(r.content())); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return s.rewritePackedRefsWithout(old.Name())
}

func sameTarget(a, b *Reference) bool {
	if a.Type() != b.Type() {
		return false
	}
	if a.Type() == HashReference {
		return a.Hash() == b.Hash()
	}
	return a.Target() == b.Target()
}

var errEmptyRefFile = errors.New("refs: empty reference file")

func (s *Store) readReferenceFrom(f billy.File, name ReferenceName) (*Reference, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(raw)) == "" {
		return nil, errEmptyRefFile
	}

	return parseReferenceLine(name, string(raw))
}

// Reference returns the reference stored at name, one level deep: if name
// is symbolic, its Target() is returned unresolved. Use Resolve to follow
// a symbolic chain down to its hash reference.
func (s *Store) Reference(name ReferenceName) (*Reference, error) {
	f, err := s.fs.Open(string(name))
	if err == nil {
		defer f.Close()
		raw, err := io.ReadAll(f)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(string(raw)) != "" {
			return parseReferenceLine(name, string(raw))
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	packed, err := s.readPackedRefs()
	if err != nil {
		return nil, err
	}
	for _, ref := range packed {
		if ref.Name() == name {
			return ref, nil
		}
	}

	return nil, ErrReferenceNotFound
}

// Resolve follows name through any chain of symbolic references and
// returns the hash reference at the end of it.
func (s *Store) Resolve(name ReferenceName) (*Reference, error) {
	cur := name
	for i := 0; i < maxSymbolicHops; i++ {
		ref, err := s.Reference(cur)
		if err != nil {
			return nil, err
		}
		if ref.Type() == HashReference {
			return ref, nil
		}
		cur = ref.Target()
	}
	return nil, ErrMaxSymbolicHops
}

// RemoveReference deletes name's loose ref file (if any) and scrubs it from
// packed-refs (if present there). It is not an error to remove a name that
// does not exist.
func (s *Store) RemoveReference(name ReferenceName) error {
	err := s.fs.Remove(string(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return s.rewritePackedRefsWithout(name)
}

// IterReferences returns every reference known to the store: HEAD, every
// loose reference under refs/, and every packed reference not shadowed by
// a loose one.
func (s *Store) IterReferences() ([]*Reference, error) {
	seen := make(map[ReferenceName]bool)
	var out []*Reference

	if head, err := s.Reference(HEAD); err == nil {
		out = append(out, head)
		seen[HEAD] = true
	} else if !errors.Is(err, ErrReferenceNotFound) {
		return nil, err
	}

	if err := s.walkLoose(refsDir, &out, seen); err != nil {
		return nil, err
	}

	packed, err := s.readPackedRefs()
	if err != nil {
		return nil, err
	}
	for _, ref := range packed {
		if !seen[ref.Name()] {
			out = append(out, ref)
			seen[ref.Name()] = true
		}
	}

	return out, nil
}

func (s *Store) walkLoose(dir string, out *[]*Reference, seen map[ReferenceName]bool) error {
	entries, err := s.fs.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, e := range entries {
		path := s.fs.Join(dir, e.Name())
		if e.IsDir() {
			if err := s.walkLoose(path, out, seen); err != nil {
				return err
			}
			continue
		}

		name := ReferenceName(path)
		ref, err := s.Reference(name)
		if err != nil {
			return err
		}
		*out = append(*out, ref)
		seen[name] = true
	}
	return nil
}

func (s *Store) readPackedRefs() ([]*Reference, error) {
	f, err := s.fs.Open(packedRefsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	return s.findPackedRefsInFile(f)
}

func (s *Store) findPackedRefsInFile(f io.Reader) ([]*Reference, error) {
	var refs []*Reference
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		switch line[0] {
		case '#':
			continue
		case '^':
			// peeled tag commit of the previous line; this store does not
			// track peeled ids separately.
			continue
		}

		ws := strings.SplitN(line, " ", 2)
		if len(ws) != 2 {
			return nil, fmt.Errorf("refs: malformed packed-refs line %q", line)
		}
		h, err := parseReferenceLine(ReferenceName(ws[1]), ws[0])
		if err != nil {
			return nil, err
		}
		refs = append(refs, h)
	}
	return refs, sc.Err()
}

// rewritePackedRefsWithout rewrites packed-refs omitting name, if present.
// A missing packed-refs file, or one that does not mention name, is a
// no-op.
func (s *Store) rewritePackedRefsWithout(name ReferenceName) error {
	refs, err := s.readPackedRefs()
	if err != nil {
		return err
	}

	found := false
	kept := make([]*Reference, 0, len(refs))
	for _, ref := range refs {
		if ref.Name() == name {
			found = true
			continue
		}
		kept = append(kept, ref)
	}
	if !found {
		return nil
	}

	tmp, err := s.fs.TempFile("", "packed-refs_")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	var buf strings.Builder
	buf.WriteString("# pack-refs with: sorted\n")
	for _, ref := range kept {
		fmt.Fprintf(&buf, "%s %s\n", ref.Hash(), ref.Name())
	}

	if _, err := tmp.Write([]byte(buf.String())); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return err
	}

	if err := s.fs.Rename(tmpName, packedRefsPath); err != nil {
		_ = s.fs.Remove(tmpName)
		return err
	}
	return nil
}

// PackRefs compacts every current loose reference (except HEAD) into
// packed-refs and removes their loose files, the way "git pack-refs"
// does.
func (s *Store) PackRefs() error {
	var loose []*Reference
	if err := s.walkLoose(refsDir, &loose, map[ReferenceName]bool{}); err != nil {
		return err
	}
	if len(loose) == 0 {
		return nil
	}

	existing, err := s.readPackedRefs()
	if err != nil {
		return err
	}

	merged := make(map[ReferenceName]*Reference, len(existing)+len(loose))
	for _, ref := range existing {
		merged[ref.Name()] = ref
	}
	for _, ref := range loose {
		if ref.Type() != HashReference {
			// Symbolic refs (other than HEAD, already excluded) are not
			// valid packed-refs entries; leave them loose.
			continue
		}
		merged[ref.Name()] = ref
	}

	tmp, err := s.fs.TempFile("", "packed-refs_")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	names := make([]string, 0, len(merged))
	for name := range merged {
		names = append(names, string(name))
	}
	sort.Strings(names)

	var buf strings.Builder
	buf.WriteString("# pack-refs with: sorted\n")
	for _, name := range names {
		ref := merged[ReferenceName(name)]
		fmt.Fprintf(&buf, "%s %s\n", ref.Hash(), ref.Name())
	}
	if _, err := tmp.Write([]byte(buf.String())); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return err
	}
	if err := s.fs.Rename(tmpName, packedRefsPath); err != nil {
		_ = s.fs.Remove(tmpName)
		return err
	}

	for _, ref := range loose {
		if ref.Type() != HashReference {
			continue
		}
		if err := s.fs.Remove(string(ref.Name())); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func pathDir(path string) []string {
	i := strings.LastIndexByte(path, '/')
	if i < 0 {
		return nil
	}
	return strings.Split(path[:i], "/")
}
